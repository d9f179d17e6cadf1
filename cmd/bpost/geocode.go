package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
)

type geocodeFlags struct {
	locale       string
	streetName   string
	streetNumber string
	postalCode   string
	locality     string
	json         bool
}

func newGeocodeCmd(client *clientFlags) *cobra.Command {
	flags := &geocodeFlags{}

	cmd := &cobra.Command{
		Use:   "geocode [address...]",
		Short: "Validate an address and print the matches",
		Long: `
geocode joins its arguments into one address line. Passing both --street-name
and --street-number sends a structured address instead of the free text.
`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := domain.NewGeocodeQuery(strings.Join(args, " "))
			if flags.locale != "" {
				q = q.WithLocale(flags.locale)
			}
			for key, value := range map[string]string{
				domain.DataStreetName:   flags.streetName,
				domain.DataStreetNumber: flags.streetNumber,
				domain.DataPostalCode:   flags.postalCode,
				domain.DataLocality:     flags.locality,
			} {
				if value != "" {
					q = q.WithData(key, value)
				}
			}

			addresses, err := client.newClient(cmd).Geocode(cmd.Context(), q)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), addresses)
			}
			return writeTable(cmd.OutOrStdout(), addresses)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.locale, "locale", "", "input language, e.g. fr, nl-BE")
	f.StringVar(&flags.streetName, "street-name", "", "structured street name")
	f.StringVar(&flags.streetNumber, "street-number", "", "structured street number")
	f.StringVar(&flags.postalCode, "postal-code", "", "structured postal code")
	f.StringVar(&flags.locality, "locality", "", "structured municipality")
	f.BoolVar(&flags.json, "json", false, "print matches as JSON")
	return cmd
}

func newReverseCmd(client *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <lat> <lon>",
		Short: "Reverse geocode coordinates (not supported by bpost)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q: %w", args[0], err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q: %w", args[1], err)
			}

			addresses, err := client.newClient(cmd).Reverse(cmd.Context(), domain.NewReverseQuery(lat, lon))
			if err != nil {
				return err
			}
			return writeTable(cmd.OutOrStdout(), addresses)
		},
	}
}

func writeJSON(w io.Writer, addresses []domain.Address) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(addresses)
}

func writeTable(w io.Writer, addresses []domain.Address) error {
	if len(addresses) == 0 {
		_, err := fmt.Fprintln(w, "no match")
		return err
	}
	for _, a := range addresses {
		coords := "-"
		if a.Coordinates != nil {
			coords = fmt.Sprintf("%.6f,%.6f", a.Coordinates.Latitude, a.Coordinates.Longitude)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", a.Label(), coords); err != nil {
			return err
		}
	}
	return nil
}
