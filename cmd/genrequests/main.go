// Command genrequests converts a CSV of addresses into a JSON array of
// address validation requests, ready to be published on the source topic.
//
// The CSV must have a header row; recognized columns are id, text, locale,
// street_name, street_number, postal_code and locality. Unknown columns are
// ignored and rows without an id get the same deterministic id the pipeline
// would assign.
//
// Usage:
//
//	go run ./cmd/genrequests \
//	  -csv data/addresses.csv \
//	  -out data/mock/address_requests.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "input CSV file")
	outPath := flag.String("out", "", "output path for the JSON request fixture")
	flag.Parse()

	if *csvPath == "" || *outPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -out")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	requests, err := readRequests(f)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	log.Printf("read %d requests", len(requests))

	if err := writeJSON(*outPath, requests); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *outPath)
	return nil
}

// readRequests parses CSV rows into address requests, keyed by header name.
func readRequests(r io.Reader) ([]domain.AddressRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := colIdx["text"]; !ok {
		if _, ok := colIdx["street_name"]; !ok {
			return nil, fmt.Errorf("csv needs a text or street_name column")
		}
	}

	get := func(row []string, col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	requests := make([]domain.AddressRequest, 0, len(rows)-1)
	for n, row := range rows[1:] {
		req := domain.AddressRequest{
			ID:           get(row, "id"),
			Text:         get(row, "text"),
			Locale:       get(row, "locale"),
			StreetName:   get(row, "street_name"),
			StreetNumber: get(row, "street_number"),
			PostalCode:   get(row, "postal_code"),
			Locality:     get(row, "locality"),
		}
		if req.Text == "" {
			req.Text = joinAddress(req)
		}
		if req.Text == "" {
			log.Printf("skipping row %d: no address", n+2)
			continue
		}
		if req.ID == "" {
			// Reuse the pipeline's id derivation so fixtures and replays agree.
			value, err := json.Marshal(req)
			if err != nil {
				return nil, err
			}
			parsed, err := domain.ParseAddressRequest(domain.RawMessage{Value: value})
			if err != nil {
				return nil, err
			}
			req.ID = parsed.ID
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// joinAddress renders structured fields as "street number, postal locality".
func joinAddress(req domain.AddressRequest) string {
	street := strings.TrimSpace(req.StreetName + " " + req.StreetNumber)
	city := strings.TrimSpace(req.PostalCode + " " + req.Locality)
	switch {
	case street == "":
		return city
	case city == "":
		return street
	default:
		return street + ", " + city
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
