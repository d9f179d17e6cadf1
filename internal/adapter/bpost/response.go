package bpost

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
)

// bpost response types. Every level is optional; absence drives the
// skip-versus-nil rules in toAddresses.

type validateAddressesResponseEnvelope struct {
	ValidateAddressesResponse *validateAddressesResponse `json:"ValidateAddressesResponse"`
}

type validateAddressesResponse struct {
	ValidatedAddressResultList *validatedAddressResultList `json:"ValidatedAddressResultList"`
}

type validatedAddressResultList struct {
	ValidatedAddressResult []validatedAddressResult `json:"ValidatedAddressResult"`
}

type validatedAddressResult struct {
	ValidatedAddressList *validatedAddressList `json:"ValidatedAddressList"`
}

type validatedAddressList struct {
	ValidatedAddress []validatedAddress `json:"ValidatedAddress"`
}

type validatedAddress struct {
	ServicePointDetail *servicePointDetail `json:"ServicePointDetail"`
	PostalAddress      *postalAddress      `json:"PostalAddress"`
}

type servicePointDetail struct {
	GeographicalLocationInfo *geographicalLocationInfo `json:"GeographicalLocationInfo"`
}

type geographicalLocationInfo struct {
	GeographicalLocation *geographicalLocation `json:"GeographicalLocation"`
}

type geographicalLocation struct {
	Latitude  *coordinate `json:"Latitude"`
	Longitude *coordinate `json:"Longitude"`
}

type coordinate struct {
	Value *number `json:"Value"`
}

type postalAddress struct {
	StructuredDeliveryPointLocation  *deliveryPoint `json:"StructuredDeliveryPointLocation"`
	StructuredPostalCodeMunicipality *municipality  `json:"StructuredPostalCodeMunicipality"`
	CountryName                      text           `json:"CountryName"`
}

type deliveryPoint struct {
	StreetName   text `json:"StreetName"`
	StreetNumber text `json:"StreetNumber"`
}

type municipality struct {
	PostalCode       text `json:"PostalCode"`
	MunicipalityName text `json:"MunicipalityName"`
}

// number accepts a JSON number or a numeric string. An empty string decodes
// as NaN and counts as absent.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(bytes.Trim(data, `"`))
	if len(data) == 0 {
		*n = number(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse coordinate %q: %w", data, err)
	}
	*n = number(f)
	return nil
}

func (c *coordinate) value() (float64, bool) {
	if c == nil || c.Value == nil || math.IsNaN(float64(*c.Value)) {
		return 0, false
	}
	return float64(*c.Value), true
}

// text accepts a JSON string or number, or a localized {"*body": ..., "@locale": ...}
// object, which unwraps to its body. Null and any other shape decode as empty.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = ""
	if len(data) == 0 {
		return nil
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
	case c == '{':
		var localized struct {
			Body *text `json:"*body"`
		}
		if err := json.Unmarshal(data, &localized); err != nil {
			return err
		}
		if localized.Body != nil {
			*t = *localized.Body
		}
	case c == '-' || (c >= '0' && c <= '9'):
		*t = text(data)
	}
	return nil
}

// ptr returns nil for an empty value.
func (t text) ptr() *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// decodeResponse parses a reply body. A body that is not a JSON object, or
// that decodes to null, is rejected.
func decodeResponse(body []byte) (*validateAddressesResponseEnvelope, error) {
	var env *validateAddressesResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env == nil {
		return nil, errors.New("decode response: null document")
	}
	return env, nil
}

// toAddresses converts a decoded reply into normalized addresses. Results
// without both a geographical location and a postal address are skipped.
func toAddresses(env *validateAddressesResponseEnvelope, provider string) []domain.Address {
	results := resultsOf(env)
	addresses := make([]domain.Address, 0, len(results))

	for _, result := range results {
		if result.ValidatedAddressList == nil || len(result.ValidatedAddressList.ValidatedAddress) == 0 {
			continue
		}
		validated := result.ValidatedAddressList.ValidatedAddress[0]
		location := geographicalLocationOf(validated.ServicePointDetail)
		if location == nil || validated.PostalAddress == nil {
			continue
		}

		addresses = append(addresses, toAddress(location, validated.PostalAddress, provider))
	}

	return addresses
}

func resultsOf(env *validateAddressesResponseEnvelope) []validatedAddressResult {
	if env == nil || env.ValidateAddressesResponse == nil {
		return nil
	}
	list := env.ValidateAddressesResponse.ValidatedAddressResultList
	if list == nil {
		return nil
	}
	return list.ValidatedAddressResult
}

func geographicalLocationOf(detail *servicePointDetail) *geographicalLocation {
	if detail == nil || detail.GeographicalLocationInfo == nil {
		return nil
	}
	return detail.GeographicalLocationInfo.GeographicalLocation
}

func toAddress(location *geographicalLocation, postal *postalAddress, provider string) domain.Address {
	addr := domain.Address{
		Country:     postal.CountryName.ptr(),
		CountryCode: countryCode,
		ProvidedBy:  provider,
	}

	lat, hasLat := location.Latitude.value()
	lon, hasLon := location.Longitude.value()
	if hasLat && hasLon {
		addr.Coordinates = &domain.Coordinates{Latitude: lat, Longitude: lon}
	}

	if dp := postal.StructuredDeliveryPointLocation; dp != nil {
		addr.StreetName = dp.StreetName.ptr()
		addr.StreetNumber = dp.StreetNumber.ptr()
	}
	if m := postal.StructuredPostalCodeMunicipality; m != nil {
		addr.PostalCode = m.PostalCode.ptr()
		addr.Locality = m.MunicipalityName.ptr()
	}

	return addr
}
