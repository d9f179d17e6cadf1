package domain

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// Auxiliary query keys understood by providers that accept structured input.
const (
	DataStreetName   = "streetName"
	DataStreetNumber = "streetNumber"
	DataPostalCode   = "postalCode"
	DataLocality     = "locality"
)

// GeocodeQuery asks a provider to resolve an address into coordinates.
// Build it with NewGeocodeQuery; WithLocale and WithData return copies.
type GeocodeQuery struct {
	Text   string
	Locale string
	Data   map[string]string
}

// NewGeocodeQuery creates a free-text query.
func NewGeocodeQuery(text string) GeocodeQuery {
	return GeocodeQuery{Text: text}
}

// WithLocale returns a copy of q tagged with locale.
func (q GeocodeQuery) WithLocale(locale string) GeocodeQuery {
	q.Locale = locale
	q.Data = maps.Clone(q.Data)
	return q
}

// WithData returns a copy of q carrying an auxiliary key/value pair.
func (q GeocodeQuery) WithData(key, value string) GeocodeQuery {
	data := make(map[string]string, len(q.Data)+1)
	maps.Copy(data, q.Data)
	data[key] = value
	q.Data = data
	return q
}

// Get returns the auxiliary value for key and whether it was set at all.
func (q GeocodeQuery) Get(key string) (string, bool) {
	v, ok := q.Data[key]
	return v, ok
}

// GetOrDefault returns the auxiliary value for key, or def when unset.
func (q GeocodeQuery) GetOrDefault(key, def string) string {
	if v, ok := q.Data[key]; ok {
		return v
	}
	return def
}

func (q GeocodeQuery) String() string {
	if len(q.Data) == 0 {
		return fmt.Sprintf("%q", q.Text)
	}
	return fmt.Sprintf("%q %v", q.Text, q.Data)
}

// ReverseQuery asks a provider to resolve coordinates into an address.
type ReverseQuery struct {
	Latitude  float64
	Longitude float64
}

// NewReverseQuery creates a reverse query from WGS-84 coordinates.
func NewReverseQuery(lat, lon float64) ReverseQuery {
	return ReverseQuery{Latitude: lat, Longitude: lon}
}

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Address is a normalized geocoding result. Nil fields were not reported by
// the provider.
type Address struct {
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	StreetNumber *string      `json:"street_number,omitempty"`
	StreetName   *string      `json:"street_name,omitempty"`
	Locality     *string      `json:"locality,omitempty"`
	PostalCode   *string      `json:"postal_code,omitempty"`
	Country      *string      `json:"country,omitempty"`
	CountryCode  string       `json:"country_code,omitempty"`
	ProvidedBy   string       `json:"provided_by"`
}

// Clone returns a deep copy of a; the copy shares no pointers with a.
func (a Address) Clone() Address {
	if a.Coordinates != nil {
		c := *a.Coordinates
		a.Coordinates = &c
	}
	a.StreetNumber = cloneString(a.StreetNumber)
	a.StreetName = cloneString(a.StreetName)
	a.Locality = cloneString(a.Locality)
	a.PostalCode = cloneString(a.PostalCode)
	a.Country = cloneString(a.Country)
	return a
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Label renders the address on one line, e.g. "PLACE DES PALAIS 5, 1000 BRUXELLES".
func (a Address) Label() string {
	street := joinNonEmpty(" ", a.StreetName, a.StreetNumber)
	city := joinNonEmpty(" ", a.PostalCode, a.Locality)
	switch {
	case street == "":
		return city
	case city == "":
		return street
	default:
		return street + ", " + city
	}
}

func joinNonEmpty(sep string, parts ...*string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != nil && *p != "" {
			out = append(out, *p)
		}
	}
	return strings.Join(out, sep)
}

// Provider is the capability every geocoding backend exposes.
type Provider interface {
	// Geocode resolves a query into zero or more addresses.
	Geocode(ctx context.Context, query GeocodeQuery) ([]Address, error)

	// Reverse resolves coordinates into zero or more addresses.
	Reverse(ctx context.Context, query ReverseQuery) ([]Address, error)

	// Name identifies the provider in results and errors.
	Name() string
}
