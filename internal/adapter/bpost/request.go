package bpost

import (
	"encoding/json"
	"strings"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"golang.org/x/text/language"
)

const (
	// countryCode is sent as both delivering and dispatching country. The
	// service only validates Belgian addresses.
	countryCode = "BE"

	// callerName identifies this client to bpost.
	callerName = "bpost-geocoder"
)

// bpost request types.

type validateAddressesEnvelope struct {
	ValidateAddressesRequest validateAddressesRequest `json:"ValidateAddressesRequest"`
}

type validateAddressesRequest struct {
	AddressToValidateList  addressToValidateList  `json:"AddressToValidateList"`
	ValidateAddressOptions validateAddressOptions `json:"ValidateAddressOptions"`
	CallerIdentification   callerIdentification   `json:"CallerIdentification"`
}

type addressToValidateList struct {
	AddressToValidate []addressToValidate `json:"AddressToValidate"`
}

// addressToValidate carries exactly one of PostalAddress (structured) or
// AddressBlockLines (unstructured).
type addressToValidate struct {
	ID                        int                `json:"@id"`
	PostalAddress             *structuredAddress `json:"PostalAddress,omitempty"`
	AddressBlockLines         *addressBlockLines `json:"AddressBlockLines,omitempty"`
	DeliveringCountryISOCode  string             `json:"DeliveringCountryISOCode"`
	DispatchingCountryISOCode string             `json:"DispatchingCountryISOCode"`
}

type structuredAddress struct {
	DeliveryPointLocation  deliveryPointLocation  `json:"DeliveryPointLocation"`
	PostalCodeMunicipality postalCodeMunicipality `json:"PostalCodeMunicipality"`
}

type deliveryPointLocation struct {
	StructuredDeliveryPointLocation structuredDeliveryPoint `json:"StructuredDeliveryPointLocation"`
}

type structuredDeliveryPoint struct {
	StreetName   string `json:"StreetName"`
	StreetNumber string `json:"StreetNumber"`
}

type postalCodeMunicipality struct {
	StructuredPostalCodeMunicipality structuredMunicipality `json:"StructuredPostalCodeMunicipality"`
}

type structuredMunicipality struct {
	PostalCode       string `json:"PostalCode"`
	MunicipalityName string `json:"MunicipalityName"`
}

type addressBlockLines struct {
	UnstructuredAddressLine addressLine `json:"UnstructuredAddressLine"`
}

// addressLine encodes as a bare string, or as {"*body": ..., "@locale": ...}
// when a locale is known.
type addressLine struct {
	Body   string
	Locale string
}

func (l addressLine) MarshalJSON() ([]byte, error) {
	if l.Locale == "" {
		return json.Marshal(l.Body)
	}
	return json.Marshal(struct {
		Body   string `json:"*body"`
		Locale string `json:"@locale"`
	}{l.Body, l.Locale})
}

type validateAddressOptions struct {
	IncludeSuggestions        bool `json:"IncludeSuggestions"`
	IncludeDefaultGeoLocation bool `json:"IncludeDefaultGeoLocation"`
	IncludeSubmittedAddress   bool `json:"IncludeSubmittedAddress"`
}

type callerIdentification struct {
	CallerName string `json:"CallerName"`
}

// buildRequest maps a query onto the bpost request envelope. The structured
// form is used only when both street name and street number are set.
func buildRequest(q domain.GeocodeQuery, locale string) validateAddressesEnvelope {
	addr := addressToValidate{
		ID:                        1,
		DeliveringCountryISOCode:  countryCode,
		DispatchingCountryISOCode: countryCode,
	}

	streetName, hasName := q.Get(domain.DataStreetName)
	streetNumber, hasNumber := q.Get(domain.DataStreetNumber)

	if hasName && hasNumber {
		addr.PostalAddress = &structuredAddress{
			DeliveryPointLocation: deliveryPointLocation{
				StructuredDeliveryPointLocation: structuredDeliveryPoint{
					StreetName:   streetName,
					StreetNumber: streetNumber,
				},
			},
			PostalCodeMunicipality: postalCodeMunicipality{
				StructuredPostalCodeMunicipality: structuredMunicipality{
					PostalCode:       q.GetOrDefault(domain.DataPostalCode, ""),
					MunicipalityName: q.GetOrDefault(domain.DataLocality, ""),
				},
			},
		}
	} else {
		addr.AddressBlockLines = &addressBlockLines{
			UnstructuredAddressLine: addressLine{Body: q.Text, Locale: locale},
		}
	}

	return validateAddressesEnvelope{
		ValidateAddressesRequest: validateAddressesRequest{
			AddressToValidateList: addressToValidateList{
				AddressToValidate: []addressToValidate{addr},
			},
			ValidateAddressOptions: validateAddressOptions{
				IncludeSuggestions:        false,
				IncludeDefaultGeoLocation: true,
				IncludeSubmittedAddress:   true,
			},
			CallerIdentification: callerIdentification{CallerName: callerName},
		},
	}
}

// normalizeLocale reduces a BCP 47 tag such as "fr-BE" to its base language.
// It reports false for tags that do not parse.
func normalizeLocale(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", true
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	base, _ := t.Base()
	return base.String(), true
}
