// Package domain models geocoding queries, normalized addresses, and the
// address validation records that flow through the pipeline.
//
// # Queries
//
// A [GeocodeQuery] carries free text plus optional auxiliary data. Providers
// that accept structured input read the keys [DataStreetName],
// [DataStreetNumber], [DataPostalCode] and [DataLocality]. A key that is
// present with an empty value is still "set": [GeocodeQuery.Get] reports both
// the value and whether the key exists.
//
// # Addresses
//
// An [Address] keeps every component optional. A nil pointer means the
// provider did not report that component; it is never replaced by a zero value.
// Coordinates are only present when both latitude and longitude were reported.
//
// # Errors
//
// Providers fail with a [*GeocodingError] whose [ErrorKind] is one of:
//
//	invalid_argument         empty query, detected before any network call
//	unsupported_operation    IP address input, reverse geocoding
//	invalid_credentials      missing API key, HTTP 401/403
//	quota_exceeded           HTTP 429
//	invalid_server_response  any other HTTP status >= 300, empty or non-JSON body
//
// A reply that decodes but carries no usable results is not an error: it
// yields an empty slice.
//
// # Validation records
//
// The pipeline consumes [AddressRequest] JSON and emits one [ValidationResult]
// per request. Status values:
//
//	validated  at least one address was returned
//	no_match   the provider answered with no usable result
//	rejected   the request itself was invalid (invalid_argument, unsupported_operation)
//	failed     the provider or transport failed; the request may be retried
//
// Request IDs default to the Kafka message key, then to a truncated SHA-256 of
// the request fields, so replays of the same request keep the same ID.
package domain
