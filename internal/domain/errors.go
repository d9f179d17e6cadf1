package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies geocoding failures. The set is closed: every error a
// Provider returns maps to exactly one kind.
type ErrorKind int

const (
	// KindUnknown is reported by KindOf for errors that are not GeocodingErrors.
	KindUnknown ErrorKind = iota
	// KindInvalidArgument means the query was rejected before any network call.
	KindInvalidArgument
	// KindUnsupportedOperation means the provider cannot serve this kind of query.
	KindUnsupportedOperation
	// KindInvalidCredentials means the API key is missing or was refused.
	KindInvalidCredentials
	// KindQuotaExceeded means the upstream service rate limited the caller.
	KindQuotaExceeded
	// KindInvalidServerResponse means the upstream reply was unusable.
	KindInvalidServerResponse
)

var kindNames = map[ErrorKind]string{
	KindUnknown:               "unknown",
	KindInvalidArgument:       "invalid_argument",
	KindUnsupportedOperation:  "unsupported_operation",
	KindInvalidCredentials:    "invalid_credentials",
	KindQuotaExceeded:         "quota_exceeded",
	KindInvalidServerResponse: "invalid_server_response",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// GeocodingError is the typed failure returned by providers.
type GeocodingError struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	URL        string
	StatusCode int
	Err        error
}

// Sentinels for errors.Is checks. Matching is by kind only.
var (
	ErrInvalidArgument       = &GeocodingError{Kind: KindInvalidArgument}
	ErrUnsupportedOperation  = &GeocodingError{Kind: KindUnsupportedOperation}
	ErrInvalidCredentials    = &GeocodingError{Kind: KindInvalidCredentials}
	ErrQuotaExceeded         = &GeocodingError{Kind: KindQuotaExceeded}
	ErrInvalidServerResponse = &GeocodingError{Kind: KindInvalidServerResponse}
)

func (e *GeocodingError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " [%s]", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a GeocodingError of the same kind.
func (e *GeocodingError) Is(target error) bool {
	t, ok := target.(*GeocodingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first GeocodingError in err's chain.
func KindOf(err error) ErrorKind {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Kind
	}
	return KindUnknown
}

// NewInvalidArgument reports a query rejected before any network call.
func NewInvalidArgument(provider, msg string) *GeocodingError {
	return &GeocodingError{Kind: KindInvalidArgument, Provider: provider, Message: msg}
}

// NewUnsupportedOperation reports a query the provider cannot serve.
func NewUnsupportedOperation(provider, msg string) *GeocodingError {
	return &GeocodingError{Kind: KindUnsupportedOperation, Provider: provider, Message: msg}
}

// NewInvalidCredentials reports a missing or refused API key. statusCode is 0
// when the failure was detected locally.
func NewInvalidCredentials(provider, url string, statusCode int) *GeocodingError {
	return &GeocodingError{
		Kind:       KindInvalidCredentials,
		Provider:   provider,
		Message:    "invalid credentials",
		URL:        url,
		StatusCode: statusCode,
	}
}

// NewInvalidServerResponse reports an unusable reply. err may be nil.
func NewInvalidServerResponse(provider, url string, statusCode int, err error) *GeocodingError {
	return &GeocodingError{
		Kind:       KindInvalidServerResponse,
		Provider:   provider,
		Message:    "invalid server response",
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewEmptyResponse reports a reply with no body.
func NewEmptyResponse(provider, url string) *GeocodingError {
	return &GeocodingError{
		Kind:     KindInvalidServerResponse,
		Provider: provider,
		Message:  "empty response",
		URL:      url,
	}
}

// ClassifyHTTPStatus maps a non-successful HTTP status to a GeocodingError.
// It returns nil for statuses below 300.
func ClassifyHTTPStatus(provider, url string, statusCode int) *GeocodingError {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return NewInvalidCredentials(provider, url, statusCode)
	case statusCode == http.StatusTooManyRequests:
		return &GeocodingError{
			Kind:       KindQuotaExceeded,
			Provider:   provider,
			Message:    "quota exceeded",
			URL:        url,
			StatusCode: statusCode,
		}
	case statusCode >= http.StatusMultipleChoices:
		return NewInvalidServerResponse(provider, url, statusCode, nil)
	default:
		return nil
	}
}
