package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
)

// Reasons a source message is committed without a validation result.
const (
	SkipTombstone      = "tombstone"
	SkipMalformed      = "malformed_request"
	SkipTransformError = "transform_error"
)

// SkipError reports a message that cannot become a validation result. The
// pipeline commits it and moves on.
type SkipError struct {
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	return "skip message (" + e.Reason + "): " + e.Err.Error()
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// skipReason returns the reason carried by err, or SkipTransformError for
// errors that do not name one.
func skipReason(err error) string {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason
	}
	return SkipTransformError
}

// AddressTransformer implements Transformer by validating each address
// request against a geocoding provider.
type AddressTransformer struct {
	provider domain.Provider
	logger   *slog.Logger
}

// NewTransformer creates an AddressTransformer backed by provider.
func NewTransformer(provider domain.Provider, logger *slog.Logger) *AddressTransformer {
	return &AddressTransformer{
		provider: provider,
		logger:   logger,
	}
}

// Transform fails with a *SkipError only when the message carries no address
// request. Provider errors are reported in the result's status.
func (t *AddressTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.ValidationResult, error) {
	if len(bytes.TrimSpace(raw.Value)) == 0 {
		return domain.ValidationResult{}, &SkipError{Reason: SkipTombstone, Err: errors.New("message has no payload")}
	}
	req, err := domain.ParseAddressRequest(raw)
	if err != nil {
		return domain.ValidationResult{}, &SkipError{Reason: SkipMalformed, Err: err}
	}
	return domain.ValidateAddress(ctx, req, t.provider, t.logger), nil
}
