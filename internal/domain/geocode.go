package domain

import (
	"context"
	"log/slog"
)

// ValidateAddress runs req through provider and folds the outcome into a
// ValidationResult. Provider failures never escape: they are reported in the
// result's status so one bad address cannot stall a batch.
func ValidateAddress(ctx context.Context, req AddressRequest, provider Provider, logger *slog.Logger) ValidationResult {
	result := ValidationResult{
		RequestID:   req.ID,
		Text:        req.Text,
		Provider:    provider.Name(),
		Addresses:   []Address{},
		ProcessedAt: clock.Now().UTC(),
	}

	addresses, err := provider.Geocode(ctx, req.Query())
	if err != nil {
		kind := KindOf(err)
		result.ErrorKind = kind.String()
		result.Error = err.Error()

		switch kind {
		case KindInvalidArgument, KindUnsupportedOperation:
			result.Status = StatusRejected
			logger.Info("address request rejected",
				"request_id", req.ID,
				"kind", kind,
				"error", err,
			)
		default:
			result.Status = StatusFailed
			logger.Warn("address validation failed",
				"request_id", req.ID,
				"kind", kind,
				"error", err,
			)
		}
		return result
	}

	if len(addresses) == 0 {
		result.Status = StatusNoMatch
		return result
	}

	result.Addresses = addresses
	result.Status = StatusValidated
	return result
}
