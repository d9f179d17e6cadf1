package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawMessage represents an unprocessed message from the source topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// AddressRequest is the JSON payload published on the source topic by
// upstream systems that want an address validated.
type AddressRequest struct {
	ID           string `json:"id,omitempty"`
	Text         string `json:"text"`
	Locale       string `json:"locale,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	StreetNumber string `json:"street_number,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Locality     string `json:"locality,omitempty"`
}

// Query converts the request into a GeocodeQuery. Structured fields are only
// attached when non-empty so the provider sees them as unset otherwise.
func (r AddressRequest) Query() GeocodeQuery {
	q := NewGeocodeQuery(r.Text)
	if r.Locale != "" {
		q = q.WithLocale(r.Locale)
	}
	for key, value := range map[string]string{
		DataStreetName:   r.StreetName,
		DataStreetNumber: r.StreetNumber,
		DataPostalCode:   r.PostalCode,
		DataLocality:     r.Locality,
	} {
		if value != "" {
			q = q.WithData(key, value)
		}
	}
	return q
}

// Validation statuses reported on the sink topic.
const (
	StatusValidated = "validated"
	StatusNoMatch   = "no_match"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// ValidationResult is the record published on the sink topic for each request.
type ValidationResult struct {
	RequestID   string    `json:"request_id"`
	Text        string    `json:"text"`
	Provider    string    `json:"provider"`
	Status      string    `json:"status"`
	Addresses   []Address `json:"addresses"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ParseAddressRequest deserializes a RawMessage into an AddressRequest. A
// missing id falls back to the message key, then to a hash of the request.
func ParseAddressRequest(raw RawMessage) (AddressRequest, error) {
	var req AddressRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return AddressRequest{}, fmt.Errorf("parse address request: %w", err)
	}
	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	if req.ID == "" {
		req.ID = generateID(req)
	}
	return req, nil
}

// generateID produces a deterministic ID so replays of the same request map to
// the same result key.
func generateID(req AddressRequest) string {
	input := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(req.Text)),
		req.Locale,
		req.StreetName,
		req.StreetNumber,
		req.PostalCode,
		req.Locality,
	}, "|")
	hash := sha256.Sum256([]byte(input))
	return "addr-" + hex.EncodeToString(hash[:8])
}
