// Package httptrace provides http.RoundTripper decorators for outbound
// geocoding calls.
package httptrace

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"
)

const maxDumpChars = 4096

// redacted replaces secret header values in dumps.
const redacted = "REDACTED"

// LoggingTransport logs each round trip at debug level: method, URL, status
// and duration. With DumpBody set, abbreviated request and response dumps
// are attached. Secret headers are masked.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	DumpBody  bool

	// SecretHeaders are masked in dumps. Defaults to x-api-key and Authorization.
	SecretHeaders []string
}

// NewLoggingTransport wraps base, or http.DefaultTransport when base is nil.
func NewLoggingTransport(base http.RoundTripper, logger *slog.Logger, dumpBody bool) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTransport{Transport: base, Logger: logger, DumpBody: dumpBody}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []any{"method", req.Method, "url", req.URL.Redacted()}

	if t.DumpBody {
		dump, out, err := t.dumpRequest(req)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, "request", dump)
		req = out
	}

	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)
	attrs = append(attrs, "duration", time.Since(start))
	if err != nil {
		t.Logger.Debug("http round trip failed", append(attrs, "error", err)...)
		return nil, err
	}

	attrs = append(attrs, "status", resp.StatusCode)
	if t.DumpBody {
		dump, err := httputil.DumpResponse(resp, true)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("tracing HTTP response: %w", err)
		}
		attrs = append(attrs, "response", abbreviate(string(dump)))
	}

	t.Logger.Debug("http round trip", attrs...)
	return resp, nil
}

// dumpRequest returns the masked dump and a copy of req to send in its place.
// DumpRequestOut drains the body and restores it only on the request it was
// given.
func (t *LoggingTransport) dumpRequest(req *http.Request) (string, *http.Request, error) {
	masked := req.Clone(req.Context())
	for _, h := range t.secretHeaders() {
		if masked.Header.Get(h) != "" {
			masked.Header.Set(h, redacted)
		}
	}
	dump, err := httputil.DumpRequestOut(masked, true)
	if err != nil {
		return "", nil, fmt.Errorf("tracing HTTP request: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = masked.Body
	return abbreviate(string(dump)), out, nil
}

func (t *LoggingTransport) secretHeaders() []string {
	if len(t.SecretHeaders) > 0 {
		return t.SecretHeaders
	}
	return []string{"x-api-key", "Authorization"}
}

func abbreviate(dump string) string {
	dump = strings.TrimRight(dump, "\r\n")
	if len(dump) > maxDumpChars {
		return dump[:maxDumpChars] + "…"
	}
	return dump
}

// HeaderTransport sets fixed headers on every request.
type HeaderTransport struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return t.Transport.RoundTrip(req)
}
