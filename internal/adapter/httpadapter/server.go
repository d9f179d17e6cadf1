package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
)

// Server exposes the geocoding API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	provider   domain.Provider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /v1/geocode, /v1/reverse, /healthz,
// /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, provider domain.Provider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		provider: provider,
		logger:   logger,
	}

	mux.HandleFunc("GET /v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /v1/reverse", s.handleReverse)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type addressesResponse struct {
	Provider  string           `json:"provider"`
	Addresses []domain.Address `json:"addresses"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// queryData maps URL parameters onto structured query keys.
var queryData = []struct{ param, key string }{
	{"street_name", domain.DataStreetName},
	{"street_number", domain.DataStreetNumber},
	{"postal_code", domain.DataPostalCode},
	{"locality", domain.DataLocality},
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := domain.NewGeocodeQuery(params.Get("q"))
	if locale := params.Get("locale"); locale != "" {
		q = q.WithLocale(locale)
	}
	for _, d := range queryData {
		if params.Has(d.param) {
			q = q.WithData(d.key, params.Get(d.param))
		}
	}

	addresses, err := s.provider.Geocode(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressesResponse{Provider: s.provider.Name(), Addresses: addresses})
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	lat, latErr := parseCoordinate(params.Get("lat"), 90)
	lon, lonErr := parseCoordinate(params.Get("lon"), 180)
	if latErr != nil || lonErr != nil {
		s.writeError(w, domain.NewInvalidArgument(s.provider.Name(), "lat and lon must be valid WGS-84 coordinates"))
		return
	}

	addresses, err := s.provider.Reverse(r.Context(), domain.NewReverseQuery(lat, lon))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressesResponse{Provider: s.provider.Name(), Addresses: addresses})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("geocode request failed", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindUnsupportedOperation:
		return http.StatusNotImplemented
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindInvalidCredentials, domain.KindInvalidServerResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
