package bpost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"github.com/couchcryptid/bpost-geocoder/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-api-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

// stubServer answers every request with status and body, counting hits and
// keeping the last request body.
type stubServer struct {
	*httptest.Server
	hits     atomic.Int32
	lastBody atomic.Value
	lastReq  atomic.Value
}

func newStubServer(t *testing.T, status int, body []byte) *stubServer {
	t.Helper()
	s := &stubServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		s.lastBody.Store(raw)
		s.lastReq.Store(r.Header.Clone())
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) body(t *testing.T) []byte {
	t.Helper()
	raw, ok := s.lastBody.Load().([]byte)
	require.True(t, ok, "no request recorded")
	return raw
}

func (s *stubServer) header() http.Header {
	h, _ := s.lastReq.Load().(http.Header)
	return h
}

func testClient(endpoint string, metrics *observability.Metrics) *Client {
	return NewClient(Options{
		Endpoint: endpoint,
		Metrics:  metrics,
		Logger:   discardLogger(),
	})
}

// addressEntry digs the single address-to-validate object out of a request body.
func addressEntry(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	req, ok := doc["ValidateAddressesRequest"].(map[string]any)
	require.True(t, ok)
	list, ok := req["AddressToValidateList"].(map[string]any)
	require.True(t, ok)
	entries, ok := list["AddressToValidate"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry, ok := entries[0].(map[string]any)
	require.True(t, ok)
	return entry
}

var placeDesPalais = domain.Address{
	Coordinates:  &domain.Coordinates{Latitude: 50.842931, Longitude: 4.361186},
	StreetNumber: strPtr("5"),
	StreetName:   strPtr("PLACE DES PALAIS"),
	Locality:     strPtr("BRUXELLES"),
	PostalCode:   strPtr("1000"),
	Country:      strPtr("BELGIQUE"),
	CountryCode:  "BE",
	ProvidedBy:   "bpost",
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "bpost", NewClient(Options{}).Name())
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, fixture(t, "place_des_palais.json"))
	metrics := observability.NewMetricsForTesting()
	c := testClient(srv.URL, metrics)

	got, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Place des Palais 5, 1000 Bruxelles"))
	require.NoError(t, err)

	want := []domain.Address{placeDesPalais}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "PLACE DES PALAIS 5, 1000 BRUXELLES", got[0].Label())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("forward", "success")), 0)
	assert.Equal(t, contentTypeJSON, srv.header().Get(headerContentType))
	assert.Empty(t, srv.header().Get(apiKeyHeader))
}

func TestClient_Geocode_UnstructuredRequest(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, []byte(`{}`))
	c := testClient(srv.URL, nil)

	_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("  35 avenue jean de bologne 1020 bruxelles "))
	require.NoError(t, err)

	entry := addressEntry(t, srv.body(t))
	assert.NotContains(t, entry, "PostalAddress")
	assert.Equal(t, "BE", entry["DeliveringCountryISOCode"])
	assert.Equal(t, "BE", entry["DispatchingCountryISOCode"])
	lines, ok := entry["AddressBlockLines"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "  35 avenue jean de bologne 1020 bruxelles ", lines["UnstructuredAddressLine"])
}

func TestClient_Geocode_StructuredRequest(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, fixture(t, "place_des_palais.json"))
	c := testClient(srv.URL, nil)

	q := domain.NewGeocodeQuery("Place des Palais 5, 1000 Bruxelles").
		WithData(domain.DataStreetName, "Place des Palais").
		WithData(domain.DataStreetNumber, "5").
		WithData(domain.DataPostalCode, "1000")

	got, err := c.Geocode(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)

	entry := addressEntry(t, srv.body(t))
	assert.NotContains(t, entry, "AddressBlockLines")
	postal, ok := entry["PostalAddress"].(map[string]any)
	require.True(t, ok)

	raw, err := json.Marshal(postal)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"DeliveryPointLocation": {"StructuredDeliveryPointLocation": {"StreetName": "Place des Palais", "StreetNumber": "5"}},
		"PostalCodeMunicipality": {"StructuredPostalCodeMunicipality": {"PostalCode": "1000", "MunicipalityName": ""}}
	}`, string(raw))
}

func TestClient_Geocode_LocaleEncoding(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		want   any
	}{
		{"region stripped", "fr-BE", map[string]any{"*body": "Rue Neuve 1, 1000 Bruxelles", "@locale": "fr"}},
		{"base language", "nl", map[string]any{"*body": "Rue Neuve 1, 1000 Bruxelles", "@locale": "nl"}},
		{"unparseable dropped", "!!", "Rue Neuve 1, 1000 Bruxelles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newStubServer(t, http.StatusOK, []byte(`{}`))
			c := testClient(srv.URL, nil)

			q := domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles").WithLocale(tt.locale)
			_, err := c.Geocode(context.Background(), q)
			require.NoError(t, err)

			lines, ok := addressEntry(t, srv.body(t))["AddressBlockLines"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.want, lines["UnstructuredAddressLine"])
		})
	}
}

func TestClient_Geocode_IPAddressRejected(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "::ffff:127.0.0.1", "::ffff:88.188.221.14", " 10.0.0.1 "} {
		t.Run(ip, func(t *testing.T) {
			srv := newStubServer(t, http.StatusOK, fixture(t, "place_des_palais.json"))
			metrics := observability.NewMetricsForTesting()
			c := testClient(srv.URL, metrics)

			_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery(ip))
			require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
			assert.Contains(t, err.Error(), "IP addresses are not supported")
			assert.Zero(t, srv.hits.Load())
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeErrors.WithLabelValues("unsupported_operation")), 0)
		})
	}
}

func TestClient_Geocode_ZonedIPv6IsText(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, []byte(`{}`))
	c := testClient(srv.URL, nil)

	got, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("fe80::1%eth0"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestClient_Geocode_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		srv := newStubServer(t, http.StatusOK, []byte(`{}`))
		c := testClient(srv.URL, nil)

		_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery(text))
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Zero(t, srv.hits.Load())
	}
}

func TestClient_Geocode_RequireAPIKey(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, []byte(`{}`))
	c := NewClient(Options{Endpoint: srv.URL, RequireAPIKey: true, Logger: discardLogger()})

	_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Zero(t, srv.hits.Load())
}

func TestClient_Geocode_SendsAPIKey(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, []byte(`{}`))
	c := NewClient(Options{Endpoint: srv.URL, APIKey: testAPIKey, RequireAPIKey: true, Logger: discardLogger()})

	_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
	require.NoError(t, err)
	assert.Equal(t, testAPIKey, srv.header().Get(apiKeyHeader))
}

func TestClient_Geocode_NoResults(t *testing.T) {
	bodies := map[string]string{
		"empty object":     `{}`,
		"empty response":   `{"ValidateAddressesResponse": {}}`,
		"null result list": `{"ValidateAddressesResponse": {"ValidatedAddressResultList": null}}`,
		"empty result list": `{"ValidateAddressesResponse": {"ValidatedAddressResultList": {
			"ValidatedAddressResult": []}}}`,
		"no validated address": `{"ValidateAddressesResponse": {"ValidatedAddressResultList": {
			"ValidatedAddressResult": [{"Error": [{"ErrorCode": "anomaly_in_field"}]}]}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := newStubServer(t, http.StatusOK, []byte(body))
			metrics := observability.NewMetricsForTesting()
			c := testClient(srv.URL, metrics)

			got, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Nowhere 1, 9999 Atlantis"))
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("forward", "empty")), 0)
		})
	}
}

func TestClient_Geocode_SkipsIncompleteResults(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, fixture(t, "partial_results.json"))
	c := testClient(srv.URL, nil)

	got, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Gent"))
	require.NoError(t, err)

	want := []domain.Address{{
		Coordinates: &domain.Coordinates{Latitude: 51.05434, Longitude: 3.71742},
		Locality:    strPtr("GENT"),
		PostalCode:  strPtr("9000"),
		CountryCode: "BE",
		ProvidedBy:  "bpost",
	}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Geocode_HTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrInvalidCredentials},
		{http.StatusForbidden, domain.ErrInvalidCredentials},
		{http.StatusTooManyRequests, domain.ErrQuotaExceeded},
		{http.StatusInternalServerError, domain.ErrInvalidServerResponse},
		{http.StatusBadGateway, domain.ErrInvalidServerResponse},
		{http.StatusMovedPermanently, domain.ErrInvalidServerResponse},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newStubServer(t, tt.status, fixture(t, "place_des_palais.json"))
			c := testClient(srv.URL, nil)

			_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
			require.ErrorIs(t, err, tt.want)

			var geoErr *domain.GeocodingError
			require.ErrorAs(t, err, &geoErr)
			assert.Equal(t, tt.status, geoErr.StatusCode)
			assert.Equal(t, srv.URL, geoErr.URL)
		})
	}
}

func TestClient_Geocode_RedirectNotFollowed(t *testing.T) {
	for _, status := range []int{http.StatusFound, http.StatusTemporaryRedirect} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits, movedHits atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Redirect(w, r, "/moved", status)
			})
			mux.HandleFunc("/moved", func(w http.ResponseWriter, _ *http.Request) {
				movedHits.Add(1)
				w.Header().Set(headerContentType, contentTypeJSON)
				_, _ = w.Write(fixture(t, "place_des_palais.json"))
			})
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			c := NewClient(Options{Endpoint: srv.URL + "/", APIKey: testAPIKey, Logger: discardLogger()})
			got, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Place des Palais 5, 1000 Bruxelles"))
			require.ErrorIs(t, err, domain.ErrInvalidServerResponse)
			assert.Nil(t, got)

			var geoErr *domain.GeocodingError
			require.ErrorAs(t, err, &geoErr)
			assert.Equal(t, status, geoErr.StatusCode)
			assert.Equal(t, srv.URL+"/", geoErr.URL)
			assert.Equal(t, int32(1), hits.Load())
			assert.Zero(t, movedHits.Load())
		})
	}
}

func TestNewHTTPClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusSeeOther)
	}))
	t.Cleanup(srv.Close)

	hc := NewHTTPClient(defaultTimeout, nil)
	resp, err := hc.Post(srv.URL, contentTypeJSON, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, defaultTimeout, hc.Timeout)
}

func TestClient_Geocode_InvalidBodies(t *testing.T) {
	bodies := map[string]string{
		"empty":      ``,
		"whitespace": "  \n",
		"not json":   `<html>maintenance</html>`,
		"null":       `null`,
		"array":      `[]`,
		"string":     `"ok"`,
		"truncated":  `{"ValidateAddressesResponse": {`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := newStubServer(t, http.StatusOK, []byte(body))
			c := testClient(srv.URL, nil)

			_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
			require.ErrorIs(t, err, domain.ErrInvalidServerResponse)
		})
	}
}

func TestClient_Geocode_EmptyBodyMessage(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, nil)
	c := testClient(srv.URL, nil)

	_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestClient_Geocode_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c := testClient(endpoint, nil)
	_, err := c.Geocode(context.Background(), domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
	require.ErrorIs(t, err, domain.ErrInvalidServerResponse)

	var geoErr *domain.GeocodingError
	require.ErrorAs(t, err, &geoErr)
	assert.Error(t, errors.Unwrap(geoErr))
}

func TestClient_Geocode_ContextCanceled(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, fixture(t, "place_des_palais.json"))
	c := testClient(srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Geocode(ctx, domain.NewGeocodeQuery("Rue Neuve 1, 1000 Bruxelles"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Geocode_Idempotent(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, fixture(t, "place_des_palais.json"))
	c := testClient(srv.URL, nil)
	q := domain.NewGeocodeQuery("Place des Palais 5, 1000 Bruxelles")

	first, err := c.Geocode(context.Background(), q)
	require.NoError(t, err)
	second, err := c.Geocode(context.Background(), q)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated geocode differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestClient_Reverse_Unsupported(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, []byte(`{}`))
	c := testClient(srv.URL, nil)

	got, err := c.Reverse(context.Background(), domain.NewReverseQuery(0, 0))
	require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "reverse geocoding is not supported")
	assert.Zero(t, srv.hits.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, LegacyEndpoint, c.endpoint)
	require.IsType(t, &http.Client{}, c.httpClient)
	assert.Equal(t, defaultTimeout, c.httpClient.(*http.Client).Timeout)
	assert.NotNil(t, c.httpClient.(*http.Client).CheckRedirect)
	assert.NotNil(t, c.clock)
	assert.NotNil(t, c.logger)
}
