package main

import (
	"fmt"
	"log/slog"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/bpost-geocoder/internal/adapter/bpost"
	"github.com/couchcryptid/bpost-geocoder/internal/adapter/httptrace"
	"github.com/couchcryptid/bpost-geocoder/internal/config"
	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"github.com/couchcryptid/bpost-geocoder/internal/observability"
)

// serviceProvider is the configured provider plus the resources it owns.
type serviceProvider struct {
	domain.Provider
	ready sharedobs.ReadinessChecker
	close func() error
}

func (p *serviceProvider) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// newProvider builds the bpost client and wraps it in the configured cache.
func newProvider(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*serviceProvider, error) {
	var transport http.RoundTripper
	if cfg.BpostHTTPTrace {
		transport = httptrace.NewLoggingTransport(nil, logger, true)
	}
	httpClient := bpost.NewHTTPClient(cfg.BpostTimeout, transport)

	client := bpost.NewClient(bpost.Options{
		Endpoint:      cfg.BpostEndpoint,
		APIKey:        cfg.BpostAPIKey,
		RequireAPIKey: cfg.BpostRequireAPIKey,
		HTTPClient:    httpClient,
		Logger:        logger,
		Metrics:       metrics,
	})
	logger.Info("bpost client configured",
		"endpoint", cfg.BpostEndpoint,
		"api_key_set", cfg.BpostAPIKey != "",
		"timeout", cfg.BpostTimeout,
	)

	switch cfg.CacheBackend {
	case config.CacheNone:
		metrics.CacheEnabled.Set(0)
		logger.Info("geocode cache disabled")
		return &serviceProvider{Provider: client}, nil

	case config.CacheMemory:
		store := bpost.NewMemoryStore(cfg.CacheSize, cfg.CacheTTL, nil)
		metrics.CacheEnabled.Set(1)
		logger.Info("geocode cache enabled", "backend", "memory", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
		return &serviceProvider{Provider: bpost.NewCachedProvider(client, store, metrics, logger)}, nil

	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store := bpost.NewRedisStore(rdb, cfg.CacheTTL)
		metrics.CacheEnabled.Set(1)
		logger.Info("geocode cache enabled", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		return &serviceProvider{
			Provider: bpost.NewCachedProvider(client, store, metrics, logger),
			ready:    store,
			close:    rdb.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
