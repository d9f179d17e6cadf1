package bpost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"github.com/couchcryptid/bpost-geocoder/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Store persists geocoding results under an opaque key.
type Store interface {
	// Get returns the cached addresses and whether the key was present.
	Get(ctx context.Context, key string) ([]domain.Address, bool, error)
	Set(ctx context.Context, key string, addresses []domain.Address) error
}

// CachedProvider wraps a Provider with a result cache. Only forward lookups
// that produced at least one address are cached.
type CachedProvider struct {
	inner   domain.Provider
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

var _ domain.Provider = (*CachedProvider)(nil)

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner domain.Provider, store Store, metrics *observability.Metrics, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{inner: inner, store: store, metrics: metrics, logger: logger}
}

func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

func (c *CachedProvider) Geocode(ctx context.Context, q domain.GeocodeQuery) ([]domain.Address, error) {
	key := cacheKey(q)

	addresses, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("geocode cache read failed", "error", err)
		c.count("error")
	case ok:
		c.count("hit")
		return addresses, nil
	default:
		c.count("miss")
	}

	addresses, err = c.inner.Geocode(ctx, q)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so an address that bpost later learns about can match.
	if len(addresses) > 0 {
		if err := c.store.Set(ctx, key, addresses); err != nil {
			c.logger.Warn("geocode cache write failed", "error", err)
		}
	}
	return addresses, nil
}

func (c *CachedProvider) Reverse(ctx context.Context, q domain.ReverseQuery) ([]domain.Address, error) {
	return c.inner.Reverse(ctx, q)
}

func (c *CachedProvider) count(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues("forward", result).Inc()
	}
}

// cacheKey hashes the normalized query so keys have a fixed length.
func cacheKey(q domain.GeocodeQuery) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Text)))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Locale)))

	keys := make([]string, 0, len(q.Data))
	for k := range q.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(strings.TrimSpace(q.Data[k])))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is a thread-safe LRU Store whose entries expire after a TTL.
type MemoryStore struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key       string
	value     []domain.Address
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// NewMemoryStore creates an LRU store. A non-positive ttl disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *MemoryStore) Get(_ context.Context, key string) ([]domain.Address, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.expired(e) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false, nil
	}
	c.moveToFront(e)
	return cloneAddresses(e.value), true, nil
}

func (c *MemoryStore) Set(_ context.Context, key string, addresses []domain.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.clock.Now().Add(c.ttl)
	}

	if e, ok := c.entries[key]; ok {
		e.value = cloneAddresses(addresses)
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return nil
	}

	e := &entry{key: key, value: cloneAddresses(addresses), expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return nil
}

// Len reports the number of entries, expired or not.
func (c *MemoryStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cloneAddresses deep-copies addresses so cached entries never alias a
// caller's values.
func cloneAddresses(addresses []domain.Address) []domain.Address {
	if addresses == nil {
		return nil
	}
	out := make([]domain.Address, len(addresses))
	for i, a := range addresses {
		out[i] = a.Clone()
	}
	return out
}

func (c *MemoryStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt)
}

func (c *MemoryStore) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *MemoryStore) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *MemoryStore) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *MemoryStore) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
