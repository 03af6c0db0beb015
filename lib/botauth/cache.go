package botauth

import (
	"sync"
	"time"
)

// RefreshSkew is subtracted from a token's expiry so it gets refreshed
// before the connector starts rejecting it.
const RefreshSkew = 5 * time.Minute

// CachedToken is a bearer token issued for a single tenant.
type CachedToken struct {
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresAtMs returns the expiry as epoch milliseconds.
func (t CachedToken) ExpiresAtMs() int64 {
	return t.ExpiresAt.UnixMilli()
}

// Cache maps tenant IDs to their most recently issued token.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CachedToken
	skew    time.Duration
	now     func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithSkew overrides RefreshSkew.
func WithSkew(skew time.Duration) CacheOption {
	return func(c *Cache) {
		c.skew = skew
	}
}

// NewCache creates an empty token cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]CachedToken),
		skew:    RefreshSkew,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the token for tenantID if it is still valid.
func (c *Cache) Get(tenantID string) (CachedToken, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()

	if !ok || !c.valid(entry) {
		return CachedToken{}, false
	}
	return entry, true
}

// Put stores a token for tenantID, replacing whatever was there.
func (c *Cache) Put(tenantID, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = CachedToken{
		TenantID:  tenantID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
}

// Len returns the number of tenants with a token, valid or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ValidUntil returns the instant after which a token expiring at expiresAt
// is no longer served.
func (c *Cache) ValidUntil(expiresAt time.Time) time.Time {
	return expiresAt.Add(-c.skew)
}

func (c *Cache) valid(entry CachedToken) bool {
	return c.now().Before(c.ValidUntil(entry.ExpiresAt))
}
