package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
)

const (
	jwksTTL = time.Hour
	// Unknown signing keys trigger at most one refetch per URL within this window
	jwksMinRefresh = time.Minute
)

type cachedKeys struct {
	keys      jwk.Set
	fetchedAt time.Time
}

// JWKSManager fetches signing keys and caches them per URL. Concurrent misses for the
// same URL share one fetch.
type JWKSManager struct {
	mu         sync.RWMutex
	cache      map[string]cachedKeys
	fetches    singleflight.Group
	httpClient *http.Client
	now        func() time.Time
}

// NewJWKSManager creates a key cache with a one hour TTL
func NewJWKSManager() *JWKSManager {
	return &JWKSManager{
		cache:      make(map[string]cachedKeys),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// GetJWKS returns the key set published at jwksURL
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	if keys, ok := m.fresh(jwksURL, jwksTTL); ok {
		return keys, nil
	}
	return m.fetch(ctx, jwksURL, jwksTTL)
}

// Refresh refetches the keys after the provider may have rotated them. It reports false
// without fetching when the cached set is younger than a minute.
func (m *JWKSManager) Refresh(ctx context.Context, jwksURL string) (jwk.Set, bool, error) {
	if keys, ok := m.fresh(jwksURL, jwksMinRefresh); ok {
		return keys, false, nil
	}
	keys, err := m.fetch(ctx, jwksURL, jwksMinRefresh)
	return keys, err == nil, err
}

// fresh returns the cached keys for jwksURL when they are younger than maxAge
func (m *JWKSManager) fresh(jwksURL string, maxAge time.Duration) (jwk.Set, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[jwksURL]
	if !ok || m.now().Sub(entry.fetchedAt) >= maxAge {
		return nil, false
	}
	return entry.keys, true
}

func (m *JWKSManager) fetch(ctx context.Context, jwksURL string, maxAge time.Duration) (jwk.Set, error) {
	v, err, _ := m.fetches.Do(jwksURL, func() (any, error) {
		// A fetch that finished while this caller waited already satisfies it
		if keys, ok := m.fresh(jwksURL, maxAge); ok {
			return keys, nil
		}
		keys, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(m.httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
		}
		m.mu.Lock()
		m.cache[jwksURL] = cachedKeys{keys: keys, fetchedAt: m.now()}
		m.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(jwk.Set), nil
}
