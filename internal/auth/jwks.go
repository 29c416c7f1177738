package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// JWK is one entry of a JSON Web Key Set. Only RSA signing keys are used.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is a JSON Web Key Set document.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

type cachedKey struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// jwksCache holds the RS256 keys of one JWKS endpoint. An unknown or
// expired kid triggers a refetch, at most once per refresh interval.
type jwksCache struct {
	url             string
	client          *http.Client
	refreshInterval time.Duration
	ttl             time.Duration
	now             func() time.Time

	mu        sync.RWMutex
	keys      map[string]cachedKey
	lastFetch time.Time

	// fetchMu serialises refetches so concurrent misses cost one request.
	fetchMu sync.Mutex
}

func newJWKSCache(url string, client *http.Client, refreshInterval, ttl time.Duration) *jwksCache {
	return &jwksCache{
		url:             url,
		client:          client,
		refreshInterval: refreshInterval,
		ttl:             ttl,
		now:             time.Now,
		keys:            make(map[string]cachedKey),
	}
}

func (c *jwksCache) key(kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have refreshed while this one waited.
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	c.mu.RLock()
	due := c.now().Sub(c.lastFetch) >= c.refreshInterval
	c.mu.RUnlock()
	if !due {
		return nil, fmt.Errorf("key not found: %s", kid)
	}

	if err := c.refresh(); err != nil {
		return nil, err
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

func (c *jwksCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.keys[kid]
	if !ok || (c.ttl > 0 && c.now().Sub(entry.fetchedAt) >= c.ttl) {
		return nil, false
	}
	return entry.key, true
}

// refresh replaces the cached set with the endpoint's current keys.
// Entries that cannot be converted are skipped.
func (c *jwksCache) refresh() error {
	resp, err := c.client.Get(c.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch failed with status: %d", resp.StatusCode)
	}

	var set JWKSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	now := c.now()
	keys := make(map[string]cachedKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") || (jwk.Alg != "" && jwk.Alg != "RS256") {
			continue
		}
		key, err := jwk.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[jwk.Kid] = cachedKey{key: key, fetchedAt: now}
	}

	c.mu.Lock()
	c.keys = keys
	c.lastFetch = now
	c.mu.Unlock()
	return nil
}

func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := decodeSegment(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := decodeSegment(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 2 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// decodeSegment decodes base64url with or without trailing padding.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
