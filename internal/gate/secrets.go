package gate

import (
	"context"
	"sync"
	"time"
)

// SecretSource resolves the webhook signing secret for a provider. A source
// returns ErrNoSecret when the provider has no configured secret.
type SecretSource interface {
	Secret(ctx context.Context, provider string) (string, error)
}

// StaticSecrets is a SecretSource backed by a fixed map, used for
// config-file-provided secrets and in tests.
type StaticSecrets map[string]string

func (s StaticSecrets) Secret(_ context.Context, provider string) (string, error) {
	secret, ok := s[provider]
	if !ok || secret == "" {
		return "", ErrNoSecret
	}
	return secret, nil
}

// SecretCache wraps a SecretSource with per-provider TTL caching so that
// secret resolution (which may hit a remote secret manager) stays off the
// webhook hot path. Negative results are cached too.
type SecretCache struct {
	source SecretSource
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	err       error
	expiresAt time.Time
}

// NewSecretCache constructs a cache around source. A non-positive ttl
// defaults to 15 minutes.
func NewSecretCache(source SecretSource, ttl time.Duration) *SecretCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SecretCache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cachedSecret),
	}
}

// Secret resolves a provider secret through the cache.
func (c *SecretCache) Secret(ctx context.Context, provider string) (string, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[provider]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, e.err
	}
	c.mu.Unlock()

	value, err := c.source.Secret(ctx, provider)

	c.mu.Lock()
	c.entries[provider] = cachedSecret{value: value, err: err, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return value, err
}

// Invalidate drops a provider's cached secret, forcing re-resolution.
func (c *SecretCache) Invalidate(provider string) {
	c.mu.Lock()
	delete(c.entries, provider)
	c.mu.Unlock()
}
