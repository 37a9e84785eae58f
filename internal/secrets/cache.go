package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dayuer/chatgw/internal/logger"
)

// ErrSecretUnavailable wraps every failure to load a configured secret.
// A configured but unreachable secret is a misconfiguration, never "disabled".
var ErrSecretUnavailable = errors.New("channel secret unavailable")

// Cache lazily loads one Bundle per channel and keeps it for the lifetime of
// the process. Failed loads are not cached.
type Cache struct {
	store Store
	refs  map[string]string // channel -> secret reference
	log   *zap.Logger

	mu      sync.RWMutex
	bundles map[string]Bundle
	group   singleflight.Group
}

// NewCache creates a cache over store. refs maps an upper-case channel name
// to its secret reference; channels without a reference are disabled.
func NewCache(store Store, refs map[string]string, log *zap.Logger) *Cache {
	normalized := make(map[string]string, len(refs))
	for ch, ref := range refs {
		if ref != "" {
			normalized[strings.ToUpper(ch)] = ref
		}
	}
	return &Cache{
		store:   store,
		refs:    normalized,
		log:     logger.OrNop(log).Named("secrets"),
		bundles: make(map[string]Bundle),
	}
}

// Configured reports whether channel has a secret reference.
func (c *Cache) Configured(channel string) bool {
	_, ok := c.refs[strings.ToUpper(channel)]
	return ok
}

// Get returns the channel's bundle, fetching it on first use. Concurrent first
// calls share a single fetch.
func (c *Cache) Get(ctx context.Context, channel string) (Bundle, error) {
	channel = strings.ToUpper(channel)

	ref, ok := c.refs[channel]
	if !ok {
		return Bundle{}, nil
	}

	c.mu.RLock()
	b, cached := c.bundles[channel]
	c.mu.RUnlock()
	if cached {
		return b, nil
	}

	v, err, _ := c.group.Do(channel, func() (any, error) {
		c.mu.RLock()
		b, cached := c.bundles[channel]
		c.mu.RUnlock()
		if cached {
			return b, nil
		}

		blob, err := c.store.Fetch(ctx, ref)
		if err != nil {
			return Bundle{}, err
		}
		b, err = ParseBundle(channel, blob)
		if err != nil {
			return Bundle{}, err
		}

		c.mu.Lock()
		c.bundles[channel] = b
		c.mu.Unlock()

		c.log.Debug("secret loaded", zap.String("channel", channel))
		return b, nil
	})
	if err != nil {
		c.log.Error("secret fetch failed", zap.String("channel", channel), zap.Error(err))
		return Bundle{}, fmt.Errorf("%w: %s: %w", ErrSecretUnavailable, channel, err)
	}
	return v.(Bundle), nil
}
