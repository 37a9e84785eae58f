// Package redis opens the shared Redis connection and owns the key layout
// used by the directory, secret and event components.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key segments. Every key is additionally prefixed with Config.KeyPrefix.
const (
	KeyParticipant = "participant:" // hash per contact id
	KeyVendor      = "vendor:"      // secondary index (channel, vendor id) -> contact id
	KeySecret      = "secret:"      // channel credential blobs
)

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

// Open parses the URL, applies the connection timeouts and pings the server.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if log != nil {
		log.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}
	return c, nil
}

// Keys builds prefixed keys.
type Keys struct {
	Prefix string
}

// Participant returns the hash key holding a participant record.
func (k Keys) Participant(contactID string) string {
	return k.Prefix + KeyParticipant + contactID
}

// Vendor returns the secondary index key for a (channel, vendor id) pair.
func (k Keys) Vendor(channel, vendorID string) string {
	return k.Prefix + KeyVendor + channel + ":" + vendorID
}

// Secret returns the key holding the credential blob for a secret reference.
func (k Keys) Secret(ref string) string {
	return k.Prefix + KeySecret + ref
}
