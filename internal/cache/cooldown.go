package cache

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Cooldown throttles per-user recommendations on top of any Cache
// backend. Arming a user suppresses further recommendations until the
// TTL lapses.
type Cooldown struct {
	cache      domain.Cache
	defaultTTL time.Duration
}

// NewCooldown creates a cooldown store. A zero defaultTTL falls back to
// one hour.
func NewCooldown(c domain.Cache, defaultTTL time.Duration) *Cooldown {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Cooldown{cache: c, defaultTTL: defaultTTL}
}

// Armed reports whether the user is still inside a cooldown window.
func (c *Cooldown) Armed(ctx context.Context, userID string) (bool, error) {
	val, err := c.cache.Get(ctx, cooldownKey(userID))
	if err != nil {
		return false, err
	}
	return val != nil, nil
}

// Arm starts a cooldown window for the user. A non-positive ttl uses
// the store default.
func (c *Cooldown) Arm(ctx context.Context, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.cache.Set(ctx, cooldownKey(userID), []byte("1"), ttl)
}

func cooldownKey(userID string) string {
	return "cooldown:user:" + userID
}
