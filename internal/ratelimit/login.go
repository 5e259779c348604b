// Package ratelimit provides the redis login throttle and a per-IP
// token bucket for the auth routes.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginKeyPrefix = "login_attempts:"

// LoginThrottle counts failed logins per identifier+IP in a fixed
// redis window and blocks once the cap is reached.
type LoginThrottle struct {
	client      redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func NewLoginThrottle(client redis.UniversalClient, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow reports whether another attempt is permitted for the
// identifier+IP pair.
func (t *LoginThrottle) Allow(ctx context.Context, identifier, ip string) (bool, error) {
	count, err := t.client.Get(ctx, t.key(identifier, ip)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read login attempts: %w", err)
	}
	return count < t.maxAttempts, nil
}

// RecordFailure counts one failed attempt. The window starts at the
// first failure and is not extended by later ones.
func (t *LoginThrottle) RecordFailure(ctx context.Context, identifier, ip string) error {
	key := t.key(identifier, ip)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, identifier, ip string) error {
	if err := t.client.Del(ctx, t.key(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func (t *LoginThrottle) key(identifier, ip string) string {
	return loginKeyPrefix + identifier + ":" + ip
}
