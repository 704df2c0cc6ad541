// Package redis holds the request-throttling cache in front of the auth
// endpoints. This is a coarse per-caller shield, separate from the
// store-level OTP attempt cap.
package redis

import (
	"context"
	"fmt"
	"time"

	"identity-service/internal/client"
	"identity-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

type RateLimitCache struct {
	client *client.RedisClient
	window time.Duration
	max    int
}

func NewRateLimitCache(client *client.RedisClient, window time.Duration, max int) *RateLimitCache {
	return &RateLimitCache{client: client, window: window, max: max}
}

// Allow increments the fixed-window counter for key and reports whether the
// caller is still under the limit.
func (c *RateLimitCache) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, rateLimitPrefix+key, c.window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			util.String("key", key),
			util.ErrorField(err))
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count > int64(c.max) {
		util.Warn("Rate limit exceeded",
			util.String("key", key),
			util.Int("max", c.max))
		return false, nil
	}
	return true, nil
}
