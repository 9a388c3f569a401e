// Package cache keeps hot SLA policies in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// PolicyLoader is the authoritative policy source behind the cache.
type PolicyLoader interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// PolicyCache is a read-through cache for SLA policies. Redis failures degrade to
// direct loads; they are never returned to callers.
type PolicyCache struct {
	client redis.Cmdable
	next   PolicyLoader
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewPolicyCache wraps next with a Redis cache.
func NewPolicyCache(client redis.Cmdable, next PolicyLoader, ttl time.Duration, prefix string, logger *zap.Logger) *PolicyCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PolicyCache{client: client, next: next, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *PolicyCache) key(id string) string {
	if c.prefix == "" {
		return "sla_policy:" + id
	}
	return c.prefix + ":sla_policy:" + id
}

// GetByID returns the cached policy or loads and caches it. Not-found results are
// not cached.
func (c *PolicyCache) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var policy domain.SLAPolicy
		jsonErr := json.Unmarshal(raw, &policy)
		if jsonErr == nil {
			return &policy, nil
		}
		c.logger.Warn("discarding corrupt cached policy", zap.String("policy_id", id), zap.Error(jsonErr))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("policy cache read failed", zap.String("policy_id", id), zap.Error(err))
	}

	policy, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(policy)
	if err != nil {
		c.logger.Warn("policy cache encode failed", zap.String("policy_id", id), zap.Error(err))
		return policy, nil
	}
	if err := c.client.Set(ctx, c.key(id), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed", zap.String("policy_id", id), zap.Error(err))
	}
	return policy, nil
}

// Invalidate drops the cached copy of a policy.
func (c *PolicyCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
