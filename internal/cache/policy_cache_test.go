package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
)

type countingLoader struct {
	policies map[string]domain.SLAPolicy
	calls    int
}

func (l *countingLoader) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	l.calls++
	p, ok := l.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *countingLoader, *PolicyCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	loader := &countingLoader{policies: map[string]domain.SLAPolicy{
		"pol-1": {
			ID:        "pol-1",
			CompanyID: "co-1",
			Name:      "Gold",
			IsActive:  true,
			Targets: map[domain.TicketPriority]domain.SLATarget{
				domain.TicketPriorityHigh: {ResponseMinutes: 60, ResolutionMinutes: 480},
			},
			Coverage: calendar.Coverage{
				Type:               calendar.CoverageBusinessHours,
				BusinessHoursStart: "09:00",
				BusinessHoursEnd:   "17:00",
				Timezone:           "Europe/Berlin",
			},
			BreachWarningPercentage: 75,
			EffectiveFrom:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	return mr, loader, NewPolicyCache(client, loader, time.Minute, "test", zap.NewNop())
}

func TestPolicyCacheReadThrough(t *testing.T) {
	mr, loader, cache := setup(t)
	ctx := context.Background()

	first, err := cache.GetByID(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.True(t, mr.Exists("test:sla_policy:pol-1"))

	second, err := cache.GetByID(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls, "second read is served from redis")
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Coverage, second.Coverage)
	assert.Equal(t, 480, second.Targets[domain.TicketPriorityHigh].ResolutionMinutes)
	assert.True(t, first.EffectiveFrom.Equal(second.EffectiveFrom))
}

func TestPolicyCacheExpiresAndInvalidates(t *testing.T) {
	mr, loader, cache := setup(t)
	ctx := context.Background()

	_, err := cache.GetByID(ctx, "pol-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetByID(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	require.NoError(t, cache.Invalidate(ctx, "pol-1"))
	assert.False(t, mr.Exists("test:sla_policy:pol-1"))
	_, err = cache.GetByID(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 3, loader.calls)
}

func TestPolicyCacheDoesNotCacheMisses(t *testing.T) {
	mr, loader, cache := setup(t)

	_, err := cache.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
	assert.False(t, mr.Exists("test:sla_policy:missing"))
	assert.Equal(t, 1, loader.calls)
}

func TestPolicyCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, loader, cache := setup(t)
	mr.Close()

	policy, err := cache.GetByID(context.Background(), "pol-1")
	require.NoError(t, err)
	assert.Equal(t, "Gold", policy.Name)
	assert.Equal(t, 1, loader.calls)
}

func TestPolicyCacheIgnoresCorruptEntries(t *testing.T) {
	mr, loader, cache := setup(t)
	require.NoError(t, mr.Set("test:sla_policy:pol-1", "{not json"))

	policy, err := cache.GetByID(context.Background(), "pol-1")
	require.NoError(t, err)
	assert.Equal(t, "Gold", policy.Name)
	assert.Equal(t, 1, loader.calls)
}
