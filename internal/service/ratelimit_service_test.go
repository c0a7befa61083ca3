package service

import (
	"context"
	"testing"
	"time"
	"uphub-go/internal/config"
	"uphub-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCooldownStore 是 CooldownStore 的内存实现，用于隔离 Redis。
type fakeCooldownStore struct {
	cooldowns map[uint]int64
}

func newFakeCooldownStore() *fakeCooldownStore {
	return &fakeCooldownStore{cooldowns: make(map[uint]int64)}
}

func (f *fakeCooldownStore) GetCooldown(_ context.Context, userID uint) (int64, bool, error) {
	ms, ok := f.cooldowns[userID]
	return ms, ok, nil
}

func (f *fakeCooldownStore) SetCooldown(_ context.Context, userID uint, expiresAtMs int64) error {
	f.cooldowns[userID] = expiresAtMs
	return nil
}

func (f *fakeCooldownStore) ClearCooldown(_ context.Context, userID uint) error {
	delete(f.cooldowns, userID)
	return nil
}

func newTestRateLimitService(store *fakeCooldownStore, cfg config.RateLimitConfig, now time.Time) *rateLimitService {
	return &rateLimitService{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return now },
	}
}

func TestCheckNoCooldown(t *testing.T) {
	store := newFakeCooldownStore()
	svc := newTestRateLimitService(store, config.RateLimitConfig{UserCooldownMs: 30000}, time.Now())

	allowed, remaining, err := svc.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, remaining)
}

func TestCheckActiveCooldown(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeCooldownStore()
	store.cooldowns[1] = now.UnixMilli() + 12345

	svc := newTestRateLimitService(store, config.RateLimitConfig{UserCooldownMs: 30000}, now)

	allowed, remaining, err := svc.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(12345), remaining)

	// 被拒绝的请求不改变冷却状态
	assert.Contains(t, store.cooldowns, uint(1))
}

func TestCheckExpiredCooldownCleared(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeCooldownStore()
	store.cooldowns[1] = now.UnixMilli() - 1

	svc := newTestRateLimitService(store, config.RateLimitConfig{UserCooldownMs: 30000}, now)

	allowed, remaining, err := svc.Check(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, remaining)

	// 过期的冷却必须被当场清除
	assert.NotContains(t, store.cooldowns, uint(1))
}

func TestArmUser(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeCooldownStore()
	svc := newTestRateLimitService(store, config.RateLimitConfig{
		UserCooldownMs:  30000,
		AdminCooldownMs: 5000,
	}, now)

	user := &model.User{ID: 1, Role: model.RoleUser}
	require.NoError(t, svc.Arm(context.Background(), user))
	assert.Equal(t, now.UnixMilli()+30000, store.cooldowns[1])
}

func TestArmAdmin(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeCooldownStore()
	svc := newTestRateLimitService(store, config.RateLimitConfig{
		UserCooldownMs:  30000,
		AdminCooldownMs: 5000,
	}, now)

	admin := &model.User{ID: 2, Role: model.RoleAdmin}
	require.NoError(t, svc.Arm(context.Background(), admin))
	assert.Equal(t, now.UnixMilli()+5000, store.cooldowns[2])
}

func TestArmZeroDurationSkipped(t *testing.T) {
	store := newFakeCooldownStore()
	svc := newTestRateLimitService(store, config.RateLimitConfig{
		UserCooldownMs:  30000,
		AdminCooldownMs: 0,
	}, time.Now())

	admin := &model.User{ID: 2, Role: model.RoleAdmin}
	require.NoError(t, svc.Arm(context.Background(), admin))
	assert.NotContains(t, store.cooldowns, uint(2))
}
