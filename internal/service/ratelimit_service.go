// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"
	"uphub-go/internal/config"
	"uphub-go/internal/model"
	"uphub-go/internal/repository"
)

// RateLimitService 接口定义了按用户的上传冷却门控。
type RateLimitService interface {
	// Check 在请求入口调用：冷却未到期时拒绝并返回剩余毫秒数；
	// 已到期的冷却会被当场清除（即使请求继续执行，状态也已变更）。
	Check(ctx context.Context, userID uint) (allowed bool, remainingMs int64, err error)
	// Arm 在一批上传全部成功后调用，按角色写入对应时长的冷却。
	Arm(ctx context.Context, user *model.User) error
}

// rateLimitService 是 RateLimitService 的实现，状态存放在 CooldownStore 中。
type rateLimitService struct {
	store repository.CooldownStore
	cfg   config.RateLimitConfig
	now   func() time.Time
}

// NewRateLimitService 创建一个新的 RateLimitService 实例。
func NewRateLimitService(store repository.CooldownStore, cfg config.RateLimitConfig) RateLimitService {
	return &rateLimitService{store: store, cfg: cfg, now: time.Now}
}

// Check 实现请求入口的冷却检查。
func (s *rateLimitService) Check(ctx context.Context, userID uint) (bool, int64, error) {
	expiresAtMs, exists, err := s.store.GetCooldown(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	if !exists {
		return true, 0, nil
	}

	nowMs := s.now().UnixMilli()
	if expiresAtMs > nowMs {
		return false, expiresAtMs - nowMs, nil
	}

	// 冷却已过期：清除后放行
	if err := s.store.ClearCooldown(ctx, userID); err != nil {
		return false, 0, err
	}
	return true, 0, nil
}

// Arm 实现按角色的冷却写入。管理员只受管理员时长约束，
// 普通用户只受用户时长约束；对应时长为 0 时不设置冷却。
func (s *rateLimitService) Arm(ctx context.Context, user *model.User) error {
	var durationMs int64
	if user.IsAdmin() {
		durationMs = s.cfg.AdminCooldownMs
	} else {
		durationMs = s.cfg.UserCooldownMs
	}
	if durationMs <= 0 {
		return nil
	}
	return s.store.SetCooldown(ctx, user.ID, s.now().UnixMilli()+durationMs)
}
