// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// CooldownStore 抽象了每用户冷却时间戳的存取，上层限流逻辑只依赖该接口。
// 值为冷却到期的绝对时间（unix 毫秒），不存在表示无冷却。
type CooldownStore interface {
	GetCooldown(ctx context.Context, userID uint) (expiresAtMs int64, exists bool, err error)
	SetCooldown(ctx context.Context, userID uint, expiresAtMs int64) error
	ClearCooldown(ctx context.Context, userID uint) error
}

// MergeLocker 提供按 (用户, 上传标识) 粒度的互斥，
// 用于封堵两个并发"最终分片"请求同时触发重组的竞态。
type MergeLocker interface {
	AcquireMergeLock(ctx context.Context, userID uint, uploadID string) (bool, error)
	ReleaseMergeLock(ctx context.Context, userID uint, uploadID string) error
}

// RateLimitRepository 聚合了冷却状态与合并锁两类限流相关操作。
type RateLimitRepository interface {
	CooldownStore
	MergeLocker
}

// rateLimitRepository 是 RateLimitRepository 的 Redis 实现。
type rateLimitRepository struct {
	redisClient *redis.Client
}

// NewRateLimitRepository 创建基于 Redis 的限流状态仓库。
func NewRateLimitRepository(redisClient *redis.Client) RateLimitRepository {
	return &rateLimitRepository{redisClient: redisClient}
}

// mergeLockTTL 防止持锁请求崩溃后锁永久滞留。
const mergeLockTTL = 2 * time.Minute

func cooldownKey(userID uint) string {
	return "cooldown:" + strconv.FormatUint(uint64(userID), 10)
}

func mergeLockKey(userID uint, uploadID string) string {
	return "mergelock:" + strconv.FormatUint(uint64(userID), 10) + ":" + uploadID
}

// GetCooldown 读取用户冷却到期时间戳。
func (r *rateLimitRepository) GetCooldown(ctx context.Context, userID uint) (int64, bool, error) {
	val, err := r.redisClient.Get(ctx, cooldownKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// 键内容损坏按不存在处理，同时清掉脏数据
		_ = r.redisClient.Del(ctx, cooldownKey(userID)).Err()
		return 0, false, nil
	}
	return ms, true, nil
}

// SetCooldown 写入用户冷却到期时间戳。
func (r *rateLimitRepository) SetCooldown(ctx context.Context, userID uint, expiresAtMs int64) error {
	return r.redisClient.Set(ctx, cooldownKey(userID),
		strconv.FormatInt(expiresAtMs, 10), 0).Err()
}

// ClearCooldown 删除用户冷却时间戳。
func (r *rateLimitRepository) ClearCooldown(ctx context.Context, userID uint) error {
	return r.redisClient.Del(ctx, cooldownKey(userID)).Err()
}

// AcquireMergeLock 以 SETNX 语义抢占合并锁，返回是否抢占成功。
func (r *rateLimitRepository) AcquireMergeLock(ctx context.Context, userID uint, uploadID string) (bool, error) {
	return r.redisClient.SetNX(ctx, mergeLockKey(userID, uploadID), "1", mergeLockTTL).Result()
}

// ReleaseMergeLock 释放合并锁。
func (r *rateLimitRepository) ReleaseMergeLock(ctx context.Context, userID uint, uploadID string) error {
	return r.redisClient.Del(ctx, mergeLockKey(userID, uploadID)).Err()
}
