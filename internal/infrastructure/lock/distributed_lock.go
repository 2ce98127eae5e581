package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 用户维度的积分锁
// ============================================================================
//
// 同一用户的积分发放和兑换在进入数据库事务前先串行化，
// 行锁仍然是正确性的最后一道保障，这里的锁只是为了减少行锁等待和死锁重试。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本先比对 value 再删除，防止误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取锁失败")
)

// Lock 单把锁
type Lock interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Locker 创建锁
type Locker interface {
	NewLock(key, owner string) Lock
}

// PointsLockKey 积分账户锁（按用户维度，不同用户互不影响）
func PointsLockKey(userID int64) string {
	return fmt.Sprintf("points:lock:user:%d", userID)
}

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedisLocker 基于 Redis 的分布式锁，多实例部署时使用
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, expiration, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *RedisLocker) NewLock(key, owner string) Lock {
	return &DistributedLock{
		client:        l.client,
		key:           key,
		value:         owner,
		expiration:    l.expiration,
		retryInterval: l.retryInterval,
		maxRetries:    l.maxRetries,
	}
}

// DistributedLock Redis 分布式锁
type DistributedLock struct {
	client        *redis.Client
	key           string
	value         string // 持有者标识，释放时校验
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式加锁，按固定间隔重试
func (l *DistributedLock) Lock(ctx context.Context) error {
	for i := 0; i < l.maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}
