// Package throttle はログイン失敗回数に応じたロックを提供します。
//
// 試行回数はプロセス内に持たず Redis に保存します。
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failKeyPrefix = "login:fail:"
	lockKeyPrefix = "login:lock:"
)

// Limits はロック条件です。
type Limits struct {
	MaxAttempts  int           // この回数失敗するとロック
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // ロック時間
}

// DefaultLimits は 15 分間に 5 回失敗で 10 分ロックします。
var DefaultLimits = Limits{
	MaxAttempts:  5,
	Window:       15 * time.Minute,
	LockDuration: 10 * time.Minute,
}

// Limiter はログイン試行の制限を表します。
type Limiter interface {
	// Check はロック中であれば残り時間を返します。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は成功時に記録を消去します。
	Reset(ctx context.Context, key string) error
}

type redisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLimiter は Redis を使う Limiter です。
type RedisLimiter struct {
	rdb    redisClient
	limits Limits
}

// NewRedisLimiter は RedisLimiter を作成します。
func NewRedisLimiter(rdb redisClient, limits Limits) *RedisLimiter {
	if limits.MaxAttempts <= 0 {
		limits = DefaultLimits
	}
	return &RedisLimiter{
		rdb:    rdb,
		limits: limits,
	}
}

// NewFromURL は redis:// 形式の URL からクライアントを作成します。
func NewFromURL(rawURL string, limits Limits) (*RedisLimiter, *redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	return NewRedisLimiter(client, limits), client, nil
}

// Check はロックキーの残り TTL を返します。ロックされていなければ 0 です。
func (l *RedisLimiter) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.TTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	// キーが無い場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure は失敗回数を加算し、上限に達したらロックキーを作成します。
// 失敗回数のキーは最初の失敗から Window の間だけ保持されます。
func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	failKey := failKeyPrefix + key
	count, err := l.rdb.Incr(ctx, failKey).Result()
	if err != nil {
		return 0, err
	}

	// 以前の EXPIRE が失敗して期限の無いキーが残っていればここで付け直す
	needsTTL := count == 1
	if !needsTTL {
		ttl, err := l.rdb.TTL(ctx, failKey).Result()
		if err != nil {
			return 0, err
		}
		needsTTL = ttl < 0
	}
	if needsTTL {
		if err := l.rdb.Expire(ctx, failKey, l.limits.Window).Err(); err != nil {
			return 0, err
		}
	}

	if count >= int64(l.limits.MaxAttempts) {
		if err := l.rdb.Set(ctx, lockKeyPrefix+key, 1, l.limits.LockDuration).Err(); err != nil {
			return 0, err
		}
		if err := l.rdb.Del(ctx, failKey).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return l.limits.MaxAttempts - int(count), nil
}

// Reset は失敗回数とロックの両方を削除します。
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, failKeyPrefix+key, lockKeyPrefix+key).Err()
}

// Noop は制限を行わない Limiter です。
type Noop struct{}

// Check は常にロックなしを返します。
func (Noop) Check(context.Context, string) (time.Duration, error) { return 0, nil }

// RecordFailure は何も記録せず、ロックまでの残り回数として 1 を返します。
func (Noop) RecordFailure(context.Context, string) (int, error) { return 1, nil }

// Reset は何もしません。
func (Noop) Reset(context.Context, string) error { return nil }
