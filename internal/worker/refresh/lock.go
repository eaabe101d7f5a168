package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockKey はリフレッシュジョブの実行ロックのキー。
const DefaultLockKey = "readon:refresh:lock"

// DefaultLockTTL は実行ロックの有効期限。ジョブが異常終了してもこの時間で解放される。
const DefaultLockTTL = 10 * time.Minute

// ErrRunInProgress は別のリフレッシュジョブが実行中の場合に返される。
var ErrRunInProgress = errors.New("refresh run already in progress")

// RunLock はリフレッシュジョブの多重実行を防ぐロック。
type RunLock interface {
	// Acquire はロックを取得する。既に取得されている場合はErrRunInProgressを返す。
	Acquire(ctx context.Context) (Lease, error)
}

// Lease は取得済みのロック。
type Lease interface {
	Release(ctx context.Context) error
}

// NoopLock は常に取得に成功するロック。Redis未設定時に使用する。
type NoopLock struct{}

// Acquire は常に成功する。
func (NoopLock) Acquire(context.Context) (Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// unlockScript はトークンが一致する場合のみキーを削除する。
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock はRedisのSETNXによる実行ロック。
// 解放時はLuaスクリプトで自分のトークンであることを確認してから削除する。
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock はRedisLockを生成する。keyが空・ttlが0以下の場合はデフォルト値を使用する。
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// NewRedisLockFromURL はREDIS_URLからクライアントを生成してRedisLockを返す。
func NewRedisLockFromURL(redisURL string) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedisLock(redis.NewClient(opts), "", 0), nil
}

// Acquire はロックを取得する。
func (l *RedisLock) Acquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return &redisLease{lock: l, token: token}, nil
}

// Close はRedisクライアントを閉じる。
func (l *RedisLock) Close() error {
	return l.client.Close()
}

type redisLease struct {
	lock  *RedisLock
	token string
}

// Release はロックを解放する。有効期限切れなどで既に他者のロックになっている場合は何もしない。
func (r *redisLease) Release(ctx context.Context) error {
	if _, err := unlockScript.Run(ctx, r.lock.client, []string{r.lock.key}, r.token).Int(); err != nil {
		return fmt.Errorf("release refresh lock: %w", err)
	}
	return nil
}
