package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 按名称互斥。返回的unlock必须调用
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// RedisLocker 基于redsync的分布式锁
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker 使用现有的Redis客户端创建分布式锁
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), expiry: expiry}
}

func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	mutex := l.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(32),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01), // 时钟漂移因子
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, ErrLockNotAcquired
	}
	return func() {
		_, _ = mutex.UnlockContext(context.Background())
	}, nil
}

// LocalLocker 进程内按名称的互斥锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(name, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(name, entry)
		})
	}, nil
}

func (l *LocalLocker) release(name string, entry *localLock) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
	l.mu.Unlock()
}

type heldKey struct{}

// WithLock 在锁内执行操作。同一调用链上已持有的锁不会重复获取
func WithLock(ctx context.Context, locker Locker, name string, action func(ctx context.Context) error) error {
	if held, ok := ctx.Value(heldKey{}).(map[string]struct{}); ok {
		if _, ok := held[name]; ok {
			return action(ctx)
		}
	}

	unlock, err := locker.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	held := map[string]struct{}{name: {}}
	if parent, ok := ctx.Value(heldKey{}).(map[string]struct{}); ok {
		for k := range parent {
			held[k] = struct{}{}
		}
	}
	return action(context.WithValue(ctx, heldKey{}, held))
}
