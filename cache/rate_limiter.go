package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断请求是否允许通过
	Allow(ctx context.Context) (bool, error)
}

// 令牌桶算法的Lua脚本
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local period = 1

local tokens_key = key .. ":tokens"
local timestamp_key = key .. ":ts"

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or 0)

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1

redis.call("setex", tokens_key, period * 2, new_tokens)
redis.call("setex", timestamp_key, period * 2, now)

return 1
`

// TokenBucketRateLimiter Redis令牌桶限流器，多实例共享配额
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	key         string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, key string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		key:         fmt.Sprintf("rate_limit:%s", key),
		rate:        rate,
		burst:       burst,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := time.Now().Unix()
	result, err := l.redisClient.Eval(ctx, tokenBucketScript, []string{l.key}, now, l.rate, l.burst).Result()
	if err != nil {
		return false, err
	}
	n, ok := result.(int64)
	return ok && n == 1, nil
}

// LocalRateLimiter 进程内令牌桶
type LocalRateLimiter struct {
	limiter *rate.Limiter
}

func NewLocalRateLimiter(perSecond, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *LocalRateLimiter) Allow(context.Context) (bool, error) {
	return l.limiter.Allow(), nil
}

// UserRateLimiter 用户级别限流器，每个调用方有自己的令牌桶
type UserRateLimiter struct {
	redisClient RedisClient
	keyPrefix   string
	rate        int
	burst       int

	mu       sync.Mutex
	limiters map[string]RateLimiter
}

// NewUserRateLimiter 创建用户级别限流器；client为nil时使用进程内令牌桶
func NewUserRateLimiter(client RedisClient, keyPrefix string, userRate, userBurst int) *UserRateLimiter {
	return &UserRateLimiter{
		redisClient: client,
		keyPrefix:   keyPrefix,
		rate:        userRate,
		burst:       userBurst,
		limiters:    make(map[string]RateLimiter),
	}
}

// GetUserLimiter 获取用户的限流器
func (l *UserRateLimiter) GetUserLimiter(userID string) RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[userID]; ok {
		return limiter
	}

	var limiter RateLimiter
	if l.redisClient != nil {
		limiter = NewTokenBucketRateLimiter(l.redisClient, l.keyPrefix+":user:"+userID, l.rate, l.burst)
	} else {
		limiter = NewLocalRateLimiter(l.rate, l.burst)
	}
	l.limiters[userID] = limiter
	return limiter
}

// AllowUser 判断用户请求是否允许通过
func (l *UserRateLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	return l.GetUserLimiter(userID).Allow(ctx)
}
