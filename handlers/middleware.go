package handlers

import (
	"net/http"
	"strconv"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware 按调用方限流，未认证请求按客户端IP
func RateLimitMiddleware(limiter *cache.UserRateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if caller := callerOf(c); !caller.IsZero() {
			key = "caller:" + caller.String()
		}

		allowed, err := limiter.AllowUser(c.Request.Context(), key)
		if err != nil {
			log.Warn("限流检查失败", zap.String("key", key), zap.Error(err))
		}
		if err != nil || !allowed {
			metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "请求频率过高，请稍后再试",
			})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware 记录请求数和耗时
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// LoggerMiddleware 用zap记录访问日志
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
