package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"timetable/backend/pkg/redis"
	"timetable/backend/pkg/response"
)

// RateLimit 速率限制中间件，用于 ICS 导入等较重的接口
// limit: 窗口内允许的最大请求数
// window: 窗口时长
// rdb 非 nil 时使用 Redis 滑动窗口；rdb 为 nil 时退回进程内令牌桶。
// Redis 出错时降级放行。
func RateLimit(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if rdb == nil {
		return localRateLimit(newIPLimiter(limit, window))
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())
		allowed, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("限流检查失败，降级放行", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			rejectTooMany(c)
			return
		}

		c.Next()
	}
}

func rejectTooMany(c *gin.Context) {
	response.TooManyRequests(c, 10004, "导入过于频繁，请稍后再试")
	c.Abort()
}

// ── 进程内限流 ──

// ipLimiter 每个 IP 一个令牌桶：容量 limit，每 window/limit 补充一个
// 令牌桶闲置一个 window 后必然已补满，与新建无异，因此按 window 过期回收
type ipLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	every    rate.Limit
	burst    int
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		limiters: gocache.New(window, window),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	var lim *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.every, l.burst)
	}
	// 每次访问顺延过期时间
	l.limiters.SetDefault(key, lim)
	l.mu.Unlock()
	return lim.Allow()
}

func localRateLimit(l *ipLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP() + ":" + c.FullPath()) {
			rejectTooMany(c)
			return
		}
		c.Next()
	}
}
