package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"timetable/backend/config"
)

// Client Redis 客户端封装
// 用于周视图缓存与导入接口限流；缓存键带课表修订号，课表修改后旧键自然失效
type Client struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// ── 周视图缓存 ──

const weekViewPrefix = "timetable:week:"

// WeekViewKey 缓存键：实例 ID + 修订号 + 周次
// 修订号每次启动从 0 计，多个进程共用一个 Redis 时靠实例 ID 区分
func WeekViewKey(instance string, revision uint64, week int) string {
	return fmt.Sprintf("%s%s:%d:%d", weekViewPrefix, instance, revision, week)
}

// GetWeekView 读取缓存并反序列化到 dst，未命中返回 false
func (c *Client) GetWeekView(ctx context.Context, instance string, revision uint64, week int, dst interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, WeekViewKey(instance, revision, week)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("周视图缓存反序列化失败: %w", err)
	}
	return true, nil
}

// SetWeekView 序列化并写入缓存
func (c *Client) SetWeekView(ctx context.Context, instance string, revision uint64, week int, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("周视图缓存序列化失败: %w", err)
	}
	return c.rdb.Set(ctx, WeekViewKey(instance, revision, week), raw, c.ttl).Err()
}

// ── 限流 ──

// CheckRateLimit 滑动窗口计数：先记录本次请求再计数，超过 limit 时撤回记录并返回 false
// 清理、写入、计数在同一个事务管道内完成，并发请求不会同时通过检查
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	minScore := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	member := uuid.NewString()

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", minScore)
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if count.Val() > int64(limit) {
		// 被拒绝的请求不占窗口配额
		if err := c.rdb.ZRem(ctx, key, member).Err(); err != nil {
			c.logger.Warn("撤回限流记录失败", zap.String("key", key), zap.Error(err))
		}
		return false, nil
	}
	return true, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
