// Package cache 进程内周视图缓存，Redis 不可用时作为降级实现
package cache

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
)

// Memory 基于 go-cache 的周视图缓存
// 与 Redis 实现一样存序列化后的字节，读出的是独立副本
type Memory struct {
	c *gocache.Cache
}

// NewMemory 创建进程内缓存；ttl <= 0 时取 10 分钟
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Memory{c: gocache.New(ttl, 2*ttl)}
}

func weekViewKey(instance string, revision uint64, week int) string {
	return fmt.Sprintf("%s:%d:%d", instance, revision, week)
}

// GetWeekView 读取缓存并反序列化到 dst，未命中返回 false
func (m *Memory) GetWeekView(_ context.Context, instance string, revision uint64, week int, dst interface{}) (bool, error) {
	v, ok := m.c.Get(weekViewKey(instance, revision, week))
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		return false, fmt.Errorf("周视图缓存反序列化失败: %w", err)
	}
	return true, nil
}

// SetWeekView 序列化后写入缓存
func (m *Memory) SetWeekView(_ context.Context, instance string, revision uint64, week int, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("周视图序列化失败: %w", err)
	}
	m.c.SetDefault(weekViewKey(instance, revision, week), b)
	return nil
}

// Len 当前缓存条目数
func (m *Memory) Len() int {
	return m.c.ItemCount()
}
