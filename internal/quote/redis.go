package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror 把报价以 JSON 写入 Redis。
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisMirror 创建 Redis 镜像。
func NewRedisMirror(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = "quote:"
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

var _ Mirror = (*RedisMirror)(nil)

func (m *RedisMirror) key(ticker string) string {
	return m.prefix + ticker
}

// Get 读取镜像，键不存在时返回 nil。
func (m *RedisMirror) Get(ctx context.Context, ticker string) (*Quote, error) {
	data, err := m.client.Get(ctx, m.key(ticker)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("quote: 读取 redis 失败: %w", err)
	}

	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("quote: 解析 redis 报价失败: %w", err)
	}
	return &q, nil
}

// Put 以管道批量写入。
func (m *RedisMirror) Put(ctx context.Context, quotes []Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := m.client.TxPipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("quote: 编码报价失败: %w", err)
		}
		pipe.Set(ctx, m.key(q.Ticker), data, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quote: 写入 redis 失败: %w", err)
	}
	return nil
}
