package quote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trading-ledger/internal/store"
)

// Mirror 为报价的只读镜像，例如 Redis。
type Mirror interface {
	Get(ctx context.Context, ticker string) (*Quote, error)
	Put(ctx context.Context, quotes []Quote) error
}

// Cache 以 SQLite 为准保存报价，可选地同步一份到镜像供非事务读取。
type Cache struct {
	db      *store.Store
	fetcher Fetcher
	mirror  Mirror
	logger  *zap.Logger
	now     func() time.Time
}

// Option 定制 Cache。
type Option func(*Cache)

// WithMirror 启用报价镜像。
func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		c.mirror = m
	}
}

// WithClock 替换时间源。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache 创建报价缓存。
func NewCache(db *store.Store, fetcher Fetcher, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		db:      db,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const selectQuote = `SELECT ticker, last_price, bid_price, bid_size, ask_price, ask_size, updated_at FROM quote`

// Get 返回缓存中的报价，不存在时返回 nil。
//
// 事务内始终读取 SQLite，保证与同一事务中的写入一致；事务外优先命中镜像。
func (c *Cache) Get(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, nil
	}

	if c.mirror != nil && !store.InTx(ctx) {
		q, err := c.mirror.Get(ctx, ticker)
		if err != nil {
			c.logger.Warn("读取报价镜像失败，回退数据库", zap.String("ticker", ticker), zap.Error(err))
		} else if q != nil {
			return q, nil
		}
	}

	row := c.db.Conn(ctx).QueryRowContext(ctx, selectQuote+` WHERE ticker = ?`, ticker)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("查询报价", err)
	}
	return q, nil
}

// List 按代码顺序返回全部缓存报价。
func (c *Cache) List(ctx context.Context) ([]Quote, error) {
	rows, err := c.db.Conn(ctx).QueryContext(ctx, selectQuote+` ORDER BY ticker`)
	if err != nil {
		return nil, store.Wrap("查询报价列表", err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, store.Wrap("查询报价列表", err)
		}
		quotes = append(quotes, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("查询报价列表", err)
	}
	return quotes, nil
}

// Refresh 从行情源拉取给定代码并整体写入缓存。
//
// 任一代码失败时不写入任何报价。未缓存过的代码在刷新后开始被跟踪。
func (c *Cache) Refresh(ctx context.Context, tickers []string) ([]Quote, error) {
	tickers = NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, ErrEmptyTickers
	}

	fetched, err := c.fetcher.FetchQuotes(ctx, tickers)
	if err != nil {
		c.logger.Warn("拉取行情失败", zap.Strings("tickers", tickers), zap.Error(err))
		return nil, err
	}

	now := c.now().UTC()
	quotes := make([]Quote, 0, len(tickers))
	for _, t := range tickers {
		q, ok := fetched[t]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, t)
		}
		q.Ticker = t
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = now
		}
		quotes = append(quotes, q)
	}

	err = c.db.WithTx(ctx, func(ctx context.Context) error {
		for i := range quotes {
			if err := c.upsert(ctx, quotes[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mirrorPut(ctx, quotes)
	c.logger.Info("报价已刷新", zap.Int("count", len(quotes)))
	return quotes, nil
}

// RefreshAll 刷新当前缓存中的全部代码，缓存为空时直接返回。
func (c *Cache) RefreshAll(ctx context.Context) ([]Quote, error) {
	cached, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(cached) == 0 {
		return nil, nil
	}
	tickers := make([]string, 0, len(cached))
	for _, q := range cached {
		tickers = append(tickers, q.Ticker)
	}
	return c.Refresh(ctx, tickers)
}

// Save 直接写入一条报价，不经过行情源。
func (c *Cache) Save(ctx context.Context, q Quote) error {
	q.Ticker = NormalizeTicker(q.Ticker)
	if q.Ticker == "" {
		return fmt.Errorf("quote: 代码不能为空")
	}
	if q.LastPrice.IsNegative() || q.BidPrice.IsNegative() || q.AskPrice.IsNegative() {
		return fmt.Errorf("quote: 价格不能为负: %s", q.Ticker)
	}
	if q.BidSize < 0 || q.AskSize < 0 {
		return fmt.Errorf("quote: 挂单量不能为负: %s", q.Ticker)
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = c.now().UTC()
	}

	if err := c.upsert(ctx, q); err != nil {
		return err
	}
	if !store.InTx(ctx) {
		c.mirrorPut(ctx, []Quote{q})
	}
	return nil
}

func (c *Cache) upsert(ctx context.Context, q Quote) error {
	_, err := c.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO quote (ticker, last_price, bid_price, bid_size, ask_price, ask_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			last_price = excluded.last_price,
			bid_price = excluded.bid_price,
			bid_size = excluded.bid_size,
			ask_price = excluded.ask_price,
			ask_size = excluded.ask_size,
			updated_at = excluded.updated_at
	`, q.Ticker, q.LastPrice, q.BidPrice, q.BidSize, q.AskPrice, q.AskSize, store.FormatTime(q.UpdatedAt))
	return store.Wrap("写入报价", err)
}

func (c *Cache) mirrorPut(ctx context.Context, quotes []Quote) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Put(ctx, quotes); err != nil {
		c.logger.Warn("同步报价镜像失败", zap.Int("count", len(quotes)), zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (*Quote, error) {
	var (
		q         Quote
		updatedAt string
	)
	if err := row.Scan(&q.Ticker, &q.LastPrice, &q.BidPrice, &q.BidSize, &q.AskPrice, &q.AskSize, &updatedAt); err != nil {
		return nil, err
	}
	q.UpdatedAt = store.ParseTime(updatedAt)
	return &q, nil
}
