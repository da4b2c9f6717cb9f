// Package marketdata 实现 quote.Fetcher，对接 IEX 风格的批量行情接口与 ccxt 交易所。
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trading-ledger/internal/config"
	"trading-ledger/internal/quote"
)

const (
	batchPath        = "/stock/market/batch"
	maxResponseBytes = 8 << 20
	maxInflight      = 4
)

type iexQuote struct {
	Symbol      string           `json:"symbol"`
	LatestPrice *decimal.Decimal `json:"latestPrice"`
	IEXBidPrice *decimal.Decimal `json:"iexBidPrice"`
	IEXBidSize  *int64           `json:"iexBidSize"`
	IEXAskPrice *decimal.Decimal `json:"iexAskPrice"`
	IEXAskSize  *int64           `json:"iexAskSize"`
}

type batchEntry struct {
	Quote *iexQuote `json:"quote"`
}

// HTTPFetcher 调用 IEX 的 /stock/market/batch 接口，按批次并发请求。
type HTTPFetcher struct {
	client    *http.Client
	host      string
	token     string
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

var _ quote.Fetcher = (*HTTPFetcher)(nil)

// HTTPOption 定制 HTTPFetcher。
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher 创建 IEX 行情源。
func NewHTTPFetcher(cfg config.IEXConfig, logger *zap.Logger, opts ...HTTPOption) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	f := &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		host:      strings.TrimRight(cfg.Host, "/"),
		token:     cfg.Token,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchQuotes 分批拉取报价。任一批次失败则整体失败，不返回部分结果。
// 上游对某批次返回 404 时该批次视为空结果。
func (f *HTTPFetcher) FetchQuotes(ctx context.Context, tickers []string) (map[string]quote.Quote, error) {
	tickers = quote.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, quote.ErrEmptyTickers
	}

	var (
		mu  sync.Mutex
		out = make(map[string]quote.Quote, len(tickers))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxInflight)

	for start := 0; start < len(tickers); start += f.batchSize {
		end := start + f.batchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunk := tickers[start:end]

		group.Go(func() error {
			quotes, err := f.fetchBatch(groupCtx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for k, v := range quotes {
				out[k] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *HTTPFetcher) fetchBatch(ctx context.Context, tickers []string) (map[string]quote.Quote, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(tickers, ","))
	query.Set("types", "quote")
	query.Set("token", f.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.host+batchPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: 构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("行情请求失败", zap.Strings("tickers", tickers), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", quote.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Info("行情源返回 404，按空结果处理", zap.Strings("tickers", tickers))
		return map[string]quote.Quote{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f.logger.Warn("行情源返回异常状态",
			zap.Int("status", resp.StatusCode),
			zap.Strings("tickers", tickers),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: unexpected http status %d", quote.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload map[string]batchEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %w", quote.ErrUpstreamUnavailable, err)
	}

	byUpper := make(map[string]batchEntry, len(payload))
	for k, v := range payload {
		byUpper[strings.ToUpper(k)] = v
	}

	now := f.now().UTC()
	quotes := make(map[string]quote.Quote, len(tickers))
	for _, t := range tickers {
		entry, ok := byUpper[t]
		if !ok || entry.Quote == nil {
			return nil, fmt.Errorf("%w: %s", quote.ErrUnknownTicker, t)
		}
		quotes[t] = entry.Quote.toQuote(t, now)
	}

	f.logger.Debug("行情批次拉取完成",
		zap.Int("count", len(quotes)),
		zap.Duration("latency", time.Since(start)),
	)
	return quotes, nil
}

// 上游缺失的字段按 0 处理。
func (q *iexQuote) toQuote(ticker string, now time.Time) quote.Quote {
	out := quote.Quote{Ticker: ticker, UpdatedAt: now}
	if q.LatestPrice != nil {
		out.LastPrice = *q.LatestPrice
	}
	if q.IEXBidPrice != nil {
		out.BidPrice = *q.IEXBidPrice
	}
	if q.IEXBidSize != nil {
		out.BidSize = *q.IEXBidSize
	}
	if q.IEXAskPrice != nil {
		out.AskPrice = *q.IEXAskPrice
	}
	if q.IEXAskSize != nil {
		out.AskSize = *q.IEXAskSize
	}
	return out
}
