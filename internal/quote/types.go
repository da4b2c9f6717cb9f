// Package quote 维护最近一次行情快照的本地缓存。
package quote

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyTickers 表示刷新请求未携带任何代码。
	ErrEmptyTickers = errors.New("quote: 代码列表为空")
	// ErrUnknownTicker 表示行情源未返回请求的代码。
	ErrUnknownTicker = errors.New("quote: 未知代码")
	// ErrUpstreamUnavailable 表示行情源不可用或返回异常。
	ErrUpstreamUnavailable = errors.New("quote: 行情源不可用")
)

// Quote 为单个代码的最新行情快照。
type Quote struct {
	Ticker    string          `json:"ticker"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	BidPrice  decimal.Decimal `json:"bidPrice"`
	BidSize   int64           `json:"bidSize"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	AskSize   int64           `json:"askSize"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Fetcher 为外部行情源。
//
// 实现须对每个请求的代码返回报价，缺失时返回 ErrUnknownTicker，
// 网络或上游异常返回 ErrUpstreamUnavailable，空列表返回 ErrEmptyTickers。
// 上游返回 404 时允许返回空结果。
type Fetcher interface {
	FetchQuotes(ctx context.Context, tickers []string) (map[string]Quote, error)
}

// NormalizeTicker 去除空白并转为大写。
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeTickers 规范化并去重，保留首次出现的顺序，忽略空代码。
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		t := NormalizeTicker(raw)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
