package marketdata

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-ledger/internal/config"
	"trading-ledger/internal/quote"
)

type tickerClient interface {
	FetchTickers(options ...ccxt.FetchTickersOptions) (ccxt.Tickers, error)
}

// ExchangeFetcher 通过 ccxt 从交易所读取最优买卖价。
type ExchangeFetcher struct {
	client tickerClient
	name   string
	logger *zap.Logger
	now    func() time.Time
}

var _ quote.Fetcher = (*ExchangeFetcher)(nil)

// NewExchangeFetcher 按名称构造交易所客户端，目前支持 binance 与 binanceusdm。
func NewExchangeFetcher(cfg config.ExchangeConfig, logger *zap.Logger) (*ExchangeFetcher, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	name := strings.ToLower(cfg.Name)
	var client tickerClient
	switch name {
	case "binanceusdm":
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		client = ex
	case "binance":
		ex := ccxt.NewBinance(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		client = ex
	default:
		return nil, fmt.Errorf("marketdata: 不支持的交易所 %q", cfg.Name)
	}

	return newExchangeFetcher(client, name, logger), nil
}

func newExchangeFetcher(client tickerClient, name string, logger *zap.Logger) *ExchangeFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeFetcher{
		client: client,
		name:   name,
		logger: logger,
		now:    time.Now,
	}
}

// FetchQuotes 一次性拉取全部代码的 ticker，任一代码缺失即整体失败。
func (f *ExchangeFetcher) FetchQuotes(ctx context.Context, tickers []string) (map[string]quote.Quote, error) {
	tickers = quote.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, quote.ErrEmptyTickers
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyError(err)
	}

	start := time.Now()
	raw, err := f.client.FetchTickers(ccxt.WithFetchTickersSymbols(tickers))
	if err != nil {
		classified := classifyError(err)
		f.logger.Error("交易所行情拉取失败",
			zap.String("exchange", f.name),
			zap.Strings("tickers", tickers),
			zap.Duration("latency", time.Since(start)),
			zap.Bool("transient", IsTransient(err)),
			zap.Error(classified),
		)
		return nil, classified
	}

	out := make(map[string]quote.Quote, len(tickers))
	for _, t := range tickers {
		item, ok := raw.Tickers[t]
		if !ok {
			return nil, fmt.Errorf("%w: %s", quote.ErrUnknownTicker, t)
		}
		out[t] = f.convertTicker(t, item)
	}

	f.logger.Debug("交易所行情拉取完成",
		zap.String("exchange", f.name),
		zap.Int("count", len(out)),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}

func (f *ExchangeFetcher) convertTicker(symbol string, t ccxt.Ticker) quote.Quote {
	q := quote.Quote{
		Ticker:    symbol,
		LastPrice: decimalOrZero(t.Last),
		BidPrice:  decimalOrZero(t.Bid),
		BidSize:   sizeOrZero(t.BidVolume),
		AskPrice:  decimalOrZero(t.Ask),
		AskSize:   sizeOrZero(t.AskVolume),
	}
	if t.Timestamp != nil {
		q.UpdatedAt = time.UnixMilli(*t.Timestamp).UTC()
	} else {
		q.UpdatedAt = f.now().UTC()
	}
	return q
}

func decimalOrZero(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

// 挂单量为整数股数，交易所的小数数量按四舍五入处理。
func sizeOrZero(v *float64) int64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return int64(math.Round(*v))
}
