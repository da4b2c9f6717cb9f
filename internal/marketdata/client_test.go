package marketdata

import (
	"context"
	"errors"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"

	"trading-ledger/internal/config"
	"trading-ledger/internal/quote"
)

type mockTickerClient struct {
	tickers ccxt.Tickers
	err     error
	calls   int
}

func (m *mockTickerClient) FetchTickers(options ...ccxt.FetchTickersOptions) (ccxt.Tickers, error) {
	m.calls++
	if m.err != nil {
		return ccxt.Tickers{}, m.err
	}
	return m.tickers, nil
}

func ptr[T any](v T) *T {
	return &v
}

func TestExchangeFetcher_ConvertsTickers(t *testing.T) {
	client := &mockTickerClient{tickers: ccxt.Tickers{Tickers: map[string]ccxt.Ticker{
		"BTC/USDT": {
			Symbol:    ptr("BTC/USDT"),
			Timestamp: ptr(int64(1700000000000)),
			Bid:       ptr(100.5),
			BidVolume: ptr(2.4),
			Ask:       ptr(101.25),
			AskVolume: ptr(3.6),
			Last:      ptr(101.0),
		},
	}}}
	f := newExchangeFetcher(client, "binance", nil)

	quotes, err := f.FetchQuotes(context.Background(), []string{"btc/usdt"})
	if err != nil {
		t.Fatalf("FetchQuotes returned error: %v", err)
	}
	q, ok := quotes["BTC/USDT"]
	if !ok {
		t.Fatalf("expected BTC/USDT in result, got %v", quotes)
	}
	if !q.BidPrice.Equal(decimal.RequireFromString("100.5")) || !q.AskPrice.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("unexpected prices: %+v", q)
	}
	if q.BidSize != 2 || q.AskSize != 4 {
		t.Errorf("unexpected sizes: bid=%d ask=%d", q.BidSize, q.AskSize)
	}
	if q.UpdatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("unexpected timestamp: %v", q.UpdatedAt)
	}
}

func TestExchangeFetcher_MissingTicker(t *testing.T) {
	client := &mockTickerClient{tickers: ccxt.Tickers{Tickers: map[string]ccxt.Ticker{}}}
	f := newExchangeFetcher(client, "binance", nil)

	if _, err := f.FetchQuotes(context.Background(), []string{"ETH/USDT"}); !errors.Is(err, quote.ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}
}

func TestExchangeFetcher_ClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"bad symbol", &ccxt.Error{Type: ccxt.BadSymbolErrType, Message: "unknown symbol"}, quote.ErrUnknownTicker},
		{"network", &ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "reset"}, quote.ErrUpstreamUnavailable},
		{"maintenance", &ccxt.Error{Type: ccxt.OnMaintenanceErrType}, quote.ErrUpstreamUnavailable},
		{"plain", errors.New("weird"), quote.ErrUpstreamUnavailable},
	}

	for _, tc := range cases {
		f := newExchangeFetcher(&mockTickerClient{err: tc.err}, "binance", nil)
		_, err := f.FetchQuotes(context.Background(), []string{"BTC/USDT"})
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestExchangeFetcher_EmptyAndCanceled(t *testing.T) {
	client := &mockTickerClient{}
	f := newExchangeFetcher(client, "binance", nil)

	if _, err := f.FetchQuotes(context.Background(), []string{" "}); !errors.Is(err, quote.ErrEmptyTickers) {
		t.Fatalf("expected ErrEmptyTickers, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FetchQuotes(ctx, []string{"BTC/USDT"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("client should not be called, got %d calls", client.calls)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&ccxt.Error{Type: ccxt.RateLimitExceededErrType}) {
		t.Errorf("rate limit should be transient")
	}
	if IsTransient(&ccxt.Error{Type: ccxt.BadSymbolErrType}) {
		t.Errorf("bad symbol should not be transient")
	}
	if IsTransient(nil) {
		t.Errorf("nil should not be transient")
	}
}

func TestNewExchangeFetcher_UnknownExchange(t *testing.T) {
	if _, err := NewExchangeFetcher(configFor("nosuch"), nil); err == nil {
		t.Fatalf("expected error for unsupported exchange")
	}
}

func configFor(name string) config.ExchangeConfig {
	return config.ExchangeConfig{Name: name}
}
