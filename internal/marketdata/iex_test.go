package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-ledger/internal/config"
	"trading-ledger/internal/quote"
)

const aaplMsftBody = `{
	"AAPL": {"quote": {"symbol": "AAPL", "latestPrice": 150.12, "iexBidPrice": 150.1, "iexBidSize": 100, "iexAskPrice": 150.2, "iexAskSize": 200}},
	"MSFT": {"quote": {"symbol": "MSFT", "latestPrice": 300, "iexBidPrice": null, "iexBidSize": null, "iexAskPrice": 301.5, "iexAskSize": 5}}
}`

func newTestFetcher(t *testing.T, handler http.HandlerFunc, batchSize int) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPFetcher(config.IEXConfig{
		Host:      srv.URL,
		Token:     "secret",
		Timeout:   5 * time.Second,
		BatchSize: batchSize,
	}, nil)
}

func TestHTTPFetcher_FetchQuotes(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/market/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("types") != "quote" || q.Get("token") != "secret" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("symbols") != "AAPL,MSFT" {
			t.Errorf("unexpected symbols %q", q.Get("symbols"))
		}
		_, _ = w.Write([]byte(aaplMsftBody))
	}, 100)

	quotes, err := f.FetchQuotes(context.Background(), []string{"aapl", "MSFT"})
	if err != nil {
		t.Fatalf("FetchQuotes returned error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}

	aapl := quotes["AAPL"]
	if !aapl.AskPrice.Equal(decimal.RequireFromString("150.2")) || !aapl.BidPrice.Equal(decimal.RequireFromString("150.1")) {
		t.Errorf("unexpected AAPL prices: %+v", aapl)
	}
	if aapl.BidSize != 100 || aapl.AskSize != 200 {
		t.Errorf("unexpected AAPL sizes: %+v", aapl)
	}
	if !aapl.LastPrice.Equal(decimal.RequireFromString("150.12")) {
		t.Errorf("unexpected AAPL last price: %s", aapl.LastPrice)
	}

	msft := quotes["MSFT"]
	if !msft.BidPrice.IsZero() || msft.BidSize != 0 {
		t.Errorf("expected null bid to map to zero, got %+v", msft)
	}
	if msft.UpdatedAt.IsZero() {
		t.Errorf("expected updatedAt to be set")
	}
}

func TestHTTPFetcher_MissingTickerFailsBatch(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(aaplMsftBody))
	}, 100)

	quotes, err := f.FetchQuotes(context.Background(), []string{"AAPL", "NOPE"})
	if !errors.Is(err, quote.ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}
	if quotes != nil {
		t.Fatalf("expected no partial result, got %v", quotes)
	}
}

func TestHTTPFetcher_NotFoundIsEmpty(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, 100)

	quotes, err := f.FetchQuotes(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("expected 404 to map to empty result, got %v", err)
	}
	if len(quotes) != 0 {
		t.Fatalf("expected empty result, got %v", quotes)
	}
}

func TestHTTPFetcher_ServerErrorIsUpstreamUnavailable(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}, 100)

	_, err := f.FetchQuotes(context.Background(), []string{"AAPL"})
	if !errors.Is(err, quote.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if errors.Is(err, quote.ErrUnknownTicker) {
		t.Fatalf("upstream failure must be distinct from unknown ticker")
	}
}

func TestHTTPFetcher_NetworkErrorIsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	host := srv.URL
	srv.Close()

	f := NewHTTPFetcher(config.IEXConfig{Host: host, Timeout: time.Second, BatchSize: 10}, nil)
	if _, err := f.FetchQuotes(context.Background(), []string{"AAPL"}); !errors.Is(err, quote.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestHTTPFetcher_MalformedBody(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}, 100)

	if _, err := f.FetchQuotes(context.Background(), []string{"AAPL"}); !errors.Is(err, quote.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestHTTPFetcher_SplitsIntoBatches(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
		if len(symbols) > 2 {
			t.Errorf("batch too large: %v", symbols)
		}
		var parts []string
		for _, s := range symbols {
			parts = append(parts, `"`+s+`": {"quote": {"symbol": "`+s+`", "latestPrice": 1, "iexBidPrice": 1, "iexAskPrice": 2}}`)
		}
		_, _ = w.Write([]byte("{" + strings.Join(parts, ",") + "}"))
	}, 2)

	quotes, err := f.FetchQuotes(context.Background(), []string{"A", "B", "C", "D", "E"})
	if err != nil {
		t.Fatalf("FetchQuotes returned error: %v", err)
	}
	if len(quotes) != 5 {
		t.Fatalf("expected 5 quotes, got %d", len(quotes))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 batch requests, got %d", got)
	}
}

func TestHTTPFetcher_EmptyTickers(t *testing.T) {
	f := NewHTTPFetcher(config.IEXConfig{Host: "http://127.0.0.1:1"}, nil)

	if _, err := f.FetchQuotes(context.Background(), nil); !errors.Is(err, quote.ErrEmptyTickers) {
		t.Fatalf("expected ErrEmptyTickers, got %v", err)
	}
}
