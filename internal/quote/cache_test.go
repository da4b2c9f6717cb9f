package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-ledger/internal/store/storetest"
)

type fakeFetcher struct {
	mu     sync.Mutex
	quotes map[string]Quote
	err    error
	calls  [][]string
}

func (f *fakeFetcher) FetchQuotes(_ context.Context, tickers []string) (map[string]Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), tickers...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]Quote)
	for _, t := range tickers {
		if q, ok := f.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

type fakeMirror struct {
	mu     sync.Mutex
	data   map[string]Quote
	getErr error
	puts   int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{data: make(map[string]Quote)}
}

func (m *fakeMirror) Get(_ context.Context, ticker string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	q, ok := m.data[ticker]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *fakeMirror) Put(_ context.Context, quotes []Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	for _, q := range quotes {
		m.data[q.Ticker] = q
	}
	return nil
}

func mkQuote(ticker, bid, ask string) Quote {
	return Quote{
		Ticker:    ticker,
		LastPrice: decimal.RequireFromString(ask),
		BidPrice:  decimal.RequireFromString(bid),
		BidSize:   100,
		AskPrice:  decimal.RequireFromString(ask),
		AskSize:   200,
	}
}

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestCache_RefreshPersistsAndGetReturns(t *testing.T) {
	fetcher := &fakeFetcher{quotes: map[string]Quote{
		"AAPL": mkQuote("AAPL", "149.5", "150"),
		"MSFT": mkQuote("MSFT", "299", "300"),
	}}
	c := NewCache(storetest.New(t), fetcher, nil, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	got, err := c.Refresh(ctx, []string{" aapl", "MSFT", "AAPL"})
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(got) != 2 || got[0].Ticker != "AAPL" || got[1].Ticker != "MSFT" {
		t.Fatalf("unexpected refresh result: %+v", got)
	}
	if len(fetcher.calls) != 1 || len(fetcher.calls[0]) != 2 {
		t.Fatalf("expected one deduplicated fetch, got %v", fetcher.calls)
	}

	q, err := c.Get(ctx, "aapl")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if q == nil {
		t.Fatalf("expected cached quote")
	}
	if !q.AskPrice.Equal(decimal.RequireFromString("150")) || !q.BidPrice.Equal(decimal.RequireFromString("149.5")) {
		t.Errorf("unexpected prices: %+v", q)
	}
	if !q.UpdatedAt.Equal(fixedNow) {
		t.Errorf("expected updatedAt %v, got %v", fixedNow, q.UpdatedAt)
	}
}

func TestCache_RefreshIsAllOrNothing(t *testing.T) {
	fetcher := &fakeFetcher{quotes: map[string]Quote{
		"AAPL": mkQuote("AAPL", "149.5", "150"),
	}}
	c := NewCache(storetest.New(t), fetcher, nil)
	ctx := context.Background()

	_, err := c.Refresh(ctx, []string{"AAPL", "NOPE"})
	if !errors.Is(err, ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}

	quotes, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(quotes) != 0 {
		t.Fatalf("expected nothing persisted, got %+v", quotes)
	}
}

func TestCache_RefreshPropagatesUpstreamError(t *testing.T) {
	upstream := errors.Join(ErrUpstreamUnavailable, errors.New("connection refused"))
	c := NewCache(storetest.New(t), &fakeFetcher{err: upstream}, nil)

	if _, err := c.Refresh(context.Background(), []string{"AAPL"}); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestCache_RefreshEmpty(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := NewCache(storetest.New(t), fetcher, nil)

	if _, err := c.Refresh(context.Background(), []string{" ", ""}); !errors.Is(err, ErrEmptyTickers) {
		t.Fatalf("expected ErrEmptyTickers, got %v", err)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("fetcher should not be called")
	}
}

func TestCache_RefreshAllOverwritesWholesale(t *testing.T) {
	fetcher := &fakeFetcher{quotes: map[string]Quote{
		"AAPL": mkQuote("AAPL", "149.5", "150"),
		"MSFT": mkQuote("MSFT", "299", "300"),
	}}
	c := NewCache(storetest.New(t), fetcher, nil)
	ctx := context.Background()

	if _, err := c.Refresh(ctx, []string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	fetcher.quotes["AAPL"] = mkQuote("AAPL", "10", "11")
	fetcher.quotes["MSFT"] = mkQuote("MSFT", "20", "21")

	refreshed, err := c.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll returned error: %v", err)
	}
	if len(refreshed) != 2 {
		t.Fatalf("expected 2 refreshed quotes, got %d", len(refreshed))
	}

	q, _ := c.Get(ctx, "MSFT")
	if q == nil || !q.AskPrice.Equal(decimal.NewFromInt(21)) || !q.BidPrice.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected overwritten MSFT quote, got %+v", q)
	}
}

func TestCache_RefreshAllWithEmptyCache(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := NewCache(storetest.New(t), fetcher, nil)

	got, err := c.RefreshAll(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected no-op, got %+v err=%v", got, err)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("fetcher should not be called")
	}
}

func TestCache_GetMissingReturnsNil(t *testing.T) {
	c := NewCache(storetest.New(t), &fakeFetcher{}, nil)

	q, err := c.Get(context.Background(), "ZZZ")
	if err != nil || q != nil {
		t.Fatalf("expected nil,nil got %+v, %v", q, err)
	}
}

func TestCache_MirrorServesReadsOutsideTx(t *testing.T) {
	db := storetest.New(t)
	mirror := newFakeMirror()
	fetcher := &fakeFetcher{quotes: map[string]Quote{"AAPL": mkQuote("AAPL", "1", "2")}}
	c := NewCache(db, fetcher, nil, WithMirror(mirror))
	ctx := context.Background()

	if _, err := c.Refresh(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if mirror.puts != 1 {
		t.Fatalf("expected mirror put after refresh, got %d", mirror.puts)
	}

	// 镜像与数据库不一致时，事务外读镜像，事务内读数据库。
	mirror.data["AAPL"] = mkQuote("AAPL", "5", "6")

	q, err := c.Get(ctx, "AAPL")
	if err != nil || q == nil || !q.AskPrice.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected mirror quote, got %+v err=%v", q, err)
	}

	err = db.WithTx(ctx, func(ctx context.Context) error {
		q, err := c.Get(ctx, "AAPL")
		if err != nil {
			return err
		}
		if q == nil || !q.AskPrice.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected database quote inside tx, got %+v", q)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx returned error: %v", err)
	}
}

func TestCache_MirrorFailureFallsBack(t *testing.T) {
	mirror := newFakeMirror()
	mirror.getErr = errors.New("redis down")
	c := NewCache(storetest.New(t), &fakeFetcher{}, nil, WithMirror(mirror))
	ctx := context.Background()

	if err := c.Save(ctx, mkQuote("IBM", "9", "10")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	q, err := c.Get(ctx, "IBM")
	if err != nil || q == nil {
		t.Fatalf("expected fallback read, got %+v err=%v", q, err)
	}
}

func TestCache_SaveValidates(t *testing.T) {
	c := NewCache(storetest.New(t), &fakeFetcher{}, nil)
	ctx := context.Background()

	if err := c.Save(ctx, Quote{}); err == nil {
		t.Fatalf("expected error for empty ticker")
	}
	if err := c.Save(ctx, mkQuote("IBM", "-1", "10")); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{"aapl", " MSFT ", "", "AAPL", "ibm"})
	want := []string{"AAPL", "MSFT", "IBM"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
