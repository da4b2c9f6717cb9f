package order

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"trading-ledger/internal/store"
	"trading-ledger/internal/store/storetest"
)

func seedAccount(t *testing.T, db *store.Store) int64 {
	t.Helper()
	stmts := []string{
		`INSERT INTO trader (id, first_name, last_name, dob, country, email) VALUES (1, 'A', 'B', '1990-01-01', 'CA', 'a@b.c')`,
		`INSERT INTO account (id, trader_id, amount) VALUES (1, 1, '0')`,
		`INSERT INTO quote (ticker, last_price, bid_price, bid_size, ask_price, ask_size, updated_at)
			VALUES ('AAPL', '150', '149', 10, '150', 10, '2024-01-01T00:00:00Z')`,
	}
	for _, stmt := range stmts {
		if _, err := db.DB().Exec(stmt); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return 1
}

func TestLedger_AppendAndFind(t *testing.T) {
	db := storetest.New(t)
	accountID := seedAccount(t, db)
	l := NewLedger(db, nil)
	ctx := context.Background()

	first := &SecurityOrder{AccountID: accountID, Ticker: "AAPL", Size: 10, Price: decimal.NewFromInt(150), Status: StatusFilled}
	second := &SecurityOrder{AccountID: accountID, Ticker: "AAPL", Size: -20, Price: decimal.NewFromInt(149), Status: StatusCanceled, Notes: "持仓不足"}

	for _, o := range []*SecurityOrder{first, second} {
		if err := l.Append(ctx, o); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
		if o.ID == 0 || o.CreatedAt.IsZero() {
			t.Fatalf("expected id and createdAt to be assigned: %+v", o)
		}
	}

	orders, err := l.FindByAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("FindByAccount returned error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != first.ID || orders[1].ID != second.ID {
		t.Fatalf("orders not in creation order: %+v", orders)
	}
	if orders[1].Status != StatusCanceled || orders[1].Notes != "持仓不足" || orders[1].Size != -20 {
		t.Errorf("unexpected second order: %+v", orders[1])
	}
	if !orders[0].Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected price %s", orders[0].Price)
	}
}

func TestLedger_FindByAccountEmpty(t *testing.T) {
	l := NewLedger(storetest.New(t), nil)

	orders, err := l.FindByAccount(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", orders)
	}
}

func TestLedger_AppendRejectsInvalid(t *testing.T) {
	db := storetest.New(t)
	accountID := seedAccount(t, db)
	l := NewLedger(db, nil)
	ctx := context.Background()

	cases := map[string]*SecurityOrder{
		"existing id": {ID: 5, AccountID: accountID, Ticker: "AAPL", Size: 1, Status: StatusFilled},
		"bad status":  {AccountID: accountID, Ticker: "AAPL", Size: 1, Status: "NEW"},
		"zero size":   {AccountID: accountID, Ticker: "AAPL", Status: StatusFilled},
	}
	for name, o := range cases {
		if err := l.Append(ctx, o); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if err := l.Append(ctx, cases["existing id"]); !errors.Is(err, ErrImmutable) {
		t.Errorf("expected ErrImmutable, got %v", err)
	}
}

func TestLedger_AppendRollsBackWithTx(t *testing.T) {
	db := storetest.New(t)
	accountID := seedAccount(t, db)
	l := NewLedger(db, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(ctx context.Context) error {
		if err := l.Append(ctx, &SecurityOrder{AccountID: accountID, Ticker: "AAPL", Size: 1, Price: decimal.NewFromInt(150), Status: StatusFilled}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	orders, err := l.FindByAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("FindByAccount returned error: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected rollback to discard the order, got %d", len(orders))
	}
}
