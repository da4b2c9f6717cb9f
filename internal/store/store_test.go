package store_test

import (
	"context"
	"errors"
	"testing"

	"trading-ledger/internal/config"
	"trading-ledger/internal/store"
	"trading-ledger/internal/store/storetest"
)

func countTraders(t *testing.T, s *store.Store) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM trader`).Scan(&n); err != nil {
		t.Fatalf("count traders: %v", err)
	}
	return n
}

func insertTrader(ctx context.Context, s *store.Store) error {
	_, err := s.Conn(ctx).ExecContext(ctx,
		`INSERT INTO trader (first_name, last_name, dob, country, email) VALUES ('a', 'b', '2000-01-01', 'CA', 'a@b.c')`)
	return err
}

func TestWithTx_Commits(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		if !store.InTx(txCtx) {
			t.Fatalf("expected context to carry transaction")
		}
		return insertTrader(txCtx, s)
	})
	if err != nil {
		t.Fatalf("WithTx returned error: %v", err)
	}
	if got := countTraders(t, s); got != 1 {
		t.Fatalf("expected 1 trader, got %d", got)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		if err := insertTrader(txCtx, s); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := countTraders(t, s); got != 0 {
		t.Fatalf("expected rollback, got %d traders", got)
	}
}

func TestWithTx_JoinsOuterTransaction(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(outer context.Context) error {
		if err := s.WithTx(outer, func(inner context.Context) error {
			return insertTrader(inner, s)
		}); err != nil {
			return err
		}
		return errors.New("abort outer")
	})
	if err == nil {
		t.Fatalf("expected outer error")
	}
	if got := countTraders(t, s); got != 0 {
		t.Fatalf("inner write should roll back with outer tx, got %d traders", got)
	}
}

func TestWrap_ExposesSentinels(t *testing.T) {
	cause := errors.New("disk full")
	err := store.Wrap("写入订单", cause)

	if !errors.Is(err, store.ErrDataAccess) {
		t.Errorf("expected ErrDataAccess")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected underlying cause")
	}
	if again := store.Wrap("外层", err); again != err {
		t.Errorf("expected already wrapped error to be returned as is")
	}
	if store.Wrap("noop", nil) != nil {
		t.Errorf("expected nil for nil error")
	}
}

func TestExpectOneRow(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	res, err := s.DB().ExecContext(ctx, `UPDATE trader SET email = 'x' WHERE id = 42`)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	err = store.ExpectOneRow("更新交易员", res)
	if !errors.Is(err, store.ErrUnexpectedRows) || !errors.Is(err, store.ErrDataAccess) {
		t.Fatalf("expected unexpected rows data access error, got %v", err)
	}
}

func TestNewSQLite_InMemory(t *testing.T) {
	s, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	if err := insertTrader(context.Background(), s); err != nil {
		t.Fatalf("insert into in-memory store: %v", err)
	}
	if got := countTraders(t, s); got != 1 {
		t.Fatalf("expected 1 trader, got %d", got)
	}
}
