package store

import (
	"context"
	"database/sql"
)

type txKey struct{}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// InTx 判断上下文是否已处于事务中。
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// WithTx 在单个事务中执行 fn，fn 返回错误或 panic 时回滚。
// 上下文已携带事务时直接复用，不会嵌套开启。
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap("开启事务", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return Wrap("提交事务", err)
	}

	return nil
}
