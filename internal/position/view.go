// Package position 从订单流水推导净持仓，不单独存储。
package position

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"trading-ledger/internal/store"
)

// Position 为账户在单个代码上的净持仓，即全部已成交订单数量之和。
type Position struct {
	AccountID int64  `json:"accountId"`
	Ticker    string `json:"ticker"`
	Position  int64  `json:"position"`
}

// View 基于 position 视图查询净持仓。
type View struct {
	db     *store.Store
	logger *zap.Logger
}

// NewView 创建持仓视图。
func NewView(db *store.Store, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{db: db, logger: logger}
}

// NetPosition 返回账户在代码上的净持仓，没有成交记录时为 0。
func (v *View) NetPosition(ctx context.Context, accountID int64, ticker string) (int64, error) {
	var pos int64
	err := v.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT position FROM position WHERE account_id = ? AND ticker = ?`,
		accountID, ticker,
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, store.Wrap("查询持仓", err)
	}
	return pos, nil
}

// AllPositions 返回账户全部成交过的代码及其净持仓，含已归零的代码。
func (v *View) AllPositions(ctx context.Context, accountID int64) (map[string]int64, error) {
	list, err := v.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(list))
	for _, p := range list {
		out[p.Ticker] = p.Position
	}
	return out, nil
}

// List 按代码顺序返回账户持仓。
func (v *View) List(ctx context.Context, accountID int64) ([]Position, error) {
	rows, err := v.db.Conn(ctx).QueryContext(ctx,
		`SELECT account_id, ticker, position FROM position WHERE account_id = ? ORDER BY ticker`,
		accountID,
	)
	if err != nil {
		return nil, store.Wrap("查询持仓列表", err)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.AccountID, &p.Ticker, &p.Position); err != nil {
			return nil, store.Wrap("查询持仓列表", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("查询持仓列表", err)
	}
	return positions, nil
}
