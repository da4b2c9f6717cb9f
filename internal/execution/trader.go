package execution

import (
	"context"

	"trading-ledger/internal/order"
)

// Executor 抽象市价单结算，便于上层替换实现。
type Executor interface {
	ExecuteMarketOrder(ctx context.Context, req MarketOrder) (*order.SecurityOrder, error)
}

var _ Executor = (*Engine)(nil)
