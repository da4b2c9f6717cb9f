// Package order 保存每笔市价单的最终结果，只追加不修改。
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-ledger/internal/store"
)

// Status 为订单终态。
type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
)

// Valid 判断是否为已知终态。
func (s Status) Valid() bool {
	return s == StatusFilled || s == StatusCanceled
}

// SecurityOrder 为一条订单记录。Size 为正表示买入，为负表示卖出。
type SecurityOrder struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"accountId"`
	Ticker    string          `json:"ticker"`
	Size      int64           `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ErrImmutable 表示试图重复写入已存在的订单。
var ErrImmutable = errors.New("order: 订单记录不可修改")

// Ledger 为订单流水，只提供追加与查询。
type Ledger struct {
	db     *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger 创建订单流水。
func NewLedger(db *store.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger, now: time.Now}
}

// Append 追加一条终态订单并回填 ID 与创建时间。
func (l *Ledger) Append(ctx context.Context, o *SecurityOrder) error {
	if o == nil {
		return errors.New("order: 订单不能为空")
	}
	if o.ID != 0 {
		return fmt.Errorf("%w: id=%d", ErrImmutable, o.ID)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order: 非法状态 %q", o.Status)
	}
	if o.Size == 0 {
		return errors.New("order: 数量不能为 0")
	}

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now().UTC()
	}

	res, err := l.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO security_order (account_id, ticker, size, price, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.AccountID, o.Ticker, o.Size, o.Price, string(o.Status), o.Notes, store.FormatTime(createdAt))
	if err != nil {
		return store.Wrap("写入订单", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Wrap("写入订单", err)
	}

	o.ID = id
	o.CreatedAt = createdAt
	l.logger.Debug("订单已记录",
		zap.Int64("order_id", id),
		zap.Int64("account_id", o.AccountID),
		zap.String("ticker", o.Ticker),
		zap.String("status", string(o.Status)),
	)
	return nil
}

// FindByAccount 按创建顺序返回账户的全部订单。
func (l *Ledger) FindByAccount(ctx context.Context, accountID int64) ([]SecurityOrder, error) {
	rows, err := l.db.Conn(ctx).QueryContext(ctx, `
		SELECT id, account_id, ticker, size, price, status, notes, created_at
		FROM security_order
		WHERE account_id = ?
		ORDER BY id ASC
	`, accountID)
	if err != nil {
		return nil, store.Wrap("查询订单", err)
	}
	defer rows.Close()

	orders := make([]SecurityOrder, 0)
	for rows.Next() {
		var (
			o         SecurityOrder
			status    string
			createdAt string
		)
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Ticker, &o.Size, &o.Price, &status, &o.Notes, &createdAt); err != nil {
			return nil, store.Wrap("查询订单", err)
		}
		o.Status = Status(status)
		o.CreatedAt = store.ParseTime(createdAt)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("查询订单", err)
	}
	return orders, nil
}
