// Package account 维护交易员的现金账户。
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-ledger/internal/store"
)

// ErrNegativeBalance 表示试图提交负余额。
var ErrNegativeBalance = errors.New("account: 余额不能为负")

// Account 为交易员唯一的现金账户。
type Account struct {
	ID       int64           `json:"id"`
	TraderID int64           `json:"traderId"`
	Balance  decimal.Decimal `json:"amount"`
}

// Store 负责账户的读取与余额写入。账户删除属于交易员生命周期，不在此提供。
type Store struct {
	db     *store.Store
	logger *zap.Logger
}

// NewStore 创建账户存储。
func NewStore(db *store.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// FindByTrader 按交易员查询账户，不存在时返回 nil。
func (s *Store) FindByTrader(ctx context.Context, traderID int64) (*Account, error) {
	return s.findOne(ctx, "按交易员查询账户", `SELECT id, trader_id, amount FROM account WHERE trader_id = ?`, traderID)
}

// FindByID 按账户 ID 查询账户，不存在时返回 nil。
func (s *Store) FindByID(ctx context.Context, id int64) (*Account, error) {
	return s.findOne(ctx, "查询账户", `SELECT id, trader_id, amount FROM account WHERE id = ?`, id)
}

func (s *Store) findOne(ctx context.Context, op, query string, arg int64) (*Account, error) {
	var acct Account
	err := s.db.Conn(ctx).QueryRowContext(ctx, query, arg).Scan(&acct.ID, &acct.TraderID, &acct.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("账户不存在", zap.String("op", op), zap.Int64("key", arg))
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	return &acct, nil
}

// Save 按 ID 是否存在决定插入或更新；插入时回填 ID，更新时只覆盖余额。
func (s *Store) Save(ctx context.Context, acct *Account) error {
	if acct == nil {
		return errors.New("account: 账户不能为空")
	}
	if acct.Balance.IsNegative() {
		return fmt.Errorf("%w: account=%d balance=%s", ErrNegativeBalance, acct.ID, acct.Balance)
	}

	conn := s.db.Conn(ctx)

	if acct.ID == 0 {
		res, err := conn.ExecContext(ctx,
			`INSERT INTO account (trader_id, amount) VALUES (?, ?)`,
			acct.TraderID, acct.Balance,
		)
		if err != nil {
			return store.Wrap("新增账户", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return store.Wrap("新增账户", err)
		}
		acct.ID = id
		return nil
	}

	res, err := conn.ExecContext(ctx, `UPDATE account SET amount = ? WHERE id = ?`, acct.Balance, acct.ID)
	if err != nil {
		return store.Wrap("更新账户余额", err)
	}
	return store.ExpectOneRow("更新账户余额", res)
}
