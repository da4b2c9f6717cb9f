// Package trader 管理交易员与其账户的生命周期：开户、出入金与销户。
package trader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trading-ledger/internal/account"
	"trading-ledger/internal/monitor"
	"trading-ledger/internal/store"
)

var (
	ErrInvalidTrader     = errors.New("trader: 交易员信息不合法")
	ErrInvalidAmount     = errors.New("trader: 金额必须大于 0")
	ErrInsufficientFunds = errors.New("trader: 余额不足")
	ErrOpenPosition      = errors.New("trader: 仍有未平持仓")
	ErrNonZeroBalance    = errors.New("trader: 账户余额不为 0")
	ErrTraderNotFound    = errors.New("trader: 交易员不存在")
)

const dobLayout = "2006-01-02"

// Trader 为交易员资料。
type Trader struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	DOB       time.Time `json:"dob"`
	Country   string    `json:"country"`
	Email     string    `json:"email"`
}

// Validate 汇总全部缺失字段。
func (t Trader) Validate() error {
	var err error
	if t.ID != 0 {
		err = multierr.Append(err, errors.New("id 必须为空"))
	}
	if strings.TrimSpace(t.FirstName) == "" {
		err = multierr.Append(err, errors.New("firstName 不能为空"))
	}
	if strings.TrimSpace(t.LastName) == "" {
		err = multierr.Append(err, errors.New("lastName 不能为空"))
	}
	if t.DOB.IsZero() {
		err = multierr.Append(err, errors.New("dob 不能为空"))
	}
	if strings.TrimSpace(t.Country) == "" {
		err = multierr.Append(err, errors.New("country 不能为空"))
	}
	if strings.TrimSpace(t.Email) == "" {
		err = multierr.Append(err, errors.New("email 不能为空"))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrader, err)
	}
	return nil
}

// TraderAccountView 为交易员及其账户。
type TraderAccountView struct {
	Trader  Trader          `json:"trader"`
	Account account.Account `json:"account"`
}

type positionLister interface {
	AllPositions(ctx context.Context, accountID int64) (map[string]int64, error)
}

type eventRecorder interface {
	RecordAccount(ctx context.Context, payload monitor.AccountPayload)
}

// Service 实现交易员生命周期操作。
type Service struct {
	db        *store.Store
	accounts  *account.Store
	positions positionLister
	recorder  eventRecorder
	logger    *zap.Logger
}

// NewService 创建交易员服务，recorder 可为空。
func NewService(db *store.Store, accounts *account.Store, positions positionLister, recorder eventRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        db,
		accounts:  accounts,
		positions: positions,
		recorder:  recorder,
		logger:    logger,
	}
}

// CreateTraderAndAccount 在同一事务中创建交易员与零余额账户。
func (s *Service) CreateTraderAndAccount(ctx context.Context, t Trader) (*TraderAccountView, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var view TraderAccountView
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.db.Conn(ctx).ExecContext(ctx,
			`INSERT INTO trader (first_name, last_name, dob, country, email) VALUES (?, ?, ?, ?, ?)`,
			t.FirstName, t.LastName, t.DOB.Format(dobLayout), t.Country, t.Email,
		)
		if err != nil {
			return store.Wrap("新增交易员", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return store.Wrap("新增交易员", err)
		}
		t.ID = id

		acct := &account.Account{TraderID: id, Balance: decimal.Zero}
		if err := s.accounts.Save(ctx, acct); err != nil {
			return err
		}

		view = TraderAccountView{Trader: t, Account: *acct}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("交易员开户成功", zap.Int64("trader_id", view.Trader.ID), zap.Int64("account_id", view.Account.ID))
	s.record(ctx, monitor.AccountPayload{Action: "open", TraderID: view.Trader.ID, AccountID: view.Account.ID})
	return &view, nil
}

// FindTrader 查询交易员，不存在时返回 nil。
func (s *Service) FindTrader(ctx context.Context, traderID int64) (*Trader, error) {
	var (
		t   Trader
		dob string
	)
	err := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT id, first_name, last_name, dob, country, email FROM trader WHERE id = ?`, traderID,
	).Scan(&t.ID, &t.FirstName, &t.LastName, &dob, &t.Country, &t.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("查询交易员", err)
	}
	t.DOB, _ = time.Parse(dobLayout, dob)
	return &t, nil
}

// Deposit 入金。
func (s *Service) Deposit(ctx context.Context, traderID int64, amount decimal.Decimal) (*account.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.adjust(ctx, "deposit", traderID, amount, amount)
}

// Withdraw 出金，余额不足时拒绝。
func (s *Service) Withdraw(ctx context.Context, traderID int64, amount decimal.Decimal) (*account.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.adjust(ctx, "withdraw", traderID, amount, amount.Neg())
}

func (s *Service) adjust(ctx context.Context, action string, traderID int64, amount, delta decimal.Decimal) (*account.Account, error) {
	var updated account.Account
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		acct, err := s.accounts.FindByTrader(ctx, traderID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("%w: %d", ErrTraderNotFound, traderID)
		}

		next := acct.Balance.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("%w: 余额 %s，出金 %s", ErrInsufficientFunds, acct.Balance.StringFixed(2), amount.StringFixed(2))
		}
		acct.Balance = next
		if err := s.accounts.Save(ctx, acct); err != nil {
			return err
		}
		updated = *acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("账户资金变动",
		zap.String("action", action),
		zap.Int64("trader_id", traderID),
		zap.String("amount", amount.String()),
		zap.String("balance", updated.Balance.String()),
	)
	s.record(ctx, monitor.AccountPayload{
		Action:    action,
		TraderID:  traderID,
		AccountID: updated.ID,
		Amount:    amount,
		Balance:   updated.Balance,
	})
	return &updated, nil
}

// DeleteTrader 在余额为 0 且全部持仓归零时删除交易员、账户及其订单。
func (s *Service) DeleteTrader(ctx context.Context, traderID int64) error {
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.FindTrader(ctx, traderID)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: %d", ErrTraderNotFound, traderID)
		}

		acct, err := s.accounts.FindByTrader(ctx, traderID)
		if err != nil {
			return err
		}

		conn := s.db.Conn(ctx)
		if acct != nil {
			if !acct.Balance.IsZero() {
				return fmt.Errorf("%w: %s", ErrNonZeroBalance, acct.Balance.StringFixed(2))
			}
			positions, err := s.positions.AllPositions(ctx, acct.ID)
			if err != nil {
				return err
			}
			for ticker, pos := range positions {
				if pos != 0 {
					return fmt.Errorf("%w: %s=%d", ErrOpenPosition, ticker, pos)
				}
			}

			if _, err := conn.ExecContext(ctx, `DELETE FROM security_order WHERE account_id = ?`, acct.ID); err != nil {
				return store.Wrap("删除订单", err)
			}
			res, err := conn.ExecContext(ctx, `DELETE FROM account WHERE id = ?`, acct.ID)
			if err != nil {
				return store.Wrap("删除账户", err)
			}
			if err := store.ExpectOneRow("删除账户", res); err != nil {
				return err
			}
		}

		res, err := conn.ExecContext(ctx, `DELETE FROM trader WHERE id = ?`, traderID)
		if err != nil {
			return store.Wrap("删除交易员", err)
		}
		return store.ExpectOneRow("删除交易员", res)
	})
	if err != nil {
		return err
	}

	s.logger.Info("交易员已销户", zap.Int64("trader_id", traderID))
	s.record(ctx, monitor.AccountPayload{Action: "close", TraderID: traderID})
	return nil
}

func (s *Service) record(ctx context.Context, payload monitor.AccountPayload) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordAccount(ctx, payload)
}
