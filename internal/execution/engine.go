// Package execution 结算市价单：按报价定价，校验资金或持仓，在同一事务中更新余额并写入订单。
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-ledger/internal/account"
	"trading-ledger/internal/notify"
	"trading-ledger/internal/order"
	"trading-ledger/internal/quote"
	"trading-ledger/internal/store"
)

type transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type accountStore interface {
	FindByID(ctx context.Context, id int64) (*account.Account, error)
	Save(ctx context.Context, acct *account.Account) error
}

type quoteReader interface {
	Get(ctx context.Context, ticker string) (*quote.Quote, error)
}

type positionReader interface {
	NetPosition(ctx context.Context, accountID int64, ticker string) (int64, error)
}

type orderAppender interface {
	Append(ctx context.Context, o *order.SecurityOrder) error
}

type settlementRecorder interface {
	RecordOrder(ctx context.Context, o order.SecurityOrder, balance decimal.Decimal)
}

// Engine 为市价单结算引擎。
type Engine struct {
	tx        transactor
	accounts  accountStore
	quotes    quoteReader
	positions positionReader
	ledger    orderAppender
	publisher notify.Publisher
	recorder  settlementRecorder
	logger    *zap.Logger
}

// Option 定制 Engine。
type Option func(*Engine)

// WithPublisher 设置结算事件发布器。
func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithRecorder 设置审计记录器。
func WithRecorder(r settlementRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine 创建结算引擎。
func NewEngine(tx transactor, accounts accountStore, quotes quoteReader, positions positionReader, ledger orderAppender, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		tx:        tx,
		accounts:  accounts,
		quotes:    quotes,
		positions: positions,
		ledger:    ledger,
		publisher: notify.NopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type settlement struct {
	order   order.SecurityOrder
	balance decimal.Decimal
}

// ExecuteMarketOrder 结算一笔市价单。
//
// 数量、代码、账户依次校验，任一失败直接返回错误且不写入任何数据。
// 资金或持仓不足不是错误：订单以 CANCELED 落库并正常返回。
// 调用方取消 ctx 不会中断已开始的结算。
func (e *Engine) ExecuteMarketOrder(ctx context.Context, req MarketOrder) (*order.SecurityOrder, error) {
	ctx = context.WithoutCancel(ctx)

	if req.Size == 0 || req.Size > MaxOrderSize || req.Size < -MaxOrderSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrderSize, req.Size)
	}
	ticker := quote.NormalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: 代码为空", ErrInvalidTicker)
	}

	start := time.Now()
	var result settlement
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := e.quotes.Get(ctx, ticker)
		if err != nil {
			return err
		}
		if q == nil {
			return fmt.Errorf("%w: %s", ErrInvalidTicker, ticker)
		}
		price := priceFor(req.Side(), q)
		if !price.IsPositive() {
			return fmt.Errorf("%w: %s 无有效成交价 (side=%s)", ErrInvalidTicker, ticker, req.Side())
		}

		acct, err := e.accounts.FindByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("%w: %d", ErrInvalidAccount, req.AccountID)
		}

		so := order.SecurityOrder{
			AccountID: acct.ID,
			Ticker:    ticker,
			Size:      req.Size,
			Price:     price,
		}

		if req.Side() == SideBuy {
			err = e.settleBuy(ctx, acct, &so)
		} else {
			err = e.settleSell(ctx, acct, &so)
		}
		if err != nil {
			return err
		}

		if err := e.ledger.Append(ctx, &so); err != nil {
			return err
		}

		result = settlement{order: so, balance: acct.Balance}
		return nil
	})
	if err != nil {
		e.logFailure(req, err)
		return nil, err
	}

	e.afterCommit(ctx, result, time.Since(start))
	settled := result.order
	return &settled, nil
}

// 买单按卖一价成交，卖单按买一价成交。
func priceFor(side Side, q *quote.Quote) decimal.Decimal {
	if side == SideBuy {
		return q.AskPrice
	}
	return q.BidPrice
}

func (e *Engine) settleBuy(ctx context.Context, acct *account.Account, so *order.SecurityOrder) error {
	cost := decimal.NewFromInt(so.Size).Mul(so.Price)
	if acct.Balance.LessThan(cost) {
		so.Status = order.StatusCanceled
		so.Notes = fmt.Sprintf("资金不足: 订单金额 %s，账户余额 %s，缺口 %s",
			cost.StringFixed(2), acct.Balance.StringFixed(2), cost.Sub(acct.Balance).StringFixed(2))
		return nil
	}

	acct.Balance = acct.Balance.Sub(cost)
	if err := e.accounts.Save(ctx, acct); err != nil {
		return err
	}
	so.Status = order.StatusFilled
	return nil
}

func (e *Engine) settleSell(ctx context.Context, acct *account.Account, so *order.SecurityOrder) error {
	held, err := e.positions.NetPosition(ctx, acct.ID, so.Ticker)
	if err != nil {
		return err
	}
	e.logger.Debug("持仓校验",
		zap.Int64("account_id", acct.ID),
		zap.String("ticker", so.Ticker),
		zap.Int64("position", held),
		zap.Int64("size", so.Size),
	)

	if held+so.Size < 0 {
		so.Status = order.StatusCanceled
		so.Notes = fmt.Sprintf("持仓不足: 当前持仓 %d，卖出数量 %d", held, -so.Size)
		return nil
	}

	credit := decimal.NewFromInt(-so.Size).Mul(so.Price)
	acct.Balance = acct.Balance.Add(credit)
	if err := e.accounts.Save(ctx, acct); err != nil {
		return err
	}
	so.Status = order.StatusFilled
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, s settlement, latency time.Duration) {
	e.logger.Info("订单已结算",
		zap.Int64("order_id", s.order.ID),
		zap.Int64("account_id", s.order.AccountID),
		zap.String("ticker", s.order.Ticker),
		zap.Int64("size", s.order.Size),
		zap.String("price", s.order.Price.String()),
		zap.String("status", string(s.order.Status)),
		zap.String("balance", s.balance.String()),
		zap.Duration("latency", latency),
	)

	if err := e.publisher.PublishOrder(ctx, s.order); err != nil {
		e.logger.Warn("结算事件发布失败", zap.Int64("order_id", s.order.ID), zap.Error(err))
	}
	if e.recorder != nil {
		e.recorder.RecordOrder(ctx, s.order, s.balance)
	}
}

func (e *Engine) logFailure(req MarketOrder, err error) {
	fields := []zap.Field{
		zap.Int64("account_id", req.AccountID),
		zap.String("ticker", req.Ticker),
		zap.Int64("size", req.Size),
		zap.Error(err),
	}
	if errors.Is(err, store.ErrDataAccess) {
		e.logger.Error("订单结算失败", fields...)
		return
	}
	e.logger.Info("订单被拒绝", fields...)
}

// IsRejection 判断错误是否为调用方可修正的结构性错误。
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidOrderSize) ||
		errors.Is(err, ErrInvalidTicker) ||
		errors.Is(err, ErrInvalidAccount)
}
