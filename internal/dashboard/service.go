// Package dashboard 组合交易员、账户、持仓与报价，提供只读视图。
package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trading-ledger/internal/account"
	"trading-ledger/internal/position"
	"trading-ledger/internal/quote"
	"trading-ledger/internal/store"
	"trading-ledger/internal/trader"
)

type traderFinder interface {
	FindTrader(ctx context.Context, traderID int64) (*trader.Trader, error)
}

type accountFinder interface {
	FindByTrader(ctx context.Context, traderID int64) (*account.Account, error)
}

type positionLister interface {
	List(ctx context.Context, accountID int64) ([]position.Position, error)
}

type quoteReader interface {
	Get(ctx context.Context, ticker string) (*quote.Quote, error)
}

// PortfolioView 为按最新价估值的账户组合。
type PortfolioView struct {
	TraderID   int64              `json:"traderId"`
	Account    account.Account    `json:"account"`
	Positions  []position.Summary `json:"positions"`
	TotalValue decimal.Decimal    `json:"totalValue"`
}

// Service 提供看板查询。
type Service struct {
	traders   traderFinder
	accounts  accountFinder
	positions positionLister
	quotes    quoteReader
	logger    *zap.Logger
}

// NewService 创建看板服务。
func NewService(traders traderFinder, accounts accountFinder, positions positionLister, quotes quoteReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		traders:   traders,
		accounts:  accounts,
		positions: positions,
		quotes:    quotes,
		logger:    logger,
	}
}

// TraderAccount 并发加载交易员与账户。
func (s *Service) TraderAccount(ctx context.Context, traderID int64) (*trader.TraderAccountView, error) {
	var (
		t    *trader.Trader
		acct *account.Account
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		t, err = s.traders.FindTrader(groupCtx, traderID)
		return err
	})
	group.Go(func() error {
		var err error
		acct, err = s.accounts.FindByTrader(groupCtx, traderID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if t == nil || acct == nil {
		return nil, fmt.Errorf("%w: %d", trader.ErrTraderNotFound, traderID)
	}
	return &trader.TraderAccountView{Trader: *t, Account: *acct}, nil
}

// Portfolio 返回账户持仓及其市值。持仓对应的报价缺失时视为数据错误。
func (s *Service) Portfolio(ctx context.Context, traderID int64) (*PortfolioView, error) {
	acct, err := s.accounts.FindByTrader(ctx, traderID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %d", trader.ErrTraderNotFound, traderID)
	}

	positions, err := s.positions.List(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]position.Summary, len(positions))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, p := range positions {
		group.Go(func() error {
			q, err := s.quotes.Get(groupCtx, p.Ticker)
			if err != nil {
				return err
			}
			if q == nil {
				return store.Wrap("查询持仓报价", fmt.Errorf("%s 无缓存报价", p.Ticker))
			}
			summaries[i] = position.Summarize(p, q.LastPrice)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		s.logger.Warn("组合估值失败", zap.Int64("trader_id", traderID), zap.Error(err))
		return nil, err
	}

	total := acct.Balance
	for _, sum := range summaries {
		total = total.Add(sum.MarketValue)
	}

	return &PortfolioView{
		TraderID:   traderID,
		Account:    *acct,
		Positions:  summaries,
		TotalValue: total,
	}, nil
}
