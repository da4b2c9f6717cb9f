package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trading-ledger/internal/account"
	"trading-ledger/internal/config"
	"trading-ledger/internal/dashboard"
	"trading-ledger/internal/execution"
	"trading-ledger/internal/marketdata"
	"trading-ledger/internal/monitor"
	"trading-ledger/internal/notify"
	"trading-ledger/internal/order"
	"trading-ledger/internal/position"
	"trading-ledger/internal/quote"
	"trading-ledger/internal/store"
	"trading-ledger/internal/trader"
)

// services 持有全部业务组件。
type services struct {
	db        *store.Store
	accounts  *account.Store
	positions *position.View
	ledger    *order.Ledger
	quotes    *quote.Cache
	traders   *trader.Service
	engine    *execution.Engine
	dashboard *dashboard.Service
	monitor   *monitor.Service
	publisher notify.Publisher
	closers   []func() error
}

func buildServices(db *store.Store, fetcher quote.Fetcher, mirror quote.Mirror, publisher notify.Publisher, logger *zap.Logger) (*services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}

	monitorSvc, err := monitor.NewService(db, logger.Named("monitor"))
	if err != nil {
		return nil, fmt.Errorf("初始化审计服务失败: %w", err)
	}

	var cacheOpts []quote.Option
	if mirror != nil {
		cacheOpts = append(cacheOpts, quote.WithMirror(mirror))
	}

	accounts := account.NewStore(db, logger.Named("account"))
	positions := position.NewView(db, logger.Named("position"))
	ledger := order.NewLedger(db, logger.Named("order"))
	quotes := quote.NewCache(db, fetcher, logger.Named("quote"), cacheOpts...)
	traders := trader.NewService(db, accounts, positions, monitorSvc, logger.Named("trader"))

	engine := execution.NewEngine(db, accounts, quotes, positions, ledger, logger.Named("execution"),
		execution.WithPublisher(publisher),
		execution.WithRecorder(monitorSvc),
	)

	return &services{
		db:        db,
		accounts:  accounts,
		positions: positions,
		ledger:    ledger,
		quotes:    quotes,
		traders:   traders,
		engine:    engine,
		dashboard: dashboard.NewService(traders, accounts, positions, quotes, logger.Named("dashboard")),
		monitor:   monitorSvc,
		publisher: publisher,
		closers:   []func() error{publisher.Close},
	}, nil
}

func (s *services) close() error {
	var firstErr error
	for _, fn := range s.closers {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// orchestrator 根据配置组装外部依赖，并驱动定时报价刷新。
type orchestrator struct {
	svc    *services
	logger *zap.Logger
}

func newOrchestrator(cfg *config.Config, logger *zap.Logger, db *store.Store) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher, err := newFetcher(cfg.MarketData, logger.Named("marketdata"))
	if err != nil {
		return nil, err
	}

	var (
		mirror      quote.Mirror
		redisClient *redis.Client
	)
	if cfg.Quote.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Quote.Redis.Addr,
			Password: cfg.Quote.Redis.Password,
			DB:       cfg.Quote.Redis.DB,
		})
		mirror = quote.NewRedisMirror(redisClient, cfg.Quote.Redis.Prefix, cfg.Quote.Redis.TTL)
		logger.Info("已启用 Redis 报价镜像", zap.String("addr", cfg.Quote.Redis.Addr))
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.Notify.Kafka.Enabled {
		publisher = notify.NewKafkaPublisher(cfg.Notify.Kafka, logger.Named("notify"))
		logger.Info("已启用 Kafka 结算通知",
			zap.Strings("brokers", cfg.Notify.Kafka.Brokers),
			zap.String("topic", cfg.Notify.Kafka.Topic),
		)
	}

	svc, err := buildServices(db, fetcher, mirror, publisher, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = publisher.Close()
		return nil, err
	}
	if redisClient != nil {
		svc.closers = append(svc.closers, redisClient.Close)
	}

	return &orchestrator{svc: svc, logger: logger}, nil
}

func newFetcher(cfg config.MarketDataConfig, logger *zap.Logger) (quote.Fetcher, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ccxt":
		f, err := marketdata.NewExchangeFetcher(cfg.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化交易所行情失败: %w", err)
		}
		return f, nil
	default:
		return marketdata.NewHTTPFetcher(cfg.IEX, logger), nil
	}
}

// Tick 刷新全部已跟踪代码的报价。
func (o *orchestrator) Tick(ctx context.Context) error {
	quotes, err := o.svc.quotes.RefreshAll(ctx)
	if err != nil {
		o.svc.monitor.RecordError(ctx, "定时刷新报价失败", err, nil)
		return err
	}
	if len(quotes) == 0 {
		o.logger.Debug("无已跟踪代码，跳过刷新")
		return nil
	}

	tickers := make([]string, 0, len(quotes))
	for _, q := range quotes {
		tickers = append(tickers, q.Ticker)
	}
	o.svc.monitor.RecordQuoteRefresh(ctx, "schedule", tickers)
	return nil
}
