package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trading-ledger/internal/config"
	"trading-ledger/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	orch   *orchestrator
	server *http.Server
}

// New 创建 App 实例并完成组件装配。
func New(cfg *config.Config, logger *zap.Logger, db *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.EqualFold(cfg.App.Environment, "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	orch, err := newOrchestrator(cfg, logger, db)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		orch:   orch,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           newRouter(orch.svc, logger.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run 启动 HTTP 服务与定时刷新，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易账本已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("market_data", a.cfg.MarketData.Provider),
		zap.String("addr", a.cfg.HTTP.Addr),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP 服务已启动", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务异常: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		a.refreshLoop(gctx)
		return nil
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", ctxErr)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

func (a *App) refreshLoop(ctx context.Context) {
	interval := a.cfg.Quote.RefreshInterval
	if interval <= 0 {
		a.logger.Info("报价定时刷新已关闭")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.orch.Tick(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("定时刷新报价失败", zap.Error(err))
			}
		}
	}
}

// Close 释放外部连接，数据库由调用方关闭。
func (a *App) Close() error {
	return a.orch.svc.close()
}
