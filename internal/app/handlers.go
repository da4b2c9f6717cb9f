package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-ledger/internal/account"
	"trading-ledger/internal/execution"
	"trading-ledger/internal/quote"
	"trading-ledger/internal/trader"
)

// handler 把业务组件暴露为 HTTP 接口。
type handler struct {
	svc    *services
	logger *zap.Logger
}

func newRouter(svc *services, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	h := &handler{svc: svc, logger: logger}
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes 注册全部路由。
func (h *handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/events", h.ListEvents)

	api := router.Group("/api/v1")
	{
		api.POST("/orders/market", h.ExecuteMarketOrder)

		api.GET("/accounts/:id/orders", h.ListOrders)
		api.GET("/accounts/:id/positions", h.ListPositions)
		api.GET("/accounts/:id/positions/:ticker", h.GetPosition)

		api.GET("/quotes", h.ListQuotes)
		api.GET("/quotes/:ticker", h.GetQuote)
		api.POST("/quotes", h.TrackQuotes)
		api.PUT("/quotes/refresh", h.RefreshQuotes)

		api.POST("/traders", h.CreateTrader)
		api.GET("/traders/:id", h.GetTrader)
		api.DELETE("/traders/:id", h.DeleteTrader)
		api.PUT("/traders/:id/deposit", h.Deposit)
		api.PUT("/traders/:id/withdraw", h.Withdraw)

		api.GET("/dashboard/traders/:id", h.TraderDashboard)
		api.GET("/dashboard/portfolio/:id", h.PortfolioDashboard)
	}
}

type marketOrderRequest struct {
	AccountID int64  `json:"accountId"`
	Ticker    string `json:"ticker"`
	Size      *int64 `json:"size"`
}

type tickersRequest struct {
	Tickers []string `json:"tickers"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type createTraderRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Country   string `json:"country"`
	Email     string `json:"email"`
}

// ExecuteMarketOrder 下市价单；FILLED 与 CANCELED 均返回 200。
func (h *handler) ExecuteMarketOrder(c *gin.Context) {
	var req marketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	var size int64
	if req.Size != nil {
		size = *req.Size
	}

	o, err := h.svc.engine.ExecuteMarketOrder(c.Request.Context(), execution.MarketOrder{
		AccountID: req.AccountID,
		Ticker:    req.Ticker,
		Size:      size,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// ListOrders 返回账户全部订单。
func (h *handler) ListOrders(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	orders, err := h.svc.ledger.FindByAccount(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ListPositions 返回账户全部持仓。
func (h *handler) ListPositions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	positions, err := h.svc.positions.AllPositions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

// GetPosition 返回单个代码的净持仓。
func (h *handler) GetPosition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ticker := quote.NormalizeTicker(c.Param("ticker"))
	pos, err := h.svc.positions.NetPosition(c.Request.Context(), id, ticker)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": id, "ticker": ticker, "position": pos})
}

// ListQuotes 返回全部缓存报价。
func (h *handler) ListQuotes(c *gin.Context) {
	quotes, err := h.svc.quotes.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if quotes == nil {
		quotes = []quote.Quote{}
	}
	c.JSON(http.StatusOK, quotes)
}

// GetQuote 返回单个代码的缓存报价。
func (h *handler) GetQuote(c *gin.Context) {
	ticker := c.Param("ticker")
	q, err := h.svc.quotes.Get(c.Request.Context(), ticker)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "报价不存在: " + quote.NormalizeTicker(ticker)})
		return
	}
	c.JSON(http.StatusOK, q)
}

// TrackQuotes 拉取并开始跟踪给定代码。
func (h *handler) TrackQuotes(c *gin.Context) {
	var req tickersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.refresh(c, req.Tickers, "track")
}

// RefreshQuotes 刷新给定代码，未指定时刷新全部已跟踪代码。
func (h *handler) RefreshQuotes(c *gin.Context) {
	var req tickersRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	if len(req.Tickers) == 0 {
		quotes, err := h.svc.quotes.RefreshAll(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		if quotes == nil {
			quotes = []quote.Quote{}
		}
		h.svc.monitor.RecordQuoteRefresh(c.Request.Context(), "api", tickersOf(quotes))
		c.JSON(http.StatusOK, quotes)
		return
	}
	h.refresh(c, req.Tickers, "api")
}

func (h *handler) refresh(c *gin.Context, tickers []string, trigger string) {
	quotes, err := h.svc.quotes.Refresh(c.Request.Context(), tickers)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.svc.monitor.RecordQuoteRefresh(c.Request.Context(), trigger, tickersOf(quotes))
	c.JSON(http.StatusOK, quotes)
}

// CreateTrader 开户。
func (h *handler) CreateTrader(c *gin.Context) {
	var req createTraderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	t := trader.Trader{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		Email:     req.Email,
	}
	if req.DOB != "" {
		dob, err := time.Parse("2006-01-02", req.DOB)
		if err != nil {
			h.badRequest(c, errors.New("dob 格式应为 YYYY-MM-DD"))
			return
		}
		t.DOB = dob
	}

	view, err := h.svc.traders.CreateTraderAndAccount(c.Request.Context(), t)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetTrader 返回交易员资料。
func (h *handler) GetTrader(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	t, err := h.svc.traders.FindTrader(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if t == nil {
		h.fail(c, trader.ErrTraderNotFound)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTrader 销户。
func (h *handler) DeleteTrader(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.svc.traders.DeleteTrader(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Deposit 入金。
func (h *handler) Deposit(c *gin.Context) {
	h.adjust(c, h.svc.traders.Deposit)
}

// Withdraw 出金。
func (h *handler) Withdraw(c *gin.Context) {
	h.adjust(c, h.svc.traders.Withdraw)
}

func (h *handler) adjust(c *gin.Context, fn func(ctx context.Context, traderID int64, amount decimal.Decimal) (*account.Account, error)) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	acct, err := fn(c.Request.Context(), id, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// TraderDashboard 返回交易员与账户。
func (h *handler) TraderDashboard(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	view, err := h.svc.dashboard.TraderAccount(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PortfolioDashboard 返回估值后的组合。
func (h *handler) PortfolioDashboard(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	view, err := h.svc.dashboard.Portfolio(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, errors.New("id 必须为正整数"))
		return 0, false
	}
	return id, true
}

func (h *handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor 将领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case execution.IsRejection(err),
		errors.Is(err, quote.ErrEmptyTickers),
		errors.Is(err, quote.ErrUnknownTicker),
		errors.Is(err, trader.ErrInvalidTrader),
		errors.Is(err, trader.ErrInvalidAmount),
		errors.Is(err, trader.ErrInsufficientFunds),
		errors.Is(err, trader.ErrNonZeroBalance),
		errors.Is(err, trader.ErrOpenPosition):
		return http.StatusBadRequest
	case errors.Is(err, trader.ErrTraderNotFound):
		return http.StatusNotFound
	case errors.Is(err, quote.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func tickersOf(quotes []quote.Quote) []string {
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q.Ticker)
	}
	return out
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
