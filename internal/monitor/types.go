package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-ledger/internal/order"
)

// EventType 表示审计事件类型。
type EventType string

const (
	EventOrderSettled EventType = "order_settled"
	EventQuoteRefresh EventType = "quote_refresh"
	EventAccount      EventType = "account"
	EventError        EventType = "error"
)

// Event 封装通用审计事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// OrderSettledPayload 记录一笔订单的结算结果与结算后余额。
type OrderSettledPayload struct {
	Order   order.SecurityOrder `json:"order"`
	Balance decimal.Decimal     `json:"balance"`
}

// QuoteRefreshPayload 记录一次报价刷新。
type QuoteRefreshPayload struct {
	Trigger string   `json:"trigger"`
	Tickers []string `json:"tickers"`
	Count   int      `json:"count"`
}

// AccountPayload 记录账户生命周期与资金变动。
type AccountPayload struct {
	Action    string          `json:"action"`
	TraderID  int64           `json:"traderId"`
	AccountID int64           `json:"accountId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
