package position

import "github.com/shopspring/decimal"

// Summary 为按最新报价估值后的持仓。
type Summary struct {
	Ticker      string          `json:"ticker"`
	Position    int64           `json:"position"`
	Side        string          `json:"side"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	MarketValue decimal.Decimal `json:"marketValue"`
}

// Summarize 以最新成交价估值。
func Summarize(p Position, lastPrice decimal.Decimal) Summary {
	return Summary{
		Ticker:      p.Ticker,
		Position:    p.Position,
		Side:        Side(p.Position),
		LastPrice:   lastPrice,
		MarketValue: decimal.NewFromInt(p.Position).Mul(lastPrice),
	}
}

// Side 返回 long、short 或 flat。
func Side(pos int64) string {
	switch {
	case pos > 0:
		return "long"
	case pos < 0:
		return "short"
	default:
		return "flat"
	}
}
