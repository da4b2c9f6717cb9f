package execution

import (
	"errors"
	"math"
)

var (
	ErrInvalidOrderSize = errors.New("execution: 订单数量不合法")
	ErrInvalidTicker    = errors.New("execution: 代码无可用报价")
	ErrInvalidAccount   = errors.New("execution: 账户不存在")
)

// MaxOrderSize 为单笔订单数量绝对值上限。
const MaxOrderSize = math.MaxInt32

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// MarketOrder 为市价单请求。Size 为正表示买入，为负表示卖出。
type MarketOrder struct {
	AccountID int64  `json:"accountId"`
	Ticker    string `json:"ticker"`
	Size      int64  `json:"size"`
}

// Side 返回下单方向。
func (o MarketOrder) Side() Side {
	if o.Size < 0 {
		return SideSell
	}
	return SideBuy
}
