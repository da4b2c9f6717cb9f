package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"trading-ledger/internal/quote"
)

// classifyError 把交易所错误归入行情源契约的两类错误。
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", quote.ErrUpstreamUnavailable, err)
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.BadSymbolErrType:
			return fmt.Errorf("%w: %s", quote.ErrUnknownTicker, strings.TrimSpace(ccxtErr.Message))
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", quote.ErrUpstreamUnavailable, message)
		default:
			return fmt.Errorf("%w: %w", quote.ErrUpstreamUnavailable, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", quote.ErrUpstreamUnavailable, err)
	}

	return fmt.Errorf("%w: %w", quote.ErrUpstreamUnavailable, err)
}

// IsTransient 判断错误是否可由调用方稍后重试。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
