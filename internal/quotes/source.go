// Package quotes fetches market quotes for a set of symbols from a Source,
// tolerating per-symbol failures.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"portfolio-tracker/internal/valuation"
)

var (
	// ErrSymbolNotFound means the source does not know the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrRateLimited means the source refused the request because of its quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamUnavailable means the source could not be reached or failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidQuote means the source answered with a malformed quote.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrSourceUnavailable means an entire batch failed at the transport level.
	ErrSourceUnavailable = errors.New("quote source unavailable")
)

// Source returns the current quote for a symbol.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (valuation.Quote, error)
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks a quote decoded from a provider before it reaches
// valuation code.
func Validate(q valuation.Quote) error {
	if NormalizeSymbol(q.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidQuote)
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price <= 0 {
		return fmt.Errorf("%w: %s price %v", ErrInvalidQuote, q.Symbol, q.Price)
	}
	if math.IsNaN(q.Change) || math.IsInf(q.Change, 0) || math.IsNaN(q.ChangesPercentage) || math.IsInf(q.ChangesPercentage, 0) {
		return fmt.Errorf("%w: %s change is not finite", ErrInvalidQuote, q.Symbol)
	}
	if q.Volume != nil && *q.Volume < 0 {
		return fmt.Errorf("%w: %s negative volume", ErrInvalidQuote, q.Symbol)
	}
	if q.MarketCap != nil && (math.IsNaN(*q.MarketCap) || *q.MarketCap < 0) {
		return fmt.Errorf("%w: %s invalid market cap", ErrInvalidQuote, q.Symbol)
	}
	return nil
}

// isTransportFailure reports whether err says nothing about the symbol
// itself, only that the source could not answer.
func isTransportFailure(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
