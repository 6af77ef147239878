// Package valuation turns a portfolio's positions and a set of market quotes
// into value, cost basis, gain/loss and allocation figures.
//
// Everything in this package is a pure function of its inputs: no I/O, no
// shared state and no rounding. Rounding for display belongs to the caller.
package valuation

import (
	"fmt"
	"time"
)

// Position is a single purchase lot of a security.
type Position struct {
	ID            string
	PortfolioID   string
	Symbol        string
	Shares        float64
	PurchasePrice float64
	PurchaseDate  time.Time
	Notes         string
}

// Quote is a point-in-time market snapshot for a symbol.
type Quote struct {
	Symbol            string   `json:"symbol"`
	Price             float64  `json:"price"`
	Change            float64  `json:"change"`
	ChangesPercentage float64  `json:"changesPercentage"`
	Volume            *int64   `json:"volume,omitempty"`
	MarketCap         *float64 `json:"marketCap,omitempty"`
}

// PositionValuation is the valuation of one Position row.
type PositionValuation struct {
	PositionID        string
	Symbol            string
	Shares            float64
	PurchasePrice     float64
	CurrentPrice      float64
	CurrentValue      float64
	CostBasis         float64
	GainLoss          float64
	GainLossPercent   float64
	AllocationPercent float64
	// PriceIsStale is set when no quote was available and the purchase
	// price stands in for the current price.
	PriceIsStale bool
}

// PortfolioValuation aggregates the valuation of every position.
type PortfolioValuation struct {
	TotalValue           float64
	TotalCostBasis       float64
	TotalGainLoss        float64
	TotalGainLossPercent float64
	PerPosition          []PositionValuation
}

// InvalidPositionError reports a position with non-positive shares or
// purchase price.
type InvalidPositionError struct {
	PositionID string
	Symbol     string
	Field      string
	Value      float64
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q (%s): %s must be positive, got %v", e.PositionID, e.Symbol, e.Field, e.Value)
}

// Validate checks the Position invariants.
func (p Position) Validate() error {
	// Written as !(x > 0) so NaN is rejected too.
	if !(p.Shares > 0) {
		return &InvalidPositionError{PositionID: p.ID, Symbol: p.Symbol, Field: "shares", Value: p.Shares}
	}
	if !(p.PurchasePrice > 0) {
		return &InvalidPositionError{PositionID: p.ID, Symbol: p.Symbol, Field: "purchasePrice", Value: p.PurchasePrice}
	}
	return nil
}

// CostBasis is shares times purchase price.
func (p Position) CostBasis() float64 {
	return p.Shares * p.PurchasePrice
}

// Valuate values every position against quotes. Positions without a quote
// are valued at their purchase price and flagged stale. Rows sharing a
// symbol are valued and allocated independently.
func Valuate(positions []Position, quotes map[string]Quote) (PortfolioValuation, error) {
	result := PortfolioValuation{
		PerPosition: make([]PositionValuation, 0, len(positions)),
	}

	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return PortfolioValuation{}, err
		}

		currentPrice := p.PurchasePrice
		stale := true
		if q, ok := quotes[p.Symbol]; ok {
			currentPrice = q.Price
			stale = false
		}

		costBasis := p.CostBasis()
		currentValue := p.Shares * currentPrice
		gainLoss := currentValue - costBasis

		result.PerPosition = append(result.PerPosition, PositionValuation{
			PositionID:      p.ID,
			Symbol:          p.Symbol,
			Shares:          p.Shares,
			PurchasePrice:   p.PurchasePrice,
			CurrentPrice:    currentPrice,
			CurrentValue:    currentValue,
			CostBasis:       costBasis,
			GainLoss:        gainLoss,
			GainLossPercent: percentOf(gainLoss, costBasis),
			PriceIsStale:    stale,
		})

		result.TotalValue += currentValue
		result.TotalCostBasis += costBasis
	}

	result.TotalGainLoss = result.TotalValue - result.TotalCostBasis
	result.TotalGainLossPercent = percentOf(result.TotalGainLoss, result.TotalCostBasis)

	for i := range result.PerPosition {
		result.PerPosition[i].AllocationPercent = percentOf(result.PerPosition[i].CurrentValue, result.TotalValue)
	}

	return result, nil
}

// StaleCount returns how many rows were valued without a quote.
func (v PortfolioValuation) StaleCount() int {
	n := 0
	for _, p := range v.PerPosition {
		if p.PriceIsStale {
			n++
		}
	}
	return n
}

// percentOf returns part/whole*100, or 0 when whole is 0.
func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
