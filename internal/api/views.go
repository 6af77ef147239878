package api

import (
	"math"
	"time"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/valuation"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// round2 rounds half away from zero to two decimals. Only response views
// round; computation stays at full precision. NaN and infinities have no
// decimal form and are returned unchanged.
func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	v, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return v
}

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt}
}

type createdUserView struct {
	userView
	APIToken string `json:"api_token"`
}

type positionView struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Shares        float64 `json:"shares"`
	PurchasePrice float64 `json:"purchase_price"`
	PurchaseDate  string  `json:"purchase_date"`
	CostBasis     float64 `json:"cost_basis"`
	Notes         string  `json:"notes,omitempty"`
}

func newPositionView(p models.Position) positionView {
	return positionView{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Shares:        p.Shares,
		PurchasePrice: p.PurchasePrice,
		PurchaseDate:  p.PurchaseDate.UTC().Format(dateLayout),
		CostBasis:     round2(p.Shares * p.PurchasePrice),
		Notes:         p.Notes,
	}
}

type portfolioView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Positions   []positionView `json:"positions,omitempty"`
}

func newPortfolioView(p models.Portfolio, positions []models.Position) portfolioView {
	v := portfolioView{ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
	if positions != nil {
		v.Positions = make([]positionView, len(positions))
		for i, pos := range positions {
			v.Positions[i] = newPositionView(pos)
		}
	}
	return v
}

type positionValuationView struct {
	PositionID        string  `json:"position_id"`
	Symbol            string  `json:"symbol"`
	Shares            float64 `json:"shares"`
	PurchasePrice     float64 `json:"purchase_price"`
	CurrentPrice      float64 `json:"current_price"`
	CurrentValue      float64 `json:"current_value"`
	CostBasis         float64 `json:"cost_basis"`
	GainLoss          float64 `json:"gain_loss"`
	GainLossPercent   float64 `json:"gain_loss_percent"`
	AllocationPercent float64 `json:"allocation_percent"`
	PriceIsStale      bool    `json:"price_is_stale"`
}

type valuationView struct {
	PortfolioID          string                  `json:"portfolio_id"`
	PortfolioName        string                  `json:"portfolio_name"`
	TotalValue           float64                 `json:"total_value"`
	TotalCostBasis       float64                 `json:"total_cost_basis"`
	TotalGainLoss        float64                 `json:"total_gain_loss"`
	TotalGainLossPercent float64                 `json:"total_gain_loss_percent"`
	Positions            []positionValuationView `json:"positions"`
	StalePositions       int                     `json:"stale_positions"`
	MissingSymbols       []string                `json:"missing_symbols"`
	Warnings             []string                `json:"warnings"`
	Degraded             bool                    `json:"degraded"`
	AsOf                 time.Time               `json:"as_of"`
}

func newValuationView(r *portfolio.Report) valuationView {
	v := r.Valuation
	out := valuationView{
		PortfolioID:          r.Portfolio.ID,
		PortfolioName:        r.Portfolio.Name,
		TotalValue:           round2(v.TotalValue),
		TotalCostBasis:       round2(v.TotalCostBasis),
		TotalGainLoss:        round2(v.TotalGainLoss),
		TotalGainLossPercent: round2(v.TotalGainLossPercent),
		Positions:            make([]positionValuationView, len(v.PerPosition)),
		StalePositions:       v.StaleCount(),
		MissingSymbols:       r.MissingSymbols,
		Warnings:             r.Warnings,
		Degraded:             r.Degraded,
		AsOf:                 r.AsOf,
	}
	for i, p := range v.PerPosition {
		out.Positions[i] = positionValuationView{
			PositionID:        p.PositionID,
			Symbol:            p.Symbol,
			Shares:            p.Shares,
			PurchasePrice:     p.PurchasePrice,
			CurrentPrice:      p.CurrentPrice,
			CurrentValue:      round2(p.CurrentValue),
			CostBasis:         round2(p.CostBasis),
			GainLoss:          round2(p.GainLoss),
			GainLossPercent:   round2(p.GainLossPercent),
			AllocationPercent: round2(p.AllocationPercent),
			PriceIsStale:      p.PriceIsStale,
		}
	}
	return out
}

type symbolAllocationView struct {
	Symbol            string  `json:"symbol"`
	Positions         int     `json:"positions"`
	Shares            float64 `json:"shares"`
	CurrentValue      float64 `json:"current_value"`
	CostBasis         float64 `json:"cost_basis"`
	GainLoss          float64 `json:"gain_loss"`
	GainLossPercent   float64 `json:"gain_loss_percent"`
	AllocationPercent float64 `json:"allocation_percent"`
	PriceIsStale      bool    `json:"price_is_stale"`
}

type allocationView struct {
	PortfolioID    string                 `json:"portfolio_id"`
	TotalValue     float64                `json:"total_value"`
	Symbols        []symbolAllocationView `json:"symbols"`
	MissingSymbols []string               `json:"missing_symbols"`
	Warnings       []string               `json:"warnings"`
	Degraded       bool                   `json:"degraded"`
	AsOf           time.Time              `json:"as_of"`
}

func newAllocationView(r *portfolio.AllocationReport) allocationView {
	out := allocationView{
		PortfolioID:    r.Portfolio.ID,
		TotalValue:     round2(r.Valuation.TotalValue),
		Symbols:        make([]symbolAllocationView, len(r.Symbols)),
		MissingSymbols: r.MissingSymbols,
		Warnings:       r.Warnings,
		Degraded:       r.Degraded,
		AsOf:           r.AsOf,
	}
	for i, a := range r.Symbols {
		out.Symbols[i] = symbolAllocationView{
			Symbol:            a.Symbol,
			Positions:         a.Positions,
			Shares:            a.Shares,
			CurrentValue:      round2(a.CurrentValue),
			CostBasis:         round2(a.CostBasis),
			GainLoss:          round2(a.GainLoss),
			GainLossPercent:   round2(a.GainLossPercent),
			AllocationPercent: round2(a.AllocationPercent),
			PriceIsStale:      a.PriceIsStale,
		}
	}
	return out
}

type timelinePointView struct {
	Date      string  `json:"date"`
	Invested  float64 `json:"invested"`
	Positions int     `json:"positions"`
}

func newTimelineView(points []valuation.TimelinePoint) []timelinePointView {
	out := make([]timelinePointView, len(points))
	for i, p := range points {
		out[i] = timelinePointView{Date: p.Date.Format(dateLayout), Invested: round2(p.Invested), Positions: p.Positions}
	}
	return out
}

type watchlistView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Symbols   []string  `json:"symbols"`
	CreatedAt time.Time `json:"created_at"`
}

func newWatchlistView(w models.Watchlist) watchlistView {
	v := watchlistView{ID: w.ID, Name: w.Name, Symbols: make([]string, len(w.Items)), CreatedAt: w.CreatedAt}
	for i, item := range w.Items {
		v.Symbols[i] = item.Symbol
	}
	return v
}

type quoteView struct {
	Symbol            string   `json:"symbol"`
	Price             float64  `json:"price"`
	Change            float64  `json:"change"`
	ChangesPercentage float64  `json:"changes_percentage"`
	Volume            *int64   `json:"volume,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
}

func newQuoteView(q valuation.Quote) quoteView {
	return quoteView{
		Symbol:            q.Symbol,
		Price:             q.Price,
		Change:            round2(q.Change),
		ChangesPercentage: round2(q.ChangesPercentage),
		Volume:            q.Volume,
		MarketCap:         q.MarketCap,
	}
}

type watchlistQuotesView struct {
	WatchlistID string      `json:"watchlist_id"`
	Quotes      []quoteView `json:"quotes"`
	Missing     []string    `json:"missing_symbols"`
}

func newWatchlistQuotesView(wq *portfolio.WatchlistQuotes) watchlistQuotesView {
	out := watchlistQuotesView{WatchlistID: wq.Watchlist.ID, Quotes: make([]quoteView, len(wq.Quotes)), Missing: wq.Missing}
	for i, q := range wq.Quotes {
		out.Quotes[i] = newQuoteView(q)
	}
	return out
}
