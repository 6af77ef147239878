package valuation

import (
	"sort"
	"time"
)

// SymbolAllocation sums every row of one symbol in a valuation.
type SymbolAllocation struct {
	Symbol            string
	Positions         int
	Shares            float64
	CurrentValue      float64
	CostBasis         float64
	GainLoss          float64
	GainLossPercent   float64
	AllocationPercent float64
	PriceIsStale      bool
}

// AllocationBySymbol groups the rows of v by symbol, largest value first.
// v itself is left untouched; this is a display view over it.
func AllocationBySymbol(v PortfolioValuation) []SymbolAllocation {
	index := make(map[string]int)
	groups := make([]SymbolAllocation, 0)

	for _, row := range v.PerPosition {
		i, ok := index[row.Symbol]
		if !ok {
			i = len(groups)
			index[row.Symbol] = i
			groups = append(groups, SymbolAllocation{Symbol: row.Symbol})
		}
		g := &groups[i]
		g.Positions++
		g.Shares += row.Shares
		g.CurrentValue += row.CurrentValue
		g.CostBasis += row.CostBasis
		g.PriceIsStale = g.PriceIsStale || row.PriceIsStale
	}

	for i := range groups {
		g := &groups[i]
		g.GainLoss = g.CurrentValue - g.CostBasis
		g.GainLossPercent = percentOf(g.GainLoss, g.CostBasis)
		g.AllocationPercent = percentOf(g.CurrentValue, v.TotalValue)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].CurrentValue != groups[b].CurrentValue {
			return groups[a].CurrentValue > groups[b].CurrentValue
		}
		return groups[a].Symbol < groups[b].Symbol
	})
	return groups
}

// TimelinePoint is the cumulative amount invested up to and including Date.
type TimelinePoint struct {
	Date      time.Time
	Invested  float64
	Positions int
}

// InvestmentTimeline returns one point per distinct purchase date (UTC day),
// in ascending order, with the running cost basis and position count.
func InvestmentTimeline(positions []Position) ([]TimelinePoint, error) {
	type day struct {
		date     time.Time
		invested float64
		count    int
	}

	byDay := make(map[time.Time]*day)
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		d := truncateDay(p.PurchaseDate)
		entry, ok := byDay[d]
		if !ok {
			entry = &day{date: d}
			byDay[d] = entry
		}
		entry.invested += p.CostBasis()
		entry.count++
	}

	days := make([]*day, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(a, b int) bool { return days[a].date.Before(days[b].date) })

	points := make([]TimelinePoint, 0, len(days))
	var invested float64
	var count int
	for _, d := range days {
		invested += d.invested
		count += d.count
		points = append(points, TimelinePoint{Date: d.date, Invested: invested, Positions: count})
	}
	return points, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
