package valuation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aapl(shares, price float64) Position {
	return Position{
		ID:            "p1",
		PortfolioID:   "pf",
		Symbol:        "AAPL",
		Shares:        shares,
		PurchasePrice: price,
		PurchaseDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestValuate_EmptyPortfolio(t *testing.T) {
	v, err := Valuate(nil, map[string]Quote{})
	require.NoError(t, err)

	assert.Zero(t, v.TotalValue)
	assert.Zero(t, v.TotalCostBasis)
	assert.Zero(t, v.TotalGainLoss)
	assert.Zero(t, v.TotalGainLossPercent)
	assert.NotNil(t, v.PerPosition)
	assert.Empty(t, v.PerPosition)
}

func TestValuate_SinglePositionWithQuote(t *testing.T) {
	v, err := Valuate([]Position{aapl(10, 100)}, map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 150},
	})
	require.NoError(t, err)
	require.Len(t, v.PerPosition, 1)

	row := v.PerPosition[0]
	assert.Equal(t, 1500.0, row.CurrentValue)
	assert.Equal(t, 1000.0, row.CostBasis)
	assert.Equal(t, 500.0, row.GainLoss)
	assert.Equal(t, 50.0, row.GainLossPercent)
	assert.Equal(t, 100.0, row.AllocationPercent)
	assert.Equal(t, 150.0, row.CurrentPrice)
	assert.False(t, row.PriceIsStale)

	assert.Equal(t, 1500.0, v.TotalValue)
	assert.Equal(t, 1000.0, v.TotalCostBasis)
	assert.Equal(t, 500.0, v.TotalGainLoss)
	assert.Equal(t, 50.0, v.TotalGainLossPercent)
}

func TestValuate_MissingQuoteFallsBackToPurchasePrice(t *testing.T) {
	v, err := Valuate([]Position{aapl(10, 100)}, map[string]Quote{})
	require.NoError(t, err)
	require.Len(t, v.PerPosition, 1)

	row := v.PerPosition[0]
	assert.Equal(t, 1000.0, row.CurrentValue)
	assert.Equal(t, 0.0, row.GainLoss)
	assert.Equal(t, 0.0, row.GainLossPercent)
	assert.True(t, row.PriceIsStale)
	assert.Equal(t, 1, v.StaleCount())
}

func TestValuate_AllocationSumsToHundred(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(25)
		positions := make([]Position, 0, n)
		quotes := make(map[string]Quote, n)
		for i := 0; i < n; i++ {
			sym := fmt.Sprintf("S%d", rng.Intn(10))
			positions = append(positions, Position{
				ID:            fmt.Sprintf("p%d", i),
				Symbol:        sym,
				Shares:        0.001 + rng.Float64()*1000,
				PurchasePrice: 0.01 + rng.Float64()*500,
			})
			quotes[sym] = Quote{Symbol: sym, Price: 0.01 + rng.Float64()*500}
		}

		v, err := Valuate(positions, quotes)
		require.NoError(t, err)

		var sum float64
		for _, row := range v.PerPosition {
			sum += row.AllocationPercent
		}
		assert.InDelta(t, 100.0, sum, 1e-6, "round %d", round)
	}
}

func TestValuate_DuplicateSymbolsStayRowLevel(t *testing.T) {
	first := aapl(10, 100)
	second := aapl(5, 200)
	second.ID = "p2"

	v, err := Valuate([]Position{first, second}, map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 150}})
	require.NoError(t, err)
	require.Len(t, v.PerPosition, 2)

	assert.Equal(t, 50.0, v.PerPosition[0].GainLossPercent)
	assert.Equal(t, -25.0, v.PerPosition[1].GainLossPercent)
	assert.InDelta(t, 66.666666, v.PerPosition[0].AllocationPercent, 1e-5)
	assert.InDelta(t, 33.333333, v.PerPosition[1].AllocationPercent, 1e-5)
}

func TestValuate_ZeroTotalValueReportsZeroAllocation(t *testing.T) {
	// A provider quoting 0 drags the whole portfolio to zero value.
	v, err := Valuate([]Position{aapl(10, 100)}, map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 0}})
	require.NoError(t, err)

	assert.Zero(t, v.TotalValue)
	assert.Zero(t, v.PerPosition[0].AllocationPercent)
	assert.Equal(t, -100.0, v.TotalGainLossPercent)
}

func TestValuate_TinyPurchasePriceStaysFinite(t *testing.T) {
	v, err := Valuate([]Position{aapl(1, 1e-12)}, map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 1}})
	require.NoError(t, err)

	pct := v.PerPosition[0].GainLossPercent
	assert.False(t, math.IsInf(pct, 0))
	assert.False(t, math.IsNaN(pct))
}

func TestValuate_InvalidPosition(t *testing.T) {
	cases := map[string]Position{
		"ZeroShares":    aapl(0, 100),
		"NegativeShare": aapl(-1, 100),
		"ZeroPrice":     aapl(10, 0),
		"NegativePrice": aapl(10, -5),
		"NaNShares":     aapl(math.NaN(), 100),
	}

	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Valuate([]Position{p}, map[string]Quote{})
			require.Error(t, err)

			var invalid *InvalidPositionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "p1", invalid.PositionID)
			assert.Equal(t, "AAPL", invalid.Symbol)
		})
	}
}

func TestValuate_Idempotent(t *testing.T) {
	positions := []Position{aapl(3.3, 101.7), {ID: "p2", Symbol: "MSFT", Shares: 7.1, PurchasePrice: 311.9}}
	quotes := map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 187.13}}

	first, err := Valuate(positions, quotes)
	require.NoError(t, err)
	second, err := Valuate(positions, quotes)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i := range first.PerPosition {
		assert.Equal(t, math.Float64bits(first.PerPosition[i].AllocationPercent), math.Float64bits(second.PerPosition[i].AllocationPercent))
	}
	assert.Equal(t, math.Float64bits(first.TotalGainLossPercent), math.Float64bits(second.TotalGainLossPercent))
}

func TestValuate_DoesNotMutateInputs(t *testing.T) {
	positions := []Position{aapl(10, 100)}
	quotes := map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 150}}

	_, err := Valuate(positions, quotes)
	require.NoError(t, err)

	assert.Equal(t, aapl(10, 100), positions[0])
	assert.Equal(t, map[string]Quote{"AAPL": {Symbol: "AAPL", Price: 150}}, quotes)
}
