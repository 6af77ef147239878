package portfolio

import (
	"context"
	"testing"

	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWatchlistService(f *fixture) *WatchlistService {
	fetcher := quotes.NewBatchFetcher(f.source, zap.NewNop(), 0, 2)
	return NewWatchlistService(f.store, fetcher, zap.NewNop())
}

func TestWatchlist_Lifecycle(t *testing.T) {
	f := newFixture(t, quoteCfg())
	svc := newWatchlistService(f)
	ctx := context.Background()

	w, err := svc.Create(ctx, f.user.ID, "Tech", []string{"msft", "AAPL", "msft", " "})
	require.NoError(t, err)
	require.Len(t, w.Items, 2)
	assert.Equal(t, "AAPL", w.Items[0].Symbol)
	assert.Equal(t, "MSFT", w.Items[1].Symbol)

	w, err = svc.AddSymbol(ctx, f.user.ID, w.ID, "nvda")
	require.NoError(t, err)
	assert.Len(t, w.Items, 3)

	_, err = svc.AddSymbol(ctx, f.user.ID, w.ID, "NVDA")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.AddSymbol(ctx, f.user.ID, w.ID, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	w, err = svc.RemoveSymbol(ctx, f.user.ID, w.ID, "msft")
	require.NoError(t, err)
	assert.Len(t, w.Items, 2)

	_, err = svc.RemoveSymbol(ctx, f.user.ID, w.ID, "MSFT")
	assert.ErrorIs(t, err, ErrNotFound)

	lists, err := svc.List(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "intruder", w.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, f.user.ID, w.ID))
	_, err = svc.Get(ctx, f.user.ID, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatchlist_Quotes(t *testing.T) {
	f := newFixture(t, quoteCfg())
	svc := newWatchlistService(f)
	ctx := context.Background()

	w, err := svc.Create(ctx, f.user.ID, "Tech", []string{"MSFT", "AAPL", "XYZ"})
	require.NoError(t, err)

	f.source.On("GetQuote", "AAPL").Return(valuation.Quote{Symbol: "AAPL", Price: 150}, nil)
	f.source.On("GetQuote", "MSFT").Return(valuation.Quote{Symbol: "MSFT", Price: 300}, nil)
	f.source.On("GetQuote", "XYZ").Return(valuation.Quote{}, quotes.ErrSymbolNotFound)

	snap, err := svc.Quotes(ctx, f.user.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, "AAPL", snap.Quotes[0].Symbol)
	assert.Equal(t, "MSFT", snap.Quotes[1].Symbol)
	assert.Equal(t, []string{"XYZ"}, snap.Missing)
}

func TestWatchlist_QuotesSourceUnavailable(t *testing.T) {
	f := newFixture(t, quoteCfg())
	svc := newWatchlistService(f)
	ctx := context.Background()

	w, err := svc.Create(ctx, f.user.ID, "Tech", []string{"AAPL"})
	require.NoError(t, err)
	f.source.On("GetQuote", "AAPL").Return(valuation.Quote{}, quotes.ErrUpstreamUnavailable)

	_, err = svc.Quotes(ctx, f.user.ID, w.ID)
	assert.ErrorIs(t, err, quotes.ErrSourceUnavailable)
}
