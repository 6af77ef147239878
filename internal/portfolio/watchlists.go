package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/storage"
	"portfolio-tracker/internal/valuation"
	"go.uber.org/zap"
)

// WatchlistQuotes is the current market snapshot of a watchlist.
type WatchlistQuotes struct {
	Watchlist models.Watchlist
	// Quotes are ordered by symbol.
	Quotes  []valuation.Quote
	Missing []string
}

// WatchlistService manages watchlists.
type WatchlistService struct {
	store   storage.Store
	fetcher QuoteFetcher
	logger  *zap.Logger
}

// NewWatchlistService creates a WatchlistService.
func NewWatchlistService(store storage.Store, fetcher QuoteFetcher, logger *zap.Logger) *WatchlistService {
	return &WatchlistService{store: store, fetcher: fetcher, logger: logger.Named("watchlist")}
}

// Create stores a new watchlist holding the distinct symbols given.
func (s *WatchlistService) Create(ctx context.Context, userID, name string, symbols []string) (*models.Watchlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	w := &models.Watchlist{UserID: userID, Name: name}
	for _, symbol := range quotes.Distinct(symbols) {
		w.Items = append(w.Items, models.WatchlistItem{Symbol: symbol})
	}
	if err := s.store.CreateWatchlist(ctx, w); err != nil {
		return nil, fromStore(err)
	}
	s.logger.Info("Watchlist created", zap.String("watchlist_id", w.ID), zap.Int("symbols", len(w.Items)))
	return s.Get(ctx, userID, w.ID)
}

// List returns the user's watchlists.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]models.Watchlist, error) {
	lists, err := s.store.ListWatchlists(ctx, userID)
	return lists, fromStore(err)
}

// Get returns the watchlist if userID owns it.
func (s *WatchlistService) Get(ctx context.Context, userID, id string) (*models.Watchlist, error) {
	w, err := s.store.GetWatchlist(ctx, id)
	if err != nil {
		return nil, fromStore(err)
	}
	if w.UserID != userID {
		return nil, fmt.Errorf("%w: watchlist %s", ErrNotFound, id)
	}
	return w, nil
}

// Delete removes a watchlist and its symbols.
func (s *WatchlistService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return fromStore(s.store.DeleteWatchlist(ctx, id))
}

// AddSymbol normalizes symbol and adds it to the watchlist.
func (s *WatchlistService) AddSymbol(ctx context.Context, userID, id, symbol string) (*models.Watchlist, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	symbol = quotes.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, invalid("symbol", "must not be empty")
	}
	if err := s.store.AddWatchlistItem(ctx, &models.WatchlistItem{WatchlistID: id, Symbol: symbol}); err != nil {
		return nil, fromStore(err)
	}
	return s.Get(ctx, userID, id)
}

// RemoveSymbol drops symbol from the watchlist.
func (s *WatchlistService) RemoveSymbol(ctx context.Context, userID, id, symbol string) (*models.Watchlist, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.store.RemoveWatchlistItem(ctx, id, quotes.NormalizeSymbol(symbol)); err != nil {
		return nil, fromStore(err)
	}
	return s.Get(ctx, userID, id)
}

// Quotes fetches a quote for every symbol on the watchlist. Symbols that
// could not be fetched are listed in Missing; quotes.ErrSourceUnavailable
// is returned when none could be reached.
func (s *WatchlistService) Quotes(ctx context.Context, userID, id string) (*WatchlistQuotes, error) {
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(w.Items))
	for i, item := range w.Items {
		symbols[i] = item.Symbol
	}

	batch, err := s.fetcher.Fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}

	out := &WatchlistQuotes{
		Watchlist: *w,
		Quotes:    make([]valuation.Quote, 0, len(batch.Quotes)),
		Missing:   batch.Missing(),
	}
	for _, q := range batch.Quotes {
		out.Quotes = append(out.Quotes, q)
	}
	sort.Slice(out.Quotes, func(i, j int) bool { return out.Quotes[i].Symbol < out.Quotes[j].Symbol })
	return out, nil
}
