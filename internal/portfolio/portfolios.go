package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/storage"
	"portfolio-tracker/internal/valuation"
	"go.uber.org/zap"
)

// QuoteFetcher fetches quotes for a set of symbols. *quotes.BatchFetcher
// satisfies it.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbols []string) (*quotes.Batch, error)
}

var _ QuoteFetcher = (*quotes.BatchFetcher)(nil)

// Report is a valuation of one portfolio at a point in time.
type Report struct {
	Portfolio models.Portfolio
	Valuation valuation.PortfolioValuation
	// MissingSymbols lists the symbols valued at their purchase price.
	MissingSymbols []string
	Warnings       []string
	// Degraded is set when the quote source was unreachable and every
	// position was valued at its purchase price.
	Degraded bool
	AsOf     time.Time
}

// AllocationReport groups a Report's positions by symbol.
type AllocationReport struct {
	Report
	Symbols []valuation.SymbolAllocation
}

// PositionInput is a new purchase lot.
type PositionInput struct {
	Symbol        string
	Shares        float64
	PurchasePrice float64
	PurchaseDate  time.Time
	Notes         string
}

// PositionUpdate changes the non-nil fields of a position.
type PositionUpdate struct {
	Symbol        *string
	Shares        *float64
	PurchasePrice *float64
	PurchaseDate  *time.Time
	Notes         *string
}

// PortfolioUpdate changes the non-nil fields of a portfolio.
type PortfolioUpdate struct {
	Name        *string
	Description *string
}

// PortfolioService manages portfolios and values them against live quotes.
type PortfolioService struct {
	store   storage.Store
	fetcher QuoteFetcher
	cfg     config.Quotes
	logger  *zap.Logger
	now     func() time.Time
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(store storage.Store, fetcher QuoteFetcher, cfg config.Quotes, logger *zap.Logger) *PortfolioService {
	return &PortfolioService{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.Named("portfolio"),
		now:     time.Now,
	}
}

// Create adds a portfolio owned by userID.
func (s *PortfolioService) Create(ctx context.Context, userID, name, description string) (*models.Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	p := &models.Portfolio{UserID: userID, Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, fromStore(err)
	}
	s.logger.Info("Portfolio created", zap.String("portfolio_id", p.ID), zap.String("user_id", userID))
	return p, nil
}

// List returns the user's portfolios.
func (s *PortfolioService) List(ctx context.Context, userID string) ([]models.Portfolio, error) {
	list, err := s.store.ListPortfolios(ctx, userID)
	return list, fromStore(err)
}

// Get returns the portfolio if userID owns it.
func (s *PortfolioService) Get(ctx context.Context, userID, id string) (*models.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return nil, fromStore(err)
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	return p, nil
}

// Update applies the non-nil fields of upd.
func (s *PortfolioService) Update(ctx context.Context, userID, id string, upd PortfolioUpdate) (*models.Portfolio, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		p.Name = name
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, fromStore(err)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the portfolio together with its positions.
func (s *PortfolioService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeletePortfolio(ctx, id); err != nil {
		return fromStore(err)
	}
	s.logger.Info("Portfolio deleted", zap.String("portfolio_id", id))
	return nil
}

// Positions returns the positions of an owned portfolio ordered by
// purchase date.
func (s *PortfolioService) Positions(ctx context.Context, userID, portfolioID string) ([]models.Position, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositions(ctx, portfolioID)
	return positions, fromStore(err)
}

func (s *PortfolioService) validatePosition(p *models.Position) error {
	if p.Symbol == "" {
		return invalid("symbol", "must not be empty")
	}
	if !(p.Shares > 0) || math.IsInf(p.Shares, 0) {
		return invalid("shares", "must be a positive number, got %v", p.Shares)
	}
	if !(p.PurchasePrice > 0) || math.IsInf(p.PurchasePrice, 0) {
		return invalid("purchase_price", "must be a positive number, got %v", p.PurchasePrice)
	}
	if cost := p.Shares * p.PurchasePrice; !(cost > 0) || math.IsInf(cost, 0) {
		return invalid("shares", "shares times purchase_price is out of range (%v x %v)", p.Shares, p.PurchasePrice)
	}
	if p.PurchaseDate.IsZero() {
		return invalid("purchase_date", "is required")
	}
	if p.PurchaseDate.After(s.now()) {
		return invalid("purchase_date", "must not be in the future")
	}
	return nil
}

// AddPosition validates in and records it as a new lot in the portfolio.
func (s *PortfolioService) AddPosition(ctx context.Context, userID, portfolioID string, in PositionInput) (*models.Position, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	p := &models.Position{
		PortfolioID:   portfolioID,
		Symbol:        quotes.NormalizeSymbol(in.Symbol),
		Shares:        in.Shares,
		PurchasePrice: in.PurchasePrice,
		PurchaseDate:  in.PurchaseDate.UTC(),
		Notes:         strings.TrimSpace(in.Notes),
	}
	if err := s.validatePosition(p); err != nil {
		return nil, err
	}
	if err := s.store.AddPosition(ctx, p); err != nil {
		return nil, fromStore(err)
	}
	s.logger.Info("Position added",
		zap.String("portfolio_id", portfolioID),
		zap.String("symbol", p.Symbol),
		zap.Float64("shares", p.Shares),
	)
	return p, nil
}

// ownedPosition loads a position and checks that it sits in an owned
// portfolio.
func (s *PortfolioService) ownedPosition(ctx context.Context, userID, portfolioID, positionID string) (*models.Position, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	p, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fromStore(err)
	}
	if p.PortfolioID != portfolioID {
		return nil, fmt.Errorf("%w: position %s", ErrNotFound, positionID)
	}
	return p, nil
}

// UpdatePosition applies the non-nil fields of upd and revalidates the lot.
func (s *PortfolioService) UpdatePosition(ctx context.Context, userID, portfolioID, positionID string, upd PositionUpdate) (*models.Position, error) {
	p, err := s.ownedPosition(ctx, userID, portfolioID, positionID)
	if err != nil {
		return nil, err
	}
	if upd.Symbol != nil {
		p.Symbol = quotes.NormalizeSymbol(*upd.Symbol)
	}
	if upd.Shares != nil {
		p.Shares = *upd.Shares
	}
	if upd.PurchasePrice != nil {
		p.PurchasePrice = *upd.PurchasePrice
	}
	if upd.PurchaseDate != nil {
		p.PurchaseDate = upd.PurchaseDate.UTC()
	}
	if upd.Notes != nil {
		p.Notes = strings.TrimSpace(*upd.Notes)
	}
	if err := s.validatePosition(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePosition(ctx, p); err != nil {
		return nil, fromStore(err)
	}
	updated, err := s.store.GetPosition(ctx, positionID)
	return updated, fromStore(err)
}

// RemovePosition deletes one lot from the portfolio.
func (s *PortfolioService) RemovePosition(ctx context.Context, userID, portfolioID, positionID string) error {
	if _, err := s.ownedPosition(ctx, userID, portfolioID, positionID); err != nil {
		return err
	}
	if err := s.store.DeletePosition(ctx, positionID); err != nil {
		return fromStore(err)
	}
	s.logger.Info("Position removed", zap.String("portfolio_id", portfolioID), zap.String("position_id", positionID))
	return nil
}

func toValuationPositions(rows []models.Position) []valuation.Position {
	out := make([]valuation.Position, len(rows))
	for i, r := range rows {
		out[i] = valuation.Position{
			ID:            r.ID,
			PortfolioID:   r.PortfolioID,
			Symbol:        r.Symbol,
			Shares:        r.Shares,
			PurchasePrice: r.PurchasePrice,
			PurchaseDate:  r.PurchaseDate,
			Notes:         r.Notes,
		}
	}
	return out
}

// Valuate loads the portfolio's positions, fetches a quote for each distinct
// symbol and values the portfolio. Symbols without a quote are valued at
// their purchase price and listed in MissingSymbols.
//
// When the quote source is unreachable for every symbol the call either
// fails with quotes.ErrSourceUnavailable or, with degrade_on_unavailable
// set, returns a Degraded report valued entirely at purchase prices.
func (s *PortfolioService) Valuate(ctx context.Context, userID, portfolioID string) (*Report, error) {
	p, err := s.Get(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListPositions(ctx, portfolioID)
	if err != nil {
		return nil, fromStore(err)
	}
	positions := toValuationPositions(rows)

	symbols := make([]string, len(positions))
	for i, pos := range positions {
		symbols[i] = pos.Symbol
	}
	distinct := quotes.Distinct(symbols)

	report := &Report{Portfolio: *p, MissingSymbols: []string{}, Warnings: []string{}}

	batch, err := s.fetcher.Fetch(ctx, distinct)
	switch {
	case err == nil:
		report.MissingSymbols = batch.Missing()
	case errors.Is(err, quotes.ErrSourceUnavailable) && s.cfg.DegradeOnUnavailable:
		s.logger.Warn("Quote source unavailable, valuing at purchase prices",
			zap.String("portfolio_id", portfolioID), zap.Error(err))
		batch = &quotes.Batch{Quotes: map[string]valuation.Quote{}}
		report.Degraded = true
		report.MissingSymbols = distinct
		report.Warnings = append(report.Warnings, "quote source unavailable; all positions are valued at purchase price")
	default:
		return nil, err
	}

	dropped := dropOverflowingQuotes(positions, batch.Quotes)
	if len(dropped) > 0 {
		s.logger.Warn("Quotes overflow position value, valuing at purchase price",
			zap.String("portfolio_id", portfolioID), zap.Strings("symbols", dropped))
		report.MissingSymbols = quotes.Distinct(append(report.MissingSymbols, dropped...))
	}

	v, err := valuation.Valuate(positions, batch.Quotes)
	if err != nil {
		return nil, fmt.Errorf("valuate portfolio %s: %w", portfolioID, err)
	}
	if !finite(v.TotalValue) || !finite(v.TotalCostBasis) {
		return nil, fmt.Errorf("%w: portfolio %s totals overflow", ErrOutOfRange, portfolioID)
	}
	report.Valuation = v
	report.AsOf = s.now().UTC()

	if !report.Degraded && len(distinct) > 0 {
		ratio := float64(len(report.MissingSymbols)) / float64(len(distinct))
		if ratio > s.cfg.StaleWarningRatio {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"%d of %d symbols have no current quote; their positions are valued at purchase price",
				len(report.MissingSymbols), len(distinct)))
		}
	}

	s.logger.Debug("Portfolio valued",
		zap.String("portfolio_id", portfolioID),
		zap.Int("positions", len(positions)),
		zap.Int("missing", len(report.MissingSymbols)),
		zap.Float64("total_value", v.TotalValue),
	)
	return report, nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// dropOverflowingQuotes removes quotes whose price times a position's shares
// is not a finite number and returns their symbols, sorted. The affected
// positions then fall back to their purchase price.
func dropOverflowingQuotes(positions []valuation.Position, quoteMap map[string]valuation.Quote) []string {
	var dropped []string
	for _, p := range positions {
		q, ok := quoteMap[p.Symbol]
		if ok && !finite(q.Price*p.Shares) {
			delete(quoteMap, p.Symbol)
			dropped = append(dropped, p.Symbol)
		}
	}
	return quotes.Distinct(dropped)
}

// Allocation values the portfolio and groups the result by symbol.
func (s *PortfolioService) Allocation(ctx context.Context, userID, portfolioID string) (*AllocationReport, error) {
	report, err := s.Valuate(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	return &AllocationReport{Report: *report, Symbols: valuation.AllocationBySymbol(report.Valuation)}, nil
}

// Timeline returns cumulative invested capital by purchase day. It needs no
// quotes.
func (s *PortfolioService) Timeline(ctx context.Context, userID, portfolioID string) ([]valuation.TimelinePoint, error) {
	rows, err := s.Positions(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	points, err := valuation.InvestmentTimeline(toValuationPositions(rows))
	if err != nil {
		return nil, fmt.Errorf("timeline for portfolio %s: %w", portfolioID, err)
	}
	return points, nil
}
