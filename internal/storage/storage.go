// Package storage persists users, portfolios, positions, watchlists and
// settings behind repository interfaces. Identifiers are generated by the
// store on insert.
package storage

import (
	"context"
	"errors"

	"portfolio-tracker/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness rule.
	ErrConflict = errors.New("already exists")
)

// Users stores account holders.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// DeleteUser removes the user with all of their portfolios and watchlists.
	DeleteUser(ctx context.Context, id string) error
}

// Portfolios stores portfolios without their positions.
type Portfolios interface {
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, userID string) ([]models.Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *models.Portfolio) error
	// DeletePortfolio removes the portfolio and its positions.
	DeletePortfolio(ctx context.Context, id string) error
}

// Positions stores the lots of a portfolio.
type Positions interface {
	AddPosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	// ListPositions returns the positions of a portfolio ordered by purchase date.
	ListPositions(ctx context.Context, portfolioID string) ([]models.Position, error)
	UpdatePosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, id string) error
}

// Watchlists stores watchlists together with their items.
type Watchlists interface {
	CreateWatchlist(ctx context.Context, w *models.Watchlist) error
	GetWatchlist(ctx context.Context, id string) (*models.Watchlist, error)
	ListWatchlists(ctx context.Context, userID string) ([]models.Watchlist, error)
	// DeleteWatchlist removes the watchlist and its items.
	DeleteWatchlist(ctx context.Context, id string) error
	AddWatchlistItem(ctx context.Context, item *models.WatchlistItem) error
	RemoveWatchlistItem(ctx context.Context, watchlistID, symbol string) error
}

// Settings stores key/value application settings.
type Settings interface {
	ListSettings(ctx context.Context) ([]models.Setting, error)
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	PutSetting(ctx context.Context, s *models.Setting) error
}

// Store aggregates every repository.
type Store interface {
	Users
	Portfolios
	Positions
	Watchlists
	Settings
}
