package storage

import (
	"context"
	"errors"
	"fmt"

	"portfolio-tracker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a Store backed by a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

// ensure GormStore implements the interface
var _ Store = (*GormStore)(nil)

// NewGormStore wraps an open, migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// translate maps gorm errors onto the storage errors.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// requireRows turns a zero-row update or delete into ErrNotFound.
func requireRows(tx *gorm.DB, what string) error {
	if tx.Error != nil {
		return translate(tx.Error, what)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// CreateUser inserts u, rejecting a duplicate username or API token with ErrConflict.
func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).
			Where("username = ? OR api_token = ?", u.Username, u.APIToken).
			Count(&n).Error; err != nil {
			return translate(err, "create user")
		}
		if n > 0 {
			return fmt.Errorf("create user %q: %w", u.Username, ErrConflict)
		}
		return translate(tx.Create(u).Error, "create user")
	})
}

// GetUser returns the user with the given ID.
func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

// GetUserByToken returns the user owning token.
func (s *GormStore) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "api_token = ?", token).Error; err != nil {
		return nil, translate(err, "get user by token")
	}
	return &u, nil
}

// ListUsers returns all users in creation order.
func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&users).Error; err != nil {
		return nil, translate(err, "list users")
	}
	return users, nil
}

// DeleteUser removes a user along with their portfolios, positions and watchlists.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		portfolioIDs := tx.Model(&models.Portfolio{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("portfolio_id IN (?)", portfolioIDs).Delete(&models.Position{}).Error; err != nil {
			return translate(err, "delete user positions")
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Portfolio{}).Error; err != nil {
			return translate(err, "delete user portfolios")
		}

		watchlistIDs := tx.Model(&models.Watchlist{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("watchlist_id IN (?)", watchlistIDs).Delete(&models.WatchlistItem{}).Error; err != nil {
			return translate(err, "delete user watchlist items")
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Watchlist{}).Error; err != nil {
			return translate(err, "delete user watchlists")
		}

		return requireRows(tx.Delete(&models.User{}, "id = ?", id), "delete user")
	})
}

// CreatePortfolio inserts p.
func (s *GormStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	return translate(s.db.WithContext(ctx).Create(p).Error, "create portfolio")
}

// GetPortfolio returns the portfolio with the given ID.
func (s *GormStore) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get portfolio")
	}
	return &p, nil
}

// ListPortfolios returns a user's portfolios in creation order.
func (s *GormStore) ListPortfolios(ctx context.Context, userID string) ([]models.Portfolio, error) {
	var portfolios []models.Portfolio
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, id").Find(&portfolios).Error; err != nil {
		return nil, translate(err, "list portfolios")
	}
	return portfolios, nil
}

// UpdatePortfolio writes p's name and description.
func (s *GormStore) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	tx := s.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{"name": p.Name, "description": p.Description})
	return requireRows(tx, "update portfolio")
}

// DeletePortfolio removes a portfolio and its positions.
func (s *GormStore) DeletePortfolio(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", id).Delete(&models.Position{}).Error; err != nil {
			return translate(err, "delete portfolio positions")
		}
		return requireRows(tx.Delete(&models.Portfolio{}, "id = ?", id), "delete portfolio")
	})
}

// AddPosition inserts p, or returns ErrNotFound if its portfolio does not exist.
func (s *GormStore) AddPosition(ctx context.Context, p *models.Position) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Portfolio{}).Where("id = ?", p.PortfolioID).Count(&n).Error; err != nil {
			return translate(err, "add position")
		}
		if n == 0 {
			return fmt.Errorf("add position to portfolio %q: %w", p.PortfolioID, ErrNotFound)
		}
		return translate(tx.Create(p).Error, "add position")
	})
}

// GetPosition returns the position with the given ID.
func (s *GormStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	var p models.Position
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get position")
	}
	return &p, nil
}

// ListPositions returns a portfolio's positions ordered by purchase date.
func (s *GormStore) ListPositions(ctx context.Context, portfolioID string) ([]models.Position, error) {
	var positions []models.Position
	if err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("purchase_date, created_at, id").
		Find(&positions).Error; err != nil {
		return nil, translate(err, "list positions")
	}
	return positions, nil
}

// UpdatePosition writes p's editable fields.
func (s *GormStore) UpdatePosition(ctx context.Context, p *models.Position) error {
	tx := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"symbol":         p.Symbol,
			"shares":         p.Shares,
			"purchase_price": p.PurchasePrice,
			"purchase_date":  p.PurchaseDate,
			"notes":          p.Notes,
		})
	return requireRows(tx, "update position")
}

// DeletePosition removes one position.
func (s *GormStore) DeletePosition(ctx context.Context, id string) error {
	return requireRows(s.db.WithContext(ctx).Delete(&models.Position{}, "id = ?", id), "delete position")
}

// CreateWatchlist inserts w and its items in one transaction.
func (s *GormStore) CreateWatchlist(ctx context.Context, w *models.Watchlist) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(w).Error; err != nil {
			return translate(err, "create watchlist")
		}
		for i := range w.Items {
			w.Items[i].WatchlistID = w.ID
			if err := tx.Create(&w.Items[i]).Error; err != nil {
				return translate(err, "create watchlist item")
			}
		}
		return nil
	})
}

func (s *GormStore) loadItems(tx *gorm.DB, lists []models.Watchlist) error {
	if len(lists) == 0 {
		return nil
	}
	ids := make([]string, len(lists))
	for i, w := range lists {
		ids[i] = w.ID
	}

	var items []models.WatchlistItem
	if err := tx.Where("watchlist_id IN ?", ids).Order("symbol").Find(&items).Error; err != nil {
		return err
	}

	byList := make(map[string][]models.WatchlistItem, len(lists))
	for _, item := range items {
		byList[item.WatchlistID] = append(byList[item.WatchlistID], item)
	}
	for i := range lists {
		lists[i].Items = byList[lists[i].ID]
		if lists[i].Items == nil {
			lists[i].Items = []models.WatchlistItem{}
		}
	}
	return nil
}

// GetWatchlist returns a watchlist with its items sorted by symbol.
func (s *GormStore) GetWatchlist(ctx context.Context, id string) (*models.Watchlist, error) {
	tx := s.db.WithContext(ctx)
	var w models.Watchlist
	if err := tx.First(&w, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get watchlist")
	}
	lists := []models.Watchlist{w}
	if err := s.loadItems(tx, lists); err != nil {
		return nil, translate(err, "get watchlist items")
	}
	return &lists[0], nil
}

// ListWatchlists returns a user's watchlists in creation order, items included.
func (s *GormStore) ListWatchlists(ctx context.Context, userID string) ([]models.Watchlist, error) {
	tx := s.db.WithContext(ctx)
	var lists []models.Watchlist
	if err := tx.Where("user_id = ?", userID).Order("created_at, id").Find(&lists).Error; err != nil {
		return nil, translate(err, "list watchlists")
	}
	if err := s.loadItems(tx, lists); err != nil {
		return nil, translate(err, "list watchlist items")
	}
	return lists, nil
}

// DeleteWatchlist removes a watchlist and its items.
func (s *GormStore) DeleteWatchlist(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("watchlist_id = ?", id).Delete(&models.WatchlistItem{}).Error; err != nil {
			return translate(err, "delete watchlist items")
		}
		return requireRows(tx.Delete(&models.Watchlist{}, "id = ?", id), "delete watchlist")
	})
}

// AddWatchlistItem adds a symbol to a watchlist. A symbol already present is ErrConflict.
func (s *GormStore) AddWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Watchlist{}).Where("id = ?", item.WatchlistID).Count(&n).Error; err != nil {
			return translate(err, "add watchlist item")
		}
		if n == 0 {
			return fmt.Errorf("add item to watchlist %q: %w", item.WatchlistID, ErrNotFound)
		}
		if err := tx.Model(&models.WatchlistItem{}).
			Where("watchlist_id = ? AND symbol = ?", item.WatchlistID, item.Symbol).
			Count(&n).Error; err != nil {
			return translate(err, "add watchlist item")
		}
		if n > 0 {
			return fmt.Errorf("add %s to watchlist: %w", item.Symbol, ErrConflict)
		}
		return translate(tx.Create(item).Error, "add watchlist item")
	})
}

// RemoveWatchlistItem removes symbol from a watchlist.
func (s *GormStore) RemoveWatchlistItem(ctx context.Context, watchlistID, symbol string) error {
	tx := s.db.WithContext(ctx).
		Where("watchlist_id = ? AND symbol = ?", watchlistID, symbol).
		Delete(&models.WatchlistItem{})
	return requireRows(tx, "remove watchlist item")
}

// ListSettings returns all settings ordered by key.
func (s *GormStore) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	if err := s.db.WithContext(ctx).Order("key").Find(&settings).Error; err != nil {
		return nil, translate(err, "list settings")
	}
	return settings, nil
}

// GetSetting returns the setting stored under key.
func (s *GormStore) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		return nil, translate(err, "get setting")
	}
	return &setting, nil
}

// PutSetting inserts setting or overwrites the value stored under its key.
func (s *GormStore) PutSetting(ctx context.Context, setting *models.Setting) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
	return translate(err, "put setting")
}
