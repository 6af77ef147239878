package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolio-tracker/internal/models"
)

// MemoryStore is a Store kept in process memory. It is safe for concurrent
// use and returns copies, never references to its own rows.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	users      map[string]models.User
	portfolios map[string]models.Portfolio
	positions  map[string]models.Position
	watchlists map[string]models.Watchlist
	items      map[string]models.WatchlistItem
	settings   map[string]models.Setting
}

// ensure MemoryStore implements the interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		users:      make(map[string]models.User),
		portfolios: make(map[string]models.Portfolio),
		positions:  make(map[string]models.Position),
		watchlists: make(map[string]models.Watchlist),
		items:      make(map[string]models.WatchlistItem),
		settings:   make(map[string]models.Setting),
	}
}

// stamp fills in the ID and timestamps of a new row.
func (s *MemoryStore) stamp(b *models.Base) {
	if b.ID == "" {
		b.ID = models.NewID()
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
}

func byCreation(a, b models.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.APIToken == u.APIToken {
			return fmt.Errorf("create user %q: %w", u.Username, ErrConflict)
		}
	}
	s.stamp(&u.Base)
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.APIToken == token {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user by token: %w", ErrNotFound)
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return byCreation(users[i].Base, users[j].Base) })
	return users, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("delete user: %w", ErrNotFound)
	}
	for pid, p := range s.portfolios {
		if p.UserID == id {
			s.deletePortfolioLocked(pid)
		}
	}
	for wid, w := range s.watchlists {
		if w.UserID == id {
			s.deleteWatchlistLocked(wid)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stamp(&p.Base)
	s.portfolios[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("get portfolio: %w", ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) ListPortfolios(ctx context.Context, userID string) ([]models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	portfolios := make([]models.Portfolio, 0)
	for _, p := range s.portfolios {
		if p.UserID == userID {
			portfolios = append(portfolios, p)
		}
	}
	sort.Slice(portfolios, func(i, j int) bool { return byCreation(portfolios[i].Base, portfolios[j].Base) })
	return portfolios, nil
}

func (s *MemoryStore) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.portfolios[p.ID]
	if !ok {
		return fmt.Errorf("update portfolio: %w", ErrNotFound)
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.UpdatedAt = s.now()
	s.portfolios[p.ID] = existing
	return nil
}

func (s *MemoryStore) DeletePortfolio(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[id]; !ok {
		return fmt.Errorf("delete portfolio: %w", ErrNotFound)
	}
	s.deletePortfolioLocked(id)
	return nil
}

func (s *MemoryStore) deletePortfolioLocked(id string) {
	for posID, pos := range s.positions {
		if pos.PortfolioID == id {
			delete(s.positions, posID)
		}
	}
	delete(s.portfolios, id)
}

func (s *MemoryStore) AddPosition(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[p.PortfolioID]; !ok {
		return fmt.Errorf("add position to portfolio %q: %w", p.PortfolioID, ErrNotFound)
	}
	s.stamp(&p.Base)
	s.positions[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("get position: %w", ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) ListPositions(ctx context.Context, portfolioID string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]models.Position, 0)
	for _, p := range s.positions {
		if p.PortfolioID == portfolioID {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		return byCreation(a.Base, b.Base)
	})
	return positions, nil
}

func (s *MemoryStore) UpdatePosition(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.positions[p.ID]
	if !ok {
		return fmt.Errorf("update position: %w", ErrNotFound)
	}
	existing.Symbol = p.Symbol
	existing.Shares = p.Shares
	existing.PurchasePrice = p.PurchasePrice
	existing.PurchaseDate = p.PurchaseDate
	existing.Notes = p.Notes
	existing.UpdatedAt = s.now()
	s.positions[p.ID] = existing
	return nil
}

func (s *MemoryStore) DeletePosition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return fmt.Errorf("delete position: %w", ErrNotFound)
	}
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) CreateWatchlist(ctx context.Context, w *models.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stamp(&w.Base)
	for i := range w.Items {
		w.Items[i].WatchlistID = w.ID
		s.stamp(&w.Items[i].Base)
		s.items[w.Items[i].ID] = w.Items[i]
	}
	stored := *w
	stored.Items = nil
	s.watchlists[w.ID] = stored
	return nil
}

// withItemsLocked returns a copy of w carrying its items sorted by symbol.
func (s *MemoryStore) withItemsLocked(w models.Watchlist) models.Watchlist {
	items := make([]models.WatchlistItem, 0)
	for _, item := range s.items {
		if item.WatchlistID == w.ID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Symbol < items[j].Symbol })
	w.Items = items
	return w
}

func (s *MemoryStore) GetWatchlist(ctx context.Context, id string) (*models.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.watchlists[id]
	if !ok {
		return nil, fmt.Errorf("get watchlist: %w", ErrNotFound)
	}
	w = s.withItemsLocked(w)
	return &w, nil
}

func (s *MemoryStore) ListWatchlists(ctx context.Context, userID string) ([]models.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lists := make([]models.Watchlist, 0)
	for _, w := range s.watchlists {
		if w.UserID == userID {
			lists = append(lists, s.withItemsLocked(w))
		}
	}
	sort.Slice(lists, func(i, j int) bool { return byCreation(lists[i].Base, lists[j].Base) })
	return lists, nil
}

func (s *MemoryStore) DeleteWatchlist(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.watchlists[id]; !ok {
		return fmt.Errorf("delete watchlist: %w", ErrNotFound)
	}
	s.deleteWatchlistLocked(id)
	return nil
}

func (s *MemoryStore) deleteWatchlistLocked(id string) {
	for itemID, item := range s.items {
		if item.WatchlistID == id {
			delete(s.items, itemID)
		}
	}
	delete(s.watchlists, id)
}

func (s *MemoryStore) AddWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.watchlists[item.WatchlistID]; !ok {
		return fmt.Errorf("add item to watchlist %q: %w", item.WatchlistID, ErrNotFound)
	}
	for _, existing := range s.items {
		if existing.WatchlistID == item.WatchlistID && existing.Symbol == item.Symbol {
			return fmt.Errorf("add %s to watchlist: %w", item.Symbol, ErrConflict)
		}
	}
	s.stamp(&item.Base)
	s.items[item.ID] = *item
	return nil
}

func (s *MemoryStore) RemoveWatchlistItem(ctx context.Context, watchlistID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range s.items {
		if item.WatchlistID == watchlistID && item.Symbol == symbol {
			delete(s.items, id)
			return nil
		}
	}
	return fmt.Errorf("remove watchlist item: %w", ErrNotFound)
}

func (s *MemoryStore) ListSettings(ctx context.Context) ([]models.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := make([]models.Setting, 0, len(s.settings))
	for _, setting := range s.settings {
		settings = append(settings, setting)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

func (s *MemoryStore) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, ok := s.settings[key]
	if !ok {
		return nil, fmt.Errorf("get setting: %w", ErrNotFound)
	}
	return &setting, nil
}

func (s *MemoryStore) PutSetting(ctx context.Context, setting *models.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	setting.UpdatedAt = s.now()
	s.settings[setting.Key] = *setting
	return nil
}
