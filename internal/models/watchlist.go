package models

// Watchlist is a named set of symbols a user follows.
type Watchlist struct {
	Base
	UserID string          `gorm:"index;not null" json:"user_id"`
	Name   string          `gorm:"not null" json:"name"`
	Items  []WatchlistItem `gorm:"-" json:"items"`
}

// WatchlistItem is one symbol on a watchlist. A symbol appears at most once
// per watchlist.
type WatchlistItem struct {
	Base
	WatchlistID string `gorm:"uniqueIndex:idx_watchlist_symbol;not null" json:"watchlist_id"`
	Symbol      string `gorm:"uniqueIndex:idx_watchlist_symbol;not null" json:"symbol"`
}
