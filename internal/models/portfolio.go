package models

import "time"

// Portfolio is a named collection of positions owned by a user.
// Names need not be unique.
type Portfolio struct {
	Base
	UserID      string `gorm:"index;not null" json:"user_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description,omitempty"`
}

// Position is one purchase lot held in a portfolio.
type Position struct {
	Base
	PortfolioID   string    `gorm:"index;not null" json:"portfolio_id"`
	Symbol        string    `gorm:"index;not null" json:"symbol"`
	Shares        float64   `gorm:"not null" json:"shares"`
	PurchasePrice float64   `gorm:"not null" json:"purchase_price"`
	PurchaseDate  time.Time `gorm:"not null" json:"purchase_date"`
	Notes         string    `json:"notes,omitempty"`
}
