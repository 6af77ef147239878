package models

// User is an account holder. Requests authenticate with APIToken.
type User struct {
	Base
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `json:"email"`
	APIToken string `gorm:"uniqueIndex;not null" json:"-"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`
}
