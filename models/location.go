package models

import "time"

// Location is reconciled from the feed by address. Addresses are globally
// unique; phone is optional and unique when present (NULL rows may repeat).
type Location struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Address   string    `gorm:"size:255;not null;uniqueIndex" json:"address"`
	Phone     *string   `gorm:"size:50;uniqueIndex" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
