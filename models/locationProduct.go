package models

import "time"

// LocationProduct is the current price snapshot of one product at one
// location. The whole table is replaced on every successful feed
// reconciliation; it carries no history.
type LocationProduct struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ProductId  int       `gorm:"not null;uniqueIndex:uix_product_location" json:"product_id"`
	LocationId int       `gorm:"not null;uniqueIndex:uix_product_location" json:"location_id"`
	Price      int       `gorm:"not null" json:"price"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
