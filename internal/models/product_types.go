package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the model for the 'products' table.
// Price is DECIMAL(10,2); Quantity is stock on hand and is never decremented by orders.
type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description *string         `json:"description,omitempty" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Image       *string         `json:"image,omitempty" db:"image"` // Path relative to the uploads dir
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}
