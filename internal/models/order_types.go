package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle marker on an Order, independent of PaymentStatus.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Order is the model for the 'orders' table.
// The total is never stored; see Total.
type Order struct {
	ID        int64       `json:"id" db:"id"`
	UserID    int64       `json:"userId" db:"user_id"`
	Status    OrderStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`

	// Joins (Not in DB table, populated manually)
	Username string      `json:"username,omitempty" db:"-"`
	Items    []OrderItem `json:"items" db:"-"`
	Payment  *Payment    `json:"payment,omitempty" db:"-"`
}

// Total is the sum of price x quantity over the order's items, computed at read time.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(2)
}

// HasPayment reports whether a Payment row exists for the order.
func (o *Order) HasPayment() bool {
	return o.Payment != nil
}

// OrderItem is the model for the 'order_items' table.
type OrderItem struct {
	ID        int64 `json:"id" db:"id"`
	OrderID   int64 `json:"orderId" db:"order_id"`
	ProductID int64 `json:"productId" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`

	// Flattened product fields (populated manually from the join)
	ProductName  string          `json:"productName" db:"-"`
	ProductPrice decimal.Decimal `json:"productPrice" db:"-"`
}

// Subtotal is the line total using the product's current price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.ProductPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
