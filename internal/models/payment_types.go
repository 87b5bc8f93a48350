package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodMpesa PaymentMethod = "mpesa"
	MethodCard  PaymentMethod = "card"
	MethodCash  PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMpesa, MethodCard, MethodCash:
		return true
	}
	return false
}

// Offline methods are recorded as approved immediately, with no external call.
func (m PaymentMethod) Offline() bool {
	return m == MethodCash || m == MethodCard
}

// PaymentStatus is the lifecycle marker on a Payment, independent of OrderStatus.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// Payment is the model for the 'payments' table. order_id is UNIQUE: at most one per order.
type Payment struct {
	ID            int64           `json:"id" db:"id"`
	OrderID       int64           `json:"orderId" db:"order_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"method" db:"method"`
	Status        PaymentStatus   `json:"status" db:"status"`
	PaidAt        time.Time       `json:"paidAt" db:"paid_at"`
	TransactionID *string         `json:"transactionId,omitempty" db:"transaction_id"` // Gateway merchant reference for mpesa
}
