package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrVerificationUnavailable means no verifier is wired in, so gateway
	// callbacks cannot be trusted and must not change any payment.
	ErrVerificationUnavailable = errors.New("payment callback verification is not configured")

	// ErrAmountMismatch means the gateway confirmed a different amount than the one recorded.
	ErrAmountMismatch = errors.New("confirmed amount does not match the recorded payment")
)

// Confirmation is a gateway-confirmed outcome for one merchant reference.
type Confirmation struct {
	Reference  string
	TrackingID string
	Amount     decimal.Decimal
	Status     models.PaymentStatus
}

// CallbackVerifier authenticates an inbound gateway notification, typically by
// querying the gateway's status API with consumer credentials, and returns
// what the gateway itself reports. It must never trust query parameters alone.
type CallbackVerifier interface {
	Verify(ctx context.Context, r *http.Request) (*Confirmation, error)
}

// UnverifiedCallbacks is the default verifier. It refuses every callback.
type UnverifiedCallbacks struct{}

func (UnverifiedCallbacks) Verify(context.Context, *http.Request) (*Confirmation, error) {
	return nil, ErrVerificationUnavailable
}

// CheckAmount compares a confirmation against the recorded payment amount at 2dp.
func CheckAmount(conf *Confirmation, recorded decimal.Decimal) error {
	if !conf.Amount.Round(2).Equal(recorded.Round(2)) {
		return ErrAmountMismatch
	}
	return nil
}
