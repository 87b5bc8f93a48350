package payments

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway builds redirect URLs for the PesaPal direct-order page.
// The redirect is unsigned: the gateway receives plaintext query parameters.
type Gateway struct {
	PostURL  string
	Currency string
}

// Checkout is the data embedded in one redirect.
type Checkout struct {
	OrderID     int64
	Amount      decimal.Decimal
	Reference   string
	FirstName   string
	LastName    string
	Email       string
	CallbackURL string
}

// NewReference returns a fresh merchant reference for one checkout.
func NewReference() string {
	return uuid.NewString()
}

// RedirectURL returns the gateway URL carrying the checkout as query parameters.
func (g Gateway) RedirectURL(co Checkout) (string, error) {
	base, err := url.Parse(g.PostURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	if co.Reference == "" {
		return "", fmt.Errorf("checkout for order %d has no reference", co.OrderID)
	}

	params := url.Values{}
	params.Set("amount", co.Amount.StringFixed(2))
	params.Set("description", fmt.Sprintf("Order #%d payment", co.OrderID))
	params.Set("type", "MERCHANT")
	params.Set("reference", co.Reference)
	params.Set("first_name", co.FirstName)
	params.Set("last_name", co.LastName)
	params.Set("email", co.Email)
	params.Set("currency", g.Currency)
	params.Set("callback_url", co.CallbackURL)

	base.RawQuery = params.Encode()
	return base.String(), nil
}
