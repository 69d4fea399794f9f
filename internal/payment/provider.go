package payment

import (
	"context"

	"github.com/kedaipet/storefront/internal/pricing"
)

// Normalised payment results.
const (
	StatusPaid    = "PAID"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// CheckoutRequest captures the information required to start a hosted payment
// for a submitted order.
type CheckoutRequest struct {
	OrderID     string
	Amount      pricing.Money
	Email       string
	Description string
}

// CheckoutRedirect tells the storefront client where to send the customer to
// pay. Method is GET for plain redirects and POST for auto-submitted forms.
type CheckoutRedirect struct {
	Provider string            `json:"provider"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Params   map[string]string `json:"params,omitempty"`
}

// ReturnResult is the verified outcome carried on the customer's return from
// the payment page.
type ReturnResult struct {
	Valid   bool
	OrderID string
	Amount  pricing.Money
	Status  string
	Err     error
}

// Provider abstracts the hosted payment integration.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutRedirect, error)
	VerifyReturn(params map[string]string) ReturnResult
}
