package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/kedaipet/storefront/internal/pricing"
)

// Mock implements Provider with an in-process simulator so the full checkout
// flow works without a gateway account. The redirect points at the
// storefront's own simulator endpoint and the customer picks the outcome.
type Mock struct {
	SimulatorURL string
}

// Name identifies the provider in logs and metrics.
func (m Mock) Name() string { return "mock" }

// CreateCheckout returns a redirect into the local payment simulator.
func (m Mock) CreateCheckout(_ context.Context, req CheckoutRequest) (CheckoutRedirect, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutRedirect{}, errors.New("order id is required")
	}
	if req.Amount <= 0 {
		return CheckoutRedirect{}, errors.New("amount must be positive")
	}
	url := m.SimulatorURL
	if url == "" {
		url = "/api/payment/mock"
	}
	return CheckoutRedirect{
		Provider: m.Name(),
		URL:      url,
		Method:   "GET",
		Params: map[string]string{
			"order_id": req.OrderID,
			"amount":   strconv.FormatInt(int64(req.Amount), 10),
		},
	}, nil
}

// VerifyReturn trusts the simulator's outcome; there is no signature to check.
func (m Mock) VerifyReturn(params map[string]string) ReturnResult {
	orderID := strings.TrimSpace(params["order_id"])
	if orderID == "" {
		return ReturnResult{Err: errors.New("missing order id")}
	}
	amount, _ := strconv.ParseInt(strings.TrimSpace(params["amount"]), 10, 64)
	return ReturnResult{
		Valid:   true,
		OrderID: orderID,
		Amount:  pricing.Money(amount),
		Status:  normaliseStatus(params["status"]),
	}
}
