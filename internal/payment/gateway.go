package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/kedaipet/storefront/internal/pricing"
)

// Gateway implements Provider for a hosted payment page that accepts an
// auto-submitted form and signs both legs with HMAC-SHA512.
type Gateway struct {
	MerchantCode string
	APIKey       string
	CheckoutURL  string
	ReturnURL    string
}

// Name identifies the provider in logs and metrics.
func (g Gateway) Name() string { return "gateway" }

// CreateCheckout builds the signed form the storefront client auto-submits to
// the hosted payment page. Amounts stay in sen end to end.
func (g Gateway) CreateCheckout(_ context.Context, req CheckoutRequest) (CheckoutRedirect, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutRedirect{}, errors.New("order id is required")
	}
	if req.Amount <= 0 {
		return CheckoutRedirect{}, errors.New("amount must be positive")
	}
	if strings.TrimSpace(g.APIKey) == "" || strings.TrimSpace(g.CheckoutURL) == "" {
		return CheckoutRedirect{}, errors.New("gateway is not configured")
	}
	amount := strconv.FormatInt(int64(req.Amount), 10)
	params := map[string]string{
		"merchant_code": g.MerchantCode,
		"order_id":      req.OrderID,
		"amount":        amount,
		"email":         req.Email,
		"description":   req.Description,
		"return_url":    g.ReturnURL,
		"signature":     g.sign(g.MerchantCode, req.OrderID, amount),
	}
	return CheckoutRedirect{
		Provider: g.Name(),
		URL:      g.CheckoutURL,
		Method:   "POST",
		Params:   params,
	}, nil
}

// VerifyReturn validates the signature on the customer's return and
// normalises the gateway status.
func (g Gateway) VerifyReturn(params map[string]string) ReturnResult {
	orderID := strings.TrimSpace(params["order_id"])
	status := strings.TrimSpace(params["status"])
	amount := strings.TrimSpace(params["amount"])
	provided := strings.TrimSpace(params["signature"])

	if orderID == "" {
		return ReturnResult{Err: errors.New("missing order id")}
	}
	expected := g.sign(status, orderID, amount)
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return ReturnResult{OrderID: orderID, Err: errors.New("invalid signature")}
	}

	parsed, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return ReturnResult{OrderID: orderID, Err: err}
	}
	return ReturnResult{
		Valid:   true,
		OrderID: orderID,
		Amount:  pricing.Money(parsed),
		Status:  normaliseStatus(status),
	}
}

func (g Gateway) sign(parts ...string) string {
	key := strings.TrimSpace(g.APIKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha512.New, []byte(key))
	for _, part := range parts {
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "paid", "settlement", "capture":
		return StatusPaid
	case "pending", "authorize":
		return StatusPending
	default:
		return StatusFailed
	}
}
