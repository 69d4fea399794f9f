package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/resilience"
)

// ErrUnavailable indicates the commerce API could not be reached or returned
// a server error. Callers surface it as a page-level error; retries are
// user-initiated only.
var ErrUnavailable = errors.New("commerce api unavailable")

// Client is the typed HTTP client for the commerce API. All storefront reads
// and writes of durable state go through it; the bearer token on the request
// context is forwarded unchanged.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Logger  zerolog.Logger
}

// New constructs a Client around the provided http.Client with the configured
// retry and breaker behaviour.
func New(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("commerce-api"),
			Target:      "commerce-api",
			MaxAttempts: 2,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
		},
		Logger: logger,
	}
}

// Ping probes the API root for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/live", nil, nil)
}

// ValidateVoucher asks the voucher service to validate a code against the
// current subtotal and customer email. The service's rejection reason is
// surfaced verbatim.
func (c *Client) ValidateVoucher(ctx context.Context, req VoucherValidateRequest) (VoucherValidateResponse, error) {
	var out VoucherValidateResponse
	err := c.do(ctx, http.MethodPost, "/vouchers/validate", req, &out)
	return out, err
}

// Products lists catalog products with the provided filters.
func (c *Client) Products(ctx context.Context, q ProductQuery) (ProductList, error) {
	vals := url.Values{}
	if q.Category != "" {
		vals.Set("category", q.Category)
	}
	if q.PetType != "" {
		vals.Set("petType", q.PetType)
	}
	if q.Search != "" {
		vals.Set("search", q.Search)
	}
	if q.Page > 0 {
		vals.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/products"
	if encoded := vals.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out ProductList
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Product fetches a single product by id.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	var out Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Categories lists the product categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.do(ctx, http.MethodGet, "/products/categories", nil, &out)
	return out, err
}

// GetCart returns the caller's current cart.
func (c *Client) GetCart(ctx context.Context) (Cart, error) {
	var out Cart
	err := c.do(ctx, http.MethodGet, "/cart", nil, &out)
	return out, err
}

// AddCartItem adds a product to the cart and returns the updated cart.
func (c *Client) AddCartItem(ctx context.Context, productID string, qty int) (Cart, error) {
	var out Cart
	body := map[string]any{"product_id": productID, "quantity": qty}
	err := c.do(ctx, http.MethodPost, "/cart/items", body, &out)
	return out, err
}

// UpdateCartItem changes the quantity of a cart line and returns the updated cart.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, qty int) (Cart, error) {
	var out Cart
	body := map[string]any{"quantity": qty}
	err := c.do(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(itemID), body, &out)
	return out, err
}

// RemoveCartItem deletes a cart line and returns the updated cart.
func (c *Client) RemoveCartItem(ctx context.Context, itemID string) (Cart, error) {
	var out Cart
	err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil, &out)
	return out, err
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart", nil, nil)
}

// CreateOrder submits an order. Authenticated callers hit /orders, guests
// /orders/guest with their email in the payload.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, authenticated bool) (Order, error) {
	path := "/orders/guest"
	if authenticated {
		path = "/orders"
	}
	var wrapped struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &wrapped); err != nil {
		return Order{}, err
	}
	return wrapped.Order, nil
}

// Orders lists the authenticated customer's orders.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	var out struct {
		Orders []Order `json:"orders"`
	}
	err := c.do(ctx, http.MethodGet, "/orders", nil, &out)
	return out.Orders, err
}

// Order fetches a single order for the authenticated customer.
func (c *Client) Order(ctx context.Context, id string) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out)
	return out.Order, err
}

// GuestOrder retrieves a guest order by id and email for the confirmation page.
func (c *Client) GuestOrder(ctx context.Context, id, email string) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	path := "/orders/guest/" + url.PathEscape(id) + "?email=" + url.QueryEscape(email)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Order, err
}

// Addresses lists the authenticated customer's saved addresses.
func (c *Client) Addresses(ctx context.Context) ([]Address, error) {
	var out struct {
		Addresses []Address `json:"addresses"`
	}
	err := c.do(ctx, http.MethodGet, "/users/me/addresses", nil, &out)
	return out.Addresses, err
}

// CreateAddress saves a new address.
func (c *Client) CreateAddress(ctx context.Context, a Address) (Address, error) {
	var out struct {
		Address Address `json:"address"`
	}
	err := c.do(ctx, http.MethodPost, "/users/me/addresses", a, &out)
	return out.Address, err
}

// UpdateAddress mutates an existing address.
func (c *Client) UpdateAddress(ctx context.Context, a Address) (Address, error) {
	var out struct {
		Address Address `json:"address"`
	}
	err := c.do(ctx, http.MethodPatch, "/users/me/addresses/"+url.PathEscape(a.ID), a, &out)
	return out.Address, err
}

// DeleteAddress removes a saved address.
func (c *Client) DeleteAddress(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/me/addresses/"+url.PathEscape(id), nil, nil)
}

// Wishlist lists the customer's wishlist entries.
func (c *Client) Wishlist(ctx context.Context) ([]WishlistItem, error) {
	var out struct {
		Items []WishlistItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/users/me/wishlist", nil, &out)
	return out.Items, err
}

// AddWishlist adds a product to the wishlist.
func (c *Client) AddWishlist(ctx context.Context, productID string) error {
	body := map[string]any{"product_id": productID}
	return c.do(ctx, http.MethodPost, "/users/me/wishlist", body, nil)
}

// RemoveWishlist removes a product from the wishlist.
func (c *Client) RemoveWishlist(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, "/users/me/wishlist/"+url.PathEscape(productID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := common.BearerToken(ctx); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		c.Logger.Error().Err(err).Str("method", method).Str("path", path).Msg("commerce api call failed")
		return common.NewAppError(common.CodeUpstreamUnavailable, "service temporarily unavailable", http.StatusBadGateway, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return common.NewAppError(common.CodeUpstreamUnavailable, "service temporarily unavailable", http.StatusBadGateway, ErrUnavailable)
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError maps a commerce API 4xx body onto an AppError, preserving
// the upstream message verbatim.
func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	message := strings.TrimSpace(string(data))
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Error) > 0 {
		var text string
		if err := json.Unmarshal(payload.Error, &text); err == nil {
			message = text
		} else {
			var obj struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &obj); err == nil && obj.Message != "" {
				message = obj.Message
			}
		}
	}
	if message == "" {
		message = resp.Status
	}
	code := common.CodeValidation
	if resp.StatusCode == http.StatusNotFound {
		code = common.CodeNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized {
		code = common.CodeUnauthorized
	}
	return common.NewAppError(code, message, resp.StatusCode, nil)
}
