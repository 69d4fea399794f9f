package cart

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Service mediates cart operations against the commerce API. The cart itself
// lives upstream; this layer validates input and keeps the storefront's
// error taxonomy consistent.
type Service struct {
	API    *upstream.Client
	Logger zerolog.Logger
}

// Get returns the current cart.
func (s *Service) Get(ctx context.Context) (upstream.Cart, error) {
	if s == nil || s.API == nil {
		return upstream.Cart{}, errors.New("cart service not configured")
	}
	return s.API.GetCart(ctx)
}

// Add puts qty units of a product into the cart.
func (s *Service) Add(ctx context.Context, productID string, qty int) (upstream.Cart, error) {
	if s == nil || s.API == nil {
		return upstream.Cart{}, errors.New("cart service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return upstream.Cart{}, common.NewAppError(common.CodeValidation, "product id is required", http.StatusBadRequest, nil)
	}
	if qty < 1 {
		return upstream.Cart{}, common.NewAppError(common.CodeValidation, "quantity must be at least 1", http.StatusBadRequest, nil)
	}
	cart, err := s.API.AddCartItem(ctx, productID, qty)
	if err != nil {
		return upstream.Cart{}, err
	}
	s.Logger.Info().Str("productId", productID).Int("qty", qty).Msg("cart item added")
	return cart, nil
}

// Update changes a line's quantity. Quantity zero removes the line.
func (s *Service) Update(ctx context.Context, itemID string, qty int) (upstream.Cart, error) {
	if s == nil || s.API == nil {
		return upstream.Cart{}, errors.New("cart service not configured")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return upstream.Cart{}, common.NewAppError(common.CodeValidation, "item id is required", http.StatusBadRequest, nil)
	}
	if qty < 0 {
		return upstream.Cart{}, common.NewAppError(common.CodeValidation, "quantity must not be negative", http.StatusBadRequest, nil)
	}
	if qty == 0 {
		return s.API.RemoveCartItem(ctx, itemID)
	}
	return s.API.UpdateCartItem(ctx, itemID, qty)
}

// Remove deletes a cart line.
func (s *Service) Remove(ctx context.Context, itemID string) (upstream.Cart, error) {
	if s == nil || s.API == nil {
		return upstream.Cart{}, errors.New("cart service not configured")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return upstream.Cart{}, common.NewAppError(common.CodeValidation, "item id is required", http.StatusBadRequest, nil)
	}
	return s.API.RemoveCartItem(ctx, itemID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context) error {
	if s == nil || s.API == nil {
		return errors.New("cart service not configured")
	}
	return s.API.ClearCart(ctx)
}
