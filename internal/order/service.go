package order

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Service reads order history from the commerce API. Members browse their
// own orders via their bearer token; guests retrieve a single order by id and
// the email used at checkout.
type Service struct {
	API    *upstream.Client
	Logger zerolog.Logger
}

// List returns the authenticated customer's orders.
func (s *Service) List(ctx context.Context) ([]upstream.Order, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("order service not configured")
	}
	if _, ok := common.UserID(ctx); !ok {
		return nil, common.NewAppError(common.CodeUnauthorized, "sign in to view orders", http.StatusUnauthorized, nil)
	}
	return s.API.Orders(ctx)
}

// Detail returns one of the authenticated customer's orders.
func (s *Service) Detail(ctx context.Context, id string) (upstream.Order, error) {
	if s == nil || s.API == nil {
		return upstream.Order{}, errors.New("order service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return upstream.Order{}, common.NewAppError(common.CodeValidation, "order id is required", http.StatusBadRequest, nil)
	}
	if _, ok := common.UserID(ctx); !ok {
		return upstream.Order{}, common.NewAppError(common.CodeUnauthorized, "sign in to view orders", http.StatusUnauthorized, nil)
	}
	return s.API.Order(ctx, id)
}

// GuestLookup retrieves a guest order for the confirmation page. The email
// must match the one used at checkout; the commerce API enforces the match.
func (s *Service) GuestLookup(ctx context.Context, id, email string) (upstream.Order, error) {
	if s == nil || s.API == nil {
		return upstream.Order{}, errors.New("order service not configured")
	}
	id = strings.TrimSpace(id)
	email = strings.TrimSpace(email)
	if id == "" || email == "" {
		return upstream.Order{}, common.NewAppError(common.CodeValidation, "order id and email are required", http.StatusBadRequest, nil)
	}
	return s.API.GuestOrder(ctx, id, email)
}
