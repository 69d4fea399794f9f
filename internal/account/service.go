package account

import (
	"context"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/upstream"
)

// AddressForm is the payload for creating or updating a saved address.
type AddressForm struct {
	ReceiverName string `json:"receiverName" validate:"required,min=2,max=100"`
	Phone        string `json:"phone" validate:"required,min=7,max=20"`
	AddressLine1 string `json:"addressLine1" validate:"required,min=5,max=200"`
	AddressLine2 string `json:"addressLine2" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	Postcode     string `json:"postcode" validate:"required,len=5,numeric"`
	IsDefault    bool   `json:"isDefault"`
}

// Service covers the member account surfaces: saved addresses and the
// wishlist. Everything is stored upstream; the storefront validates and
// relays.
type Service struct {
	API      *upstream.Client
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Addresses lists the member's saved addresses.
func (s *Service) Addresses(ctx context.Context) ([]upstream.Address, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("account service not configured")
	}
	return s.API.Addresses(ctx)
}

// CreateAddress validates and saves a new address.
func (s *Service) CreateAddress(ctx context.Context, form AddressForm) (upstream.Address, error) {
	if s == nil || s.API == nil {
		return upstream.Address{}, errors.New("account service not configured")
	}
	if err := s.validateForm(form); err != nil {
		return upstream.Address{}, err
	}
	return s.API.CreateAddress(ctx, toAddress("", form))
}

// UpdateAddress validates and updates an existing address.
func (s *Service) UpdateAddress(ctx context.Context, id string, form AddressForm) (upstream.Address, error) {
	if s == nil || s.API == nil {
		return upstream.Address{}, errors.New("account service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return upstream.Address{}, common.NewAppError(common.CodeValidation, "address id is required", http.StatusBadRequest, nil)
	}
	if err := s.validateForm(form); err != nil {
		return upstream.Address{}, err
	}
	return s.API.UpdateAddress(ctx, toAddress(id, form))
}

// DeleteAddress removes a saved address.
func (s *Service) DeleteAddress(ctx context.Context, id string) error {
	if s == nil || s.API == nil {
		return errors.New("account service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return common.NewAppError(common.CodeValidation, "address id is required", http.StatusBadRequest, nil)
	}
	return s.API.DeleteAddress(ctx, id)
}

// Wishlist lists the member's wishlist entries.
func (s *Service) Wishlist(ctx context.Context) ([]upstream.WishlistItem, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("account service not configured")
	}
	return s.API.Wishlist(ctx)
}

// ToggleWishlist adds the product when absent and removes it when present,
// returning whether it ended up on the list.
func (s *Service) ToggleWishlist(ctx context.Context, productID string) (bool, error) {
	if s == nil || s.API == nil {
		return false, errors.New("account service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, common.NewAppError(common.CodeValidation, "product id is required", http.StatusBadRequest, nil)
	}
	items, err := s.API.Wishlist(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			return false, s.API.RemoveWishlist(ctx, productID)
		}
	}
	return true, s.API.AddWishlist(ctx, productID)
}

// RemoveWishlist takes a product off the wishlist.
func (s *Service) RemoveWishlist(ctx context.Context, productID string) error {
	if s == nil || s.API == nil {
		return errors.New("account service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return common.NewAppError(common.CodeValidation, "product id is required", http.StatusBadRequest, nil)
	}
	return s.API.RemoveWishlist(ctx, productID)
}

func (s *Service) validateForm(form AddressForm) error {
	if s.Validate == nil {
		return nil
	}
	if err := s.Validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fe.Tag()
			}
			appErr := common.NewAppError(common.CodeValidation, "address details are invalid", http.StatusBadRequest, err)
			appErr.Details = details
			return appErr
		}
		return common.NewAppError(common.CodeValidation, "address details are invalid", http.StatusBadRequest, err)
	}
	return nil
}

func toAddress(id string, form AddressForm) upstream.Address {
	return upstream.Address{
		ID:           id,
		ReceiverName: form.ReceiverName,
		Phone:        form.Phone,
		AddressLine1: form.AddressLine1,
		AddressLine2: form.AddressLine2,
		City:         form.City,
		State:        form.State,
		Postcode:     form.Postcode,
		IsDefault:    form.IsDefault,
	}
}
