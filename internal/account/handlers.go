package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kedaipet/storefront/internal/common"
)

// Handlers exposes the member account endpoints. All routes sit behind the
// auth requirement.
type Handlers struct {
	Svc *Service
}

type wishlistPayload struct {
	ProductID string `json:"productId"`
}

// Addresses lists saved addresses.
func (h Handlers) Addresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.Svc.Addresses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": addresses})
}

// CreateAddress saves a new address.
func (h Handlers) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var form AddressForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	address, err := h.Svc.CreateAddress(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": address})
}

// UpdateAddress updates an existing address.
func (h Handlers) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var form AddressForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	address, err := h.Svc.UpdateAddress(r.Context(), chi.URLParam(r, "addressID"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": address})
}

// DeleteAddress removes a saved address.
func (h Handlers) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteAddress(r.Context(), chi.URLParam(r, "addressID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Wishlist lists the member's wishlist.
func (h Handlers) Wishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.Wishlist(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// ToggleWishlist flips a product's wishlist membership.
func (h Handlers) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	var payload wishlistPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	added, err := h.Svc.ToggleWishlist(r.Context(), payload.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"productId": payload.ProductID, "wishlisted": added}})
}

// RemoveWishlist takes a product off the wishlist.
func (h Handlers) RemoveWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.RemoveWishlist(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"removed": true}})
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal server error", nil)
}
