package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kedaipet/storefront/internal/common"
)

// Handlers exposes the cart endpoints.
type Handlers struct {
	Svc *Service
}

type addPayload struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

type updatePayload struct {
	Qty int `json:"qty"`
}

// Get returns the current cart.
func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// Add puts a product into the cart.
func (h Handlers) Add(w http.ResponseWriter, r *http.Request) {
	var payload addPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	cart, err := h.Svc.Add(r.Context(), payload.ProductID, payload.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// Update changes a line's quantity.
func (h Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	cart, err := h.Svc.Update(r.Context(), chi.URLParam(r, "itemID"), payload.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// Remove deletes a cart line.
func (h Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Remove(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

// Clear empties the cart.
func (h Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"cleared": true}})
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
