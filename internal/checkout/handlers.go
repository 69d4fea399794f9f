package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/session"
)

// Handlers exposes the checkout endpoints.
type Handlers struct {
	Svc *Service
}

type selectionPayload struct {
	Mode    string   `json:"mode"`
	ItemIDs []string `json:"itemIds"`
}

type buyNowPayload struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

type guestEmailPayload struct {
	Email string `json:"email"`
}

// Summary returns the priced view of the current selection.
func (h Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	summary, err := h.Svc.Quote(r.Context(), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// SetSelection records which cart lines to check out.
func (h Handlers) SetSelection(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var payload selectionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	if err := h.Svc.SetSelection(r.Context(), sid, payload.Mode, payload.ItemIDs); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"mode": payload.Mode}})
}

// BuyNow starts a single-product checkout.
func (h Handlers) BuyNow(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var payload buyNowPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	if err := h.Svc.BuyNow(r.Context(), sid, payload.ProductID, payload.Qty); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"mode": ModeBuyNow}})
}

// SetGuestEmail stores the guest contact email for the session.
func (h Handlers) SetGuestEmail(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var payload guestEmailPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	if err := h.Svc.SetGuestEmail(r.Context(), sid, payload.Email); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"email": payload.Email}})
}

// Submit validates shipping details and places the order.
func (h Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var form ShippingForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	result, err := h.Svc.Submit(r.Context(), sid, form)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// Cancel abandons the checkout, clearing selection, vouchers and any pending
// payment.
func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	if err := h.Svc.Sessions.ClearCheckout(r.Context(), sid); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"cancelled": true}})
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
