package voucher

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/session"
)

// Handlers exposes the voucher endpoints for the checkout page.
type Handlers struct {
	Svc *Service
}

type applyPayload struct {
	Code string `json:"code"`
}

// List returns the session's applied vouchers.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	set, err := h.Svc.List(r.Context(), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": set})
}

// Apply validates a voucher code and adds it to the session.
func (h Handlers) Apply(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var payload applyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	set, err := h.Svc.Apply(r.Context(), sid, payload.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": set})
}

// Remove drops a voucher code from the session.
func (h Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	set, err := h.Svc.Remove(r.Context(), sid, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": set})
}

// Clear empties the applied voucher set.
func (h Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	if err := h.Svc.Clear(r.Context(), sid); err != nil {
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
