package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/session"
)

// Handlers exposes the payment simulator and the return leg of the hosted
// payment flow.
type Handlers struct {
	Provider Provider
	Sessions *session.Store
	Logger   zerolog.Logger
}

type completePayload struct {
	OrderID string `json:"orderId"`
	Result  string `json:"result"`
}

// Simulator shows the pending mock payment so the client can render a fake
// payment page.
func (h Handlers) Simulator(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	pending, found, err := h.Sessions.PendingPayment(r.Context(), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "no payment in progress", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"orderId": pending.OrderID,
		"amount":  pending.Amount,
		"results": []string{"success", "fail"},
	}})
}

// Complete resolves the pending mock payment with the customer-chosen result.
func (h Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	var payload completePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", nil)
		return
	}
	pending, found, err := h.Sessions.PendingPayment(r.Context(), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found || pending.OrderID != payload.OrderID {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "no matching payment in progress", nil)
		return
	}

	status := StatusFailed
	if payload.Result == "success" {
		status = StatusPaid
	}
	h.finish(w, r, sid, pending.OrderID, status)
}

// Return handles the customer's return from the hosted payment page.
func (h Handlers) Return(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing session", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payment return", nil)
		return
	}
	params := make(map[string]string, len(r.Form))
	for key := range r.Form {
		params[key] = r.Form.Get(key)
	}

	result := h.Provider.VerifyReturn(params)
	if !result.Valid {
		h.Logger.Warn().Err(result.Err).Str("orderId", result.OrderID).Msg("payment return rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payment return", nil)
		return
	}
	h.finish(w, r, sid, result.OrderID, result.Status)
}

func (h Handlers) finish(w http.ResponseWriter, r *http.Request, sid, orderID, status string) {
	obs.PaymentResultTotal.WithLabelValues(h.Provider.Name(), status).Inc()
	h.Logger.Info().Str("orderId", orderID).Str("status", status).Msg("payment completed")

	switch status {
	case StatusPaid:
		// The order is paid; everything checkout-scoped is spent.
		if err := h.Sessions.ClearCheckout(r.Context(), sid); err != nil {
			h.Logger.Error().Err(err).Msg("clear checkout state after payment")
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"orderId": orderID, "status": status}})
	case StatusPending:
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"orderId": orderID, "status": status}})
	default:
		// Keep the selection and vouchers so the customer can retry, but the
		// attempt itself is finished.
		if err := h.Sessions.ClearPendingPayment(r.Context(), sid); err != nil {
			h.Logger.Error().Err(err).Msg("clear pending payment")
		}
		common.JSONError(w, http.StatusPaymentRequired, common.CodePaymentFailed, "payment was not completed", map[string]any{
			"orderId": orderID,
		})
	}
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
