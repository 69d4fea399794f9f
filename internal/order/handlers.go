package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kedaipet/storefront/internal/common"
)

// Handlers exposes the order history endpoints.
type Handlers struct {
	Svc *Service
}

// List returns the member's orders.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Detail returns one of the member's orders.
func (h Handlers) Detail(w http.ResponseWriter, r *http.Request) {
	order, err := h.Svc.Detail(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

// GuestLookup returns a guest order by id and checkout email.
func (h Handlers) GuestLookup(w http.ResponseWriter, r *http.Request) {
	order, err := h.Svc.GuestLookup(r.Context(), chi.URLParam(r, "orderID"), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
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
