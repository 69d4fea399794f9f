package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Handlers exposes the product browsing endpoints.
type Handlers struct {
	Svc *Service
}

// List returns products filtered by category, pet type and search term.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := upstream.ProductQuery{
		Category: query.Get("category"),
		PetType:  query.Get("petType"),
		Search:   query.Get("search"),
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		q.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		q.Limit = limit
	}

	list, err := h.Svc.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": list})
}

// Detail returns a single product.
func (h Handlers) Detail(w http.ResponseWriter, r *http.Request) {
	product, err := h.Svc.Detail(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Categories returns the category list.
func (h Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Svc.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": categories})
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
