package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/order"
	"github.com/kedaipet/storefront/internal/upstream"
)

func newService(t *testing.T, handler http.Handler) *order.Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &order.Service{API: upstream.New(server.URL, server.Client(), zerolog.Nop()), Logger: zerolog.Nop()}
}

func TestListRequiresAuth(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be called without auth")
	}))

	_, err := svc.List(context.Background())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeUnauthorized, appErr.Code)
}

func TestListForwardsBearerToken(t *testing.T) {
	var auth string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": []upstream.Order{{ID: "ord-1", Status: "paid"}}})
	}))
	ctx := common.WithUserID(context.Background(), "user-7")
	ctx = common.WithBearerToken(ctx, "tok-123")

	orders, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Bearer tok-123", auth)
}

func TestGuestLookup(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/guest/ord-1", r.URL.Path)
		assert.Equal(t, "aina@example.com", r.URL.Query().Get("email"))
		_ = json.NewEncoder(w).Encode(map[string]any{"order": upstream.Order{ID: "ord-1", Status: "paid", Total: 12689}})
	}))

	got, err := svc.GuestLookup(context.Background(), "ord-1", "aina@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.ID)

	_, err = svc.GuestLookup(context.Background(), "ord-1", "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)
}
