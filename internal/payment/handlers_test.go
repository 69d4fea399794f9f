package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/payment"
	"github.com/kedaipet/storefront/internal/session"
)

func newHandlers(t *testing.T) (payment.Handlers, *session.Store) {
	t.Helper()
	obs.MustRegisterDomainMetrics("storefront_test", nil)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &session.Store{R: client, TTL: time.Minute}
	return payment.Handlers{Provider: payment.Mock{}, Sessions: store, Logger: zerolog.Nop()}, store
}

func withSession(r *http.Request, sid string) *http.Request {
	return r.WithContext(session.WithSessionID(r.Context(), sid))
}

func TestSimulatorShowsPendingPayment(t *testing.T) {
	handlers, store := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, store.SavePendingPayment(ctx, "s1", session.PendingPayment{OrderID: "ord-1", Amount: 12689}))

	rec := httptest.NewRecorder()
	handlers.Simulator(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/payment/mock", nil), "s1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			OrderID string `json:"orderId"`
			Amount  int64  `json:"amount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ord-1", body.Data.OrderID)
	assert.Equal(t, int64(12689), body.Data.Amount)
}

func TestSimulatorWithoutPendingPayment(t *testing.T) {
	handlers, _ := newHandlers(t)

	rec := httptest.NewRecorder()
	handlers.Simulator(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/payment/mock", nil), "s1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteSuccessClearsCheckoutState(t *testing.T) {
	handlers, store := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, store.SavePendingPayment(ctx, "s1", session.PendingPayment{OrderID: "ord-1", Amount: 12689}))
	require.NoError(t, store.SaveSelection(ctx, "s1", session.Selection{Mode: "selected", ItemIDs: []string{"i1"}}))

	req := httptest.NewRequest(http.MethodPost, "/api/payment/mock/complete",
		strings.NewReader(`{"orderId":"ord-1","result":"success"}`))
	rec := httptest.NewRecorder()
	handlers.Complete(rec, withSession(req, "s1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PAID"`)

	_, found, err := store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, found)
	sel, err := store.Selection(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sel.Mode)
}

func TestCompleteFailureKeepsSelectionForRetry(t *testing.T) {
	handlers, store := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, store.SavePendingPayment(ctx, "s1", session.PendingPayment{OrderID: "ord-1", Amount: 12689}))
	require.NoError(t, store.SaveSelection(ctx, "s1", session.Selection{Mode: "full_cart"}))

	req := httptest.NewRequest(http.MethodPost, "/api/payment/mock/complete",
		strings.NewReader(`{"orderId":"ord-1","result":"fail"}`))
	rec := httptest.NewRecorder()
	handlers.Complete(rec, withSession(req, "s1"))

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "PAYMENT_FAILED")

	// The attempt is gone but the selection survives for a retry.
	_, found, err := store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, found)
	sel, err := store.Selection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "full_cart", sel.Mode)
}

func TestCompleteRejectsUnknownOrder(t *testing.T) {
	handlers, store := newHandlers(t)
	require.NoError(t, store.SavePendingPayment(context.Background(), "s1", session.PendingPayment{OrderID: "ord-1"}))

	req := httptest.NewRequest(http.MethodPost, "/api/payment/mock/complete",
		strings.NewReader(`{"orderId":"ord-9","result":"success"}`))
	rec := httptest.NewRecorder()
	handlers.Complete(rec, withSession(req, "s1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReturnVerifiesSignature(t *testing.T) {
	gw := payment.Gateway{APIKey: "secret-key"}
	handlers, store := newHandlers(t)
	handlers.Provider = gw
	require.NoError(t, store.SavePendingPayment(context.Background(), "s1", session.PendingPayment{OrderID: "ord-1"}))

	params := "order_id=ord-1&status=success&amount=12689&signature=" + sign("secret-key", "success", "ord-1", "12689")
	req := httptest.NewRequest(http.MethodGet, "/api/payment/return?"+params, nil)
	rec := httptest.NewRecorder()
	handlers.Return(rec, withSession(req, "s1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PAID"`)
}

func TestReturnRejectsBadSignature(t *testing.T) {
	handlers, _ := newHandlers(t)
	handlers.Provider = payment.Gateway{APIKey: "secret-key"}

	req := httptest.NewRequest(http.MethodGet, "/api/payment/return?order_id=ord-1&status=success&amount=1&signature=bogus", nil)
	rec := httptest.NewRecorder()
	handlers.Return(rec, withSession(req, "s1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
