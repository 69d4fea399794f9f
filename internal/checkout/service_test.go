package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaipet/storefront/internal/checkout"
	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/payment"
	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/session"
	"github.com/kedaipet/storefront/internal/upstream"
)

type fakeAPI struct {
	cart       upstream.Cart
	product    upstream.Product
	orderCalls atomic.Int64
	lastOrder  upstream.OrderRequest
	orderPath  string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.cart)
	})
	mux.HandleFunc("GET /products/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.product)
	})
	orders := func(w http.ResponseWriter, r *http.Request) {
		f.orderCalls.Add(1)
		f.orderPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&f.lastOrder)
		_ = json.NewEncoder(w).Encode(map[string]any{"order": upstream.Order{
			ID:          "ord-1",
			Status:      "pending_payment",
			Total:       0,
			DeliveryFee: f.lastOrder.DeliveryFee,
		}})
	}
	mux.HandleFunc("POST /orders", orders)
	mux.HandleFunc("POST /orders/guest", orders)
	return mux
}

func stock(n int) *int { return &n }

func defaultCart() upstream.Cart {
	return upstream.Cart{
		Items: []upstream.CartItem{
			{ID: "i1", ProductID: "p1", Name: "Salmon Kibble 2kg", UnitPrice: 4500, Qty: 2, WeightGram: 2000, Stock: stock(10)},
			{ID: "i2", ProductID: "p2", Name: "Catnip Toy", UnitPrice: 3000, Qty: 1, WeightGram: 100, Stock: stock(5)},
		},
		Total:     12000,
		ItemCount: 3,
	}
}

func validForm() checkout.ShippingForm {
	return checkout.ShippingForm{
		ReceiverName: "Aina Binti Rahman",
		Phone:        "0123456789",
		AddressLine1: "12 Jalan Kucing Manja",
		City:         "Shah Alam",
		State:        "Selangor",
		Postcode:     "40150",
		Email:        "aina@example.com",
		AgreePolicy:  true,
	}
}

func newService(t *testing.T, api *fakeAPI) (*checkout.Service, *redis.Client) {
	t.Helper()
	obs.MustRegisterDomainMetrics("storefront_test", nil)
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &checkout.Service{
		API:      upstream.New(server.URL, server.Client(), zerolog.Nop()),
		Sessions: &session.Store{R: client, TTL: time.Minute},
		Validate: validator.New(),
		Payments: payment.Mock{},
		R:        client,
		Logger:   zerolog.Nop(),
	}, client
}

func TestQuoteFullCartDefault(t *testing.T) {
	svc, _ := newService(t, &fakeAPI{cart: defaultCart()})

	summary, err := svc.Quote(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.ModeFullCart, summary.Mode)
	assert.Len(t, summary.Items, 2)
	assert.Equal(t, pricing.Money(12000), summary.Quote.Subtotal)
	// 4.1kg rounds up to 5kg: 9.00 base plus 2 extra kilos.
	assert.Equal(t, pricing.Money(1100), summary.Quote.Shipping)
	assert.Equal(t, pricing.Money(13100), summary.Quote.Total)
}

func TestQuoteSelectedSubset(t *testing.T) {
	svc, _ := newService(t, &fakeAPI{cart: defaultCart()})
	ctx := context.Background()

	require.NoError(t, svc.SetSelection(ctx, "s1", checkout.ModeSelected, []string{"i2"}))

	summary, err := svc.Quote(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "i2", summary.Items[0].ID)
	assert.Equal(t, pricing.Money(3000), summary.Quote.Subtotal)
	assert.Equal(t, pricing.Money(689), summary.Quote.Shipping)
}

func TestQuoteSelectedItemGoneFromCart(t *testing.T) {
	svc, _ := newService(t, &fakeAPI{cart: defaultCart()})
	ctx := context.Background()

	require.NoError(t, svc.SetSelection(ctx, "s1", checkout.ModeSelected, []string{"i1", "i9"}))

	_, err := svc.Quote(ctx, "s1")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Message, "i9")
}

func TestBuyNowSnapshotsProduct(t *testing.T) {
	svc, _ := newService(t, &fakeAPI{
		cart:    upstream.Cart{},
		product: upstream.Product{ID: "p9", Name: "Aquarium Pump", Price: 8900, WeightGram: 1200, Stock: stock(3)},
	})
	ctx := context.Background()

	require.NoError(t, svc.BuyNow(ctx, "s1", "p9", 2))

	summary, err := svc.Quote(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.ModeBuyNow, summary.Mode)
	assert.Equal(t, pricing.Money(17800), summary.Quote.Subtotal)
	// 17800 sen clears the free shipping threshold.
	assert.Equal(t, pricing.Money(0), summary.Quote.Shipping)
	assert.Equal(t, pricing.Money(17800), summary.Quote.Total)
}

func TestSubmitGuestOrder(t *testing.T) {
	api := &fakeAPI{cart: defaultCart()}
	svc, _ := newService(t, api)
	ctx := context.Background()

	_, err := svc.Sessions.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{
		{Code: "MEOW10", Kind: pricing.KindFixedAmount, Value: 1000, Discount: 1000},
	}, 0)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, "s1", validForm())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", result.Order.ID)
	assert.Equal(t, "mock", result.Payment.Provider)

	// Guest submissions go to the guest endpoint with the quote's fee.
	assert.Equal(t, "/orders/guest", api.orderPath)
	assert.Equal(t, []string{"i1", "i2"}, api.lastOrder.ItemIDs)
	assert.Equal(t, []string{"MEOW10"}, api.lastOrder.VoucherCodes)
	assert.Equal(t, pricing.Money(1100), api.lastOrder.DeliveryFee)
	assert.Equal(t, "aina@example.com", api.lastOrder.Email)

	// The vouchers stay until the payment resolves; the attempt is pending.
	set, err := svc.Sessions.Vouchers(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Vouchers, 1)
	assert.Equal(t, "MEOW10", set.Vouchers[0].Code)
	pending, found, err := svc.Sessions.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ord-1", pending.OrderID)
	// 12000 - 1000 + 1100
	assert.Equal(t, pricing.Money(12100), pending.Amount)
}

func TestSubmitMemberUsesAuthenticatedEndpoint(t *testing.T) {
	api := &fakeAPI{cart: defaultCart()}
	svc, _ := newService(t, api)
	ctx := common.WithUserID(context.Background(), "user-7")

	form := validForm()
	form.Email = ""

	_, err := svc.Submit(ctx, "s1", form)
	require.NoError(t, err)
	assert.Equal(t, "/orders", api.orderPath)
}

func TestSubmitGuestRequiresEmail(t *testing.T) {
	svc, _ := newService(t, &fakeAPI{cart: defaultCart()})
	ctx := context.Background()

	form := validForm()
	form.Email = ""

	_, err := svc.Submit(ctx, "s1", form)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)

	// A previously captured guest email fills the gap.
	require.NoError(t, svc.SetGuestEmail(ctx, "s1", "whiskers@example.com"))
	_, err = svc.Submit(ctx, "s1", form)
	require.NoError(t, err)
}

func TestSubmitValidatesShippingForm(t *testing.T) {
	api := &fakeAPI{cart: defaultCart()}
	svc, _ := newService(t, api)

	form := validForm()
	form.Postcode = "4015"

	_, err := svc.Submit(context.Background(), "s1", form)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "len", details["Postcode"])
	assert.Equal(t, int64(0), api.orderCalls.Load())
}

func TestSubmitRejectsStockExceeded(t *testing.T) {
	cart := defaultCart()
	cart.Items[1].Qty = 9
	api := &fakeAPI{cart: cart}
	svc, _ := newService(t, api)

	_, err := svc.Submit(context.Background(), "s1", validForm())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeStockExceeded, appErr.Code)
	assert.Equal(t, int64(0), api.orderCalls.Load())
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	svc, client := newService(t, &fakeAPI{cart: defaultCart()})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "checkout:submit:s1", "1", time.Minute).Err())

	_, err := svc.Submit(ctx, "s1", validForm())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestSubmitRequiresPolicyAgreement(t *testing.T) {
	api := &fakeAPI{cart: defaultCart()}
	svc, _ := newService(t, api)

	form := validForm()
	form.AgreePolicy = false

	_, err := svc.Submit(context.Background(), "s1", form)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "eq", details["AgreePolicy"])
	assert.Equal(t, int64(0), api.orderCalls.Load())
}

func TestSubmitFailedPaymentKeepsCheckoutForRetry(t *testing.T) {
	api := &fakeAPI{cart: defaultCart()}
	svc, _ := newService(t, api)
	ctx := context.Background()

	require.NoError(t, svc.SetSelection(ctx, "s1", checkout.ModeSelected, []string{"i2"}))
	_, err := svc.Sessions.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{
		{Code: "MEOW10", Kind: pricing.KindFixedAmount, Value: 1000, Discount: 1000},
	}, 0)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, "s1", validForm())
	require.NoError(t, err)

	handlers := payment.Handlers{Provider: payment.Mock{}, Sessions: svc.Sessions, Logger: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/mock/complete",
		strings.NewReader(`{"orderId":"`+result.Order.ID+`","result":"fail"}`))
	rec := httptest.NewRecorder()
	handlers.Complete(rec, req.WithContext(session.WithSessionID(req.Context(), "s1")))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	// The failed attempt prices exactly as before: same subset, same voucher.
	summary, err := svc.Quote(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.ModeSelected, summary.Mode)
	require.Len(t, summary.Vouchers, 1)
	assert.Equal(t, "MEOW10", summary.Vouchers[0].Code)
	assert.Equal(t, pricing.Money(3000), summary.Quote.Subtotal)

	// And can be resubmitted.
	_, err = svc.Submit(ctx, "s1", validForm())
	require.NoError(t, err)
	assert.Equal(t, int64(2), api.orderCalls.Load())
}

func TestSubmitBuyNowSendsTransientItems(t *testing.T) {
	api := &fakeAPI{
		cart:    defaultCart(),
		product: upstream.Product{ID: "p9", Name: "Aquarium Pump", Price: 8900, WeightGram: 1200, Stock: stock(3)},
	}
	svc, _ := newService(t, api)
	ctx := context.Background()

	require.NoError(t, svc.BuyNow(ctx, "s1", "p9", 1))

	_, err := svc.Submit(ctx, "s1", validForm())
	require.NoError(t, err)
	require.Len(t, api.lastOrder.Items, 1)
	assert.Equal(t, "p9", api.lastOrder.Items[0].ProductID)
	assert.Empty(t, api.lastOrder.ItemIDs)
}
