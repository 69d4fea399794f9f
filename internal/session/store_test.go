package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &session.Store{R: client, TTL: time.Minute}
}

func TestVouchersEmptyByDefault(t *testing.T) {
	store := newStore(t)
	set, err := store.Vouchers(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, set.Vouchers)
	require.Equal(t, int64(0), set.Version)
}

func TestSaveVouchersBumpsVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	applied := []pricing.AppliedVoucher{{Code: "MEOW10", Kind: pricing.KindFixedAmount, Value: 1000, Discount: 1000}}
	version, err := store.SaveVouchers(ctx, "s1", applied, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	set, err := store.Vouchers(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1), set.Version)
	require.Len(t, set.Vouchers, 1)
	require.Equal(t, "MEOW10", set.Vouchers[0].Code)
}

func TestSaveVouchersRejectsStaleVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.SaveVouchers(ctx, "s1", nil, 0)
	require.NoError(t, err)

	_, err = store.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{{Code: "LATE"}}, 0)
	require.ErrorIs(t, err, session.ErrStaleVoucherSet)
}

func TestClearVouchersBumpsVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{{Code: "MEOW10"}}, 0)
	require.NoError(t, err)

	require.NoError(t, store.ClearVouchers(ctx, "s1"))

	set, err := store.Vouchers(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, set.Vouchers)
	require.Equal(t, int64(2), set.Version)

	// An add that started before the clear must be discarded.
	_, err = store.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{{Code: "STALE"}}, 1)
	require.ErrorIs(t, err, session.ErrStaleVoucherSet)
}

func TestGuestEmailRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	email, err := store.GuestEmail(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, email)

	require.NoError(t, store.SetGuestEmail(ctx, "s1", "whiskers@example.com"))
	email, err = store.GuestEmail(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "whiskers@example.com", email)
}

func TestPendingPaymentLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, found, err := store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	pending := session.PendingPayment{
		OrderID: "ord-1",
		Amount:  12689,
		Params:  map[string]string{"merchant_ref": "ord-1"},
	}
	require.NoError(t, store.SavePendingPayment(ctx, "s1", pending))

	got, found, err := store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pending, got)

	require.NoError(t, store.ClearPendingPayment(ctx, "s1"))
	_, found, err = store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSelectionDefaultsToFullCart(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sel, err := store.Selection(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, sel.Mode)

	stock := 4
	want := session.Selection{
		Mode:   "buy_now",
		BuyNow: &session.BuyNowItem{ProductID: "p1", Qty: 2, UnitPrice: 4500, WeightGram: 750, Stock: &stock},
	}
	require.NoError(t, store.SaveSelection(ctx, "s1", want))

	sel, err = store.Selection(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, want, sel)
}

func TestClearCheckoutDropsEverything(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{{Code: "MEOW10"}}, 0)
	require.NoError(t, err)
	require.NoError(t, store.SaveSelection(ctx, "s1", session.Selection{Mode: "selected", ItemIDs: []string{"i1"}}))
	require.NoError(t, store.SavePendingPayment(ctx, "s1", session.PendingPayment{OrderID: "ord-1"}))

	require.NoError(t, store.ClearCheckout(ctx, "s1"))

	set, err := store.Vouchers(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, set.Vouchers)

	sel, err := store.Selection(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, sel.Mode)

	_, found, err := store.PendingPayment(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}
