package voucher_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/lock"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/session"
	"github.com/kedaipet/storefront/internal/upstream"
	"github.com/kedaipet/storefront/internal/voucher"
)

type stubValidator struct {
	fn func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error)
}

func (s stubValidator) ValidateVoucher(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
	return s.fn(ctx, req)
}

type stubLines struct {
	lines []pricing.LineItem
}

func (s stubLines) CheckoutLines(ctx context.Context, sid string) ([]pricing.LineItem, error) {
	return s.lines, nil
}

func fixedResponse(code string, amount int64) upstream.VoucherValidateResponse {
	var resp upstream.VoucherValidateResponse
	resp.Voucher.Code = code
	resp.Voucher.DiscountType = "fixed"
	resp.Voucher.DiscountAmount = amount
	resp.CalculatedDiscount = pricing.Money(amount)
	return resp
}

func freeShippingResponse(code string) upstream.VoucherValidateResponse {
	var resp upstream.VoucherValidateResponse
	resp.Voucher.Code = code
	resp.Voucher.DiscountType = "free_shipping"
	return resp
}

func newService(t *testing.T, validate func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error)) (*voucher.Service, *redis.Client) {
	t.Helper()
	obs.MustRegisterDomainMetrics("storefront_test", nil)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := &voucher.Service{
		Upstream: stubValidator{fn: validate},
		Lines:    stubLines{lines: []pricing.LineItem{{ID: "i1", UnitPrice: 6000, Qty: 2, UnitWeight: 500}}},
		Sessions: &session.Store{R: client, TTL: time.Minute},
		R:        client,
		Locks:    lock.Locker{R: client},
		Logger:   zerolog.Nop(),
	}
	return svc, client
}

func TestApplyStoresValidatedVoucher(t *testing.T) {
	var seen upstream.VoucherValidateRequest
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		seen = req
		return fixedResponse(req.Code, 1000), nil
	})
	ctx := context.Background()

	set, err := svc.Apply(ctx, "s1", "meow10")
	require.NoError(t, err)
	require.Len(t, set.Vouchers, 1)
	assert.Equal(t, "MEOW10", set.Vouchers[0].Code)
	assert.Equal(t, pricing.KindFixedAmount, set.Vouchers[0].Kind)
	assert.Equal(t, pricing.Money(1000), set.Vouchers[0].Discount)
	assert.Equal(t, int64(1), set.Version)

	// The validator saw the canonical code and the real checkout subtotal.
	assert.Equal(t, "MEOW10", seen.Code)
	assert.Equal(t, pricing.Money(12000), seen.Subtotal)
}

func TestApplyRejectsDuplicate(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return fixedResponse(req.Code, 1000), nil
	})
	ctx := context.Background()

	_, err := svc.Apply(ctx, "s1", "MEOW10")
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "s1", "meow10")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeVoucherDuplicate, appErr.Code)
}

func TestServiceApplyRejectsSecondFreeShipping(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return freeShippingResponse(req.Code), nil
	})
	ctx := context.Background()

	_, err := svc.Apply(ctx, "s1", "FREESHIP")
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "s1", "SHIPFREE")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeFreeShipConflict, appErr.Code)

	set, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, set.Vouchers, 1)
}

func TestApplySurfacesUpstreamRejectionVerbatim(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return upstream.VoucherValidateResponse{}, common.NewAppError(common.CodeValidation, "Voucher expired on 2026-08-01", 400, nil)
	})
	ctx := context.Background()

	_, err := svc.Apply(ctx, "s1", "EXPIRED")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeVoucherRejected, appErr.Code)
	assert.Equal(t, "Voucher expired on 2026-08-01", appErr.Message)

	set, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, set.Vouchers)
}

func TestApplyPassesThroughUpstreamOutage(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return upstream.VoucherValidateResponse{}, common.NewAppError(common.CodeUpstreamUnavailable, "service temporarily unavailable", 502, nil)
	})

	_, err := svc.Apply(context.Background(), "s1", "MEOW10")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeUpstreamUnavailable, appErr.Code)
}

func TestApplyRejectsConcurrentValidationOfSameCode(t *testing.T) {
	svc, client := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return fixedResponse(req.Code, 1000), nil
	})
	ctx := context.Background()

	// Simulate an in-flight validation of the same code.
	require.NoError(t, client.Set(ctx, "voucher:pending:s1:MEOW10", "1", time.Minute).Err())

	_, err := svc.Apply(ctx, "s1", "meow10")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeVoucherDuplicate, appErr.Code)
}

func TestApplyDiscardsResultWhenSetClearedMidValidation(t *testing.T) {
	var svc *voucher.Service
	svc, _ = newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		// The customer clears vouchers while validation is in flight.
		require.NoError(t, svc.Sessions.ClearVouchers(ctx, "s1"))
		return fixedResponse(req.Code, 1000), nil
	})
	ctx := context.Background()

	_, err := svc.Sessions.SaveVouchers(ctx, "s1", []pricing.AppliedVoucher{{Code: "OLD", Kind: pricing.KindFixedAmount}}, 0)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "s1", "MEOW10")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeVoucherRejected, appErr.Code)

	set, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, set.Vouchers, "late validation result must not resurrect the cleared set")
}

func TestRemoveIsIdempotentAcrossRetries(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return fixedResponse(req.Code, 1000), nil
	})
	ctx := context.Background()

	_, err := svc.Apply(ctx, "s1", "MEOW10")
	require.NoError(t, err)

	set, err := svc.Remove(ctx, "s1", "meow10")
	require.NoError(t, err)
	assert.Empty(t, set.Vouchers)

	set, err = svc.Remove(ctx, "s1", "MEOW10")
	require.NoError(t, err)
	assert.Empty(t, set.Vouchers)
}

func TestApplyRequiresCode(t *testing.T) {
	svc, _ := newService(t, func(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error) {
		return fixedResponse(req.Code, 1000), nil
	})

	_, err := svc.Apply(context.Background(), "s1", "   ")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, common.CodeValidation, appErr.Code)
}
