package voucher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/lock"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/session"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Validator validates a voucher code against the commerce API.
type Validator interface {
	ValidateVoucher(ctx context.Context, req upstream.VoucherValidateRequest) (upstream.VoucherValidateResponse, error)
}

// LineSource resolves the items currently being checked out so the validator
// sees the real subtotal.
type LineSource interface {
	CheckoutLines(ctx context.Context, sid string) ([]pricing.LineItem, error)
}

// Service manages the applied voucher set for a checkout session. Validation
// is delegated upstream; composition rules and ordering are enforced here.
type Service struct {
	Upstream   Validator
	Lines      LineSource
	Sessions   *session.Store
	R          *redis.Client
	Locks      lock.Locker
	Logger     zerolog.Logger
	PendingTTL time.Duration
}

func pendingKey(sid, code string) string { return "voucher:pending:" + sid + ":" + code }
func mutateKey(sid string) string        { return "voucher:mutate:" + sid }

func (s *Service) pendingTTL() time.Duration {
	if s == nil || s.PendingTTL <= 0 {
		return 15 * time.Second
	}
	return s.PendingTTL
}

// List returns the session's applied vouchers.
func (s *Service) List(ctx context.Context, sid string) (session.VoucherSet, error) {
	if s == nil || s.Sessions == nil {
		return session.VoucherSet{}, errors.New("voucher service not configured")
	}
	return s.Sessions.Vouchers(ctx, sid)
}

// Apply validates a code upstream and adds it to the session's applied set.
// Only one validation per code may be in flight at a time, and a result that
// completes after the set was cleared or edited is discarded rather than
// applied to the newer state.
func (s *Service) Apply(ctx context.Context, sid, code string) (session.VoucherSet, error) {
	if s == nil || s.Sessions == nil || s.Upstream == nil {
		return session.VoucherSet{}, errors.New("voucher service not configured")
	}
	code = Normalize(code)
	if code == "" {
		return session.VoucherSet{}, common.NewAppError(common.CodeValidation, "voucher code is required", http.StatusBadRequest, nil)
	}

	if s.R != nil {
		acquired, err := s.R.SetNX(ctx, pendingKey(sid, code), "1", s.pendingTTL()).Result()
		if err != nil {
			return session.VoucherSet{}, err
		}
		if !acquired {
			return session.VoucherSet{}, common.NewAppError(common.CodeVoucherDuplicate, "voucher is already being validated", http.StatusConflict, nil)
		}
		defer func() { _ = s.R.Del(context.WithoutCancel(ctx), pendingKey(sid, code)).Err() }()
	}

	start, err := s.Sessions.Vouchers(ctx, sid)
	if err != nil {
		return session.VoucherSet{}, err
	}
	// Reject composition violations before the round trip so the customer
	// gets a precise reason instead of a generic rejection.
	if _, err := Apply(start.Vouchers, pricing.AppliedVoucher{Code: code}); errors.Is(err, ErrAlreadyApplied) {
		return session.VoucherSet{}, common.NewAppError(common.CodeVoucherDuplicate, "voucher already applied", http.StatusConflict, err)
	}

	subtotal, email, err := s.checkoutContext(ctx, sid)
	if err != nil {
		return session.VoucherSet{}, err
	}

	resp, err := s.Upstream.ValidateVoucher(ctx, upstream.VoucherValidateRequest{Code: code, Subtotal: subtotal, Email: email})
	if err != nil {
		obs.VouchersRejected.Inc()
		return session.VoucherSet{}, rejectionError(err)
	}
	applied := toApplied(code, resp)

	var result session.VoucherSet
	lockErr := s.withMutateLock(ctx, sid, func(ctx context.Context) error {
		next, err := Apply(start.Vouchers, applied)
		if err != nil {
			return composeError(err)
		}
		version, err := s.Sessions.SaveVouchers(ctx, sid, next, start.Version)
		if err != nil {
			if errors.Is(err, session.ErrStaleVoucherSet) {
				return common.NewAppError(common.CodeVoucherRejected, "checkout changed while validating the voucher, please try again", http.StatusConflict, err)
			}
			return err
		}
		result = session.VoucherSet{Version: version, Vouchers: next}
		return nil
	})
	if lockErr != nil {
		return session.VoucherSet{}, lockErr
	}

	obs.VouchersApplied.Inc()
	s.Logger.Info().Str("code", code).Str("kind", applied.Kind).Msg("voucher applied")
	return result, nil
}

// Remove drops a code from the session's applied set. Removing a code that is
// not applied succeeds without change.
func (s *Service) Remove(ctx context.Context, sid, code string) (session.VoucherSet, error) {
	if s == nil || s.Sessions == nil {
		return session.VoucherSet{}, errors.New("voucher service not configured")
	}
	code = Normalize(code)
	if code == "" {
		return session.VoucherSet{}, common.NewAppError(common.CodeValidation, "voucher code is required", http.StatusBadRequest, nil)
	}

	var result session.VoucherSet
	err := s.withMutateLock(ctx, sid, func(ctx context.Context) error {
		current, err := s.Sessions.Vouchers(ctx, sid)
		if err != nil {
			return err
		}
		next := Remove(current.Vouchers, code)
		if len(next) == len(current.Vouchers) {
			result = current
			return nil
		}
		version, err := s.Sessions.SaveVouchers(ctx, sid, next, current.Version)
		if err != nil {
			return err
		}
		result = session.VoucherSet{Version: version, Vouchers: next}
		return nil
	})
	if err != nil {
		return session.VoucherSet{}, err
	}
	return result, nil
}

// Clear empties the applied set, invalidating any in-flight validations.
func (s *Service) Clear(ctx context.Context, sid string) error {
	if s == nil || s.Sessions == nil {
		return errors.New("voucher service not configured")
	}
	return s.withMutateLock(ctx, sid, func(ctx context.Context) error {
		return s.Sessions.ClearVouchers(ctx, sid)
	})
}

func (s *Service) withMutateLock(ctx context.Context, sid string, fn func(context.Context) error) error {
	if s.Locks.R == nil {
		return fn(ctx)
	}
	return s.Locks.WithLock(ctx, mutateKey(sid), 10*time.Second, fn)
}

func (s *Service) checkoutContext(ctx context.Context, sid string) (pricing.Money, string, error) {
	var subtotal pricing.Money
	if s.Lines != nil {
		lines, err := s.Lines.CheckoutLines(ctx, sid)
		if err != nil {
			return 0, "", err
		}
		for _, line := range lines {
			if line.Qty > 0 {
				subtotal += line.UnitPrice * pricing.Money(line.Qty)
			}
		}
	}
	email := ""
	if _, authenticated := common.UserID(ctx); !authenticated {
		var err error
		email, err = s.Sessions.GuestEmail(ctx, sid)
		if err != nil {
			return 0, "", err
		}
	}
	return subtotal, email, nil
}

// toApplied maps the validation response onto the applied-voucher shape the
// quote engine consumes.
func toApplied(code string, resp upstream.VoucherValidateResponse) pricing.AppliedVoucher {
	kind := resp.Voucher.DiscountType
	switch kind {
	case "fixed", pricing.KindFixedAmount:
		kind = pricing.KindFixedAmount
	case "percent", pricing.KindPercentage:
		kind = pricing.KindPercentage
	case pricing.KindFreeShipping:
	default:
		kind = pricing.KindFixedAmount
	}
	return pricing.AppliedVoucher{
		Code:     Normalize(code),
		Kind:     kind,
		Value:    pricing.Money(resp.Voucher.DiscountAmount),
		Discount: resp.CalculatedDiscount,
	}
}

func composeError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		return common.NewAppError(common.CodeVoucherDuplicate, "voucher already applied", http.StatusConflict, err)
	case errors.Is(err, ErrFreeShippingConflict):
		return common.NewAppError(common.CodeFreeShipConflict, "a free shipping voucher is already applied", http.StatusConflict, err)
	default:
		return err
	}
}

// rejectionError converts an upstream validation failure into a voucher
// rejection carrying the upstream reason verbatim. Availability problems pass
// through untouched.
func rejectionError(err error) error {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeUpstreamUnavailable, common.CodeUnauthorized:
			return err
		default:
			return common.NewAppError(common.CodeVoucherRejected, appErr.Message, http.StatusUnprocessableEntity, err)
		}
	}
	return err
}
