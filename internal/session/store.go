package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kedaipet/storefront/internal/pricing"
)

// ErrStaleVoucherSet indicates the voucher set changed while an update was in
// flight; the caller must discard its result instead of applying it.
var ErrStaleVoucherSet = errors.New("session: voucher set changed concurrently")

// VoucherSet is the applied-voucher state for one checkout session. Version
// increases on every mutation so in-flight validations can detect that the
// set was cleared or edited underneath them.
type VoucherSet struct {
	Version  int64                    `json:"version"`
	Vouchers []pricing.AppliedVoucher `json:"vouchers"`
}

// BuyNowItem is the transient line for a buy-now checkout, captured when the
// customer leaves the product page.
type BuyNowItem struct {
	ProductID  string        `json:"productId"`
	Qty        int           `json:"qty"`
	UnitPrice  pricing.Money `json:"unitPrice"`
	WeightGram int           `json:"weightGram"`
	Stock      *int          `json:"stock"`
}

// Selection records which items the checkout page prices and orders.
type Selection struct {
	Mode    string      `json:"mode"`
	ItemIDs []string    `json:"itemIds,omitempty"`
	BuyNow  *BuyNowItem `json:"buyNow,omitempty"`
}

// PendingPayment holds the parameter bag for an in-flight mock payment.
type PendingPayment struct {
	OrderID string            `json:"orderId"`
	Amount  pricing.Money     `json:"amount"`
	Params  map[string]string `json:"params"`
}

// Store keeps ephemeral storefront state in Redis keyed by session id. Every
// value expires with the session TTL; nothing here is durable.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 2 * time.Hour
	}
	return s.TTL
}

func voucherKey(sid string) string   { return "sess:" + sid + ":vouchers" }
func guestKey(sid string) string     { return "sess:" + sid + ":guest" }
func paymentKey(sid string) string   { return "sess:" + sid + ":payment" }
func selectionKey(sid string) string { return "sess:" + sid + ":selection" }

// Vouchers loads the session's applied voucher set. A missing key yields an
// empty set at version zero.
func (s *Store) Vouchers(ctx context.Context, sid string) (VoucherSet, error) {
	if s == nil || s.R == nil {
		return VoucherSet{}, errors.New("session store not configured")
	}
	data, err := s.R.Get(ctx, voucherKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return VoucherSet{}, nil
		}
		return VoucherSet{}, err
	}
	var set VoucherSet
	if err := json.Unmarshal(data, &set); err != nil {
		return VoucherSet{}, err
	}
	return set, nil
}

// SaveVouchers writes the voucher set if and only if the stored version still
// equals fromVersion, bumping the version by one. A concurrent mutation
// surfaces as ErrStaleVoucherSet.
func (s *Store) SaveVouchers(ctx context.Context, sid string, vouchers []pricing.AppliedVoucher, fromVersion int64) (int64, error) {
	if s == nil || s.R == nil {
		return 0, errors.New("session store not configured")
	}
	key := voucherKey(sid)
	next := fromVersion + 1
	txf := func(tx *redis.Tx) error {
		current := VoucherSet{}
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
		}
		if current.Version != fromVersion {
			return ErrStaleVoucherSet
		}
		payload, err := json.Marshal(VoucherSet{Version: next, Vouchers: vouchers})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl())
			return nil
		})
		return err
	}
	if err := s.R.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return 0, ErrStaleVoucherSet
		}
		return 0, err
	}
	return next, nil
}

// ClearVouchers empties the applied set, retrying through concurrent
// mutations. Used when the customer navigates away from checkout.
func (s *Store) ClearVouchers(ctx context.Context, sid string) error {
	for attempt := 0; attempt < 5; attempt++ {
		set, err := s.Vouchers(ctx, sid)
		if err != nil {
			return err
		}
		if len(set.Vouchers) == 0 && set.Version == 0 {
			return nil
		}
		if _, err := s.SaveVouchers(ctx, sid, nil, set.Version); err != nil {
			if errors.Is(err, ErrStaleVoucherSet) {
				continue
			}
			return err
		}
		return nil
	}
	return ErrStaleVoucherSet
}

// SetGuestEmail stores the guest checkout email for the session.
func (s *Store) SetGuestEmail(ctx context.Context, sid, email string) error {
	if s == nil || s.R == nil {
		return errors.New("session store not configured")
	}
	return s.R.Set(ctx, guestKey(sid), email, s.ttl()).Err()
}

// GuestEmail returns the stored guest email, empty when absent.
func (s *Store) GuestEmail(ctx context.Context, sid string) (string, error) {
	if s == nil || s.R == nil {
		return "", errors.New("session store not configured")
	}
	email, err := s.R.Get(ctx, guestKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return email, err
}

// SavePendingPayment stores the in-flight mock payment parameters.
func (s *Store) SavePendingPayment(ctx context.Context, sid string, p PendingPayment) error {
	if s == nil || s.R == nil {
		return errors.New("session store not configured")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, paymentKey(sid), data, s.ttl()).Err()
}

// PendingPayment loads the in-flight mock payment parameters; found reports
// whether any exist.
func (s *Store) PendingPayment(ctx context.Context, sid string) (PendingPayment, bool, error) {
	if s == nil || s.R == nil {
		return PendingPayment{}, false, errors.New("session store not configured")
	}
	data, err := s.R.Get(ctx, paymentKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PendingPayment{}, false, nil
		}
		return PendingPayment{}, false, err
	}
	var p PendingPayment
	if err := json.Unmarshal(data, &p); err != nil {
		return PendingPayment{}, false, err
	}
	return p, true, nil
}

// ClearPendingPayment removes the stored payment parameters.
func (s *Store) ClearPendingPayment(ctx context.Context, sid string) error {
	if s == nil || s.R == nil {
		return errors.New("session store not configured")
	}
	return s.R.Del(ctx, paymentKey(sid)).Err()
}

// SaveSelection stores the checkout item selection handed over by the cart
// or product page.
func (s *Store) SaveSelection(ctx context.Context, sid string, sel Selection) error {
	if s == nil || s.R == nil {
		return errors.New("session store not configured")
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, selectionKey(sid), data, s.ttl()).Err()
}

// Selection loads the checkout item selection. A missing key yields the
// full-cart fallback.
func (s *Store) Selection(ctx context.Context, sid string) (Selection, error) {
	if s == nil || s.R == nil {
		return Selection{}, errors.New("session store not configured")
	}
	data, err := s.R.Get(ctx, selectionKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Selection{}, nil
		}
		return Selection{}, err
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// ClearCheckout drops all checkout-scoped state (vouchers, selection and any
// pending payment) when the customer leaves the checkout flow.
func (s *Store) ClearCheckout(ctx context.Context, sid string) error {
	if err := s.ClearVouchers(ctx, sid); err != nil {
		return err
	}
	return s.R.Del(ctx, selectionKey(sid), paymentKey(sid)).Err()
}
