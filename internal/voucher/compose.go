package voucher

import (
	"errors"
	"strings"

	"github.com/kedaipet/storefront/internal/pricing"
)

var (
	// ErrAlreadyApplied indicates the code is already in the applied set.
	ErrAlreadyApplied = errors.New("voucher already applied")
	// ErrFreeShippingConflict indicates a second free shipping voucher was
	// offered while one is already applied.
	ErrFreeShippingConflict = errors.New("a free shipping voucher is already applied")
)

// Normalize canonicalises a voucher code. Codes compare case-insensitively
// and are stored upper-cased.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply adds a validated voucher to the applied set, enforcing the
// composition rules: no duplicate codes and at most one free shipping
// voucher. The input slice is not mutated.
func Apply(applied []pricing.AppliedVoucher, v pricing.AppliedVoucher) ([]pricing.AppliedVoucher, error) {
	v.Code = Normalize(v.Code)
	for _, existing := range applied {
		if Normalize(existing.Code) == v.Code {
			return nil, ErrAlreadyApplied
		}
		if v.FreeShipping() && existing.FreeShipping() {
			return nil, ErrFreeShippingConflict
		}
	}
	out := make([]pricing.AppliedVoucher, 0, len(applied)+1)
	out = append(out, applied...)
	out = append(out, v)
	return out, nil
}

// Remove drops a code from the applied set. Removing an absent code is a
// no-op so retried removals stay safe.
func Remove(applied []pricing.AppliedVoucher, code string) []pricing.AppliedVoucher {
	code = Normalize(code)
	out := applied[:0:0]
	for _, existing := range applied {
		if Normalize(existing.Code) == code {
			continue
		}
		out = append(out, existing)
	}
	return out
}
