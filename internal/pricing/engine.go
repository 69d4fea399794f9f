package pricing

import "strings"

// Money represents a monetary value stored in sen (minor units of MYR).
type Money = int64

// Weight represents a shipping weight in grams.
type Weight = int

// FreeShippingThreshold is the subtotal at which shipping becomes free
// regardless of weight or vouchers.
const FreeShippingThreshold Money = 15000

// Courier weight-band rates. Weights are banded on the ceiling of the total
// weight in whole kilograms.
const (
	bandBaseFee    Money = 689
	bandHeavyFee   Money = 900
	bandHeavyFromKg      = 3
	bandPerExtraKg Money = 100
)

// Voucher discount kinds as reported by the voucher service.
const (
	KindFixedAmount  = "fixed_amount"
	KindPercentage   = "percentage"
	KindFreeShipping = "free_shipping"
)

// LineItem is an immutable snapshot of a cart line fed into a computation.
type LineItem struct {
	ID         string
	UnitPrice  Money
	Qty        int
	UnitWeight Weight
	Stock      *int
}

// AppliedVoucher is a voucher accepted by the voucher service. Discount holds
// the server-calculated amount and is authoritative for non-shipping kinds.
// For free_shipping vouchers Value carries the shipping discount, where a
// value of zero means the shipping fee is waived entirely.
type AppliedVoucher struct {
	Code     string `json:"code"`
	Kind     string `json:"kind"`
	Value    int64  `json:"value"`
	Discount Money  `json:"discount"`
}

// FreeShipping reports whether the voucher discounts the shipping fee.
func (v AppliedVoucher) FreeShipping() bool {
	return strings.EqualFold(v.Kind, KindFreeShipping)
}

// Quote aggregates computed pricing components for a set of lines.
type Quote struct {
	Subtotal         Money  `json:"subtotal"`
	TotalWeight      Weight `json:"totalWeight"`
	RawShipping      Money  `json:"rawShipping"`
	ShippingDiscount Money  `json:"shippingDiscount"`
	Shipping         Money  `json:"shipping"`
	ItemDiscount     Money  `json:"itemDiscount"`
	Total            Money  `json:"total"`
}

// CeilKg rounds a gram weight up to whole kilograms. Non-positive weights
// round to zero.
func CeilKg(w Weight) int {
	if w <= 0 {
		return 0
	}
	return (w + 999) / 1000
}

// ShippingFee returns the courier fee for the given total weight. The rate is
// a step function over the ceiling of the weight in kilograms: up to 2 kg pays
// the base rate, from 3 kg the heavy rate plus a per-kilogram surcharge.
func ShippingFee(w Weight) Money {
	kg := CeilKg(w)
	if kg < bandHeavyFromKg {
		return bandBaseFee
	}
	return bandHeavyFee + Money(kg-bandHeavyFromKg)*bandPerExtraKg
}

// Compute calculates the full pricing breakdown for the provided lines and
// applied vouchers. It is pure: identical inputs always yield an identical
// Quote, and voucher order does not affect the result. The caller decides
// which lines participate (full cart, selected subset or a buy-now item).
//
// The free-shipping threshold zeroes the raw fee before any voucher is
// considered, and the non-shipping discount is clamped at the subtotal so the
// payable total can never go negative.
func Compute(lines []LineItem, vouchers []AppliedVoucher) Quote {
	var q Quote
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		q.Subtotal += Money(l.Qty) * l.UnitPrice
		q.TotalWeight += l.Qty * l.UnitWeight
	}

	if q.Subtotal >= FreeShippingThreshold {
		q.RawShipping = 0
	} else {
		q.RawShipping = ShippingFee(q.TotalWeight)
	}

	var freeShip *AppliedVoucher
	for i := range vouchers {
		v := vouchers[i]
		if v.FreeShipping() {
			// Composition guarantees at most one; keep the first defensively.
			if freeShip == nil {
				freeShip = &vouchers[i]
			}
			continue
		}
		if v.Discount > 0 {
			q.ItemDiscount += v.Discount
		}
	}
	if q.ItemDiscount > q.Subtotal {
		q.ItemDiscount = q.Subtotal
	}

	q.Shipping = q.RawShipping
	if freeShip != nil {
		if freeShip.Value == 0 {
			q.ShippingDiscount = q.RawShipping
		} else {
			q.ShippingDiscount = freeShip.Value
			if q.ShippingDiscount > q.RawShipping {
				q.ShippingDiscount = q.RawShipping
			}
		}
		q.Shipping = q.RawShipping - q.ShippingDiscount
	}

	q.Total = q.Subtotal - q.ItemDiscount + q.Shipping
	if q.Total < 0 {
		q.Total = 0
	}
	return q
}
