package state

import (
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/store"
)

// FeeAccounting maintains the global fee multiplier that scales every
// position's raw collateral to its effective collateral.
//
// Effective total collateral = rawTotal * multiplier, floored. The
// multiplier starts at 1.0 and only ever decreases: each regular-fee
// payment multiplies it by (1 - feeAdjustment), where feeAdjustment is
// the ceiling-rounded quotient of the fee over the prior effective
// total. Ceiling there, floor on reads, means the ledger never pays
// out more effective collateral than it collected; the store may gain
// a one-unit rounding benefit, never take a loss.
type FeeAccounting struct {
	rawTotal        fixedpoint.Unsigned // rawTotalPositionCollateral
	multiplier      fixedpoint.Unsigned // cumulativeFeeMultiplier, in (0, 1]
	lastPaymentTime int64
}

func NewFeeAccounting(startTime int64) *FeeAccounting {
	return &FeeAccounting{
		rawTotal:        fixedpoint.Zero(),
		multiplier:      fixedpoint.One(),
		lastPaymentTime: startTime,
	}
}

func (f *FeeAccounting) Multiplier() fixedpoint.Unsigned { return f.multiplier }
func (f *FeeAccounting) RawTotal() fixedpoint.Unsigned   { return f.rawTotal }
func (f *FeeAccounting) LastPaymentTime() int64          { return f.lastPaymentTime }

// FeeAdjusted floors raw collateral through the multiplier.
func (f *FeeAccounting) FeeAdjusted(raw fixedpoint.Unsigned) fixedpoint.Unsigned {
	return raw.Mul(f.multiplier)
}

// TotalCollateral is the effective collateral across all positions,
// the PfC base for regular fees.
func (f *FeeAccounting) TotalCollateral() fixedpoint.Unsigned {
	return f.FeeAdjusted(f.rawTotal)
}

// convertToRaw floors an effective amount into raw units at the
// current multiplier.
func (f *FeeAccounting) convertToRaw(effective fixedpoint.Unsigned) fixedpoint.Unsigned {
	return effective.Div(f.multiplier)
}

// AddToRawTotal records an effective deposit against the global raw
// total and returns the raw delta, so future multiplier shrinkage
// cannot retroactively tax collateral deposited after a fee.
func (f *FeeAccounting) AddToRawTotal(effective fixedpoint.Unsigned) fixedpoint.Unsigned {
	delta := f.convertToRaw(effective)
	f.rawTotal = f.rawTotal.Add(delta)
	return delta
}

// RemoveFromRawTotal deducts an effective amount from the global raw
// total and returns (rawDelta, paid): paid is the fee-adjusted delta
// the holder actually receives, which precision loss can make smaller
// than the requested amount (never larger).
func (f *FeeAccounting) RemoveFromRawTotal(effective fixedpoint.Unsigned) (fixedpoint.Unsigned, fixedpoint.Unsigned) {
	before := f.TotalCollateral()
	delta := fixedpoint.Min(f.convertToRaw(effective), f.rawTotal)
	f.rawTotal = f.rawTotal.Sub(delta)
	paid := before.Sub(f.TotalCollateral())
	return delta, paid
}

// PayRegularFees settles the outstanding fee window against the store
// and shrinks the multiplier. Returns the fee transferred to the
// store; zero means no-op (nothing elapsed, nothing owed, or no
// collateral to charge).
func (f *FeeAccounting) PayRegularFees(now int64, s store.Store) fixedpoint.Unsigned {
	if now <= f.lastPaymentTime {
		return fixedpoint.Zero()
	}
	pfc := f.TotalCollateral()
	if pfc.IsZero() {
		f.lastPaymentTime = now
		return fixedpoint.Zero()
	}

	regular, penalty := s.ComputeRegularFee(f.lastPaymentTime, now, pfc)
	f.lastPaymentTime = now

	total := regular.Add(penalty)
	if total.IsZero() {
		return fixedpoint.Zero()
	}
	// Fees are capped at 100% of the PfC.
	total = fixedpoint.Min(total, pfc)

	adjustment := total.DivCeil(pfc)
	if adjustment.GTE(fixedpoint.One()) {
		// Keep the multiplier strictly positive even when the entire
		// PfC is consumed.
		adjustment = fixedpoint.One().Sub(fixedpoint.FromRaw(1))
	}
	f.multiplier = f.multiplier.Mul(fixedpoint.One().Sub(adjustment))
	return total
}

// PayFinalFee deducts the one-time expiry fee. The whole expire call
// fails if the effective collateral cannot cover it; the obligation is
// never silently waived.
func (f *FeeAccounting) PayFinalFee(s store.Store) (fixedpoint.Unsigned, error) {
	fee := s.ComputeFinalFee()
	if fee.IsZero() {
		return fixedpoint.Zero(), nil
	}
	if f.TotalCollateral().LT(fee) {
		return fixedpoint.Zero(), ErrFinalFeeUnpayable
	}
	f.rawTotal = f.rawTotal.Sub(f.convertToRaw(fee))
	return fee, nil
}
