package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/state"
	"SynthLedger/internal/store"
)

// ============================================================================
// Test: FeeAccounting
// ============================================================================

func TestPayRegularFees_NothingElapsed(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))

	fee := f.PayRegularFees(100, flatFeeStore{regular: fixedpoint.FromInt(1)})
	if !fee.IsZero() {
		t.Errorf("no time elapsed should pay nothing, got %s", fee)
	}
	if !f.Multiplier().Equal(fixedpoint.One()) {
		t.Errorf("multiplier should stay 1, got %s", f.Multiplier())
	}
}

func TestPayRegularFees_ZeroCollateral(t *testing.T) {
	f := state.NewFeeAccounting(100)

	fee := f.PayRegularFees(200, flatFeeStore{regular: fixedpoint.FromInt(1)})
	if !fee.IsZero() {
		t.Errorf("empty pool should pay nothing, got %s", fee)
	}
	// The window is still consumed: a later payment does not back-charge.
	if f.LastPaymentTime() != 200 {
		t.Errorf("lastPaymentTime = %d, want 200", f.LastPaymentTime())
	}
}

func TestPayRegularFees_CeilAdjustment(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))

	fee := f.PayRegularFees(101, flatFeeStore{regular: fixedpoint.FromInt(1)})
	if !fee.Equal(fixedpoint.FromInt(1)) {
		t.Fatalf("fee = %s, want 1", fee)
	}

	// adjustment = ceil(1/30) = 0.033333333333333334, so the multiplier
	// rounds down to 0.966666666666666666: the store never takes the
	// rounding loss.
	if got := f.Multiplier().RawString(); got != "966666666666666666" {
		t.Errorf("multiplier = %s, want 966666666666666666", got)
	}
	if got := f.TotalCollateral().RawString(); got != "28999999999999999980" {
		t.Errorf("total collateral = %s, want 28999999999999999980", got)
	}
	// fee + remaining effective collateral never exceeds the original 30.
	total := f.TotalCollateral().Add(fee)
	if total.GT(fixedpoint.FromInt(30)) {
		t.Errorf("fee + remaining = %s exceeds the pool", total)
	}
}

func TestPayRegularFees_CappedAtPool(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))

	fee := f.PayRegularFees(101, flatFeeStore{regular: fixedpoint.FromInt(100)})
	if !fee.Equal(fixedpoint.FromInt(30)) {
		t.Errorf("fee should cap at the pool: got %s, want 30", fee)
	}
	// The multiplier survives as the smallest positive value rather than
	// collapsing to zero and bricking future conversions.
	if f.Multiplier().IsZero() {
		t.Error("multiplier must stay strictly positive")
	}
}

func TestPayRegularFees_LatePenalty(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))

	fee := f.PayRegularFees(101, flatFeeStore{
		regular: fixedpoint.FromInt(1),
		penalty: fixedpoint.FromInt(2),
	})
	if !fee.Equal(fixedpoint.FromInt(3)) {
		t.Errorf("fee = %s, want regular+penalty = 3", fee)
	}
}

func TestFixedRateStore_ProportionalFee(t *testing.T) {
	s := store.NewFixedRateStore(
		fixedpoint.MustParse("0.01"), // 1% per second
		fixedpoint.MustParse("0.02"),
		10, // delinquent after 10s
		fixedpoint.Zero(),
	)

	regular, penalty := s.ComputeRegularFee(0, 5, fixedpoint.FromInt(100))
	if !regular.Equal(fixedpoint.FromInt(5)) {
		t.Errorf("regular = %s, want 5", regular)
	}
	if !penalty.IsZero() {
		t.Errorf("penalty before delinquency should be 0, got %s", penalty)
	}

	// 15 seconds: 5 of them delinquent.
	regular, penalty = s.ComputeRegularFee(0, 15, fixedpoint.FromInt(100))
	if !regular.Equal(fixedpoint.FromInt(15)) {
		t.Errorf("regular = %s, want 15", regular)
	}
	if !penalty.Equal(fixedpoint.FromInt(10)) {
		t.Errorf("penalty = %s, want 2%%*100*5s = 10", penalty)
	}
}

func TestPayFinalFee_RequiresCoverage(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(10))

	fee, err := f.PayFinalFee(flatFeeStore{final: fixedpoint.FromInt(4)})
	if err != nil {
		t.Fatalf("covered final fee failed: %v", err)
	}
	if !fee.Equal(fixedpoint.FromInt(4)) {
		t.Errorf("fee = %s, want 4", fee)
	}
	if !f.TotalCollateral().Equal(fixedpoint.FromInt(6)) {
		t.Errorf("remaining = %s, want 6", f.TotalCollateral())
	}

	_, err = f.PayFinalFee(flatFeeStore{final: fixedpoint.FromInt(7)})
	if !errors.Is(err, state.ErrFinalFeeUnpayable) {
		t.Errorf("uncovered final fee: got %v, want ErrFinalFeeUnpayable", err)
	}
}

func TestRemoveFromRawTotal_PaidNeverExceedsRequested(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))
	// Shrink the multiplier so conversions start losing precision.
	f.PayRegularFees(101, flatFeeStore{regular: fixedpoint.FromInt(1)})

	requested := fixedpoint.FromInt(10)
	_, paid := f.RemoveFromRawTotal(requested)
	if paid.GT(requested) {
		t.Errorf("paid %s exceeds requested %s", paid, requested)
	}
	if paid.IsZero() {
		t.Error("a funded pool should pay a non-trivial amount")
	}
}

// Raw-unit walkthrough of a fee followed by a partial redemption: 30
// raw units of collateral against 20 raw tokens, one second at 4%/s.
// The fee floors to 1 raw unit, the ceil adjustment leaves the
// multiplier at exactly 966666666666666666, reads floor the effective
// collateral to 28, and redeeming 9 of the 20 tokens pays exactly 11
// raw units (floor(0.45*28) = 12 effective collapses to 11 through the
// raw round trip).
func TestRegularFees_RawUnitRedemptionPrecision(t *testing.T) {
	params := defaultParams()
	params.MinSponsorTokens = fixedpoint.FromRaw(1)
	st := store.NewFixedRateStore(
		fixedpoint.MustParse("0.04"),
		fixedpoint.Zero(),
		0,
		fixedpoint.Zero(),
	)
	e := newEnv(t, params, st)
	sponsor := uuid.New()

	e.mustRun(func(b *ledger.BatchBuilder) error {
		b.FundWallet(sponsor, fixedpoint.FromRaw(30))
		return nil
	})
	e.mustRun(func(b *ledger.BatchBuilder) error {
		return e.pm.Create(b, sponsor, fixedpoint.FromRaw(30), fixedpoint.FromRaw(20))
	})

	// One second of fees settles on the next operation.
	e.clk.Advance(1)
	e.mustRun(func(b *ledger.BatchBuilder) error {
		return e.pm.RequestWithdrawal(b, sponsor, fixedpoint.FromRaw(1))
	})
	e.mustRun(func(b *ledger.BatchBuilder) error {
		return e.pm.CancelWithdrawal(b, sponsor)
	})

	if got := e.tracker.FeeSinkBalance().RawString(); got != "1" {
		t.Fatalf("fee sink = %s raw, want 1", got)
	}
	if got := e.pm.Fees().Multiplier().RawString(); got != "966666666666666666" {
		t.Fatalf("multiplier = %s, want 966666666666666666", got)
	}
	if got := e.pm.GetCollateral(sponsor).RawString(); got != "28" {
		t.Fatalf("effective collateral = %s raw, want 28", got)
	}

	e.mustRun(func(b *ledger.BatchBuilder) error {
		return e.pm.Redeem(b, sponsor, fixedpoint.FromRaw(9))
	})

	if got := e.wallet(sponsor).RawString(); got != "11" {
		t.Errorf("redeeming 9 of 20 tokens paid %s raw, want exactly 11", got)
	}
	if got := e.synth(sponsor).RawString(); got != "11" {
		t.Errorf("tokens held = %s raw, want 11", got)
	}
	if got := e.pm.GetCollateral(sponsor).RawString(); got != "17" {
		t.Errorf("remaining effective collateral = %s raw, want 17", got)
	}
}

func TestAddToRawTotal_LaterDepositsNotTaxed(t *testing.T) {
	f := state.NewFeeAccounting(100)
	f.AddToRawTotal(fixedpoint.FromInt(30))
	f.PayRegularFees(101, flatFeeStore{regular: fixedpoint.FromInt(1)})

	before := f.TotalCollateral()
	f.AddToRawTotal(fixedpoint.FromInt(50))
	gained := f.TotalCollateral().Sub(before)

	// The deposit is converted at the current multiplier, so its
	// effective value is preserved up to one raw unit of floor loss.
	if gained.GT(fixedpoint.FromInt(50)) {
		t.Errorf("deposit gained %s, more than deposited", gained)
	}
	diff := fixedpoint.FromInt(50).Sub(gained)
	if diff.GT(fixedpoint.FromRaw(2)) {
		t.Errorf("deposit lost %s raw units to conversion, want <= 2", diff.RawString())
	}
}
