package state_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/state"
	"SynthLedger/internal/store"
)

const (
	startTime  = int64(1_000_000)
	expiryTime = startTime + 500_000
	liveness   = int64(1_000)
	identifier = "ETHUSD"
)

var adminID = uuid.MustParse("00000000-0000-0000-0000-00000000adad")

func defaultParams() state.Params {
	return state.Params{
		PriceIdentifier:          identifier,
		CollateralSymbol:         "DAI",
		ExpirationTimestamp:      expiryTime,
		WithdrawalLiveness:       liveness,
		LiquidationLiveness:      liveness,
		MinSponsorTokens:         fixedpoint.FromInt(5),
		CollateralRequirement:    fixedpoint.MustParse("1.2"),
		DisputeBondPct:           fixedpoint.MustParse("0.1"),
		SponsorDisputeRewardPct:  fixedpoint.MustParse("0.05"),
		DisputerDisputeRewardPct: fixedpoint.MustParse("0.2"),
	}
}

// flatFeeStore returns fixed fee amounts regardless of elapsed time,
// which makes fee arithmetic in tests exact.
type flatFeeStore struct {
	regular fixedpoint.Unsigned
	penalty fixedpoint.Unsigned
	final   fixedpoint.Unsigned
}

func (s flatFeeStore) ComputeRegularFee(startTime, endTime int64, pfc fixedpoint.Unsigned) (fixedpoint.Unsigned, fixedpoint.Unsigned) {
	if endTime <= startTime {
		return fixedpoint.Zero(), fixedpoint.Zero()
	}
	return s.regular, s.penalty
}

func (s flatFeeStore) ComputeFinalFee() fixedpoint.Unsigned { return s.final }

// env wires the managers the way the engine does, with a manual clock
// and an in-process resolver, and applies every produced batch to the
// tracker so balance preconditions see the effects of prior operations.
type env struct {
	t        *testing.T
	clk      *clock.Manual
	resolver *oracle.Resolver
	tracker  *ledger.BalanceTracker
	pm       *state.PositionManager
	lm       *state.LiquidationManager
	seq      int64
}

func newEnv(t *testing.T, params state.Params, st store.Store) *env {
	t.Helper()
	clk := clock.NewManual(startTime)
	resolver := oracle.NewResolver()
	tracker := ledger.NewBalanceTracker()
	pm := state.NewPositionManager(params, clk, resolver, st, registry.NewFinder(adminID), tracker)
	lm := state.NewLiquidationManager(pm, clk, resolver, tracker)
	return &env{
		t:        t,
		clk:      clk,
		resolver: resolver,
		tracker:  tracker,
		pm:       pm,
		lm:       lm,
	}
}

func newDefaultEnv(t *testing.T) *env {
	return newEnv(t, defaultParams(), flatFeeStore{})
}

// run executes one operation against a fresh batch and applies the
// batch. Fee journals emitted before a precondition failure are still
// applied, matching the engine's rejected-operation handling.
func (e *env) run(fn func(b *ledger.BatchBuilder) error) error {
	e.t.Helper()
	b := ledger.NewBatch(fmt.Sprintf("test:%d", e.seq), e.seq, e.clk.Now())
	e.seq++
	err := fn(b)
	if applyErr := e.tracker.ApplyBatch(b.Build()); applyErr != nil {
		e.t.Fatalf("apply batch: %v", applyErr)
	}
	return err
}

// mustRun is run for operations the test expects to succeed.
func (e *env) mustRun(fn func(b *ledger.BatchBuilder) error) {
	e.t.Helper()
	if err := e.run(fn); err != nil {
		e.t.Fatalf("operation failed: %v", err)
	}
}

func (e *env) fund(id uuid.UUID, amount int64) {
	e.t.Helper()
	e.mustRun(func(b *ledger.BatchBuilder) error {
		b.FundWallet(id, fixedpoint.FromInt(amount))
		return nil
	})
}

func (e *env) create(sponsor uuid.UUID, collateral, tokens int64) error {
	return e.run(func(b *ledger.BatchBuilder) error {
		return e.pm.Create(b, sponsor, fixedpoint.FromInt(collateral), fixedpoint.FromInt(tokens))
	})
}

func (e *env) mustCreate(sponsor uuid.UUID, collateral, tokens int64) {
	e.t.Helper()
	if err := e.create(sponsor, collateral, tokens); err != nil {
		e.t.Fatalf("create position: %v", err)
	}
}

// transferTokens moves synthetic tokens between identities directly on
// the ledger, the way the token-transfer operation does.
func (e *env) transferTokens(from, to uuid.UUID, amount int64) {
	e.t.Helper()
	e.mustRun(func(b *ledger.BatchBuilder) error {
		b.TransferSynthetic(from, to, fixedpoint.FromInt(amount))
		return nil
	})
}

func (e *env) wallet(id uuid.UUID) fixedpoint.Unsigned {
	return e.tracker.WalletBalance(id)
}

func (e *env) synth(id uuid.UUID) fixedpoint.Unsigned {
	return e.tracker.SyntheticBalance(id)
}

func (e *env) assertWallet(id uuid.UUID, want string) {
	e.t.Helper()
	if got := e.wallet(id); got.String() != want {
		e.t.Errorf("wallet = %s, want %s", got, want)
	}
}

func (e *env) assertSynth(id uuid.UUID, want string) {
	e.t.Helper()
	if got := e.synth(id); got.String() != want {
		e.t.Errorf("synthetic balance = %s, want %s", got, want)
	}
}
