package core_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/state"
	"SynthLedger/internal/store"
)

// --- Test helpers ---

const (
	startTime  = int64(1_000_000)
	expiryTime = startTime + 500_000
	liveness   = int64(1_000)
	identifier = "ETHUSD"
)

var adminID = uuid.MustParse("00000000-0000-0000-0000-00000000adad")

func testParams() state.Params {
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

func zeroFeeStore() store.Store {
	return store.NewFixedRateStore(fixedpoint.Zero(), fixedpoint.Zero(), 0, fixedpoint.Zero())
}

type testEngine struct {
	eng     *core.Engine
	clk     *clock.Manual
	persist chan core.Output
	proj    chan core.Output
}

// newTestEngine builds an engine on a manual clock with buffered output
// channels and no metrics.
func newTestEngine(t *testing.T, st store.Store) *testEngine {
	t.Helper()
	clk := clock.NewManual(startTime)
	persist := make(chan core.Output, 1024)
	proj := make(chan core.Output, 1024)

	eng, err := core.NewEngine(
		testParams(),
		clk,
		oracle.NewResolver(),
		st,
		registry.NewFinder(adminID),
		registry.NewIdentifierWhitelist(identifier),
		registry.NewAddressWhitelist("DAI"),
		persist,
		proj,
		nil,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testEngine{eng: eng, clk: clk, persist: persist, proj: proj}
}

// drainOutputs empties the persist channel.
func (te *testEngine) drainOutputs() []core.Output {
	var out []core.Output
	for {
		select {
		case o := <-te.persist:
			out = append(out, o)
		default:
			return out
		}
	}
}

func (te *testEngine) mustFund(t *testing.T, id uuid.UUID, amount int64) {
	t.Helper()
	if err := te.eng.FundWallet(id, fixedpoint.FromInt(amount)); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func (te *testEngine) mustCreate(t *testing.T, sponsor uuid.UUID, collateral, tokens int64) {
	t.Helper()
	if err := te.eng.CreatePosition(sponsor, fixedpoint.FromInt(collateral), fixedpoint.FromInt(tokens)); err != nil {
		t.Fatalf("create position: %v", err)
	}
}

// --- Tests ---

func TestNewEngine_RejectsUnknownIdentifier(t *testing.T) {
	params := testParams()
	params.PriceIdentifier = "BTCUSD"
	_, err := core.NewEngine(
		params,
		clock.NewManual(startTime),
		oracle.NewResolver(),
		zeroFeeStore(),
		registry.NewFinder(adminID),
		registry.NewIdentifierWhitelist(identifier),
		registry.NewAddressWhitelist("DAI"),
		nil, nil, nil,
	)
	if err == nil {
		t.Fatal("unsupported price identifier should fail construction")
	}
}

func TestEngine_EventChain(t *testing.T) {
	te := newTestEngine(t, zeroFeeStore())
	sponsor := uuid.New()

	te.mustFund(t, sponsor, 200)
	te.mustCreate(t, sponsor, 150, 100)
	if err := te.eng.Deposit(sponsor, fixedpoint.FromInt(20)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	outs := te.drainOutputs()
	if len(outs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(outs))
	}

	wantTypes := []event.EventType{
		event.EventTypeWalletFunded,
		event.EventTypePositionCreated,
		event.EventTypeDeposited,
	}
	for i, o := range outs {
		env := o.Envelope
		if env.Sequence != int64(i) {
			t.Errorf("event %d: sequence = %d", i, env.Sequence)
		}
		if env.EventType != wantTypes[i] {
			t.Errorf("event %d: type = %s, want %s", i, env.EventType, wantTypes[i])
		}
		if env.Timestamp != startTime {
			t.Errorf("event %d: timestamp = %d, want ledger time %d", i, env.Timestamp, startTime)
		}
		// Each event chains off its predecessor's state hash.
		if i > 0 && env.PrevHash != outs[i-1].Envelope.StateHash {
			t.Errorf("event %d: broken hash chain", i)
		}
		if o.Batch == nil || len(o.Batch.Journals) == 0 {
			t.Errorf("event %d: missing journal batch", i)
		}
	}

	var created event.PositionCreated
	if err := json.Unmarshal(outs[1].Envelope.Payload, &created); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if created.Sponsor != sponsor.String() {
		t.Errorf("payload sponsor = %s", created.Sponsor)
	}
	if created.Collateral != fixedpoint.FromInt(150).RawString() {
		t.Errorf("payload collateral = %s", created.Collateral)
	}

	if got := te.eng.GetSequence(); got != 3 {
		t.Errorf("next sequence = %d, want 3", got)
	}
	if te.eng.GetStateHash() != outs[2].Envelope.StateHash {
		t.Error("chain tip should match the last emitted event")
	}
}

func TestEngine_RejectedOpEmitsNoEvent(t *testing.T) {
	te := newTestEngine(t, zeroFeeStore())
	sponsor := uuid.New()

	err := te.eng.CreatePosition(sponsor, fixedpoint.FromInt(150), fixedpoint.FromInt(100))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if outs := te.drainOutputs(); len(outs) != 0 {
		t.Errorf("rejected op emitted %d events", len(outs))
	}
	if got := te.eng.GetSequence(); got != 0 {
		t.Errorf("sequence advanced to %d on a rejected op", got)
	}
}

func TestEngine_RejectedOpCommitsSettledFees(t *testing.T) {
	// 1% of the pool per second.
	st := store.NewFixedRateStore(fixedpoint.MustParse("0.01"), fixedpoint.Zero(), 0, fixedpoint.Zero())
	te := newTestEngine(t, st)
	sponsor := uuid.New()

	te.mustFund(t, sponsor, 200)
	te.mustCreate(t, sponsor, 150, 100)
	te.drainOutputs()

	te.clk.Advance(1)
	// A lone sponsor can never pass the instant-withdrawal ratio gate,
	// but the fee window was settled before the gate fired.
	err := te.eng.Withdraw(sponsor, fixedpoint.FromInt(1))
	if !errors.Is(err, state.ErrBelowGCR) {
		t.Fatalf("got %v, want ErrBelowGCR", err)
	}

	outs := te.drainOutputs()
	if len(outs) != 1 {
		t.Fatalf("expected the fee journals as one event, got %d", len(outs))
	}
	env := outs[0].Envelope
	if env.EventType != event.EventTypeRegularFeesPaid {
		t.Fatalf("type = %s, want RegularFeesPaid", env.EventType)
	}
	var fees event.RegularFeesPaid
	if err := json.Unmarshal(env.Payload, &fees); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if fees.Amount != fixedpoint.MustParse("1.5").RawString() {
		t.Errorf("fee amount = %s, want 1.5 (1%% of 150)", fees.Amount)
	}
	// The fee event consumed a sequence slot.
	if got := te.eng.GetSequence(); got != 3 {
		t.Errorf("next sequence = %d, want 3", got)
	}
}

func TestEngine_SettlementFlow(t *testing.T) {
	te := newTestEngine(t, zeroFeeStore())
	sponsor := uuid.New()
	te.mustFund(t, sponsor, 200)
	te.mustCreate(t, sponsor, 150, 100)

	te.clk.Set(expiryTime)
	if err := te.eng.Expire(sponsor); err != nil {
		t.Fatalf("expire: %v", err)
	}

	err := te.eng.SettleExpired(sponsor)
	if !errors.Is(err, state.ErrPriceNotResolved) {
		t.Fatalf("settle before price: got %v, want ErrPriceNotResolved", err)
	}

	if err := te.eng.PushPrice(identifier, expiryTime, fixedpoint.MustParse("1.2")); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if err := te.eng.SettleExpired(sponsor); err != nil {
		t.Fatalf("settle: %v", err)
	}

	w := te.eng.WalletView(sponsor)
	if w.Collateral != fixedpoint.FromInt(200).RawString() {
		t.Errorf("wallet = %s, want the full 200 back", w.Collateral)
	}
	if w.Synthetic != "0" {
		t.Errorf("synthetic = %s, want 0", w.Synthetic)
	}

	cv := te.eng.ContractView()
	if cv.State != "ExpiredPriceReceived" {
		t.Errorf("contract state = %s", cv.State)
	}
	if cv.SettlementPrice != fixedpoint.MustParse("1.2").RawString() {
		t.Errorf("settlement price = %s", cv.SettlementPrice)
	}

	var types []event.EventType
	for _, o := range te.drainOutputs() {
		types = append(types, o.Envelope.EventType)
	}
	want := []event.EventType{
		event.EventTypeWalletFunded,
		event.EventTypePositionCreated,
		event.EventTypeContractExpired,
		event.EventTypePriceResolved,
		event.EventTypeSettledExpired,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestEngine_LiquidationFlow(t *testing.T) {
	te := newTestEngine(t, zeroFeeStore())
	sponsor, liquidator, disputer := uuid.New(), uuid.New(), uuid.New()

	te.mustFund(t, sponsor, 200)
	te.mustFund(t, disputer, 20)
	te.mustCreate(t, sponsor, 150, 100)
	if err := te.eng.TransferTokens(sponsor, liquidator, fixedpoint.FromInt(100)); err != nil {
		t.Fatalf("transfer tokens: %v", err)
	}

	id, err := te.eng.CreateLiquidation(liquidator, sponsor)
	if err != nil {
		t.Fatalf("create liquidation: %v", err)
	}
	lv := te.eng.LiquidationView(sponsor, id)
	if lv == nil {
		t.Fatal("liquidation view should exist")
	}
	if lv.State != "PreDispute" {
		t.Errorf("state = %s, want PreDispute", lv.State)
	}
	if te.eng.PositionView(sponsor) != nil {
		t.Error("liquidated position should be gone")
	}

	if err := te.eng.DisputeLiquidation(disputer, sponsor, id); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	// The dispute is judged at the liquidation-time price.
	if err := te.eng.PushPrice(identifier, startTime, fixedpoint.MustParse("1.2")); err != nil {
		t.Fatalf("push price: %v", err)
	}
	if err := te.eng.SettleDispute(disputer, sponsor, id); err != nil {
		t.Fatalf("settle dispute: %v", err)
	}
	if got := te.eng.LiquidationView(sponsor, id).State; got != "DisputeSucceeded" {
		t.Fatalf("state = %s, want DisputeSucceeded", got)
	}

	for _, caller := range []uuid.UUID{sponsor, liquidator, disputer} {
		if err := te.eng.WithdrawLiquidation(caller, sponsor, id); err != nil {
			t.Fatalf("withdraw liquidation for %s: %v", caller, err)
		}
	}

	// TRV 120: sponsor 30 surplus + 6 reward on top of the 50 kept,
	// liquidator 120 - 30 rewards, disputer bond back + 24 reward.
	if got := te.eng.WalletView(sponsor).Collateral; got != fixedpoint.FromInt(86).RawString() {
		t.Errorf("sponsor wallet = %s, want 86", got)
	}
	if got := te.eng.WalletView(liquidator).Collateral; got != fixedpoint.FromInt(90).RawString() {
		t.Errorf("liquidator wallet = %s, want 90", got)
	}
	if got := te.eng.WalletView(disputer).Collateral; got != fixedpoint.FromInt(44).RawString() {
		t.Errorf("disputer wallet = %s, want 44", got)
	}
	if te.eng.LiquidationView(sponsor, id) != nil {
		t.Error("record should be deleted after all claims")
	}
}

func TestEngine_ProjectionLagNeverBlocks(t *testing.T) {
	clk := clock.NewManual(startTime)
	persist := make(chan core.Output, 1024)
	proj := make(chan core.Output, 1) // projection consumer stalled

	eng, err := core.NewEngine(
		testParams(), clk, oracle.NewResolver(), zeroFeeStore(),
		registry.NewFinder(adminID),
		registry.NewIdentifierWhitelist(identifier),
		registry.NewAddressWhitelist("DAI"),
		persist, proj, nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	id := uuid.New()
	for i := 0; i < 5; i++ {
		if err := eng.FundWallet(id, fixedpoint.FromInt(1)); err != nil {
			t.Fatal(err)
		}
	}

	// Persistence kept every event; the projection channel dropped the
	// overflow instead of stalling the writer.
	if got := len(persist); got != 5 {
		t.Errorf("persist channel holds %d events, want 5", got)
	}
	if got := len(proj); got != 1 {
		t.Errorf("projection channel holds %d events, want 1", got)
	}
}

func TestEngine_ViewsForUnknownIdentities(t *testing.T) {
	te := newTestEngine(t, zeroFeeStore())
	id := uuid.New()

	if te.eng.PositionView(id) != nil {
		t.Error("unknown sponsor should have no position view")
	}
	if te.eng.LiquidationView(id, 0) != nil {
		t.Error("unknown liquidation should be nil")
	}
	w := te.eng.WalletView(id)
	if w.Collateral != "0" || w.Synthetic != "0" {
		t.Errorf("empty wallet = %s/%s, want 0/0", w.Collateral, w.Synthetic)
	}

	cv := te.eng.ContractView()
	if cv.State != "Open" {
		t.Errorf("contract state = %s, want Open", cv.State)
	}
	if cv.PositionCount != 0 {
		t.Errorf("position count = %d", cv.PositionCount)
	}
}
