package ledger_test

import (
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_WalletPath(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	path := ledger.WalletKey(id).AccountPath()
	want := "user:550e8400-e29b-41d4-a716-446655440000:wallet:COLLATERAL"
	if path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestAccountKey_SyntheticPath(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	path := ledger.SyntheticKey(id).AccountPath()
	want := "user:550e8400-e29b-41d4-a716-446655440000:synthetic:SYNTH"
	if path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestAccountKey_SystemAndExternalPaths(t *testing.T) {
	cases := []struct {
		key  ledger.AccountKey
		want string
	}{
		{ledger.EscrowKey(), "system:escrow:COLLATERAL"},
		{ledger.FeeSinkKey(), "system:fee_sink:COLLATERAL"},
		{ledger.CollateralSourceKey(), "external:collateral_source:COLLATERAL"},
		{ledger.SyntheticSupplyKey(), "external:synthetic_supply:SYNTH"},
	}
	for _, c := range cases {
		if got := c.key.AccountPath(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}

// ============================================================================
// Test: BatchBuilder
// ============================================================================

func TestBatchBuilder_SkipsZeroLegs(t *testing.T) {
	id := uuid.New()
	b := ledger.NewBatch("test:0", 0, 1000)
	b.FundWallet(id, fixedpoint.Zero())
	b.RegularFee(fixedpoint.Zero())
	if got := len(b.Build().Journals); got != 0 {
		t.Errorf("zero-amount legs should be skipped, got %d journals", got)
	}
}

func TestBatchBuilder_DepositLeg(t *testing.T) {
	id := uuid.New()
	b := ledger.NewBatch("deposit:1", 1, 1000)
	b.Deposit(id, fixedpoint.FromInt(10))

	batch := b.Build()
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}
	j := batch.Journals[0]
	if j.DebitAccount != ledger.EscrowKey() {
		t.Errorf("deposit should debit escrow, got %s", j.DebitAccount.AccountPath())
	}
	if j.CreditAccount != ledger.WalletKey(id) {
		t.Errorf("deposit should credit the wallet, got %s", j.CreditAccount.AccountPath())
	}
	if j.JournalType != ledger.JournalTypeDeposit {
		t.Errorf("wrong journal type %s", j.JournalType)
	}
	if j.EventRef != "deposit:1" || j.Sequence != 1 || j.Timestamp != 1000 {
		t.Error("journal should carry the batch envelope fields")
	}
}

func TestBatch_ValidateRejectsMismatchedBatchID(t *testing.T) {
	id := uuid.New()
	batch := ledger.NewBatch("t:0", 0, 0)
	batch.FundWallet(id, fixedpoint.FromInt(1))
	b := batch.Build()
	b.Journals[0].BatchID = uuid.New()
	if err := b.Validate(); err == nil {
		t.Error("mismatched batch_id should fail validation")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if !bt.WalletBalance(uuid.New()).IsZero() {
		t.Error("initial wallet balance should be zero")
	}
}

func TestBalanceTracker_FundAndDeposit(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	id := uuid.New()

	fund := ledger.NewBatch("fund:0", 0, 0)
	fund.FundWallet(id, fixedpoint.FromInt(100))
	if err := bt.ApplyBatch(fund.Build()); err != nil {
		t.Fatalf("apply fund: %v", err)
	}

	if got := bt.WalletBalance(id); !got.Equal(fixedpoint.FromInt(100)) {
		t.Errorf("wallet = %s, want 100", got)
	}
	// The external source went negative by the same amount.
	if bt.GetBalance(ledger.CollateralSourceKey()).Sign() >= 0 {
		t.Error("collateral source should be negative after funding")
	}

	dep := ledger.NewBatch("dep:1", 1, 0)
	dep.Deposit(id, fixedpoint.FromInt(40))
	if err := bt.ApplyBatch(dep.Build()); err != nil {
		t.Fatalf("apply deposit: %v", err)
	}
	if got := bt.WalletBalance(id); !got.Equal(fixedpoint.FromInt(60)) {
		t.Errorf("wallet = %s, want 60", got)
	}
	if got := bt.EscrowBalance(); !got.Equal(fixedpoint.FromInt(40)) {
		t.Errorf("escrow = %s, want 40", got)
	}
}

func TestBalanceTracker_MintBurnRoundTrip(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	id := uuid.New()

	mint := ledger.NewBatch("mint:0", 0, 0)
	mint.Mint(id, fixedpoint.FromInt(50))
	if err := bt.ApplyBatch(mint.Build()); err != nil {
		t.Fatalf("apply mint: %v", err)
	}
	if got := bt.SyntheticBalance(id); !got.Equal(fixedpoint.FromInt(50)) {
		t.Errorf("synthetic = %s, want 50", got)
	}

	burn := ledger.NewBatch("burn:1", 1, 0)
	burn.Burn(id, fixedpoint.FromInt(50))
	if err := bt.ApplyBatch(burn.Build()); err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	if !bt.SyntheticBalance(id).IsZero() {
		t.Error("synthetic balance should be zero after full burn")
	}
	if bt.GetBalance(ledger.SyntheticSupplyKey()).Sign() != 0 {
		t.Error("supply counter-account should return to zero")
	}
}

func TestBalanceTracker_ValidateSufficient(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	id := uuid.New()

	fund := ledger.NewBatch("fund:0", 0, 0)
	fund.FundWallet(id, fixedpoint.FromInt(10))
	if err := bt.ApplyBatch(fund.Build()); err != nil {
		t.Fatal(err)
	}

	if err := bt.ValidateSufficient(ledger.WalletKey(id), fixedpoint.FromInt(10)); err != nil {
		t.Errorf("exact balance should be sufficient: %v", err)
	}
	if err := bt.ValidateSufficient(ledger.WalletKey(id), fixedpoint.FromInt(11)); err == nil {
		t.Error("insufficient balance should fail")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

type stubObligations struct {
	positions    fixedpoint.Unsigned
	liquidations fixedpoint.Unsigned
}

func (s stubObligations) TotalPositionCollateral() fixedpoint.Unsigned { return s.positions }
func (s stubObligations) LiquidationCollateral() fixedpoint.Unsigned   { return s.liquidations }

func TestInvariantValidator_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	id := uuid.New()

	ops := ledger.NewBatch("t:0", 0, 0)
	ops.FundWallet(id, fixedpoint.FromInt(100))
	ops.Deposit(id, fixedpoint.FromInt(60))
	ops.Mint(id, fixedpoint.FromInt(30))
	if err := bt.ApplyBatch(ops.Build()); err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("double-entry ledger should be zero-sum: %v", err)
	}
	if err := v.ValidateAccountsNonNegative(); err != nil {
		t.Errorf("no internal account should be negative: %v", err)
	}
}

func TestInvariantValidator_Conservation(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	id := uuid.New()

	ops := ledger.NewBatch("t:0", 0, 0)
	ops.FundWallet(id, fixedpoint.FromInt(100))
	ops.Deposit(id, fixedpoint.FromInt(60))
	if err := bt.ApplyBatch(ops.Build()); err != nil {
		t.Fatal(err)
	}

	covered := stubObligations{positions: fixedpoint.FromInt(60)}
	if err := v.ValidateConservation(covered); err != nil {
		t.Errorf("escrow exactly covering obligations should pass: %v", err)
	}

	short := stubObligations{positions: fixedpoint.FromInt(50), liquidations: fixedpoint.FromInt(11)}
	if err := v.ValidateConservation(short); err == nil {
		t.Error("obligations above escrow should fail conservation")
	}
}
