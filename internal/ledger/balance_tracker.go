package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
)

// BalanceTracker maintains in-memory account balances. User and system
// accounts must stay non-negative; external counter-accounts go
// negative as value enters the system, keeping the ledger zero-sum per
// asset.
type BalanceTracker struct {
	balances map[AccountKey]*big.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*big.Int),
	}
}

func (bt *BalanceTracker) balance(key AccountKey) *big.Int {
	b, ok := bt.balances[key]
	if !ok {
		b = new(big.Int)
		bt.balances[key] = b
	}
	return b
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	amount := j.Amount.Raw()
	bt.balance(j.DebitAccount).Add(bt.balance(j.DebitAccount), amount)
	bt.balance(j.CreditAccount).Sub(bt.balance(j.CreditAccount), amount)
}

// ApplyBatch validates and applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}
	return nil
}

// GetBalance returns a copy of the signed balance for an account.
func (bt *BalanceTracker) GetBalance(key AccountKey) *big.Int {
	if b, ok := bt.balances[key]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Unsigned returns the balance of a user or system account. Panics if
// the account has gone negative: that is a broken ledger, not a
// recoverable condition.
func (bt *BalanceTracker) Unsigned(key AccountKey) fixedpoint.Unsigned {
	b := bt.GetBalance(key)
	if b.Sign() < 0 {
		panic(fmt.Sprintf("ledger: account %s has negative balance %s", key.AccountPath(), b))
	}
	return fixedpoint.FromRawBig(b)
}

// WalletBalance returns an identity's free collateral.
func (bt *BalanceTracker) WalletBalance(id uuid.UUID) fixedpoint.Unsigned {
	return bt.Unsigned(WalletKey(id))
}

// SyntheticBalance returns an identity's synthetic token holdings.
func (bt *BalanceTracker) SyntheticBalance(id uuid.UUID) fixedpoint.Unsigned {
	return bt.Unsigned(SyntheticKey(id))
}

// EscrowBalance returns the collateral currently held by the contract.
func (bt *BalanceTracker) EscrowBalance() fixedpoint.Unsigned {
	return bt.Unsigned(EscrowKey())
}

// FeeSinkBalance returns the fees accumulated for the store.
func (bt *BalanceTracker) FeeSinkBalance() fixedpoint.Unsigned {
	return bt.Unsigned(FeeSinkKey())
}

// ValidateSufficient checks that an account can cover the given amount.
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required fixedpoint.Unsigned) error {
	have := bt.GetBalance(key)
	if have.Cmp(required.Raw()) < 0 {
		return fmt.Errorf("insufficient balance on %s: have=%s, need=%s",
			key.AccountPath(), have, required.RawString())
	}
	return nil
}

// ComputeGlobalBalance sums all balances per asset (0 for a zero-sum
// ledger).
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]*big.Int {
	totals := make(map[AssetID]*big.Int)
	for key, balance := range bt.balances {
		t, ok := totals[key.Asset]
		if !ok {
			t = new(big.Int)
			totals[key.Asset] = t
		}
		t.Add(t, balance)
	}
	return totals
}

// Restore replaces all balances with the given set, copying each
// value. Used on warm restart before the event log replays.
func (bt *BalanceTracker) Restore(balances map[AccountKey]*big.Int) {
	bt.balances = make(map[AccountKey]*big.Int, len(balances))
	for k, v := range balances {
		bt.balances[k] = new(big.Int).Set(v)
	}
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]*big.Int {
	snapshot := make(map[AccountKey]*big.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = new(big.Int).Set(v)
	}
	return snapshot
}
