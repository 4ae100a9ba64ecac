package ledger

import (
	"fmt"

	"SynthLedger/internal/fixedpoint"
)

// Obligations reports the collateral the ledger is liable for; the
// position ledger and liquidation engine implement it.
type Obligations interface {
	// TotalPositionCollateral is the fee-adjusted collateral across all
	// open positions.
	TotalPositionCollateral() fixedpoint.Unsigned
	// LiquidationCollateral is the collateral plus bonds held by
	// unresolved or unclaimed liquidations.
	LiquidationCollateral() fixedpoint.Unsigned
}

// InvariantValidator checks ledger invariants after every operation.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{tracker: tracker}
}

// ValidateBatchBalance verifies the batch is well-formed.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	for asset, total := range v.tracker.ComputeGlobalBalance() {
		if total.Sign() != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %s", AssetName(asset), total)
		}
	}
	return nil
}

// ValidateAccountsNonNegative verifies no user or system account has
// gone negative.
func (v *InvariantValidator) ValidateAccountsNonNegative() error {
	for key, balance := range v.tracker.balances {
		if key.Scope == AccountScopeExternal {
			continue
		}
		if balance.Sign() < 0 {
			return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateConservation verifies the escrow covers every obligation:
// fee-adjusted position collateral plus held liquidation collateral
// never exceeds what the contract actually holds. Floor rounding on
// reads and ceiling rounding on fee charges leave escrow with dust,
// never a shortfall.
func (v *InvariantValidator) ValidateConservation(obligations Obligations) error {
	escrow := v.tracker.EscrowBalance()
	owed := obligations.TotalPositionCollateral().Add(obligations.LiquidationCollateral())
	if escrow.LT(owed) {
		return fmt.Errorf("escrow %s does not cover obligations %s",
			escrow.RawString(), owed.RawString())
	}
	return nil
}
