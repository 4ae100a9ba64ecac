package state

import (
	"fmt"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/registry"
)

// Params are the immutable construction-time parameters of a synthetic
// token contract. ExpirationTimestamp is the one exception: emergency
// shutdown may pull it forward while the contract is still open.
type Params struct {
	PriceIdentifier  string
	CollateralSymbol string

	ExpirationTimestamp int64
	WithdrawalLiveness  int64
	LiquidationLiveness int64

	MinSponsorTokens fixedpoint.Unsigned

	// Liquidation economics. CollateralRequirement >= 1; the two reward
	// percentages are taken from the settlement TRV and must sum to < 1.
	CollateralRequirement    fixedpoint.Unsigned
	DisputeBondPct           fixedpoint.Unsigned
	SponsorDisputeRewardPct  fixedpoint.Unsigned
	DisputerDisputeRewardPct fixedpoint.Unsigned
}

// Validate checks parameter constraints and whitelist membership.
func (p Params) Validate(identifiers *registry.IdentifierWhitelist, collateral *registry.AddressWhitelist) error {
	if !identifiers.IsIdentifierSupported(p.PriceIdentifier) {
		return fmt.Errorf("price identifier %q not supported", p.PriceIdentifier)
	}
	if !collateral.IsOnWhitelist(p.CollateralSymbol) {
		return fmt.Errorf("collateral %q not whitelisted", p.CollateralSymbol)
	}
	if p.ExpirationTimestamp <= 0 {
		return fmt.Errorf("expiration timestamp must be set")
	}
	if p.WithdrawalLiveness <= 0 || p.LiquidationLiveness <= 0 {
		return fmt.Errorf("liveness periods must be positive")
	}
	if p.CollateralRequirement.LT(fixedpoint.One()) {
		return fmt.Errorf("collateral requirement must be at least 1")
	}
	if p.SponsorDisputeRewardPct.Add(p.DisputerDisputeRewardPct).GTE(fixedpoint.One()) {
		return fmt.Errorf("dispute reward percentages must sum to less than 1")
	}
	return nil
}
