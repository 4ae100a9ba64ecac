package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
)

// LiquidationState is the one-way lifecycle of a liquidation record.
type LiquidationState int32

const (
	LiquidationPreDispute LiquidationState = iota
	LiquidationPendingDispute
	LiquidationDisputeSucceeded
	LiquidationDisputeFailed
)

func (s LiquidationState) String() string {
	switch s {
	case LiquidationPreDispute:
		return "PreDispute"
	case LiquidationPendingDispute:
		return "PendingDispute"
	case LiquidationDisputeSucceeded:
		return "DisputeSucceeded"
	case LiquidationDisputeFailed:
		return "DisputeFailed"
	default:
		return "Unknown"
	}
}

// Liquidation is the record of one liquidated position. Collateral
// amounts are snapshotted as effective values at creation time; the
// escrowed funds stop accruing fees once they leave position
// accounting.
type Liquidation struct {
	Sponsor uuid.UUID
	// ID is the per-sponsor sequence number, never reused even after the
	// record is deleted.
	ID int64

	State      LiquidationState
	Liquidator uuid.UUID
	Disputer   uuid.UUID

	LiquidationTime int64
	// Expiry ends the dispute window; past it an undisputed liquidation
	// pays the liquidator unconditionally.
	Expiry int64

	TokensOutstanding fixedpoint.Unsigned
	// LockedCollateral is the position's full effective collateral, the
	// payout base.
	LockedCollateral fixedpoint.Unsigned
	// LiquidatedCollateral excludes any pending-withdrawal amount; it is
	// the base the dispute is judged against, since the sponsor had
	// already committed to removing that collateral.
	LiquidatedCollateral fixedpoint.Unsigned

	DisputeBond     fixedpoint.Unsigned
	SettlementPrice fixedpoint.Unsigned

	SponsorPaid    bool
	LiquidatorPaid bool
	DisputerPaid   bool
}

// TokenRedemptionValue is tokens x settlement price, meaningful once a
// dispute has resolved.
func (l *Liquidation) TokenRedemptionValue() fixedpoint.Unsigned {
	return l.TokensOutstanding.Mul(l.SettlementPrice)
}

type liquidationKey struct {
	sponsor uuid.UUID
	id      int64
}

// LiquidationManager owns the liquidation records and their escrow
// obligations. It shares the position manager's fee accounting and
// batch conventions; serialization is the core engine's concern.
type LiquidationManager struct {
	positions *PositionManager
	clk       clock.Clock
	oracle    oracle.Oracle
	tracker   *ledger.BalanceTracker

	liquidations map[liquidationKey]*Liquidation
	nextID       map[uuid.UUID]int64

	// outstanding is the total escrowed collateral (locked amounts plus
	// posted bonds) still owed to liquidation parties.
	outstanding fixedpoint.Unsigned
}

func NewLiquidationManager(positions *PositionManager, clk clock.Clock, orc oracle.Oracle, tracker *ledger.BalanceTracker) *LiquidationManager {
	return &LiquidationManager{
		positions:    positions,
		clk:          clk,
		oracle:       orc,
		tracker:      tracker,
		liquidations: make(map[liquidationKey]*Liquidation),
		nextID:       make(map[uuid.UUID]int64),
		outstanding:  fixedpoint.Zero(),
	}
}

// GetLiquidation returns the live record, or nil once deleted.
func (m *LiquidationManager) GetLiquidation(sponsor uuid.UUID, id int64) *Liquidation {
	return m.liquidations[liquidationKey{sponsor, id}]
}

// LiquidationCollateral is the escrowed collateral owed to liquidation
// parties, the liquidation side of the conservation invariant.
func (m *LiquidationManager) LiquidationCollateral() fixedpoint.Unsigned {
	return m.outstanding
}

// CountByState tallies the live liquidation records per state.
func (m *LiquidationManager) CountByState() map[LiquidationState]int {
	counts := make(map[LiquidationState]int)
	for _, liq := range m.liquidations {
		counts[liq.State]++
	}
	return counts
}

// CreateLiquidation liquidates a sponsor's entire position: the
// liquidator's synthetic tokens matching the position's debt are
// burned, the position is deleted, and its collateral is held in
// escrow pending the dispute window. Returns the new record's
// per-sponsor ID.
func (m *LiquidationManager) CreateLiquidation(b *ledger.BatchBuilder, liquidator, sponsor uuid.UUID) (int64, error) {
	now := m.clk.Now()
	if err := m.positions.requireOpenPreExpiry(now); err != nil {
		return 0, err
	}
	p := m.positions.GetPosition(sponsor)
	if p == nil {
		return 0, ErrPositionNotFound
	}
	tokens := p.TokensOutstanding
	if err := m.tracker.ValidateSufficient(ledger.SyntheticKey(liquidator), tokens); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}

	m.positions.settleFees(b)

	locked := m.positions.fees.FeeAdjusted(p.RawCollateral)
	liquidated := locked
	if p.hasPendingWithdrawal() {
		liquidated = locked.SubToZero(p.Withdrawal.Amount)
	}

	id := m.nextID[sponsor]
	m.nextID[sponsor] = id + 1

	m.positions.deleteSponsorPosition(p)
	m.outstanding = m.outstanding.Add(locked)

	m.liquidations[liquidationKey{sponsor, id}] = &Liquidation{
		Sponsor:              sponsor,
		ID:                   id,
		State:                LiquidationPreDispute,
		Liquidator:           liquidator,
		LiquidationTime:      now,
		Expiry:               now + m.positions.params.LiquidationLiveness,
		TokensOutstanding:    tokens,
		LockedCollateral:     locked,
		LiquidatedCollateral: liquidated,
		DisputeBond:          fixedpoint.Zero(),
		SettlementPrice:      fixedpoint.Zero(),
	}

	b.Burn(liquidator, tokens)
	return id, nil
}

// Dispute contests a liquidation within its liveness window. The
// disputer posts a bond proportional to the locked collateral and the
// liquidation-time price is requested from the oracle.
func (m *LiquidationManager) Dispute(b *ledger.BatchBuilder, disputer, sponsor uuid.UUID, id int64) error {
	liq := m.liquidations[liquidationKey{sponsor, id}]
	if liq == nil {
		return ErrLiquidationNotFound
	}
	if liq.State != LiquidationPreDispute {
		return ErrAlreadyDisputed
	}
	now := m.clk.Now()
	if now >= liq.Expiry {
		return ErrDisputeWindowClosed
	}

	bond := m.positions.params.DisputeBondPct.Mul(liq.LockedCollateral)
	if err := m.tracker.ValidateSufficient(ledger.WalletKey(disputer), bond); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}

	m.positions.settleFees(b)

	liq.State = LiquidationPendingDispute
	liq.Disputer = disputer
	liq.DisputeBond = bond
	m.outstanding = m.outstanding.Add(bond)

	m.oracle.RequestPrice(m.positions.params.PriceIdentifier, liq.LiquidationTime)
	b.DisputeBond(disputer, bond)
	return nil
}

// SettleDispute resolves a pending dispute against the oracle price.
// The dispute succeeds when the withdrawal-adjusted collateral met the
// requirement at liquidation time: liquidatedCollateral at or above
// collateralRequirement x TRV means the position was properly
// collateralized and the liquidation was wrongful.
func (m *LiquidationManager) SettleDispute(sponsor uuid.UUID, id int64) error {
	liq := m.liquidations[liquidationKey{sponsor, id}]
	if liq == nil {
		return ErrLiquidationNotFound
	}
	if liq.State != LiquidationPendingDispute {
		return ErrNotDisputed
	}
	return m.resolve(liq)
}

func (m *LiquidationManager) resolve(liq *Liquidation) error {
	identifier := m.positions.params.PriceIdentifier
	if !m.oracle.HasPrice(identifier, liq.LiquidationTime) {
		return ErrPriceNotResolved
	}
	price, err := m.oracle.GetPrice(identifier, liq.LiquidationTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPriceNotResolved, err)
	}
	liq.SettlementPrice = price

	required := m.positions.params.CollateralRequirement.Mul(liq.TokenRedemptionValue())
	if liq.LiquidatedCollateral.GTE(required) {
		liq.State = LiquidationDisputeSucceeded
	} else {
		liq.State = LiquidationDisputeFailed
	}
	return nil
}

// WithdrawLiquidation pays out the caller's share once the record has
// resolved, settling a still-pending dispute in passing when the
// oracle price has arrived. Each role claims once; the record is
// deleted when every entitled role has been paid.
//
// Successful dispute: the sponsor recovers the locked collateral less
// the TRV plus their reward, the disputer recovers the bond plus their
// reward, and the liquidator keeps the TRV less both rewards. Failed
// dispute: the liquidator takes the locked collateral and the bond.
// Undisputed past the liveness window: the liquidator takes the locked
// collateral.
func (m *LiquidationManager) WithdrawLiquidation(b *ledger.BatchBuilder, caller, sponsor uuid.UUID, id int64) error {
	liq := m.liquidations[liquidationKey{sponsor, id}]
	if liq == nil {
		return ErrLiquidationNotFound
	}
	now := m.clk.Now()

	if liq.State == LiquidationPendingDispute {
		if err := m.resolve(liq); err != nil {
			return err
		}
	}

	m.positions.settleFees(b)

	switch liq.State {
	case LiquidationPreDispute:
		if now < liq.Expiry {
			return ErrRequestNotPassed
		}
		if caller != liq.Liquidator {
			return ErrUnauthorized
		}
		m.pay(b, liq, caller, liq.LockedCollateral)
		delete(m.liquidations, liquidationKey{sponsor, id})
		return nil

	case LiquidationDisputeFailed:
		if caller != liq.Liquidator {
			return ErrUnauthorized
		}
		if liq.LiquidatorPaid {
			return ErrAlreadyPaid
		}
		liq.LiquidatorPaid = true
		m.pay(b, liq, caller, liq.LockedCollateral.Add(liq.DisputeBond))
		delete(m.liquidations, liquidationKey{sponsor, id})
		return nil

	case LiquidationDisputeSucceeded:
		trv := liq.TokenRedemptionValue()
		sponsorReward := m.positions.params.SponsorDisputeRewardPct.Mul(trv)
		disputerReward := m.positions.params.DisputerDisputeRewardPct.Mul(trv)

		switch caller {
		case liq.Sponsor:
			if liq.SponsorPaid {
				return ErrAlreadyPaid
			}
			liq.SponsorPaid = true
			m.pay(b, liq, caller, liq.LockedCollateral.Sub(trv).Add(sponsorReward))
		case liq.Liquidator:
			if liq.LiquidatorPaid {
				return ErrAlreadyPaid
			}
			liq.LiquidatorPaid = true
			m.pay(b, liq, caller, trv.Sub(sponsorReward).Sub(disputerReward))
		case liq.Disputer:
			if liq.DisputerPaid {
				return ErrAlreadyPaid
			}
			liq.DisputerPaid = true
			m.pay(b, liq, caller, liq.DisputeBond.Add(disputerReward))
		default:
			return ErrUnauthorized
		}
		if liq.SponsorPaid && liq.LiquidatorPaid && liq.DisputerPaid {
			delete(m.liquidations, liquidationKey{sponsor, id})
		}
		return nil

	default:
		return fmt.Errorf("%w: liquidation state %s", ErrInvalidState, liq.State)
	}
}

func (m *LiquidationManager) pay(b *ledger.BatchBuilder, liq *Liquidation, to uuid.UUID, amount fixedpoint.Unsigned) {
	m.outstanding = m.outstanding.SubToZero(amount)
	b.LiquidationPayout(to, amount)
}
