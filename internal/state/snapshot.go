package state

import (
	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
)

// Snapshot support for warm restarts. Managers copy their full state
// out for persistence and accept it back before the event log replays
// on top; the caller (the core engine) serializes both directions.

// FeeSnapshot is the fee accounting state carried in a snapshot.
type FeeSnapshot struct {
	RawTotal        fixedpoint.Unsigned
	Multiplier      fixedpoint.Unsigned
	LastPaymentTime int64
}

// ContractSnapshot is the position manager's complete state at a point
// in time. Positions are deep copies; the live maps keep mutating.
type ContractSnapshot struct {
	Positions           []*Position
	TotalTokens         fixedpoint.Unsigned
	State               ContractState
	ExpirationTimestamp int64
	SettlementPrice     fixedpoint.Unsigned
	PriceCached         bool
	Fees                FeeSnapshot
}

// Snapshot copies the manager's state for persistence.
func (m *PositionManager) Snapshot() *ContractSnapshot {
	s := &ContractSnapshot{
		Positions:           make([]*Position, 0, len(m.positions)),
		TotalTokens:         m.totalTokens,
		State:               m.state,
		ExpirationTimestamp: m.expirationTimestamp,
		SettlementPrice:     m.settlementPrice,
		PriceCached:         m.priceCached,
		Fees: FeeSnapshot{
			RawTotal:        m.fees.rawTotal,
			Multiplier:      m.fees.multiplier,
			LastPaymentTime: m.fees.lastPaymentTime,
		},
	}
	for _, p := range m.positions {
		s.Positions = append(s.Positions, copyPosition(p))
	}
	return s
}

// Restore replaces the manager's state with a snapshot's. Contract
// parameters are not part of the snapshot; they come from configuration
// at construction time.
func (m *PositionManager) Restore(s *ContractSnapshot) {
	m.positions = make(map[uuid.UUID]*Position, len(s.Positions))
	for _, p := range s.Positions {
		m.positions[p.Sponsor] = copyPosition(p)
	}
	m.totalTokens = s.TotalTokens
	m.state = s.State
	m.expirationTimestamp = s.ExpirationTimestamp
	m.settlementPrice = s.SettlementPrice
	m.priceCached = s.PriceCached
	m.fees.rawTotal = s.Fees.RawTotal
	m.fees.multiplier = s.Fees.Multiplier
	m.fees.lastPaymentTime = s.Fees.LastPaymentTime
}

func copyPosition(p *Position) *Position {
	cp := *p
	if p.Withdrawal != nil {
		w := *p.Withdrawal
		cp.Withdrawal = &w
	}
	return &cp
}

// LiquidationBook is the liquidation manager's complete state at a
// point in time.
type LiquidationBook struct {
	Records     []*Liquidation
	NextIDs     map[uuid.UUID]int64
	Outstanding fixedpoint.Unsigned
}

// Snapshot copies the manager's state for persistence.
func (m *LiquidationManager) Snapshot() *LiquidationBook {
	b := &LiquidationBook{
		Records:     make([]*Liquidation, 0, len(m.liquidations)),
		NextIDs:     make(map[uuid.UUID]int64, len(m.nextID)),
		Outstanding: m.outstanding,
	}
	for _, liq := range m.liquidations {
		cp := *liq
		b.Records = append(b.Records, &cp)
	}
	for sponsor, next := range m.nextID {
		b.NextIDs[sponsor] = next
	}
	return b
}

// Restore replaces the manager's state with a snapshot's.
func (m *LiquidationManager) Restore(b *LiquidationBook) {
	m.liquidations = make(map[liquidationKey]*Liquidation, len(b.Records))
	for _, liq := range b.Records {
		cp := *liq
		m.liquidations[liquidationKey{liq.Sponsor, liq.ID}] = &cp
	}
	m.nextID = make(map[uuid.UUID]int64, len(b.NextIDs))
	for sponsor, next := range b.NextIDs {
		m.nextID[sponsor] = next
	}
	m.outstanding = b.Outstanding
}
