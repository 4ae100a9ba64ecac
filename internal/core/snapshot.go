package core

import (
	"math/big"

	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/state"
)

// SnapshotState is the engine's complete in-memory state at a point in
// time: balances, positions, fee accounting, liquidations, resolver
// prices, and the hash-chain position. Sequence is the last applied
// sequence (-1 before any event); StateHash is the chain tip after it.
type SnapshotState struct {
	Sequence  int64
	StateHash [32]byte

	Balances       map[ledger.AccountKey]*big.Int
	Contract       *state.ContractSnapshot
	Liquidations   *state.LiquidationBook
	PendingPrices  []oracle.PendingRequest
	ResolvedPrices []oracle.ResolvedPrice
}

// CaptureSnapshot copies the full engine state under the write lock,
// so the snapshot is consistent with exactly one point in the event
// sequence.
func (e *Engine) CaptureSnapshot() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, resolved := e.resolver.Snapshot()
	return &SnapshotState{
		Sequence:       e.sequence - 1,
		StateHash:      e.hasher.GetPrevHash(),
		Balances:       e.tracker.Snapshot(),
		Contract:       e.positions.Snapshot(),
		Liquidations:   e.liquidations.Snapshot(),
		PendingPrices:  pending,
		ResolvedPrices: resolved,
	}
}

// RestoreFromSnapshot replaces the engine's state with a snapshot's
// and positions the sequence and hash chain directly after it. Events
// logged past the snapshot are replayed on top with ReplayEvent; no
// live operation may run in between.
func (e *Engine) RestoreFromSnapshot(s *SnapshotState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sequence = s.Sequence + 1
	e.hasher.SetPrevHash(s.StateHash)
	e.tracker.Restore(s.Balances)
	e.positions.Restore(s.Contract)
	e.liquidations.Restore(s.Liquidations)
	e.resolver.Restore(s.PendingPrices, s.ResolvedPrices)
}
