// Package store is the fee-computation collaborator. The position
// ledger pays the fees it computes by transferring collateral into the
// store's fee-sink account.
package store

import (
	"sync"

	"SynthLedger/internal/fixedpoint"
)

// Store computes the fees owed by a financial contract.
type Store interface {
	// ComputeRegularFee returns the regular fee and late penalty owed
	// over [startTime, endTime) against the given profit-from-corruption
	// base.
	ComputeRegularFee(startTime, endTime int64, pfc fixedpoint.Unsigned) (regularFee, latePenalty fixedpoint.Unsigned)

	// ComputeFinalFee returns the one-time fee due at expiry.
	ComputeFinalFee() fixedpoint.Unsigned
}

// FixedRateStore charges a fixed per-second rate against the PfC plus a
// per-second late penalty rate once payment is delinquent, and a flat
// final fee. Rates are adjustable at runtime (governance pushes new
// rates in production).
type FixedRateStore struct {
	mu sync.RWMutex

	// fee per second as a proportion of pfc, e.g. 0.04 = 4%/s
	regularRatePerSecond fixedpoint.Unsigned
	// additional penalty per delinquent second, same base
	latePenaltyPerSecond fixedpoint.Unsigned
	// seconds after which an unpaid window becomes delinquent
	delinquencySeconds int64
	finalFee           fixedpoint.Unsigned
}

func NewFixedRateStore(regularRatePerSecond, latePenaltyPerSecond fixedpoint.Unsigned, delinquencySeconds int64, finalFee fixedpoint.Unsigned) *FixedRateStore {
	return &FixedRateStore{
		regularRatePerSecond: regularRatePerSecond,
		latePenaltyPerSecond: latePenaltyPerSecond,
		delinquencySeconds:   delinquencySeconds,
		finalFee:             finalFee,
	}
}

// ComputeRegularFee floors the proportional fee: the payer never owes
// a partial smallest-denomination unit.
func (s *FixedRateStore) ComputeRegularFee(startTime, endTime int64, pfc fixedpoint.Unsigned) (fixedpoint.Unsigned, fixedpoint.Unsigned) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if endTime <= startTime {
		return fixedpoint.Zero(), fixedpoint.Zero()
	}
	elapsed := fixedpoint.FromInt(endTime - startTime)
	regular := pfc.Mul(s.regularRatePerSecond).Mul(elapsed)

	latePenalty := fixedpoint.Zero()
	if s.delinquencySeconds > 0 && endTime-startTime > s.delinquencySeconds {
		lateSeconds := fixedpoint.FromInt(endTime - startTime - s.delinquencySeconds)
		latePenalty = pfc.Mul(s.latePenaltyPerSecond).Mul(lateSeconds)
	}
	return regular, latePenalty
}

func (s *FixedRateStore) ComputeFinalFee() fixedpoint.Unsigned {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalFee
}

// SetRegularRate replaces the per-second fee rate.
func (s *FixedRateStore) SetRegularRate(rate fixedpoint.Unsigned) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regularRatePerSecond = rate
}

// SetFinalFee replaces the flat expiry fee.
func (s *FixedRateStore) SetFinalFee(fee fixedpoint.Unsigned) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalFee = fee
}
