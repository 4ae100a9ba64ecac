package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/state"
	"SynthLedger/internal/store"
)

// Output is what the engine emits per applied event: the envelope for
// the event log plus the journal batch behind it.
type Output struct {
	Envelope *event.Envelope
	Batch    *ledger.Batch
}

// Engine is the single-writer processor for every contract operation.
// A mutex serializes all mutations; each operation runs the same
// pipeline: build journals, validate, apply to balances, check
// invariants (panic on violation), hash state, emit the envelope.
type Engine struct {
	mu       sync.Mutex
	sequence int64
	hasher   *StateHasher

	tracker      *ledger.BalanceTracker
	validator    *ledger.InvariantValidator
	positions    *state.PositionManager
	liquidations *state.LiquidationManager
	resolver     *oracle.Resolver
	clk          clock.Clock

	// Recovery: while replaying the event log the clock is pinned to
	// logged timestamps and outputs are suppressed.
	replaying bool
	replayClk *replayClock

	logger  zerolog.Logger
	metrics *observability.Metrics

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// obligations joins the two managers into the validator's view of what
// the escrow owes.
type obligations struct {
	positions    *state.PositionManager
	liquidations *state.LiquidationManager
}

func (o obligations) TotalPositionCollateral() fixedpoint.Unsigned {
	return o.positions.TotalPositionCollateral()
}

func (o obligations) LiquidationCollateral() fixedpoint.Unsigned {
	return o.liquidations.LiquidationCollateral()
}

func NewEngine(
	params state.Params,
	clk clock.Clock,
	resolver *oracle.Resolver,
	st store.Store,
	finder *registry.Finder,
	identifiers *registry.IdentifierWhitelist,
	collateral *registry.AddressWhitelist,
	persistChan, projectionChan chan<- Output,
	metrics *observability.Metrics,
) (*Engine, error) {
	if err := params.Validate(identifiers, collateral); err != nil {
		return nil, fmt.Errorf("invalid contract params: %w", err)
	}

	rc := &replayClock{inner: clk}
	tracker := ledger.NewBalanceTracker()
	positions := state.NewPositionManager(params, rc, resolver, st, finder, tracker)
	liquidations := state.NewLiquidationManager(positions, rc, resolver, tracker)

	return &Engine{
		hasher:         NewStateHasher(),
		tracker:        tracker,
		validator:      ledger.NewInvariantValidator(tracker),
		positions:      positions,
		liquidations:   liquidations,
		resolver:       resolver,
		clk:            rc,
		replayClk:      rc,
		logger:         observability.NewLogger("engine"),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}, nil
}

// --- Operation surface ---

// FundWallet seeds an identity's wallet from the external collateral
// source.
func (e *Engine) FundWallet(id uuid.UUID, amount fixedpoint.Unsigned) error {
	return e.apply("fund_wallet", event.EventTypeWalletFunded, id.String(), func(b *ledger.BatchBuilder) (any, error) {
		if amount.IsZero() {
			return nil, state.ErrInvalidAmount
		}
		b.FundWallet(id, amount)
		return event.WalletFunded{Identity: id.String(), Amount: amount.RawString()}, nil
	})
}

// TransferTokens moves synthetic tokens between identities on the
// internal ledger.
func (e *Engine) TransferTokens(from, to uuid.UUID, amount fixedpoint.Unsigned) error {
	return e.apply("transfer_tokens", event.EventTypeTokensTransferred, from.String(), func(b *ledger.BatchBuilder) (any, error) {
		if amount.IsZero() {
			return nil, state.ErrInvalidAmount
		}
		if err := e.tracker.ValidateSufficient(ledger.SyntheticKey(from), amount); err != nil {
			return nil, fmt.Errorf("%w: %v", state.ErrInsufficientBalance, err)
		}
		b.TransferSynthetic(from, to, amount)
		return event.TokensTransferred{From: from.String(), To: to.String(), Tokens: amount.RawString()}, nil
	})
}

func (e *Engine) CreatePosition(sponsor uuid.UUID, collateral, tokens fixedpoint.Unsigned) error {
	return e.apply("create", event.EventTypePositionCreated, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.Create(b, sponsor, collateral, tokens); err != nil {
			return nil, err
		}
		return event.PositionCreated{
			Sponsor:    sponsor.String(),
			Collateral: collateral.RawString(),
			Tokens:     tokens.RawString(),
		}, nil
	})
}

func (e *Engine) Deposit(sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	return e.apply("deposit", event.EventTypeDeposited, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.Deposit(b, sponsor, collateral); err != nil {
			return nil, err
		}
		return event.Deposited{Sponsor: sponsor.String(), Collateral: collateral.RawString()}, nil
	})
}

func (e *Engine) Withdraw(sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	return e.apply("withdraw", event.EventTypeWithdrawn, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.Withdraw(b, sponsor, collateral); err != nil {
			return nil, err
		}
		return event.Withdrawn{
			Sponsor:   sponsor.String(),
			Requested: collateral.RawString(),
			Paid:      sumJournals(b, ledger.JournalTypeWithdrawal).RawString(),
		}, nil
	})
}

func (e *Engine) RequestWithdrawal(sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	return e.apply("request_withdrawal", event.EventTypeWithdrawalRequested, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.RequestWithdrawal(b, sponsor, collateral); err != nil {
			return nil, err
		}
		p := e.positions.GetPosition(sponsor)
		return event.WithdrawalRequested{
			Sponsor:       sponsor.String(),
			Collateral:    collateral.RawString(),
			PassTimestamp: p.Withdrawal.PassTimestamp,
		}, nil
	})
}

func (e *Engine) CancelWithdrawal(sponsor uuid.UUID) error {
	return e.apply("cancel_withdrawal", event.EventTypeWithdrawalCancelled, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.CancelWithdrawal(b, sponsor); err != nil {
			return nil, err
		}
		return event.WithdrawalCancelled{Sponsor: sponsor.String()}, nil
	})
}

func (e *Engine) WithdrawPassedRequest(sponsor uuid.UUID) error {
	return e.apply("withdraw_passed_request", event.EventTypeWithdrawalExecuted, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		var requested fixedpoint.Unsigned
		if p := e.positions.GetPosition(sponsor); p != nil && p.Withdrawal != nil {
			requested = p.Withdrawal.Amount
		}
		if err := e.positions.WithdrawPassedRequest(b, sponsor); err != nil {
			return nil, err
		}
		return event.WithdrawalExecuted{
			Sponsor:   sponsor.String(),
			Requested: requested.RawString(),
			Paid:      sumJournals(b, ledger.JournalTypeWithdrawal).RawString(),
		}, nil
	})
}

func (e *Engine) Redeem(sponsor uuid.UUID, tokens fixedpoint.Unsigned) error {
	return e.apply("redeem", event.EventTypeRedeemed, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.Redeem(b, sponsor, tokens); err != nil {
			return nil, err
		}
		return event.Redeemed{
			Sponsor: sponsor.String(),
			Tokens:  tokens.RawString(),
			Paid:    sumJournals(b, ledger.JournalTypeWithdrawal).RawString(),
		}, nil
	})
}

func (e *Engine) RequestTransferPosition(sponsor uuid.UUID) error {
	return e.apply("request_transfer", event.EventTypeTransferRequested, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.RequestTransferPosition(b, sponsor); err != nil {
			return nil, err
		}
		p := e.positions.GetPosition(sponsor)
		return event.TransferRequested{
			Sponsor:       sponsor.String(),
			PassTimestamp: p.TransferRequestPassTimestamp,
		}, nil
	})
}

func (e *Engine) CancelTransferPosition(sponsor uuid.UUID) error {
	return e.apply("cancel_transfer", event.EventTypeTransferCancelled, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.CancelTransferPosition(b, sponsor); err != nil {
			return nil, err
		}
		return event.TransferCancelled{Sponsor: sponsor.String()}, nil
	})
}

func (e *Engine) TransferPositionPassedRequest(sponsor, newSponsor uuid.UUID) error {
	return e.apply("transfer_passed_request", event.EventTypeTransferExecuted, sponsor.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.TransferPositionPassedRequest(b, sponsor, newSponsor); err != nil {
			return nil, err
		}
		return event.TransferExecuted{OldSponsor: sponsor.String(), NewSponsor: newSponsor.String()}, nil
	})
}

// Expire transitions the contract once its expiration time is reached.
// Callable by anyone.
func (e *Engine) Expire(caller uuid.UUID) error {
	return e.apply("expire", event.EventTypeContractExpired, caller.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.Expire(b); err != nil {
			return nil, err
		}
		return event.ContractExpired{
			ExpirationTimestamp: e.positions.ExpirationTimestamp(),
			FinalFee:            sumJournals(b, ledger.JournalTypeFinalFee).RawString(),
		}, nil
	})
}

func (e *Engine) EmergencyShutdown(caller uuid.UUID) error {
	return e.apply("emergency_shutdown", event.EventTypeEmergencyShutdown, caller.String(), func(b *ledger.BatchBuilder) (any, error) {
		original := e.positions.ExpirationTimestamp()
		if err := e.positions.EmergencyShutdown(b, caller); err != nil {
			return nil, err
		}
		return event.EmergencyShutdownTriggered{
			Admin:              caller.String(),
			ShutdownTimestamp:  e.positions.ExpirationTimestamp(),
			OriginalExpiration: original,
		}, nil
	})
}

func (e *Engine) SettleExpired(caller uuid.UUID) error {
	return e.apply("settle_expired", event.EventTypeSettledExpired, caller.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.positions.SettleExpired(b, caller); err != nil {
			return nil, err
		}
		price, _ := e.positions.SettlementPrice()
		if e.metrics != nil {
			e.metrics.SettlementsTotal.Inc()
			e.metrics.SettlementPayouts.Add(sumJournals(b, ledger.JournalTypeSettlement).Float64())
		}
		return event.SettledExpired{
			Caller:          caller.String(),
			TokensBurned:    sumJournals(b, ledger.JournalTypeBurn).RawString(),
			CollateralPaid:  sumJournals(b, ledger.JournalTypeSettlement).RawString(),
			SettlementPrice: price.RawString(),
		}, nil
	})
}

// CreateLiquidation liquidates a sponsor's position and returns the
// per-sponsor liquidation ID.
func (e *Engine) CreateLiquidation(liquidator, sponsor uuid.UUID) (int64, error) {
	var liqID int64
	err := e.apply("create_liquidation", event.EventTypeLiquidationCreated, liquidator.String(), func(b *ledger.BatchBuilder) (any, error) {
		id, err := e.liquidations.CreateLiquidation(b, liquidator, sponsor)
		if err != nil {
			return nil, err
		}
		liqID = id
		liq := e.liquidations.GetLiquidation(sponsor, id)
		if e.metrics != nil {
			e.metrics.LiquidationsCreated.Inc()
		}
		return event.LiquidationCreated{
			Sponsor:              sponsor.String(),
			LiquidationID:        id,
			Liquidator:           liquidator.String(),
			TokensLiquidated:     liq.TokensOutstanding.RawString(),
			LockedCollateral:     liq.LockedCollateral.RawString(),
			LiquidatedCollateral: liq.LiquidatedCollateral.RawString(),
			Expiry:               liq.Expiry,
		}, nil
	})
	return liqID, err
}

func (e *Engine) DisputeLiquidation(disputer, sponsor uuid.UUID, id int64) error {
	return e.apply("dispute", event.EventTypeLiquidationDisputed, disputer.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.liquidations.Dispute(b, disputer, sponsor, id); err != nil {
			return nil, err
		}
		return event.LiquidationDisputed{
			Sponsor:       sponsor.String(),
			LiquidationID: id,
			Disputer:      disputer.String(),
			Bond:          sumJournals(b, ledger.JournalTypeDisputeBond).RawString(),
		}, nil
	})
}

func (e *Engine) SettleDispute(caller, sponsor uuid.UUID, id int64) error {
	return e.apply("settle_dispute", event.EventTypeDisputeResolved, caller.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.liquidations.SettleDispute(sponsor, id); err != nil {
			return nil, err
		}
		liq := e.liquidations.GetLiquidation(sponsor, id)
		succeeded := liq.State == state.LiquidationDisputeSucceeded
		if e.metrics != nil {
			outcome := "failed"
			if succeeded {
				outcome = "succeeded"
			}
			e.metrics.DisputeOutcomes.WithLabelValues(outcome).Inc()
		}
		return event.DisputeResolved{
			Sponsor:         sponsor.String(),
			LiquidationID:   id,
			Succeeded:       succeeded,
			SettlementPrice: liq.SettlementPrice.RawString(),
		}, nil
	})
}

func (e *Engine) WithdrawLiquidation(caller, sponsor uuid.UUID, id int64) error {
	return e.apply("withdraw_liquidation", event.EventTypeLiquidationWithdrawn, caller.String(), func(b *ledger.BatchBuilder) (any, error) {
		if err := e.liquidations.WithdrawLiquidation(b, caller, sponsor, id); err != nil {
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.LiquidationPayouts.Inc()
		}
		return event.LiquidationWithdrawn{
			Sponsor:       sponsor.String(),
			LiquidationID: id,
			Caller:        caller.String(),
			Paid:          sumJournals(b, ledger.JournalTypeLiquidationPayout).RawString(),
		}, nil
	})
}

// PushPrice delivers a resolved oracle price into the resolver and
// records it in the event log. Called by the ingestion pipeline.
func (e *Engine) PushPrice(identifier string, timestamp int64, price fixedpoint.Unsigned) error {
	return e.apply("push_price", event.EventTypePriceResolved, "", func(b *ledger.BatchBuilder) (any, error) {
		e.resolver.Push(identifier, timestamp, price)
		if e.metrics != nil {
			e.metrics.PricesIngested.WithLabelValues(identifier).Inc()
		}
		return event.PriceResolved{Identifier: identifier, Timestamp: timestamp, Price: price.RawString()}, nil
	})
}

// --- Pipeline ---

func (e *Engine) apply(op string, et event.EventType, actor string, fn func(b *ledger.BatchBuilder) (any, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	b := ledger.NewBatch(fmt.Sprintf("%s:%d", op, e.sequence), e.sequence, e.clk.Now())

	payload, err := fn(b)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(op, rejectionReason(err)).Inc()
		}
		// A rejected operation may still have settled regular fees
		// before failing its precondition. Those journals are real money
		// movement: commit them under their own envelope rather than
		// discarding them.
		if batch := b.Build(); len(batch.Journals) > 0 {
			e.commit("regular_fees", event.EventTypeRegularFeesPaid, "", batch, event.RegularFeesPaid{
				Amount: sumJournals(b, ledger.JournalTypeRegularFee).RawString(),
			})
		}
		e.logger.Debug().Str("op", op).Err(err).Msg("operation rejected")
		return err
	}

	e.commit(op, et, actor, b.Build(), payload)

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.updateGauges()
	}
	return nil
}

// commit runs the apply/validate/hash/emit tail of the pipeline for one
// batch. Caller holds the mutex.
func (e *Engine) commit(op string, et event.EventType, actor string, batch *ledger.Batch, payload any) {
	if len(batch.Journals) > 0 {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch failed: %v", err))
		}
		if e.metrics != nil {
			for _, j := range batch.Journals {
				e.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
			}
			e.metrics.RegularFeesPaid.Add(sumBatch(batch, ledger.JournalTypeRegularFee).Float64())
			e.metrics.FinalFeesPaid.Add(sumBatch(batch, ledger.JournalTypeFinalFee).Float64())
		}
	}

	if err := e.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after %s: %v", op, err))
	}

	hashStart := time.Now()
	prevHash := e.hasher.GetPrevHash()
	stateDigest := e.computeStateDigest(batch)
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("FATAL: payload marshal failed for %s: %v", op, err))
	}

	output := Output{
		Envelope: &event.Envelope{
			Sequence:  e.sequence,
			EventType: et,
			Actor:     actor,
			Timestamp: batch.Timestamp,
			Payload:   body,
			StateHash: stateHash,
			PrevHash:  prevHash,
		},
		Batch: batch,
	}
	e.sequence++

	// Persistence: blocking send, no event may be lost. Projections:
	// non-blocking, they rebuild from the event log when they fall
	// behind. During replay the rows already exist; re-emitting them
	// would mint fresh journal IDs and duplicate the log.
	if e.replaying {
		return
	}
	if e.persistChan != nil {
		e.persistChan <- output
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- output:
		default:
		}
	}
}

func (e *Engine) postCheckInvariants() error {
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		return err
	}
	if err := e.validator.ValidateAccountsNonNegative(); err != nil {
		return err
	}
	return e.validator.ValidateConservation(obligations{e.positions, e.liquidations})
}

// computeStateDigest creates canonical bytes over the accounts touched
// by the batch.
func (e *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		// Signed decimal rendering keeps -x and +x distinct.
		balance := e.tracker.GetBalance(key).String()
		digest = append(digest, byte(len(balance)))
		digest = append(digest, []byte(balance)...)
	}
	return digest
}

func (e *Engine) updateGauges() {
	e.metrics.Sequence.Set(float64(e.sequence))
	e.metrics.FeeMultiplier.Set(e.positions.Fees().Multiplier().Float64())
	e.metrics.RawCollateral.Set(e.positions.Fees().RawTotal().Float64())
	e.metrics.TokensOutstanding.Set(e.positions.TotalTokensOutstanding().Float64())
	e.metrics.PositionCount.Set(float64(e.positions.PositionCount()))
	e.metrics.ContractState.Set(float64(e.positions.State()))

	counts := e.liquidations.CountByState()
	for _, s := range []state.LiquidationState{
		state.LiquidationPreDispute,
		state.LiquidationPendingDispute,
		state.LiquidationDisputeSucceeded,
		state.LiquidationDisputeFailed,
	} {
		e.metrics.LiquidationsByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, state.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, state.ErrPositionNotFound), errors.Is(err, state.ErrPositionExists):
		return "position"
	case errors.Is(err, state.ErrPendingRequest), errors.Is(err, state.ErrNoPendingRequest), errors.Is(err, state.ErrRequestNotPassed):
		return "request"
	case errors.Is(err, state.ErrBelowGCR):
		return "below_gcr"
	case errors.Is(err, state.ErrMinSponsorTokens):
		return "min_sponsor_tokens"
	case errors.Is(err, state.ErrInsufficientBalance), errors.Is(err, state.ErrInsufficientCollateral):
		return "insufficient_funds"
	case errors.Is(err, state.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, state.ErrPastExpiry), errors.Is(err, state.ErrPreExpiry):
		return "expiry"
	case errors.Is(err, state.ErrPriceNotResolved):
		return "price_unresolved"
	case errors.Is(err, state.ErrFinalFeeUnpayable):
		return "final_fee"
	case errors.Is(err, state.ErrLiquidationNotFound), errors.Is(err, state.ErrDisputeWindowClosed),
		errors.Is(err, state.ErrAlreadyDisputed), errors.Is(err, state.ErrNotDisputed), errors.Is(err, state.ErrAlreadyPaid):
		return "liquidation"
	case errors.Is(err, state.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}

func sumJournals(b *ledger.BatchBuilder, jt ledger.JournalType) fixedpoint.Unsigned {
	return sumBatch(b.Build(), jt)
}

func sumBatch(batch *ledger.Batch, jt ledger.JournalType) fixedpoint.Unsigned {
	total := fixedpoint.Zero()
	for _, j := range batch.Journals {
		if j.JournalType == jt {
			total = total.Add(j.Amount)
		}
	}
	return total
}

// GetSequence returns the next sequence the engine will assign.
func (e *Engine) GetSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// GetStateHash returns the current chain tip.
func (e *Engine) GetStateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}
