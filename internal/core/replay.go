package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
)

// ReplayRow is one persisted event fed back through the engine during
// restart recovery.
type ReplayRow struct {
	Sequence  int64
	EventType string
	Actor     string
	Payload   []byte
	Timestamp int64
	StateHash [32]byte
}

// replayClock pins Now to the logged timestamp of the event being
// replayed; live operation reads the wrapped clock. Pinning happens
// only during single-threaded recovery, before any other goroutine
// touches the engine.
type replayClock struct {
	inner  clock.Clock
	pinned bool
	at     int64
}

func (c *replayClock) Now() int64 {
	if c.pinned {
		return c.at
	}
	return c.inner.Now()
}

func (c *replayClock) pin(at int64) { c.pinned, c.at = true, at }
func (c *replayClock) unpin()       { c.pinned = false }

// ReplayEvent re-executes one logged event against the current state.
// The operation runs through the normal deterministic pipeline with
// the clock pinned to the event's ledger timestamp and emission
// suppressed, so recovery rebuilds exactly the state the log recorded
// without re-persisting anything. The recomputed state hash must match
// the stored one; a mismatch means the log and the code disagree and
// recovery must not continue.
func (e *Engine) ReplayEvent(row ReplayRow) error {
	e.mu.Lock()
	if row.Sequence != e.sequence {
		e.mu.Unlock()
		return fmt.Errorf("replay: log has sequence %d, engine expects %d", row.Sequence, e.sequence)
	}
	e.replaying = true
	e.replayClk.pin(row.Timestamp)
	e.mu.Unlock()

	err := e.dispatchReplay(row)

	e.mu.Lock()
	e.replaying = false
	e.replayClk.unpin()
	tip := e.hasher.GetPrevHash()
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("replay: %s at sequence %d: %w", row.EventType, row.Sequence, err)
	}
	if tip != row.StateHash {
		return fmt.Errorf("replay: state hash mismatch at sequence %d", row.Sequence)
	}
	return nil
}

// dispatchReplay decodes the payload and re-invokes the operation it
// was logged by. Every event in the log was applied, so a rejection
// here is a replay failure, not a business outcome.
func (e *Engine) dispatchReplay(row ReplayRow) error {
	switch event.ParseEventType(row.EventType) {
	case event.EventTypeWalletFunded:
		var p event.WalletFunded
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		id, err := uuid.Parse(p.Identity)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.ParseRaw(p.Amount)
		if err != nil {
			return err
		}
		return e.FundWallet(id, amount)

	case event.EventTypeTokensTransferred:
		var p event.TokensTransferred
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		from, err := uuid.Parse(p.From)
		if err != nil {
			return err
		}
		to, err := uuid.Parse(p.To)
		if err != nil {
			return err
		}
		tokens, err := fixedpoint.ParseRaw(p.Tokens)
		if err != nil {
			return err
		}
		return e.TransferTokens(from, to, tokens)

	case event.EventTypePositionCreated:
		var p event.PositionCreated
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		collateral, err := fixedpoint.ParseRaw(p.Collateral)
		if err != nil {
			return err
		}
		tokens, err := fixedpoint.ParseRaw(p.Tokens)
		if err != nil {
			return err
		}
		return e.CreatePosition(sponsor, collateral, tokens)

	case event.EventTypeDeposited:
		var p event.Deposited
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		collateral, err := fixedpoint.ParseRaw(p.Collateral)
		if err != nil {
			return err
		}
		return e.Deposit(sponsor, collateral)

	case event.EventTypeWithdrawn:
		var p event.Withdrawn
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		requested, err := fixedpoint.ParseRaw(p.Requested)
		if err != nil {
			return err
		}
		return e.Withdraw(sponsor, requested)

	case event.EventTypeWithdrawalRequested:
		var p event.WithdrawalRequested
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		collateral, err := fixedpoint.ParseRaw(p.Collateral)
		if err != nil {
			return err
		}
		return e.RequestWithdrawal(sponsor, collateral)

	case event.EventTypeWithdrawalCancelled:
		var p event.WithdrawalCancelled
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.CancelWithdrawal(sponsor)

	case event.EventTypeWithdrawalExecuted:
		var p event.WithdrawalExecuted
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.WithdrawPassedRequest(sponsor)

	case event.EventTypeRedeemed:
		var p event.Redeemed
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		tokens, err := fixedpoint.ParseRaw(p.Tokens)
		if err != nil {
			return err
		}
		return e.Redeem(sponsor, tokens)

	case event.EventTypeTransferRequested:
		var p event.TransferRequested
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.RequestTransferPosition(sponsor)

	case event.EventTypeTransferCancelled:
		var p event.TransferCancelled
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.CancelTransferPosition(sponsor)

	case event.EventTypeTransferExecuted:
		var p event.TransferExecuted
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		oldSponsor, err := uuid.Parse(p.OldSponsor)
		if err != nil {
			return err
		}
		newSponsor, err := uuid.Parse(p.NewSponsor)
		if err != nil {
			return err
		}
		return e.TransferPositionPassedRequest(oldSponsor, newSponsor)

	case event.EventTypeContractExpired:
		caller, err := uuid.Parse(row.Actor)
		if err != nil {
			return err
		}
		return e.Expire(caller)

	case event.EventTypeEmergencyShutdown:
		var p event.EmergencyShutdownTriggered
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		admin, err := uuid.Parse(p.Admin)
		if err != nil {
			return err
		}
		return e.EmergencyShutdown(admin)

	case event.EventTypeSettledExpired:
		var p event.SettledExpired
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		caller, err := uuid.Parse(p.Caller)
		if err != nil {
			return err
		}
		return e.SettleExpired(caller)

	case event.EventTypeLiquidationCreated:
		var p event.LiquidationCreated
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		liquidator, err := uuid.Parse(p.Liquidator)
		if err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		_, err = e.CreateLiquidation(liquidator, sponsor)
		return err

	case event.EventTypeLiquidationDisputed:
		var p event.LiquidationDisputed
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		disputer, err := uuid.Parse(p.Disputer)
		if err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.DisputeLiquidation(disputer, sponsor, p.LiquidationID)

	case event.EventTypeDisputeResolved:
		var p event.DisputeResolved
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		caller, err := uuid.Parse(row.Actor)
		if err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.SettleDispute(caller, sponsor, p.LiquidationID)

	case event.EventTypeLiquidationWithdrawn:
		var p event.LiquidationWithdrawn
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		caller, err := uuid.Parse(p.Caller)
		if err != nil {
			return err
		}
		sponsor, err := uuid.Parse(p.Sponsor)
		if err != nil {
			return err
		}
		return e.WithdrawLiquidation(caller, sponsor, p.LiquidationID)

	case event.EventTypePriceResolved:
		var p event.PriceResolved
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return err
		}
		price, err := fixedpoint.ParseRaw(p.Price)
		if err != nil {
			return err
		}
		return e.PushPrice(p.Identifier, p.Timestamp, price)

	case event.EventTypeRegularFeesPaid:
		return e.settleRegularFees()

	default:
		return fmt.Errorf("no replay handler for event type %q", row.EventType)
	}
}

// settleRegularFees commits an accrued fee window on its own, the
// envelope a rejected operation's fee settlement was logged under.
func (e *Engine) settleRegularFees() error {
	return e.apply("regular_fees", event.EventTypeRegularFeesPaid, "", func(b *ledger.BatchBuilder) (any, error) {
		e.positions.SettleOutstandingFees(b)
		return event.RegularFeesPaid{
			Amount: sumJournals(b, ledger.JournalTypeRegularFee).RawString(),
		}, nil
	})
}
