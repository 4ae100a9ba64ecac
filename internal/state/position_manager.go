package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/clock"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/store"
)

// ContractState is the one-way lifecycle of the whole contract.
type ContractState int32

const (
	StateOpen ContractState = iota
	StateExpiredPriceRequested
	StateExpiredPriceReceived
)

func (s ContractState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateExpiredPriceRequested:
		return "ExpiredPriceRequested"
	case StateExpiredPriceReceived:
		return "ExpiredPriceReceived"
	default:
		return "Unknown"
	}
}

// WithdrawalRequest is a pending two-phase withdrawal. nil means none.
type WithdrawalRequest struct {
	Amount        fixedpoint.Unsigned
	PassTimestamp int64
}

// Position is a sponsor's collateral/debt record. A position with zero
// tokens and zero collateral is deleted from the map; it may not exist
// with one of the two zero except transiently inside an operation.
type Position struct {
	Sponsor           uuid.UUID
	RawCollateral     fixedpoint.Unsigned // effective = RawCollateral * multiplier
	TokensOutstanding fixedpoint.Unsigned
	Withdrawal        *WithdrawalRequest
	// Pending ownership-transfer timelock, 0 when none.
	TransferRequestPassTimestamp int64
}

func (p *Position) hasPendingWithdrawal() bool {
	return p.Withdrawal != nil
}

func (p *Position) hasPendingTransfer() bool {
	return p.TransferRequestPassTimestamp != 0
}

// PositionManager owns all sponsor positions and the global fee
// accounting. Every operation is atomic: it either fully applies or
// returns an error with no state change. Serialization is the caller's
// (the core engine's) responsibility.
type PositionManager struct {
	params Params
	fees   *FeeAccounting
	clk    clock.Clock
	oracle oracle.Oracle
	store  store.Store
	finder *registry.Finder

	// tracker is read for balance preconditions; mutations flow through
	// the journal batches the operations emit.
	tracker *ledger.BalanceTracker

	positions   map[uuid.UUID]*Position
	totalTokens fixedpoint.Unsigned

	state               ContractState
	expirationTimestamp int64
	settlementPrice     fixedpoint.Unsigned
	priceCached         bool
}

func NewPositionManager(
	params Params,
	clk clock.Clock,
	orc oracle.Oracle,
	st store.Store,
	finder *registry.Finder,
	tracker *ledger.BalanceTracker,
) *PositionManager {
	return &PositionManager{
		params:              params,
		fees:                NewFeeAccounting(clk.Now()),
		clk:                 clk,
		oracle:              orc,
		store:               st,
		finder:              finder,
		tracker:             tracker,
		positions:           make(map[uuid.UUID]*Position),
		totalTokens:         fixedpoint.Zero(),
		state:               StateOpen,
		expirationTimestamp: params.ExpirationTimestamp,
	}
}

// --- Read surface ---

func (m *PositionManager) State() ContractState       { return m.state }
func (m *PositionManager) ExpirationTimestamp() int64 { return m.expirationTimestamp }
func (m *PositionManager) Fees() *FeeAccounting       { return m.fees }
func (m *PositionManager) Params() Params             { return m.params }

// GetPosition returns the live position record, or nil.
func (m *PositionManager) GetPosition(sponsor uuid.UUID) *Position {
	return m.positions[sponsor]
}

// GetCollateral returns a sponsor's effective (fee-adjusted, floored)
// collateral.
func (m *PositionManager) GetCollateral(sponsor uuid.UUID) fixedpoint.Unsigned {
	p := m.positions[sponsor]
	if p == nil {
		return fixedpoint.Zero()
	}
	return m.fees.FeeAdjusted(p.RawCollateral)
}

// TotalPositionCollateral is the effective collateral across all
// positions.
func (m *PositionManager) TotalPositionCollateral() fixedpoint.Unsigned {
	return m.fees.TotalCollateral()
}

func (m *PositionManager) TotalTokensOutstanding() fixedpoint.Unsigned {
	return m.totalTokens
}

// PositionCount returns the number of open sponsor positions.
func (m *PositionManager) PositionCount() int {
	return len(m.positions)
}

// GCR is the global collateralization ratio: effective total
// collateral over total tokens outstanding. Zero when no tokens exist.
func (m *PositionManager) GCR() fixedpoint.Unsigned {
	if m.totalTokens.IsZero() {
		return fixedpoint.Zero()
	}
	return m.fees.TotalCollateral().Div(m.totalTokens)
}

// SettlementPrice returns the cached expiry price once resolved.
func (m *PositionManager) SettlementPrice() (fixedpoint.Unsigned, bool) {
	return m.settlementPrice, m.priceCached
}

// --- Guards ---

func (m *PositionManager) requireOpenPreExpiry(now int64) error {
	if m.state != StateOpen {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	if now >= m.expirationTimestamp {
		return ErrPastExpiry
	}
	return nil
}

// settleFees pays the outstanding regular fee before any mutation, the
// way every state-changing operation must.
func (m *PositionManager) settleFees(b *ledger.BatchBuilder) {
	fee := m.fees.PayRegularFees(m.clk.Now(), m.store)
	b.RegularFee(fee)
}

// SettleOutstandingFees pays the accrued regular-fee window with no
// further mutation. The engine uses it to re-apply fee settlements
// that were logged on their own.
func (m *PositionManager) SettleOutstandingFees(b *ledger.BatchBuilder) {
	m.settleFees(b)
}

// checkCollateralization requires collateral/tokens to be at or above
// the global ratio.
func (m *PositionManager) checkCollateralization(gcr, collateral, tokens fixedpoint.Unsigned) bool {
	if tokens.IsZero() {
		return true
	}
	return collateral.Div(tokens).GTE(gcr)
}

// --- Operations ---

// Create opens or enlarges a position: pulls collateral from the
// sponsor's wallet into escrow and mints tokens against it. The mint
// passes if either the resulting position ratio or the marginal ratio
// of the new tokens meets the pre-call GCR, so an over-collateralized
// position may mint at a lower marginal ratio without topping up, while
// no mint can drag the global ratio down.
func (m *PositionManager) Create(b *ledger.BatchBuilder, sponsor uuid.UUID, collateral, tokens fixedpoint.Unsigned) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	if tokens.IsZero() {
		return fmt.Errorf("%w: tokens to mint", ErrInvalidAmount)
	}

	p := m.positions[sponsor]
	if p != nil && p.hasPendingWithdrawal() {
		return ErrPendingRequest
	}

	m.settleFees(b)

	var posCollateral, posTokens fixedpoint.Unsigned
	if p != nil {
		posCollateral = m.fees.FeeAdjusted(p.RawCollateral)
		posTokens = p.TokensOutstanding
	}

	newTokens := posTokens.Add(tokens)
	if newTokens.LT(m.params.MinSponsorTokens) {
		return ErrMinSponsorTokens
	}

	if !m.totalTokens.IsZero() {
		gcr := m.GCR()
		positionOK := m.checkCollateralization(gcr, posCollateral.Add(collateral), newTokens)
		marginalOK := m.checkCollateralization(gcr, collateral, tokens)
		if !positionOK && !marginalOK {
			return ErrBelowGCR
		}
	}

	if err := m.tracker.ValidateSufficient(ledger.WalletKey(sponsor), collateral); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}

	if p == nil {
		p = &Position{Sponsor: sponsor, RawCollateral: fixedpoint.Zero(), TokensOutstanding: fixedpoint.Zero()}
		m.positions[sponsor] = p
	}
	m.depositToPosition(p, collateral)
	p.TokensOutstanding = p.TokensOutstanding.Add(tokens)
	m.totalTokens = m.totalTokens.Add(tokens)

	b.Deposit(sponsor, collateral)
	b.Mint(sponsor, tokens)
	return nil
}

// Deposit adds collateral to an existing position. No GCR check:
// adding collateral only improves ratios.
func (m *PositionManager) Deposit(b *ledger.BatchBuilder, sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	if collateral.IsZero() {
		return fmt.Errorf("%w: collateral", ErrInvalidAmount)
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if p.hasPendingWithdrawal() {
		return ErrPendingRequest
	}
	if err := m.tracker.ValidateSufficient(ledger.WalletKey(sponsor), collateral); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}

	m.settleFees(b)
	m.depositToPosition(p, collateral)
	b.Deposit(sponsor, collateral)
	return nil
}

// Withdraw removes collateral immediately. It is GCR-gated, which is
// precisely why no timelock applies: the withdrawal cannot worsen the
// global ratio.
func (m *PositionManager) Withdraw(b *ledger.BatchBuilder, sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	if collateral.IsZero() {
		return fmt.Errorf("%w: collateral", ErrInvalidAmount)
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if p.hasPendingWithdrawal() || p.hasPendingTransfer() {
		return ErrPendingRequest
	}

	m.settleFees(b)

	posCollateral := m.fees.FeeAdjusted(p.RawCollateral)
	if collateral.GT(posCollateral) {
		return ErrInsufficientCollateral
	}
	gcr := m.GCR()
	if !m.checkCollateralization(gcr, posCollateral.Sub(collateral), p.TokensOutstanding) {
		return ErrBelowGCR
	}

	paid := m.withdrawFromPosition(p, collateral)
	b.Withdraw(sponsor, paid)
	return nil
}

// RequestWithdrawal begins a two-phase withdrawal for amounts the
// immediate GCR check would refuse. The pending request locks every
// other position-mutating call for this sponsor until cancelled or
// executed. A request may not mature past expiry.
func (m *PositionManager) RequestWithdrawal(b *ledger.BatchBuilder, sponsor uuid.UUID, collateral fixedpoint.Unsigned) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	if collateral.IsZero() {
		return fmt.Errorf("%w: collateral", ErrInvalidAmount)
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if p.hasPendingWithdrawal() || p.hasPendingTransfer() {
		return ErrPendingRequest
	}

	m.settleFees(b)

	if collateral.GT(m.fees.FeeAdjusted(p.RawCollateral)) {
		return ErrInsufficientCollateral
	}
	passTimestamp := now + m.params.WithdrawalLiveness
	if passTimestamp >= m.expirationTimestamp {
		return ErrPastExpiry
	}
	p.Withdrawal = &WithdrawalRequest{Amount: collateral, PassTimestamp: passTimestamp}
	return nil
}

// CancelWithdrawal drops a pending withdrawal request.
func (m *PositionManager) CancelWithdrawal(b *ledger.BatchBuilder, sponsor uuid.UUID) error {
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.hasPendingWithdrawal() {
		return ErrNoPendingRequest
	}
	p.Withdrawal = nil
	return nil
}

// WithdrawPassedRequest executes a matured withdrawal request. Fees
// accrued while waiting reduce, but never invalidate, the payout: the
// sponsor receives min(requested, current effective collateral).
func (m *PositionManager) WithdrawPassedRequest(b *ledger.BatchBuilder, sponsor uuid.UUID) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.hasPendingWithdrawal() {
		return ErrNoPendingRequest
	}
	if now < p.Withdrawal.PassTimestamp {
		return ErrRequestNotPassed
	}

	m.settleFees(b)

	amount := fixedpoint.Min(p.Withdrawal.Amount, m.fees.FeeAdjusted(p.RawCollateral))
	paid := m.withdrawFromPosition(p, amount)
	p.Withdrawal = nil
	b.Withdraw(sponsor, paid)
	return nil
}

// Redeem burns tokens for a proportional share of the position's
// effective collateral. The position may not be left holding fewer
// than the minimum sponsor tokens unless it is emptied entirely.
func (m *PositionManager) Redeem(b *ledger.BatchBuilder, sponsor uuid.UUID, tokens fixedpoint.Unsigned) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	if tokens.IsZero() {
		return fmt.Errorf("%w: tokens", ErrInvalidAmount)
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if p.hasPendingWithdrawal() {
		return ErrPendingRequest
	}
	if tokens.GT(p.TokensOutstanding) {
		return fmt.Errorf("%w: redeeming more than outstanding", ErrInvalidAmount)
	}
	remaining := p.TokensOutstanding.Sub(tokens)
	if !remaining.IsZero() && remaining.LT(m.params.MinSponsorTokens) {
		return ErrMinSponsorTokens
	}
	if err := m.tracker.ValidateSufficient(ledger.SyntheticKey(sponsor), tokens); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}

	m.settleFees(b)

	fraction := tokens.Div(p.TokensOutstanding)
	collateralRedeemed := fraction.Mul(m.fees.FeeAdjusted(p.RawCollateral))
	paid := m.withdrawFromPosition(p, collateralRedeemed)

	if remaining.IsZero() {
		m.deleteSponsorPosition(p)
	} else {
		p.TokensOutstanding = remaining
		m.totalTokens = m.totalTokens.Sub(tokens)
	}

	b.Burn(sponsor, tokens)
	b.Withdraw(sponsor, paid)
	return nil
}

// RequestTransferPosition begins the timelocked transfer of the whole
// position to a new sponsor identity.
func (m *PositionManager) RequestTransferPosition(b *ledger.BatchBuilder, sponsor uuid.UUID) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if p.hasPendingWithdrawal() || p.hasPendingTransfer() {
		return ErrPendingRequest
	}
	passTimestamp := now + m.params.WithdrawalLiveness
	if passTimestamp >= m.expirationTimestamp {
		return ErrPastExpiry
	}

	m.settleFees(b)
	p.TransferRequestPassTimestamp = passTimestamp
	return nil
}

// CancelTransferPosition drops a pending transfer request.
func (m *PositionManager) CancelTransferPosition(b *ledger.BatchBuilder, sponsor uuid.UUID) error {
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.hasPendingTransfer() {
		return ErrNoPendingRequest
	}
	p.TransferRequestPassTimestamp = 0
	return nil
}

// TransferPositionPassedRequest moves the position to a new sponsor
// that must not already hold one. Collateral stays in escrow, so no
// journal legs are produced.
func (m *PositionManager) TransferPositionPassedRequest(b *ledger.BatchBuilder, sponsor, newSponsor uuid.UUID) error {
	now := m.clk.Now()
	if err := m.requireOpenPreExpiry(now); err != nil {
		return err
	}
	p := m.positions[sponsor]
	if p == nil {
		return ErrPositionNotFound
	}
	if !p.hasPendingTransfer() {
		return ErrNoPendingRequest
	}
	if now < p.TransferRequestPassTimestamp {
		return ErrRequestNotPassed
	}
	if p.hasPendingWithdrawal() {
		return ErrPendingRequest
	}
	if m.positions[newSponsor] != nil {
		return ErrPositionExists
	}

	m.settleFees(b)

	p.TransferRequestPassTimestamp = 0
	p.Sponsor = newSponsor
	delete(m.positions, sponsor)
	m.positions[newSponsor] = p
	return nil
}

// Expire transitions the contract once its expiration time has been
// reached: pays the final fee (failing the whole call if the
// collateral cannot cover it) and requests the expiry price from the
// oracle.
func (m *PositionManager) Expire(b *ledger.BatchBuilder) error {
	now := m.clk.Now()
	if m.state != StateOpen {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	if now < m.expirationTimestamp {
		return ErrPreExpiry
	}

	m.settleFees(b)

	fee, err := m.fees.PayFinalFee(m.store)
	if err != nil {
		return err
	}
	b.FinalFee(fee)

	m.oracle.RequestPrice(m.params.PriceIdentifier, m.expirationTimestamp)
	m.state = StateExpiredPriceRequested
	return nil
}

// EmergencyShutdown lets the admin collaborator expire the contract
// early: the expiration timestamp snaps to now and the same
// price-request transition as Expire runs. One-shot, admin-only,
// strictly before the scheduled expiration.
func (m *PositionManager) EmergencyShutdown(b *ledger.BatchBuilder, caller uuid.UUID) error {
	now := m.clk.Now()
	if !m.finder.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if m.state != StateOpen {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	if now >= m.expirationTimestamp {
		return ErrPastExpiry
	}

	m.settleFees(b)

	m.expirationTimestamp = now
	m.oracle.RequestPrice(m.params.PriceIdentifier, now)
	m.state = StateExpiredPriceRequested
	return nil
}

// SettleExpired redeems the caller's synthetic tokens at the resolved
// expiry price and, for sponsors, additionally pays out the position's
// collateral surplus over its debt, deleting the position. Payment is
// satisfied from the position collateral pool first-come-first-served:
// when aggregate claims exceed what remains, later callers receive a
// reduced amount, down to zero, with no error — solvent claimants are
// kept whole rather than blocking everyone.
func (m *PositionManager) SettleExpired(b *ledger.BatchBuilder, caller uuid.UUID) error {
	if m.state == StateOpen {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}

	if !m.priceCached {
		if !m.oracle.HasPrice(m.params.PriceIdentifier, m.expirationTimestamp) {
			return ErrPriceNotResolved
		}
		price, err := m.oracle.GetPrice(m.params.PriceIdentifier, m.expirationTimestamp)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPriceNotResolved, err)
		}
		m.settlementPrice = price
		m.priceCached = true
		m.state = StateExpiredPriceReceived
	}

	m.settleFees(b)

	tokens := m.tracker.SyntheticBalance(caller)
	redeemable := tokens.Mul(m.settlementPrice)

	if p := m.positions[caller]; p != nil {
		posCollateral := m.fees.FeeAdjusted(p.RawCollateral)
		debt := p.TokensOutstanding.Mul(m.settlementPrice)
		// Collateral surplus over the debt; an undercollateralized
		// sponsor's position contributes nothing (and cannot go
		// negative against their token redemption).
		redeemable = redeemable.Add(posCollateral.SubToZero(debt))
		// Plain map delete: the position's value leaves the pool through
		// the single RemoveFromRawTotal below, so the payout of every
		// later claimant stays capped by what actually remains.
		delete(m.positions, caller)
	}

	payout := fixedpoint.Min(redeemable, m.fees.TotalCollateral())
	_, paid := m.fees.RemoveFromRawTotal(payout)
	m.totalTokens = m.totalTokens.SubToZero(tokens)

	b.Burn(caller, tokens)
	b.Settle(caller, paid)
	return nil
}

// --- Internal collateral plumbing ---

// depositToPosition converts an effective amount into raw units at the
// current multiplier and adds it to both the position and the global
// raw total.
func (m *PositionManager) depositToPosition(p *Position, amount fixedpoint.Unsigned) {
	delta := m.fees.convertToRaw(amount)
	p.RawCollateral = p.RawCollateral.Add(delta)
	m.fees.rawTotal = m.fees.rawTotal.Add(delta)
}

// withdrawFromPosition removes an effective amount (which must not
// exceed the position's effective collateral) and returns the
// fee-adjusted delta actually paid out — precision loss can make it
// smaller than requested, never larger.
func (m *PositionManager) withdrawFromPosition(p *Position, amount fixedpoint.Unsigned) fixedpoint.Unsigned {
	before := m.fees.FeeAdjusted(p.RawCollateral)
	delta := m.fees.convertToRaw(amount)
	p.RawCollateral = p.RawCollateral.Sub(delta)
	m.fees.rawTotal = m.fees.rawTotal.SubToZero(delta)
	return before.Sub(m.fees.FeeAdjusted(p.RawCollateral))
}

// deleteSponsorPosition removes a position and its residual raw
// collateral from the global accounting. Used by full redemption and
// liquidation. The per-sponsor liquidation sequence counters are
// unaffected.
func (m *PositionManager) deleteSponsorPosition(p *Position) {
	m.fees.rawTotal = m.fees.rawTotal.SubToZero(p.RawCollateral)
	m.totalTokens = m.totalTokens.Sub(p.TokensOutstanding)
	delete(m.positions, p.Sponsor)
}
