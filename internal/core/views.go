package core

import (
	"github.com/google/uuid"

	"SynthLedger/internal/state"
)

// Read-side views returned to the HTTP API. Amounts are raw 1e18
// integers as strings, matching the event log encoding.

type PositionView struct {
	Sponsor            string `json:"sponsor"`
	Collateral         string `json:"collateral"`
	RawCollateral      string `json:"raw_collateral"`
	TokensOutstanding  string `json:"tokens_outstanding"`
	PendingWithdrawal  string `json:"pending_withdrawal,omitempty"`
	WithdrawalPassTime int64  `json:"withdrawal_pass_timestamp,omitempty"`
	TransferPassTime   int64  `json:"transfer_pass_timestamp,omitempty"`
}

type LiquidationView struct {
	Sponsor              string `json:"sponsor"`
	LiquidationID        int64  `json:"liquidation_id"`
	State                string `json:"state"`
	Liquidator           string `json:"liquidator"`
	Disputer             string `json:"disputer,omitempty"`
	LiquidationTime      int64  `json:"liquidation_time"`
	Expiry               int64  `json:"expiry"`
	TokensOutstanding    string `json:"tokens_outstanding"`
	LockedCollateral     string `json:"locked_collateral"`
	LiquidatedCollateral string `json:"liquidated_collateral"`
	DisputeBond          string `json:"dispute_bond"`
	SettlementPrice      string `json:"settlement_price"`
}

type ContractView struct {
	State               string `json:"state"`
	PriceIdentifier     string `json:"price_identifier"`
	CollateralSymbol    string `json:"collateral_symbol"`
	ExpirationTimestamp int64  `json:"expiration_timestamp"`
	FeeMultiplier       string `json:"fee_multiplier"`
	RawTotalCollateral  string `json:"raw_total_collateral"`
	TotalCollateral     string `json:"total_collateral"`
	TokensOutstanding   string `json:"tokens_outstanding"`
	GCR                 string `json:"gcr"`
	PositionCount       int    `json:"position_count"`
	EscrowBalance       string `json:"escrow_balance"`
	FeeSinkBalance      string `json:"fee_sink_balance"`
	SettlementPrice     string `json:"settlement_price,omitempty"`
}

type WalletView struct {
	Identity   string `json:"identity"`
	Collateral string `json:"collateral"`
	Synthetic  string `json:"synthetic"`
}

// PositionView returns the sponsor's position, or nil when none exists.
func (e *Engine) PositionView(sponsor uuid.UUID) *PositionView {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.positions.GetPosition(sponsor)
	if p == nil {
		return nil
	}
	v := &PositionView{
		Sponsor:           p.Sponsor.String(),
		Collateral:        e.positions.GetCollateral(sponsor).RawString(),
		RawCollateral:     p.RawCollateral.RawString(),
		TokensOutstanding: p.TokensOutstanding.RawString(),
		TransferPassTime:  p.TransferRequestPassTimestamp,
	}
	if p.Withdrawal != nil {
		v.PendingWithdrawal = p.Withdrawal.Amount.RawString()
		v.WithdrawalPassTime = p.Withdrawal.PassTimestamp
	}
	return v
}

// LiquidationView returns a liquidation record, or nil when it never
// existed or has been fully claimed and deleted.
func (e *Engine) LiquidationView(sponsor uuid.UUID, id int64) *LiquidationView {
	e.mu.Lock()
	defer e.mu.Unlock()

	liq := e.liquidations.GetLiquidation(sponsor, id)
	if liq == nil {
		return nil
	}
	v := &LiquidationView{
		Sponsor:              liq.Sponsor.String(),
		LiquidationID:        liq.ID,
		State:                liq.State.String(),
		Liquidator:           liq.Liquidator.String(),
		LiquidationTime:      liq.LiquidationTime,
		Expiry:               liq.Expiry,
		TokensOutstanding:    liq.TokensOutstanding.RawString(),
		LockedCollateral:     liq.LockedCollateral.RawString(),
		LiquidatedCollateral: liq.LiquidatedCollateral.RawString(),
		DisputeBond:          liq.DisputeBond.RawString(),
		SettlementPrice:      liq.SettlementPrice.RawString(),
	}
	if liq.State != state.LiquidationPreDispute {
		v.Disputer = liq.Disputer.String()
	}
	return v
}

// ContractView returns the global contract state.
func (e *Engine) ContractView() ContractView {
	e.mu.Lock()
	defer e.mu.Unlock()

	params := e.positions.Params()
	v := ContractView{
		State:               e.positions.State().String(),
		PriceIdentifier:     params.PriceIdentifier,
		CollateralSymbol:    params.CollateralSymbol,
		ExpirationTimestamp: e.positions.ExpirationTimestamp(),
		FeeMultiplier:       e.positions.Fees().Multiplier().RawString(),
		RawTotalCollateral:  e.positions.Fees().RawTotal().RawString(),
		TotalCollateral:     e.positions.TotalPositionCollateral().RawString(),
		TokensOutstanding:   e.positions.TotalTokensOutstanding().RawString(),
		GCR:                 e.positions.GCR().RawString(),
		PositionCount:       e.positions.PositionCount(),
		EscrowBalance:       e.tracker.EscrowBalance().RawString(),
		FeeSinkBalance:      e.tracker.FeeSinkBalance().RawString(),
	}
	if price, ok := e.positions.SettlementPrice(); ok {
		v.SettlementPrice = price.RawString()
	}
	return v
}

// WalletView returns an identity's free collateral and token holdings.
func (e *Engine) WalletView(id uuid.UUID) WalletView {
	e.mu.Lock()
	defer e.mu.Unlock()

	return WalletView{
		Identity:   id.String(),
		Collateral: e.tracker.WalletBalance(id).RawString(),
		Synthetic:  e.tracker.SyntheticBalance(id).RawString(),
	}
}
