package event

// Liquidation lifecycle payloads.

type LiquidationCreated struct {
	Sponsor              string `json:"sponsor"`
	LiquidationID        int64  `json:"liquidation_id"`
	Liquidator           string `json:"liquidator"`
	TokensLiquidated     string `json:"tokens_liquidated"`
	LockedCollateral     string `json:"locked_collateral"`
	LiquidatedCollateral string `json:"liquidated_collateral"`
	Expiry               int64  `json:"expiry"`
}

type LiquidationDisputed struct {
	Sponsor       string `json:"sponsor"`
	LiquidationID int64  `json:"liquidation_id"`
	Disputer      string `json:"disputer"`
	Bond          string `json:"bond"`
}

type DisputeResolved struct {
	Sponsor         string `json:"sponsor"`
	LiquidationID   int64  `json:"liquidation_id"`
	Succeeded       bool   `json:"succeeded"`
	SettlementPrice string `json:"settlement_price"`
}

type LiquidationWithdrawn struct {
	Sponsor       string `json:"sponsor"`
	LiquidationID int64  `json:"liquidation_id"`
	Caller        string `json:"caller"`
	Paid          string `json:"paid"`
}
