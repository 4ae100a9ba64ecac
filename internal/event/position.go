package event

// Position lifecycle payloads, JSON-encoded into the envelope. Amounts
// are raw 1e18 fixed-point integers rendered as decimal strings.

type PositionCreated struct {
	Sponsor    string `json:"sponsor"`
	Collateral string `json:"collateral"`
	Tokens     string `json:"tokens"`
}

type Deposited struct {
	Sponsor    string `json:"sponsor"`
	Collateral string `json:"collateral"`
}

type Withdrawn struct {
	Sponsor   string `json:"sponsor"`
	Requested string `json:"requested"`
	Paid      string `json:"paid"`
}

type WithdrawalRequested struct {
	Sponsor       string `json:"sponsor"`
	Collateral    string `json:"collateral"`
	PassTimestamp int64  `json:"pass_timestamp"`
}

type WithdrawalCancelled struct {
	Sponsor string `json:"sponsor"`
}

type WithdrawalExecuted struct {
	Sponsor   string `json:"sponsor"`
	Requested string `json:"requested"`
	Paid      string `json:"paid"`
}

type Redeemed struct {
	Sponsor string `json:"sponsor"`
	Tokens  string `json:"tokens"`
	Paid    string `json:"paid"`
}

type TransferRequested struct {
	Sponsor       string `json:"sponsor"`
	PassTimestamp int64  `json:"pass_timestamp"`
}

type TransferCancelled struct {
	Sponsor string `json:"sponsor"`
}

type TransferExecuted struct {
	OldSponsor string `json:"old_sponsor"`
	NewSponsor string `json:"new_sponsor"`
}

type TokensTransferred struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Tokens string `json:"tokens"`
}

type WalletFunded struct {
	Identity string `json:"identity"`
	Amount   string `json:"amount"`
}

type ContractExpired struct {
	ExpirationTimestamp int64  `json:"expiration_timestamp"`
	FinalFee            string `json:"final_fee"`
}

type EmergencyShutdownTriggered struct {
	Admin              string `json:"admin"`
	ShutdownTimestamp  int64  `json:"shutdown_timestamp"`
	OriginalExpiration int64  `json:"original_expiration"`
}

type SettledExpired struct {
	Caller          string `json:"caller"`
	TokensBurned    string `json:"tokens_burned"`
	CollateralPaid  string `json:"collateral_paid"`
	SettlementPrice string `json:"settlement_price"`
}

type RegularFeesPaid struct {
	Amount string `json:"amount"`
}

type PriceResolved struct {
	Identifier string `json:"identifier"`
	Timestamp  int64  `json:"timestamp"`
	Price      string `json:"price"`
}
