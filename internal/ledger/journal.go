package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeFunding           JournalType = iota // external seed of a wallet
	JournalTypeDeposit                              // wallet -> escrow
	JournalTypeWithdrawal                           // escrow -> wallet
	JournalTypeMint                                 // synthetic supply -> holder
	JournalTypeBurn                                 // holder -> synthetic supply
	JournalTypeRegularFee                           // escrow -> fee sink
	JournalTypeFinalFee                             // escrow -> fee sink
	JournalTypeSettlement                           // escrow -> claimant at expiry
	JournalTypeDisputeBond                          // disputer wallet -> escrow
	JournalTypeLiquidationPayout                    // escrow -> liquidation party
	JournalTypeTransfer                             // holder -> holder
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeFunding:
		return "Funding"
	case JournalTypeDeposit:
		return "Deposit"
	case JournalTypeWithdrawal:
		return "Withdrawal"
	case JournalTypeMint:
		return "Mint"
	case JournalTypeBurn:
		return "Burn"
	case JournalTypeRegularFee:
		return "RegularFee"
	case JournalTypeFinalFee:
		return "FinalFee"
	case JournalTypeSettlement:
		return "Settlement"
	case JournalTypeDisputeBond:
		return "DisputeBond"
	case JournalTypeLiquidationPayout:
		return "LiquidationPayout"
	case JournalTypeTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// Journal represents a single double-entry journal entry. A single
// positive amount moves from the credit account to the debit account,
// so every entry is balanced by construction.
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string // reference to the operation that produced this entry
	Sequence      int64  // global operation sequence
	DebitAccount  AccountKey
	CreditAccount AccountKey
	Asset         AssetID
	Amount        fixedpoint.Unsigned // always positive
	JournalType   JournalType
	Timestamp     int64 // ledger time in unix seconds
}

// Batch groups the journal entries produced by one atomic operation.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed: non-empty unless the
// operation legitimately moved nothing, positive amounts, consistent
// batch ids, matching asset on both legs, no self-transfers.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount.IsZero() {
			return fmt.Errorf("journal %s has zero amount", j.JournalID)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s moves asset %d between mismatched accounts", j.JournalID, j.Asset)
		}
	}
	return nil
}
