package ledger

import (
	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
)

// BatchBuilder assembles the journal entries for one atomic operation.
// Zero-amount legs are skipped so callers can emit conditional
// transfers without special-casing.
type BatchBuilder struct {
	batch *Batch
}

func NewBatch(eventRef string, sequence, timestamp int64) *BatchBuilder {
	return &BatchBuilder{
		batch: &Batch{
			BatchID:   uuid.New(),
			EventRef:  eventRef,
			Sequence:  sequence,
			Timestamp: timestamp,
		},
	}
}

func (b *BatchBuilder) add(jt JournalType, debit, credit AccountKey, asset AssetID, amount fixedpoint.Unsigned) *BatchBuilder {
	if amount.IsZero() {
		return b
	}
	b.batch.Journals = append(b.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.batch.BatchID,
		EventRef:      b.batch.EventRef,
		Sequence:      b.batch.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Asset:         asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.batch.Timestamp,
	})
	return b
}

// FundWallet seeds an identity's wallet from the external source.
func (b *BatchBuilder) FundWallet(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeFunding, WalletKey(id), CollateralSourceKey(), AssetCollateral, amount)
}

// Deposit moves collateral from an identity's wallet into escrow.
func (b *BatchBuilder) Deposit(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeDeposit, EscrowKey(), WalletKey(id), AssetCollateral, amount)
}

// Withdraw moves collateral from escrow back to an identity's wallet.
func (b *BatchBuilder) Withdraw(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeWithdrawal, WalletKey(id), EscrowKey(), AssetCollateral, amount)
}

// Mint issues synthetic tokens to an identity.
func (b *BatchBuilder) Mint(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeMint, SyntheticKey(id), SyntheticSupplyKey(), AssetSynthetic, amount)
}

// Burn destroys synthetic tokens held by an identity.
func (b *BatchBuilder) Burn(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeBurn, SyntheticSupplyKey(), SyntheticKey(id), AssetSynthetic, amount)
}

// TransferSynthetic moves synthetic tokens between identities.
func (b *BatchBuilder) TransferSynthetic(from, to uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeTransfer, SyntheticKey(to), SyntheticKey(from), AssetSynthetic, amount)
}

// RegularFee moves collateral from escrow to the store's fee sink.
func (b *BatchBuilder) RegularFee(amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeRegularFee, FeeSinkKey(), EscrowKey(), AssetCollateral, amount)
}

// FinalFee moves the expiry fee from escrow to the store's fee sink.
func (b *BatchBuilder) FinalFee(amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeFinalFee, FeeSinkKey(), EscrowKey(), AssetCollateral, amount)
}

// Settle pays an expiry-settlement claim from escrow.
func (b *BatchBuilder) Settle(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeSettlement, WalletKey(id), EscrowKey(), AssetCollateral, amount)
}

// DisputeBond escrows a disputer's bond.
func (b *BatchBuilder) DisputeBond(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeDisputeBond, EscrowKey(), WalletKey(id), AssetCollateral, amount)
}

// LiquidationPayout pays a liquidation party's share from escrow.
func (b *BatchBuilder) LiquidationPayout(id uuid.UUID, amount fixedpoint.Unsigned) *BatchBuilder {
	return b.add(JournalTypeLiquidationPayout, WalletKey(id), EscrowKey(), AssetCollateral, amount)
}

// Build returns the assembled batch. The batch may be empty when every
// leg of the operation was zero.
func (b *BatchBuilder) Build() *Batch {
	return b.batch
}
