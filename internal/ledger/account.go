package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet    AccountSubType = iota // free collateral held by an identity
	SubTypeSynthetic                       // synthetic tokens held by an identity

	// System sub-types
	SubTypeEscrow  // collateral held by the contract (positions, liquidations, bonds)
	SubTypeFeeSink // fees accumulated for the store collaborator

	// External sub-types
	SubTypeCollateralSource // counter-account for collateral entering the system
	SubTypeSyntheticSupply  // counter-account for synthetic mint/burn
)

// AssetID identifies the two assets the ledger moves.
type AssetID uint16

const (
	AssetCollateral AssetID = 1
	AssetSynthetic  AssetID = 2
)

// AssetName returns the canonical asset label.
func AssetName(id AssetID) string {
	switch id {
	case AssetCollateral:
		return "COLLATERAL"
	case AssetSynthetic:
		return "SYNTH"
	default:
		return fmt.Sprintf("ASSET_%d", id)
	}
}

// AccountKey uniquely identifies a ledger account.
type AccountKey struct {
	Scope    AccountScope
	EntityID uuid.UUID // zero for system/external accounts
	SubType  AccountSubType
	Asset    AssetID
}

// NewUserAccountKey builds a user-scoped account key.
func NewUserAccountKey(entityID uuid.UUID, subType AccountSubType, asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: entityID, SubType: subType, Asset: asset}
}

// NewSystemAccountKey builds a system-scoped account key.
func NewSystemAccountKey(subType AccountSubType, asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: subType, Asset: asset}
}

// NewExternalAccountKey builds an external-scoped account key.
func NewExternalAccountKey(subType AccountSubType, asset AssetID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: subType, Asset: asset}
}

// WalletKey is the collateral wallet of an identity.
func WalletKey(id uuid.UUID) AccountKey {
	return NewUserAccountKey(id, SubTypeWallet, AssetCollateral)
}

// SyntheticKey is the synthetic token balance of an identity.
func SyntheticKey(id uuid.UUID) AccountKey {
	return NewUserAccountKey(id, SubTypeSynthetic, AssetSynthetic)
}

// EscrowKey is the contract-held collateral pool.
func EscrowKey() AccountKey {
	return NewSystemAccountKey(SubTypeEscrow, AssetCollateral)
}

// FeeSinkKey is the store collaborator's fee account.
func FeeSinkKey() AccountKey {
	return NewSystemAccountKey(SubTypeFeeSink, AssetCollateral)
}

// CollateralSourceKey is the external counter-account collateral is
// drawn from and returned to.
func CollateralSourceKey() AccountKey {
	return NewExternalAccountKey(SubTypeCollateralSource, AssetCollateral)
}

// SyntheticSupplyKey is the external counter-account for mint/burn.
func SyntheticSupplyKey() AccountKey {
	return NewExternalAccountKey(SubTypeSyntheticSupply, AssetSynthetic)
}

func (s AccountSubType) String() string {
	switch s {
	case SubTypeWallet:
		return "wallet"
	case SubTypeSynthetic:
		return "synthetic"
	case SubTypeEscrow:
		return "escrow"
	case SubTypeFeeSink:
		return "fee_sink"
	case SubTypeCollateralSource:
		return "collateral_source"
	case SubTypeSyntheticSupply:
		return "synthetic_supply"
	default:
		return "unknown"
	}
}

// AccountPath renders a human-readable account identifier for logs and
// the persisted journal.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", k.EntityID, k.SubType, AssetName(k.Asset))
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.SubType, AssetName(k.Asset))
	default:
		return fmt.Sprintf("external:%s:%s", k.SubType, AssetName(k.Asset))
	}
}
