package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeWalletFunded
	EventTypePositionCreated
	EventTypeDeposited
	EventTypeWithdrawn
	EventTypeWithdrawalRequested
	EventTypeWithdrawalCancelled
	EventTypeWithdrawalExecuted
	EventTypeRedeemed
	EventTypeTransferRequested
	EventTypeTransferCancelled
	EventTypeTransferExecuted
	EventTypeTokensTransferred
	EventTypeContractExpired
	EventTypeEmergencyShutdown
	EventTypeSettledExpired
	EventTypeLiquidationCreated
	EventTypeLiquidationDisputed
	EventTypeDisputeResolved
	EventTypeLiquidationWithdrawn
	EventTypeFinalFeesPaid
	EventTypeRegularFeesPaid
	EventTypePriceResolved
)

// Envelope wraps every event in the log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Event type discriminator
	EventType EventType

	// The identity whose action produced the event (zero for system
	// events like price resolution)
	Actor string

	// Ledger timestamp of the operation (unix seconds, NOT wall-clock)
	Timestamp int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

func (et EventType) String() string {
	switch et {
	case EventTypeWalletFunded:
		return "WalletFunded"
	case EventTypePositionCreated:
		return "PositionCreated"
	case EventTypeDeposited:
		return "Deposited"
	case EventTypeWithdrawn:
		return "Withdrawn"
	case EventTypeWithdrawalRequested:
		return "WithdrawalRequested"
	case EventTypeWithdrawalCancelled:
		return "WithdrawalCancelled"
	case EventTypeWithdrawalExecuted:
		return "WithdrawalExecuted"
	case EventTypeRedeemed:
		return "Redeemed"
	case EventTypeTransferRequested:
		return "TransferRequested"
	case EventTypeTransferCancelled:
		return "TransferCancelled"
	case EventTypeTransferExecuted:
		return "TransferExecuted"
	case EventTypeTokensTransferred:
		return "TokensTransferred"
	case EventTypeContractExpired:
		return "ContractExpired"
	case EventTypeEmergencyShutdown:
		return "EmergencyShutdown"
	case EventTypeSettledExpired:
		return "SettledExpired"
	case EventTypeLiquidationCreated:
		return "LiquidationCreated"
	case EventTypeLiquidationDisputed:
		return "LiquidationDisputed"
	case EventTypeDisputeResolved:
		return "DisputeResolved"
	case EventTypeLiquidationWithdrawn:
		return "LiquidationWithdrawn"
	case EventTypeFinalFeesPaid:
		return "FinalFeesPaid"
	case EventTypeRegularFeesPaid:
		return "RegularFeesPaid"
	case EventTypePriceResolved:
		return "PriceResolved"
	default:
		return "Unknown"
	}
}

// ParseEventType maps the persisted string form back to the
// discriminator. Unrecognized strings map to EventTypeUnknown.
func ParseEventType(s string) EventType {
	switch s {
	case "WalletFunded":
		return EventTypeWalletFunded
	case "PositionCreated":
		return EventTypePositionCreated
	case "Deposited":
		return EventTypeDeposited
	case "Withdrawn":
		return EventTypeWithdrawn
	case "WithdrawalRequested":
		return EventTypeWithdrawalRequested
	case "WithdrawalCancelled":
		return EventTypeWithdrawalCancelled
	case "WithdrawalExecuted":
		return EventTypeWithdrawalExecuted
	case "Redeemed":
		return EventTypeRedeemed
	case "TransferRequested":
		return EventTypeTransferRequested
	case "TransferCancelled":
		return EventTypeTransferCancelled
	case "TransferExecuted":
		return EventTypeTransferExecuted
	case "TokensTransferred":
		return EventTypeTokensTransferred
	case "ContractExpired":
		return EventTypeContractExpired
	case "EmergencyShutdown":
		return EventTypeEmergencyShutdown
	case "SettledExpired":
		return EventTypeSettledExpired
	case "LiquidationCreated":
		return EventTypeLiquidationCreated
	case "LiquidationDisputed":
		return EventTypeLiquidationDisputed
	case "DisputeResolved":
		return EventTypeDisputeResolved
	case "LiquidationWithdrawn":
		return EventTypeLiquidationWithdrawn
	case "FinalFeesPaid":
		return EventTypeFinalFeesPaid
	case "RegularFeesPaid":
		return EventTypeRegularFeesPaid
	case "PriceResolved":
		return EventTypePriceResolved
	default:
		return EventTypeUnknown
	}
}
