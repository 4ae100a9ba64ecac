package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores periodic full-state snapshots so a restart
// loads the newest snapshot and replays only the events past it,
// instead of replaying the whole log.
//
// Snapshots are saved unverified: the engine may run ahead of the
// persist worker, so the snapshotted sequence can precede the durable
// log. VerifyPending flips a snapshot to verified once the events table
// holds a matching (sequence, state_hash) row; only verified snapshots
// are ever loaded.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SnapshotData is the serialized engine state at one sequence. All
// fixed-point amounts are raw 1e18 integer strings; balances are signed
// decimal strings because external counter-accounts run negative.
type SnapshotData struct {
	Sequence  int64  `json:"sequence"`
	StateHash []byte `json:"state_hash"`

	Balances []BalanceSnap `json:"balances"`

	Positions           []PositionSnap `json:"positions"`
	TotalTokens         string         `json:"total_tokens"`
	ContractState       int32          `json:"contract_state"`
	ExpirationTimestamp int64          `json:"expiration_timestamp"`
	SettlementPrice     string         `json:"settlement_price,omitempty"`
	PriceCached         bool           `json:"price_cached"`

	FeeRawTotal        string `json:"fee_raw_total"`
	FeeMultiplier      string `json:"fee_multiplier"`
	FeeLastPaymentTime int64  `json:"fee_last_payment_time"`

	Liquidations           []LiquidationSnap `json:"liquidations"`
	LiquidationNextIDs     map[string]int64  `json:"liquidation_next_ids"`
	LiquidationOutstanding string            `json:"liquidation_outstanding"`

	PendingPrices  []PriceSnap `json:"pending_prices"`
	ResolvedPrices []PriceSnap `json:"resolved_prices"`

	CreatedAt time.Time `json:"created_at"`
}

// BalanceSnap is one ledger account balance.
type BalanceSnap struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id,omitempty"`
	SubType  uint8  `json:"sub_type"`
	Asset    uint16 `json:"asset"`
	Balance  string `json:"balance"`
}

// PositionSnap is one sponsor position.
type PositionSnap struct {
	Sponsor                      string `json:"sponsor"`
	RawCollateral                string `json:"raw_collateral"`
	TokensOutstanding            string `json:"tokens_outstanding"`
	WithdrawalAmount             string `json:"withdrawal_amount,omitempty"`
	WithdrawalPassTimestamp      int64  `json:"withdrawal_pass_timestamp,omitempty"`
	TransferRequestPassTimestamp int64  `json:"transfer_request_pass_timestamp,omitempty"`
}

// LiquidationSnap is one liquidation record.
type LiquidationSnap struct {
	Sponsor              string `json:"sponsor"`
	ID                   int64  `json:"id"`
	State                int32  `json:"state"`
	Liquidator           string `json:"liquidator"`
	Disputer             string `json:"disputer"`
	LiquidationTime      int64  `json:"liquidation_time"`
	Expiry               int64  `json:"expiry"`
	TokensOutstanding    string `json:"tokens_outstanding"`
	LockedCollateral     string `json:"locked_collateral"`
	LiquidatedCollateral string `json:"liquidated_collateral"`
	DisputeBond          string `json:"dispute_bond"`
	SettlementPrice      string `json:"settlement_price"`
	SponsorPaid          bool   `json:"sponsor_paid"`
	LiquidatorPaid       bool   `json:"liquidator_paid"`
	DisputerPaid         bool   `json:"disputer_paid"`
}

// PriceSnap is one oracle (identifier, timestamp) entry. Price is empty
// for pending requests.
type PriceSnap struct {
	Identifier string `json:"identifier"`
	Timestamp  int64  `json:"timestamp"`
	Price      string `json:"price,omitempty"`
}

const snapshotFormatVersion = 1

// SaveSnapshot persists a snapshot, unverified, replacing any earlier
// snapshot at the same sequence.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, data *SnapshotData) error {
	data.CreatedAt = time.Now().UTC()
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET
			snapshot_id = EXCLUDED.snapshot_id,
			data = EXCLUDED.data,
			state_hash = EXCLUDED.state_hash,
			format_version = EXCLUDED.format_version,
			size_bytes = EXCLUDED.size_bytes,
			verified = FALSE,
			created_at = EXCLUDED.created_at`,
		uuid.New().String(), data.Sequence, body, data.StateHash,
		snapshotFormatVersion, len(body), data.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot at sequence %d: %w", data.Sequence, err)
	}
	return nil
}

// LoadLatestSnapshot returns the newest verified snapshot, or nil when
// none exists.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	var (
		body    []byte
		version int
	)
	err := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version
		FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1`,
	).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != snapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format version %d, supported %d", version, snapshotFormatVersion)
	}

	var data SnapshotData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &data, nil
}

// VerifyPending marks snapshots verified once the event log holds a
// matching row, and returns how many flipped.
func (sm *SnapshotManager) VerifyPending(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots s
		SET verified = TRUE
		FROM event_log.events e
		WHERE NOT s.verified
		  AND e.sequence = s.sequence
		  AND e.state_hash = s.state_hash`,
	)
	if err != nil {
		return 0, fmt.Errorf("verify snapshots: %w", err)
	}
	return res.RowsAffected()
}

// LoadEventsFrom returns up to limit persisted events starting at
// fromSequence, in order.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, actor, payload, state_hash, prev_hash, ledger_timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence
		LIMIT $2`,
		fromSequence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load events from %d: %w", fromSequence, err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Actor, &e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
