package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EventLogWriter writes envelopes and journals to Postgres with
// multi-row INSERTs. ON CONFLICT DO NOTHING keys on the sequence and
// journal id, so replays after a crash are idempotent.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is a row in event_log.events.
type EventRow struct {
	Sequence  int64
	EventType string
	Actor     string
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
	Timestamp int64
}

// JournalRow is a row in event_log.journal. Amount is the raw 1e18
// integer rendered as a decimal string for the NUMERIC column.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        string
	JournalType   string
	Timestamp     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteEventBatch inserts a batch of envelopes inside the given tx.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, actor, payload, state_hash, prev_hash, ledger_timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.EventType, e.Actor, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts a batch of journal entries inside the
// given tx.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, ledger_timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// Flush writes events and journals in one transaction.
func (w *EventLogWriter) Flush(ctx context.Context, events []EventRow, journals []JournalRow) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := w.WriteEventBatch(ctx, tx, events); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if err := w.WriteJournalBatch(ctx, tx, journals); err != nil {
		return fmt.Errorf("write journals: %w", err)
	}
	return tx.Commit()
}
