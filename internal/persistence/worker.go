package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"SynthLedger/internal/core"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
)

// Worker drains the engine's persist channel and batch-writes to
// Postgres. The channel uses blocking sends from the engine, so a slow
// worker applies backpressure instead of losing events.
type Worker struct {
	writer       *EventLogWriter
	input        <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	input <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout fires. Blocks until ctx is cancelled or the input
// channel closes.
func (w *Worker) Run(ctx context.Context) error {
	events := make([]EventRow, 0, w.batchSize)
	journals := make([]JournalRow, 0, w.batchSize*4)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(events) > 0 {
				if err := w.writer.Flush(context.Background(), events, journals); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-w.input:
			if !ok {
				if len(events) > 0 {
					if err := w.writer.Flush(context.Background(), events, journals); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			evt, rows := toRows(output)
			events = append(events, evt)
			journals = append(journals, rows...)

			if len(events) >= w.batchSize {
				w.flushWithRetry(ctx, events, journals)
				events = events[:0]
				journals = journals[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(events) > 0 {
				w.flushWithRetry(ctx, events, journals)
				events = events[:0]
				journals = journals[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or the context is cancelled. The worker never drops a batch;
// on shutdown it attempts one final flush with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, journals []JournalRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.writer.Flush(context.Background(), events, journals); err != nil {
					w.logger.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.writer.Flush(ctx, events, journals)
		if err == nil {
			if w.metrics != nil {
				w.metrics.PersistBatchSize.Observe(float64(len(events)))
				w.metrics.PersistEventsWritten.Add(float64(len(events)))
				w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
				w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
			}
			return
		}
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
		}
	}
}

// toRows flattens an engine output into storage rows.
func toRows(o core.Output) (EventRow, []JournalRow) {
	env := o.Envelope
	evt := EventRow{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		Actor:     env.Actor,
		Payload:   env.Payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		Timestamp: env.Timestamp,
	}

	var rows []JournalRow
	if o.Batch != nil {
		rows = make([]JournalRow, 0, len(o.Batch.Journals))
		for _, j := range o.Batch.Journals {
			rows = append(rows, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Asset:         ledger.AssetName(j.Asset),
				Amount:        j.Amount.RawString(),
				JournalType:   j.JournalType.String(),
				Timestamp:     j.Timestamp,
			})
		}
	}
	return evt, rows
}
