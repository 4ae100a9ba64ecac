package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SynthLedger/internal/core"
	"SynthLedger/internal/observability"
)

const (
	StreamName   = "SYNTH_ORACLE"
	Subject      = "synth.oracle.resolved.>"
	ConsumerName = "ledger-oracle-prices"
)

// Subscriber consumes resolved oracle prices from NATS JetStream and
// delivers them to the engine. Explicit ACK: a price is acknowledged
// only after the engine has recorded it, so a crash between receive
// and apply redelivers.
type Subscriber struct {
	js        jetstream.JetStream
	engine    *core.Engine
	metrics   *observability.Metrics
	logger    zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, engine *core.Engine, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		js:      js,
		engine:  engine,
		metrics: metrics,
		logger:  observability.NewLogger("ingestion"),
	}
}

// EnsureStream creates the oracle stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"synth.oracle.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Subscribe creates the durable consumer and starts delivery.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		res, err := ParsePriceResolution(msg.Data())
		if err != nil {
			// Malformed messages are terminal: redelivery cannot fix
			// them, so ACK and count.
			s.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed price")
			if s.metrics != nil {
				s.metrics.PriceParseError.Inc()
			}
			msg.Ack()
			return
		}

		if err := s.engine.PushPrice(res.Identifier, res.Timestamp, res.Price); err != nil {
			s.logger.Error().Err(err).Str("identifier", res.Identifier).Msg("price push failed")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ConsumerName, err)
	}

	s.consumers = append(s.consumers, cc)
	s.logger.Info().Str("subject", Subject).Str("consumer", ConsumerName).Msg("subscribed")
	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.logger.Info().Msg("oracle subscribers stopped")
}

// Connect establishes a NATS connection and returns a JetStream
// context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
