package listener

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
	"github.com/intersect-mbo/treasury-indexer/internal/applier"
	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metadata"
	"github.com/intersect-mbo/treasury-indexer/internal/metrics"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/tracker"
)

const (
	// SubjectBlocks carries one header message per block.
	SubjectBlocks = "chain.blocks"
	// SubjectMetadata carries one message per transaction with metadata.
	SubjectMetadata = "chain.metadata"

	defaultWorkers   = 10
	defaultQueueSize = 1000
)

// Config holds the configuration for the chain event listener
type Config struct {
	URL            string
	StreamName     string
	ConsumerName   string
	ConnectionName string
	MaxReconnects  int
	ReconnectWait  time.Duration
	AckWaitTimeout time.Duration
	MaxDeliver     int

	Workers   int
	QueueSize int
	// MaturityScanEvery triggers a milestone maturity scan after this many
	// block headers. Zero disables the scan.
	MaturityScanEvery int64
}

// Listener consumes chain events from JetStream and drives them through the
// pipeline: registry filter, decode, apply, watermark. Messages fan out to a
// bounded worker pool; one bad event never blocks the others, and there is no
// ordering guarantee across unrelated transactions.
type Listener struct {
	nc       adapter.NatsConn
	js       adapter.JetStream
	json     adapter.JSON
	decoder  *metadata.Decoder
	applier  *applier.TreasuryEventApplier
	registry *registry.AddressRegistry
	tracker  *tracker.SlotTracker
	config   Config

	pool        pond.Pool
	headersSeen atomic.Int64
}

// NewListener connects to NATS and creates a listener.
func NewListener(
	cfg Config,
	natsJS adapter.NatsJetStream,
	jsonAdapter adapter.JSON,
	decoder *metadata.Decoder,
	eventApplier *applier.TreasuryEventApplier,
	addressRegistry *registry.AddressRegistry,
	slotTracker *tracker.SlotTracker,
) (*Listener, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &Listener{
		nc:       nc,
		js:       js,
		json:     jsonAdapter,
		decoder:  decoder,
		applier:  eventApplier,
		registry: addressRegistry,
		tracker:  slotTracker,
		config:   cfg,
	}, nil
}

// Run starts consuming and blocks until the context is canceled.
func (l *Listener) Run(ctx context.Context) error {
	logger.Info("Starting chain event listener",
		zap.String("stream", l.config.StreamName),
		zap.String("consumer", l.config.ConsumerName))

	workers := l.config.Workers
	if workers == 0 {
		workers = defaultWorkers
	}
	queueSize := l.config.QueueSize
	if queueSize == 0 {
		queueSize = defaultQueueSize
	}
	l.pool = pond.NewPool(
		workers,
		pond.WithQueueSize(queueSize),
		pond.WithContext(ctx),
	)
	defer l.pool.StopAndWait()

	consumerConfig := jetstream.ConsumerConfig{
		Durable:        l.config.ConsumerName,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        l.config.AckWaitTimeout,
		MaxDeliver:     l.config.MaxDeliver,
		FilterSubjects: []string{SubjectBlocks, SubjectMetadata},
	}

	consumer, err := l.js.CreateOrUpdateConsumer(ctx, l.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.Info("Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	sub, err := consumer.Consume(func(msg adapter.Message) {
		l.pool.Submit(func() {
			l.handleMessage(ctx, msg)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.Info("Started consuming chain events")

	<-ctx.Done()
	logger.Info("Shutting down chain event listener")
	return ctx.Err()
}

// handleMessage routes one message by subject.
func (l *Listener) handleMessage(ctx context.Context, msg adapter.Message) {
	switch msg.Subject() {
	case SubjectBlocks:
		l.handleBlockHeader(ctx, msg)
	case SubjectMetadata:
		l.handleMetadata(ctx, msg)
	default:
		logger.Warn("message on unexpected subject", zap.String("subject", msg.Subject()))
		l.ack(msg)
	}
}

// handleBlockHeader advances the slot watermark and periodically triggers the
// maturity scan.
func (l *Listener) handleBlockHeader(ctx context.Context, msg adapter.Message) {
	var header domain.BlockHeaderEvent
	if err := l.json.Unmarshal(msg.Data(), &header); err != nil {
		logger.Error(err, zap.String("message", "Failed to unmarshal block header"))
		l.term(msg)
		return
	}

	l.tracker.UpdateCurrentSlot(int64(header.Slot))

	if every := l.config.MaturityScanEvery; every > 0 {
		if l.headersSeen.Add(1)%every == 0 {
			if _, err := l.tracker.CheckMaturity(ctx); err != nil {
				logger.Error(err, zap.String("message", "Maturity scan failed"))
			}
		}
	}

	l.ack(msg)
}

// handleMetadata runs one transaction through the pipeline.
func (l *Listener) handleMetadata(ctx context.Context, msg adapter.Message) {
	var event domain.MetadataEvent
	if err := l.json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error(err, zap.String("message", "Failed to unmarshal metadata event"))
		l.term(msg)
		return
	}

	if !event.HasTreasuryLabel() {
		l.ack(msg)
		return
	}

	labels := domain.LabelsFromRaw(event.Metadata)
	if !metadata.Relevant(labels) {
		l.ack(msg)
		return
	}

	// Transactions whose outputs touch no watched address are not ours.
	if len(event.Outputs) > 0 && !l.touchesWatched(event.Outputs) {
		logger.Debug("dropping event touching only untracked addresses",
			zap.String("tx_hash", event.TxHash))
		l.ack(msg)
		return
	}

	parsed, err := l.decoder.Decode(ctx, labels)
	if err != nil {
		metrics.DecodeFailures.Inc()
		logger.Error(err,
			zap.String("message", "Failed to decode treasury document"),
			zap.String("tx_hash", event.TxHash))
		// Nak so a transient anchor failure retries; MaxDeliver bounds
		// redelivery of permanently malformed documents.
		l.nak(msg)
		return
	}
	if parsed == nil {
		l.ack(msg)
		return
	}

	result, err := l.applier.Apply(ctx, &event, parsed)
	if err != nil {
		metrics.ApplyErrors.Inc()
		logger.Error(err,
			zap.String("message", "Failed to apply treasury event"),
			zap.String("tx_hash", event.TxHash),
			zap.String("event_type", string(parsed.Type)))
		l.nak(msg)
		return
	}

	l.tracker.MarkProcessed(int64(event.Slot))

	deliveryCount := uint64(0)
	if md, err := msg.Metadata(); err == nil {
		deliveryCount = md.NumDelivered
	}
	logger.Info("treasury event processed",
		zap.String("tx_hash", event.TxHash),
		zap.String("event_type", string(parsed.Type)),
		zap.Bool("duplicate", result.Duplicate),
		zap.Uint64("delivery_count", deliveryCount))

	l.ack(msg)
}

func (l *Listener) touchesWatched(outputs []domain.TxOutput) bool {
	for _, output := range outputs {
		if l.registry.IsTracked(output.Address) {
			return true
		}
		if output.ScriptHash != nil && l.registry.IsTrackedScript(*output.ScriptHash) {
			return true
		}
	}
	return false
}

func (l *Listener) ack(msg adapter.Message) {
	if err := msg.Ack(); err != nil {
		logger.Error(err, zap.String("message", "Failed to ACK message"))
	}
}

func (l *Listener) nak(msg adapter.Message) {
	if err := msg.Nak(); err != nil {
		logger.Error(err, zap.String("message", "Failed to NAK message"))
	}
}

func (l *Listener) term(msg adapter.Message) {
	if err := msg.Term(); err != nil {
		logger.Error(err, zap.String("message", "Failed to terminate message"))
	}
}

// Close closes the NATS connection.
func (l *Listener) Close() {
	if l.nc == nil {
		return
	}
	l.nc.Close()
}
