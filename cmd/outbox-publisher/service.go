package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service relays committed order events from outbox_events to Pub/Sub.
// Rows are locked per batch, so several publishers can run side by side.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. Empty polls sleep for the poll
// interval; failing batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	delay := newBackoff(s.pollInterval, maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = delay.next()
		case processed:
			delay.reset()
			continue
		default:
			delay.reset()
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// pending is one row whose publish is in flight.
type pending struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

type batchStats struct {
	published    int
	retried      int
	deadLettered int
}

// processBatch locks a batch, enqueues every message first so the Pub/Sub
// client can batch them, then waits for each result and records the row
// outcome. Rows are updated in the same transaction that locked them.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		var stats batchStats
		inflight := make([]pending, 0, len(events))
		publishers := map[string]publisher{}
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, nil, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				stats.deadLettered++
				continue
			}
			inflight = append(inflight, s.enqueue(publishCtx, publishers, event, resolved))
		}

		for _, p := range inflight {
			outcome, err := s.settle(ctx, publishCtx, tx, p)
			if err != nil {
				return err
			}
			switch outcome {
			case outcomePublished:
				stats.published++
			case outcomeRetry:
				stats.retried++
			case outcomeDeadLettered:
				stats.deadLettered++
			}
		}

		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"batch_size":    len(events),
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch processed")
		return nil
	})
	return processed, err
}

func (s *Service) enqueue(ctx context.Context, publishers map[string]publisher, event models.OutboxEvent, resolved *registry.ResolvedEvent) pending {
	topic := resolved.Descriptor.Topic
	pub, ok := publishers[topic]
	if !ok {
		pub = s.publisherFactory(topic)
		publishers[topic] = pub
	}
	p := pending{event: event, resolved: resolved}
	if pub == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return p
	}
	p.result = pub.Publish(ctx, buildMessage(event, resolved.Envelope))
	if p.result == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return p
}

// buildMessage carries the stored envelope verbatim. Attributes let
// subscriptions filter without decoding: the dispatch subscription only
// needs requests_dispatch = "true".
func buildMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":          envelope.EventID,
		"event_type":        string(event.EventType),
		"aggregate_type":    string(event.AggregateType),
		"aggregate_id":      event.AggregateID,
		"created_at":        event.CreatedAt.Format(time.RFC3339Nano),
		"schema_version":    strconv.Itoa(envelope.Version),
		"requests_dispatch": strconv.FormatBool(event.EventType.RequestsDispatch()),
	}
	if event.AggregateType == enums.AggregateOrder {
		attrs["order_id"] = event.AggregateID
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, p pending) (outcome, error) {
	err := p.err
	if err == nil {
		_, err = p.result.Get(publishCtx)
	}
	event := p.event
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return 0, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, s.eventFields(event, p.resolved)), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, p.resolved, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		terminal := fmt.Errorf("max publish attempts reached: %w", err)
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, p.resolved, enums.OutboxDLQReasonMaxAttempts, terminal)
	}

	fields := s.eventFields(event, p.resolved)
	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	s.metrics.IncFailed(string(event.EventType))
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return 0, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and stops retrying it.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, reason enums.OutboxDLQErrorReason, err error) error {
	fields := s.eventFields(event, resolved)
	fields["error_reason"] = reason
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))

	msg := err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if dlqErr := s.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

type backoff struct {
	base, max, current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, current: base}
}

func (b *backoff) next() time.Duration {
	b.current = min(b.current*2, b.max)
	return b.current
}

func (b *backoff) reset() { b.current = b.base }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{pub: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}
