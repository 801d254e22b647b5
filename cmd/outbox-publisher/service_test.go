package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/db/models"
	"github.com/angelmondragon/smm-storefront/pkg/enums"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/metrics"
	"github.com/angelmondragon/smm-storefront/pkg/outbox"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/smm-storefront/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   "41",
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   "41",
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishResolvedSetsEventAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "77",
		Payload:       mustEnvelopePayload(t, "paid"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "smm-order-events"},
		Envelope:   outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: time.Now()},
		Payload:    &payloads.OrderPaidEvent{},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	var topics []string
	service.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(topics) != 1 || topics[0] != "smm-order-events" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	attrs := pub.sent[0].Attributes
	if attrs["event_type"] != "order_paid" || attrs["aggregate_id"] != "77" || attrs["event_id"] != event.ID.String() {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if attrs["order_id"] != "77" || attrs["requests_dispatch"] != "true" {
		t.Fatalf("expected order routing attributes, got %v", attrs)
	}
	if !bytes.Equal(pub.sent[0].Data, event.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
	expected := `
# HELP smm_outbox_published_total Outbox events delivered to Pub/Sub.
# TYPE smm_outbox_published_total counter
smm_outbox_published_total{event_type="order_paid"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "smm_outbox_published_total"); err != nil {
		t.Fatalf("published metric: %v", err)
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "42",
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	registry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, registry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "42",
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
	registry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, registry, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestBuildMessageMarksNonDispatchEvents(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "9",
	}
	msg := buildMessage(event, outbox.PayloadEnvelope{Version: 1, EventID: "evt-9"})
	if msg.Attributes["requests_dispatch"] != "false" {
		t.Fatalf("refunds must not request dispatch: %v", msg.Attributes)
	}
	if msg.Attributes["schema_version"] != "1" || msg.Attributes["event_id"] != "evt-9" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
}

func TestServiceProcessBatchDeadLettersUnknownTopic(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "5",
		Payload:       mustEnvelopePayload(t, "no-topic"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	resolved := &registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: "missing"}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: resolved}, dlqRepo, nil)
	service.publisherFactory = func(string) publisher { return nil }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 || dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlqRepo.entries)
	}
	if len(repo.published) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)
	got := []time.Duration{b.next(), b.next(), b.next()}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %s got %s", i, want[i], got[i])
		}
	}
	b.reset()
	if b.next() != 2*time.Second {
		t.Fatalf("expected reset to restart from base")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
