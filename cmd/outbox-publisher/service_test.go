package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	out := &fakeSink{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, out, &fakeRegistry{resolved: orderResolved()}, nil)

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

func TestPublishResolvedCarriesAggregateKeyAndAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "status"),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	out := &fakeSink{}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, out, &fakeRegistry{resolved: orderResolved()}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, out.sent, 1)

	msg := out.sent[0]
	require.Equal(t, event.AggregateID.String(), msg.Key)
	require.JSONEq(t, string(event.Payload), string(msg.Data))
	require.Equal(t, string(enums.EventOrderStatusChanged), msg.Attributes["event_type"])
	require.Equal(t, string(enums.AggregateOrder), msg.Attributes["aggregate_type"])
	require.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	require.Equal(t, "2026-03-01T12:00:00Z", msg.Attributes["created_at"])
}

func TestServiceProcessBatchParksNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	out := &fakeSink{}
	service := newTestService(t, repo, out, reg, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(out.sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(out.sent))
	}
	if got := len(repo.terminal); got != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row parked, got %v", repo.terminal)
	}
	if repo.terminalAttempts != service.maxAttempts {
		t.Fatalf("expected terminal attempts %d, got %d", service.maxAttempts, repo.terminalAttempts)
	}
}

func TestServiceProcessBatchParksOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	out := &fakeSink{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, out, &fakeRegistry{resolved: orderResolved()}, &config.OutboxConfig{
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
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retryable failure, got %d", len(repo.failed))
	}
	if got := len(repo.terminal); got != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row parked, got %v", repo.terminal)
	}
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeSink{}, &fakeRegistry{resolved: orderResolved()}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestServiceDrainsStoredEvents(t *testing.T) {
	client, conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
	repo := outbox.NewRepository(conn)
	emitter := outbox.NewService(repo, logg)

	orderID := uuid.New()
	variantID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := emitter.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderCreatedEvent{
				OrderID:       orderID,
				UserID:        uuid.New(),
				PaymentMethod: enums.PaymentMethodCash,
				Status:        enums.OrderStatusReserved,
				Total:         "60.00",
			},
		}); err != nil {
			return err
		}
		return emitter.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventVariantStatusChanged,
			AggregateType: enums.AggregateProductVariant,
			AggregateID:   variantID,
			Data: payloads.VariantStatusChangedEvent{
				VariantID: variantID,
				From:      enums.VariantStatusAvailable,
				To:        enums.VariantStatusOutOfStock,
			},
		})
	})
	require.NoError(t, err)

	out := &fakeSink{}
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: 3}},
		Logger:     logg,
		DB:         client,
		Sink:       out,
		Repository: repo,
		Registry:   registry.NewEventRegistry(),
	})
	require.NoError(t, err)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, out.sent, 2)
	keys := []string{out.sent[0].Key, out.sent[1].Key}
	require.ElementsMatch(t, []string{orderID.String(), variantID.String()}, keys)

	pending, err := repo.CountPending(3)
	require.NoError(t, err)
	require.Zero(t, pending)

	processed, err = service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestNewServiceRequiresSink(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	require.EqualError(t, err, "outbox sink is required")
}

func TestBackoffDoublesToCapAndResets(t *testing.T) {
	base := 500 * time.Millisecond
	b := newBackoff(base, 2*time.Second)

	first := b.next()
	require.GreaterOrEqual(t, first, time.Second)
	require.Less(t, first, time.Second+jitterWindow)

	b.next()
	b.next()
	require.Equal(t, 2*time.Second, b.current)

	b.reset()
	require.Equal(t, base, b.current)
}

func TestServiceRecordsOutcomeMetrics(t *testing.T) {
	events := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
	}
	reg := prometheus.NewRegistry()
	service := newTestService(t, &fakeRepo{events: events}, &fakeSink{errs: []error{errors.New("broker down")}}, &fakeRegistry{resolved: orderResolved()}, nil)
	service.metrics = metrics.NewOutboxMetrics(reg)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)

	expected := `
# HELP threadline_outbox_events_total Outbox rows handled by the publisher, by event type and outcome.
# TYPE threadline_outbox_events_total counter
threadline_outbox_events_total{event_type="order.created",outcome="published"} 1
threadline_outbox_events_total{event_type="order.created",outcome="retried"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "threadline_outbox_events_total"))
}

func TestRunStopsWhenSinkUnreachable(t *testing.T) {
	out := &fakeSink{pingErr: errors.New("no route")}
	service := newTestService(t, &fakeRepo{}, out, &fakeRegistry{}, nil)
	require.ErrorContains(t, service.Run(context.Background()), "fake ping failed")
}

func newTestService(t *testing.T, repo outboxRepository, out sink, reg registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logg,
		DB:         &fakeDB{},
		Sink:       out,
		Repository: repo,
		Registry:   reg,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{AggregateType: enums.AggregateOrder},
		Envelope:   outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:    &payloads.OrderCreatedEvent{},
	}
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
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
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

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeSink struct {
	errs    []error
	sent    []message
	pingErr error
}

func (f *fakeSink) Name() string               { return "fake" }
func (f *fakeSink) Destination() string        { return "fake-topic" }
func (f *fakeSink) Ping(context.Context) error { return f.pingErr }
func (f *fakeSink) Close() error               { return nil }

func (f *fakeSink) Publish(_ context.Context, msg message) error {
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return err
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
