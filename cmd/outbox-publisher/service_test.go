package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/almarky/almarky-backend/internal/sheetlog"
	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/enums"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/outbox"
	"github.com/almarky/almarky-backend/pkg/outbox/payloads"
)

type fakeStore struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeStore) FetchUnpublished(limit int) ([]models.OutboxEvent, error) {
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeStore) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDLQ struct {
	moved []models.OutboxEvent
}

func (f *fakeDLQ) MoveToDLQ(event models.OutboxEvent, cause error) error {
	f.moved = append(f.moved, event)
	return nil
}

type fakePublisher struct {
	err      error
	messages []*gcppubsub.Message
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return fakeResult{err: f.err}
}

type fakeSheet struct {
	entries []sheetlog.Entry
	err     error
}

func (f *fakeSheet) Append(_ context.Context, entry sheetlog.Entry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testPublisherConfig() *config.Config {
	return &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
	}
}

func newTestService(t *testing.T, store *fakeStore, dlq *fakeDLQ, pub *fakePublisher, sheet sheetAppender) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    testPublisherConfig(),
		Logger:    logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:        okPinger{},
		PubSub:    okPinger{},
		Store:     store,
		DLQ:       dlq,
		Publisher: pub,
		Sheet:     sheet,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func orderCreatedRow(t *testing.T) (models.OutboxEvent, payloads.OrderCreatedEvent) {
	t.Helper()
	data := payloads.OrderCreatedEvent{
		OrderID:       uuid.New(),
		CustomerName:  "Ayesha Khan",
		CustomerPhone: "03001234567",
		City:          "Lahore",
		ItemCount:     2,
		TotalRupees:   5400,
		Summary:       "2x Breeze Fan = Rs. 5200\nDelivery: Rs. 200\nTotal: Rs. 5400",
		PlacedAt:      time.Now().UTC(),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   data.OrderID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, data
}

func TestProcessBatchPublishesAndMirrorsOrder(t *testing.T) {
	event, data := orderCreatedRow(t)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	sheet := &fakeSheet{}

	svc := newTestService(t, store, dlq, pub, sheet)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_type"] != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type attribute: %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != data.OrderID.String() {
		t.Fatalf("unexpected aggregate_id attribute: %q", msg.Attributes["aggregate_id"])
	}

	if len(sheet.entries) != 1 {
		t.Fatalf("expected 1 sheet entry, got %d", len(sheet.entries))
	}
	if sheet.entries[0].CustomerPhone != data.CustomerPhone {
		t.Fatalf("sheet entry phone = %q, want %q", sheet.entries[0].CustomerPhone, data.CustomerPhone)
	}

	if len(store.published) != 1 || store.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", store.published)
	}
	if len(dlq.moved) != 0 {
		t.Fatalf("expected no dlq entries, got %d", len(dlq.moved))
	}
}

func TestProcessBatchSheetFailureStillPublishes(t *testing.T) {
	event, _ := orderCreatedRow(t)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	sheet := &fakeSheet{err: errors.New("webhook down")}

	svc := newTestService(t, store, &fakeDLQ{}, pub, sheet)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(store.published) != 1 {
		t.Fatalf("expected event marked published despite sheet failure, got %v", store.published)
	}
	if len(store.failed) != 0 {
		t.Fatalf("expected no failures, got %v", store.failed)
	}
}

func TestProcessBatchMarksFailureForRetry(t *testing.T) {
	event, _ := orderCreatedRow(t)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}

	svc := newTestService(t, store, dlq, pub, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(store.failed) != 1 || store.failed[0] != event.ID {
		t.Fatalf("expected event marked failed, got %v", store.failed)
	}
	if len(store.published) != 0 {
		t.Fatalf("expected no publishes, got %v", store.published)
	}
	if len(dlq.moved) != 0 {
		t.Fatalf("expected no dlq entries before max attempts, got %d", len(dlq.moved))
	}
}

func TestProcessBatchMovesToDLQAfterMaxAttempts(t *testing.T) {
	event, _ := orderCreatedRow(t)
	event.AttemptCount = 2 // max attempts is 3 in the test config
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}

	svc := newTestService(t, store, dlq, pub, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.moved) != 1 || dlq.moved[0].ID != event.ID {
		t.Fatalf("expected event moved to dlq, got %v", dlq.moved)
	}
	if len(store.failed) != 0 {
		t.Fatalf("expected no retry mark after terminal failure, got %v", store.failed)
	}
}

func TestProcessBatchParksUndecodablePayload(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"not":"an envelope"}`),
	}
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}

	svc := newTestService(t, store, dlq, pub, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.moved) != 1 {
		t.Fatalf("expected undecodable event in dlq, got %d", len(dlq.moved))
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no publish for undecodable event, got %d", len(pub.messages))
	}
}
