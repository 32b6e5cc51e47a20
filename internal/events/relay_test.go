package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"shiftwork/shift-service/internal/store"
)

type fakeSource struct {
	events []store.OutboxEvent
	offset int64
}

func (f *fakeSource) ListAllOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	var page []store.OutboxEvent
	for _, event := range f.events {
		if event.Seq > afterSeq {
			page = append(page, event)
		}
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeSource) GetRelayOffset(ctx context.Context, relay string) (int64, error) {
	return f.offset, nil
}

func (f *fakeSource) SetRelayOffset(ctx context.Context, relay string, last int64) error {
	f.offset = last
	return nil
}

type fakeJetStream struct {
	nats.JetStreamContext
	published []*nats.Msg
	failAfter int
}

func (f *fakeJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.failAfter > 0 && len(f.published) >= f.failAfter {
		return nil, errors.New("publish failed")
	}
	f.published = append(f.published, msg)
	return &nats.PubAck{}, nil
}

func outboxEvent(seq int64, id, eventType string, at time.Time) store.OutboxEvent {
	return store.OutboxEvent{
		Seq:       seq,
		EventID:   id,
		TenantID:  "t-1",
		Type:      eventType,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: at,
	}
}

func TestRelayOncePublishesAndAdvancesOffset(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []store.OutboxEvent{
		outboxEvent(1, "e-1", "assignment.claimed", base),
		outboxEvent(2, "e-2", "assignment.checked_in", base.Add(time.Second)),
	}}
	js := &fakeJetStream{}
	relay := NewRelay(source, js, RelayOptions{})

	n, err := relay.RelayOnce(context.Background())
	if err != nil {
		t.Fatalf("relay once: %v", err)
	}
	if n != 2 {
		t.Fatalf("published = %d, want 2", n)
	}
	if got := js.published[0].Subject; got != "shiftwork.events.assignment.claimed" {
		t.Fatalf("subject = %q", got)
	}
	if got := js.published[0].Header.Get(nats.MsgIdHdr); got != "e-1" {
		t.Fatalf("msg id = %q, want outbox event id", got)
	}
	if source.offset != 2 {
		t.Fatalf("offset = %d, want last event seq", source.offset)
	}

	// nothing new: second pass is a no-op
	n, err = relay.RelayOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second pass published=%d err=%v, want 0 nil", n, err)
	}
}

func TestRelayOnceSavesProgressOnFailure(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []store.OutboxEvent{
		outboxEvent(1, "e-1", "assignment.claimed", base),
		outboxEvent(2, "e-2", "assignment.cancelled", base.Add(time.Second)),
	}}
	js := &fakeJetStream{failAfter: 1}
	relay := NewRelay(source, js, RelayOptions{})

	n, err := relay.RelayOnce(context.Background())
	if err == nil {
		t.Fatal("expected publish error")
	}
	if n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}
	if source.offset != 1 {
		t.Fatalf("offset = %d, want seq of last published event", source.offset)
	}

	// retry resumes after the saved offset and re-publishes only e-2
	js.failAfter = 0
	n, err = relay.RelayOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("retry published=%d err=%v, want 1 nil", n, err)
	}
	if got := js.published[len(js.published)-1].Header.Get(nats.MsgIdHdr); got != "e-2" {
		t.Fatalf("retried msg id = %q, want e-2", got)
	}
}

// Events written in one transaction share created_at. A publish failure
// between two such siblings must not lose the second one on retry.
func TestRelayRetryKeepsEventsSharingTimestamp(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []store.OutboxEvent{
		outboxEvent(1, "e-1", "settlement.posted", at),
		outboxEvent(2, "e-2", "assignment.completed", at),
	}}
	js := &fakeJetStream{failAfter: 1}
	relay := NewRelay(source, js, RelayOptions{})

	if _, err := relay.RelayOnce(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}

	js.failAfter = 0
	n, err := relay.RelayOnce(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n != 1 {
		t.Fatalf("retry published = %d, want the unpublished sibling", n)
	}
	if got := js.published[len(js.published)-1].Header.Get(nats.MsgIdHdr); got != "e-2" {
		t.Fatalf("retried msg id = %q, want e-2", got)
	}
	if source.offset != 2 {
		t.Fatalf("offset = %d, want 2", source.offset)
	}
}
