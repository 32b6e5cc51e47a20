package events

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"shiftwork/shift-service/internal/store"
)

const relayName = "jetstream"

// OutboxSource is the slice of the store the relay consumes: seq-ordered
// outbox pages plus a durable offset. The cursor is the database-assigned
// seq, never created_at, so events committed in one transaction cannot be
// skipped at a batch boundary.
type OutboxSource interface {
	ListAllOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error)
	GetRelayOffset(ctx context.Context, relay string) (int64, error)
	SetRelayOffset(ctx context.Context, relay string, last int64) error
}

// Relay drains the transactional outbox into JetStream. Publishing reuses
// the outbox event_id as the message ID, so JetStream deduplication absorbs
// crashes between publish and offset save.
type Relay struct {
	source    OutboxSource
	js        nats.JetStreamContext
	stream    string
	subject   string
	batchSize int
	interval  time.Duration
}

type RelayOptions struct {
	Stream        string
	SubjectPrefix string
	BatchSize     int
	Interval      time.Duration
}

func NewRelay(source OutboxSource, js nats.JetStreamContext, options RelayOptions) *Relay {
	stream := options.Stream
	if stream == "" {
		stream = "SHIFTWORK"
	}
	prefix := options.SubjectPrefix
	if prefix == "" {
		prefix = "shiftwork.events"
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	interval := options.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		source:    source,
		js:        js,
		stream:    stream,
		subject:   prefix,
		batchSize: batchSize,
		interval:  interval,
	}
}

// EnsureStream creates the target stream when it does not exist yet.
func (r *Relay) EnsureStream() error {
	_, err := r.js.StreamInfo(r.stream)
	if err == nil {
		return nil
	}
	_, err = r.js.AddStream(&nats.StreamConfig{
		Name:       r.stream,
		Subjects:   []string{r.subject + ".>"},
		Duplicates: 2 * time.Minute,
	})
	return err
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RelayOnce(ctx); err != nil {
				log.Printf("relay error: %v", err)
			} else if n > 0 {
				log.Printf("relay published %d events", n)
			}
		}
	}
}

// RelayOnce publishes one batch and advances the offset. Returns the number
// of events published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	offset, err := r.source.GetRelayOffset(ctx, relayName)
	if err != nil {
		return 0, err
	}
	events, err := r.source.ListAllOutboxEvents(ctx, offset, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	last := offset
	for _, event := range events {
		msg := nats.NewMsg(r.subject + "." + event.Type)
		msg.Data = event.Payload
		msg.Header.Set(nats.MsgIdHdr, event.EventID)
		if event.TenantID != "" {
			msg.Header.Set("Shiftwork-Tenant", event.TenantID)
		}
		if _, err := r.js.PublishMsg(msg); err != nil {
			// save progress up to the last published event
			if saveErr := r.source.SetRelayOffset(ctx, relayName, last); saveErr != nil {
				log.Printf("relay offset save error: %v", saveErr)
			}
			return published, err
		}
		published++
		last = event.Seq
	}
	if err := r.source.SetRelayOffset(ctx, relayName, last); err != nil {
		return published, err
	}
	return published, nil
}
