package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"learnhub/internal/domain/shared/events"
)

type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
	Headers     map[string]string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	headers := make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		headers[k] = v
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// RecordDomainEvents encodes and stores every event of the batch, stopping at the first failure.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, batch *events.Batch) error {
	if box == nil || batch == nil || batch.Len() == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range batch.Events() {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Publisher records events after the state change they describe has already been applied.
// Failures are logged so that a degraded outbox never fails a completed operation.
type Publisher struct {
	Box     Outbox
	Encoder EventEncoder
	Logger  *slog.Logger
}

func (p Publisher) Publish(ctx context.Context, batch *events.Batch) {
	if p.Box == nil {
		return
	}
	if err := RecordDomainEvents(ctx, p.Box, p.Encoder, batch); err != nil && p.Logger != nil {
		p.Logger.Warn("outbox record failed", "events", batch.Len(), "error", err)
	}
}
