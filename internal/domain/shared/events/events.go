package events

import "time"

// DomainEvent is anything the outbox can encode and publish.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// Batch collects events raised while handling one command.
type Batch struct {
	pending []DomainEvent
}

func (b *Batch) Add(event DomainEvent) {
	if event == nil {
		return
	}
	b.pending = append(b.pending, event)
}

func (b *Batch) Events() []DomainEvent {
	out := make([]DomainEvent, len(b.pending))
	copy(out, b.pending)
	return out
}

func (b *Batch) Len() int {
	return len(b.pending)
}
