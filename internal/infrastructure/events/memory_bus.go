// Package events keeps a bounded, in-process history of workflow events.
package events

import (
	"context"
	"sync"
	"time"

	"minutes-orchestrator/internal/domain"
)

// MemoryBus stores recent events and provides incremental reads.
type MemoryBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []domain.WorkflowEvent
}

// NewMemoryBus creates a bounded in-memory event buffer.
func NewMemoryBus(maxEvents int) *MemoryBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &MemoryBus{
		maxEvents: maxEvents,
		events:    make([]domain.WorkflowEvent, 0, maxEvents),
	}
}

// Publish appends one event and assigns its sequence number.
func (b *MemoryBus) Publish(ctx context.Context, event domain.WorkflowEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]domain.WorkflowEvent(nil), b.events[trim:]...)
	}
	return nil
}

// Since returns events with sequence strictly greater than seq.
func (b *MemoryBus) Since(seq int64) []domain.WorkflowEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.WorkflowEvent, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
