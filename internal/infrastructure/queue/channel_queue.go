package queue

import (
	"context"

	"minutes-orchestrator/internal/core/ports"
)

// ChannelQueue is a bounded in-process FIFO of workflow ids.
type ChannelQueue struct {
	ids chan string
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1
	}
	return &ChannelQueue{ids: make(chan string, size)}
}

// Push adds a workflow id to the back of the queue without blocking. It
// never waits, so ctx is not consulted.
func (q *ChannelQueue) Push(ctx context.Context, workflowID string) error {
	select {
	case q.ids <- workflowID:
		return nil
	default:
		return ports.ErrQueueFull
	}
}

// Pop waits for a workflow id and removes it from the front of the queue
func (q *ChannelQueue) Pop(ctx context.Context) (string, error) {
	select {
	case id := <-q.ids:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *ChannelQueue) Len() int { return len(q.ids) }

func (q *ChannelQueue) Cap() int { return cap(q.ids) }
