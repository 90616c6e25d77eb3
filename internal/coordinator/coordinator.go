package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/logging"
	"minutes-orchestrator/internal/metrics"
)

// Consumer drains the queue until its context is done.
type Consumer interface {
	Run(ctx context.Context)
}

// Coordinator owns admission: it validates submissions, creates instances and
// hands their ids to the single consumer.
type Coordinator struct {
	store    ports.WorkflowStore
	queue    ports.WorkflowQueue
	eventBus ports.EventBus
	consumer Consumer
	metrics  *metrics.Metrics
	logger   *logging.Logger

	// submitMu makes the capacity check and the push one step, so a full
	// queue never leaves an orphaned pending instance behind.
	submitMu  sync.Mutex
	startOnce sync.Once
	done      chan struct{}
}

func NewCoordinator(
	store ports.WorkflowStore,
	queue ports.WorkflowQueue,
	bus ports.EventBus,
	consumer Consumer,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		queue:    queue,
		eventBus: bus,
		consumer: consumer,
		metrics:  m,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Calling it again is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.logger.Info("coordinator started", "queue_capacity", c.queue.Cap())
		go func() {
			defer close(c.done)
			c.consumer.Run(ctx)
		}()
	})
}

// Wait blocks until the consumer started by Start has returned.
func (c *Coordinator) Wait() {
	<-c.done
}

// Submit validates input, creates a PENDING instance and enqueues it. It
// returns domain.ErrInvalidInput or ports.ErrQueueFull without creating
// anything.
func (c *Coordinator) Submit(ctx context.Context, input domain.WorkflowInput) (*domain.WorkflowInstance, error) {
	if err := input.Validate(); err != nil {
		c.metrics.WorkflowRejected("invalid_input")
		return nil, err
	}

	// A caller that already went away gets no instance.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if c.queue.Len() >= c.queue.Cap() {
		c.metrics.WorkflowRejected("queue_full")
		c.logger.Warn("rejecting workflow, queue is full", "queue_depth", c.queue.Len())
		return nil, ports.ErrQueueFull
	}

	wf, err := c.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	if err := c.eventBus.Publish(ctx, domain.NewStatusEvent(wf.ID, domain.WorkflowPending, "")); err != nil {
		c.logger.Warn("failed to publish workflow event", "workflow_id", wf.ID, "error", err)
	}

	if err := c.queue.Push(ctx, wf.ID); err != nil {
		// An instance must never stay pending without a queue entry.
		msg := fmt.Sprintf("failed to enqueue: %v", err)
		if failErr := c.store.Fail(context.WithoutCancel(ctx), wf.ID, msg); failErr != nil {
			c.logger.Error("failed to mark unqueued workflow failed", "workflow_id", wf.ID, "error", failErr)
		}
		if errors.Is(err, ports.ErrQueueFull) {
			c.metrics.WorkflowRejected("queue_full")
		}
		return nil, err
	}

	c.metrics.WorkflowSubmitted()
	c.metrics.SetQueueDepth(c.queue.Len())
	c.logger.Info("workflow queued", "workflow_id", wf.ID, "meeting_title", input.MeetingTitle)
	return wf, nil
}

// Get returns a snapshot of one instance.
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	return c.store.Get(ctx, id)
}

// List returns snapshots, newest first.
func (c *Coordinator) List(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error) {
	return c.store.List(ctx, filter)
}

// QueueDepth reports how many ids wait for the consumer.
func (c *Coordinator) QueueDepth() int {
	return c.queue.Len()
}
