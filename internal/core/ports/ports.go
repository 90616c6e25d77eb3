package ports

import (
	"context"
	"errors"

	"minutes-orchestrator/internal/domain"
)

// ErrQueueFull is returned by a non-blocking push onto a saturated queue.
var ErrQueueFull = errors.New("workflow queue is full")

// WorkflowQueue represents the FIFO of workflow ids waiting for the consumer
type WorkflowQueue interface {
	// Push a workflow id without blocking; ErrQueueFull when at capacity
	Push(ctx context.Context, workflowID string) error

	// Wait (Block) until a workflow id is available
	Pop(ctx context.Context) (string, error)

	Len() int
	Cap() int
}

// EventBus represents the event bus operations
type EventBus interface {
	// Publish a lifecycle event. Delivery is best effort.
	Publish(ctx context.Context, event domain.WorkflowEvent) error
}

// WorkflowFilter narrows List results. A zero Status matches everything.
type WorkflowFilter struct {
	Limit  int
	Status domain.WorkflowStatus
}

// WorkflowStore owns the instance records. Reads return copies; mutations
// are made only by the consumer while the instance is running.
type WorkflowStore interface {
	// Create a new PENDING instance for the given input
	Create(ctx context.Context, input domain.WorkflowInput) (*domain.WorkflowInstance, error)

	// Get returns domain.ErrWorkflowNotFound for unknown ids
	Get(ctx context.Context, id string) (*domain.WorkflowInstance, error)

	// List newest first, truncated to filter.Limit
	List(ctx context.Context, filter WorkflowFilter) ([]*domain.WorkflowInstance, error)

	// UpdateStatus rejects transitions out of terminal states with domain.ErrInvalidTransition
	UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus) error

	// AppendStep records the final outcome of one step
	AppendStep(ctx context.Context, id string, result domain.StepResult) error

	// Complete writes the output mapping and marks the instance COMPLETED
	Complete(ctx context.Context, id string, output *domain.WorkflowOutput) error

	// Fail records the terminal error and marks the instance FAILED
	Fail(ctx context.Context, id string, message string) error
}
