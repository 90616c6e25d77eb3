package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/logging"
	"minutes-orchestrator/internal/metrics"
)

// Worker is the single consumer: it pops workflow ids in FIFO order and runs
// them one at a time.
type Worker struct {
	queue    ports.WorkflowQueue
	store    ports.WorkflowStore
	events   ports.EventBus
	pipeline *Pipeline
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

func NewWorker(q ports.WorkflowQueue, store ports.WorkflowStore, bus ports.EventBus, pipeline *Pipeline, m *metrics.Metrics, logger *logging.Logger) *Worker {
	return &Worker{
		queue:    q,
		store:    store,
		events:   bus,
		pipeline: pipeline,
		metrics:  m,
		logger:   logger,
	}
}

// Run consumes the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		workflowID, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker shutting down")
				return
			}
			w.logger.Error("worker error popping from queue", "error", err)
			continue
		}
		w.metrics.SetQueueDepth(w.queue.Len())
		w.ProcessWorkflow(ctx, workflowID)
	}
}

// ProcessWorkflow handles exactly ONE workflow lifecycle. It never panics:
// any failure inside the run marks the instance FAILED.
func (w *Worker) ProcessWorkflow(ctx context.Context, workflowID string) {
	logger := w.logger.With("workflow_id", workflowID)
	// Terminal bookkeeping must land even when shutdown cancelled ctx.
	finalCtx := context.WithoutCancel(ctx)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("workflow run panicked", "panic", r)
			w.fail(finalCtx, logger, workflowID, fmt.Sprintf("internal error: %v", r), started)
		}
	}()

	wf, err := w.store.Get(ctx, workflowID)
	if err != nil {
		logger.Error("worker failed to load workflow", "error", err)
		if !errors.Is(err, domain.ErrWorkflowNotFound) {
			w.fail(finalCtx, logger, workflowID, "internal error: "+err.Error(), started)
		}
		return
	}
	if wf.Status != domain.WorkflowPending {
		logger.Warn("skipping workflow that is not pending", "status", wf.Status)
		return
	}

	if err := w.store.UpdateStatus(finalCtx, workflowID, domain.WorkflowRunning); err != nil {
		logger.Error("worker failed to mark workflow running", "error", err)
		w.fail(finalCtx, logger, workflowID, err.Error(), started)
		return
	}
	w.publish(finalCtx, logger, domain.NewStatusEvent(workflowID, domain.WorkflowRunning, ""))
	wf.Status = domain.WorkflowRunning
	logger.Info("workflow running", "video_path", wf.Input.VideoPath, "meeting_title", wf.Input.MeetingTitle)

	output, err := w.pipeline.Run(ctx, wf)
	if err != nil {
		w.fail(finalCtx, logger, workflowID, err.Error(), started)
		return
	}

	if err := w.store.Complete(finalCtx, workflowID, output); err != nil {
		logger.Error("worker failed to mark workflow completed", "error", err)
		w.fail(finalCtx, logger, workflowID, err.Error(), started)
		return
	}
	w.metrics.WorkflowFinished(string(domain.WorkflowCompleted), time.Since(started))
	w.publish(finalCtx, logger, domain.NewStatusEvent(workflowID, domain.WorkflowCompleted, ""))
	logger.Info("workflow completed", "output_folder", output.OutputFolder, "elapsed", time.Since(started))
}

func (w *Worker) fail(ctx context.Context, logger *logging.Logger, workflowID, message string, started time.Time) {
	if err := w.store.Fail(ctx, workflowID, message); err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			logger.Error("worker failed to mark workflow failed", "error", err)
		}
		return
	}
	w.metrics.WorkflowFinished(string(domain.WorkflowFailed), time.Since(started))
	w.publish(ctx, logger, domain.NewStatusEvent(workflowID, domain.WorkflowFailed, message))
	logger.Error("workflow failed", "error", message)
}

func (w *Worker) publish(ctx context.Context, logger *logging.Logger, event domain.WorkflowEvent) {
	if err := w.events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish workflow event", "type", event.Type, "error", err)
	}
}
