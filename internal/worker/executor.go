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
	"minutes-orchestrator/internal/stepclient"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 3 * time.Second
)

// StepOutput is implemented by every step client result; the returned map
// becomes the StepResult details.
type StepOutput interface {
	StepDetails() map[string]any
}

// RetryPolicy bounds the attempts made for one step.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
	// FailFastClientErrors stops retrying when a collaborator answers 4xx.
	FailFastClientErrors bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Backoff: DefaultRetryBackoff}
}

// Executor wraps one step client call with retry, backoff and outcome
// recording into the owning workflow instance.
type Executor struct {
	store   ports.WorkflowStore
	events  ports.EventBus
	metrics *metrics.Metrics
	logger  *logging.Logger
	policy  RetryPolicy
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewExecutor(store ports.WorkflowStore, events ports.EventBus, m *metrics.Metrics, logger *logging.Logger, policy RetryPolicy) *Executor {
	return &Executor{
		store:   store,
		events:  events,
		metrics: m,
		logger:  logger,
		policy:  policy,
		tracer:  otel.Tracer("minutes-orchestrator/worker"),
		sleep:   sleepContext,
	}
}

// RunStep executes call for the named step of workflowID. Only the final
// outcome is appended to the instance; intermediate failures are logged and
// counted but not recorded.
func RunStep[T StepOutput](ctx context.Context, x *Executor, workflowID string, step domain.StepName, call func(context.Context) (T, error)) (T, error) {
	var zero T
	started := time.Now().UTC()
	maxAttempts := max(1+x.policy.MaxRetries, 1)

	ctx, span := x.tracer.Start(ctx, "step "+string(step), trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("workflow.step", string(step)),
	))
	defer span.End()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		out, err := call(ctx)
		x.metrics.StepAttempt(string(step), err)
		if err == nil {
			result := domain.NewStepSuccess(step, started, attempt, out.StepDetails())
			if recErr := x.record(ctx, workflowID, result); recErr != nil {
				span.RecordError(recErr)
				span.SetStatus(codes.Error, recErr.Error())
				return zero, recErr
			}
			span.SetAttributes(attribute.Int("workflow.step.attempts", attempt))
			return out, nil
		}

		lastErr = err
		x.logger.Warn("step attempt failed",
			"workflow_id", workflowID,
			"step", step,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt >= maxAttempts || !x.retryable(err) {
			break
		}
		if sleepErr := x.sleep(ctx, x.policy.Backoff*time.Duration(attempt)); sleepErr != nil {
			lastErr = fmt.Errorf("%w (retry interrupted: %v)", err, sleepErr)
			break
		}
	}

	result := domain.NewStepFailure(step, started, attempt, lastErr)
	span.SetAttributes(attribute.Int("workflow.step.attempts", attempt))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	if recErr := x.record(ctx, workflowID, result); recErr != nil {
		return zero, errors.Join(lastErr, recErr)
	}
	return zero, lastErr
}

func (x *Executor) retryable(err error) bool {
	if !x.policy.FailFastClientErrors {
		return true
	}
	var callErr *stepclient.CallError
	if errors.As(err, &callErr) && callErr.ClientError() {
		return false
	}
	return true
}

func (x *Executor) record(ctx context.Context, workflowID string, result domain.StepResult) error {
	x.metrics.StepFinished(string(result.Step), result.Success, result.EndedAt.Sub(result.StartedAt))
	// The step outcome must be stored even when ctx was cancelled mid-call.
	storeCtx := context.WithoutCancel(ctx)
	if err := x.store.AppendStep(storeCtx, workflowID, result); err != nil {
		return fmt.Errorf("failed to record step %s: %w", result.Step, err)
	}
	if err := x.events.Publish(storeCtx, domain.NewStepEvent(workflowID, result)); err != nil {
		x.logger.Warn("failed to publish step event", "workflow_id", workflowID, "step", result.Step, "error", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
