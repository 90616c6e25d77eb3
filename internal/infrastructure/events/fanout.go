package events

import (
	"context"
	"errors"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
)

type fanout []ports.EventBus

// Fanout publishes every event to each bus in order. A failing bus does not
// stop delivery to the others.
func Fanout(buses ...ports.EventBus) ports.EventBus {
	return fanout(buses)
}

func (f fanout) Publish(ctx context.Context, event domain.WorkflowEvent) error {
	var errs []error
	for _, bus := range f {
		if err := bus.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
