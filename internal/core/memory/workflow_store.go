// Package memory holds the process-local WorkflowStore. State does not
// survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
)

type workflowStore struct {
	mu        sync.RWMutex
	instances map[string]*domain.WorkflowInstance
	// order records insertion so equal created_at values list newest first.
	order   map[string]uint64
	nextSeq uint64
}

// NewWorkflowStore creates an empty in-memory store.
func NewWorkflowStore() ports.WorkflowStore {
	return &workflowStore{
		instances: make(map[string]*domain.WorkflowInstance),
		order:     make(map[string]uint64),
	}
}

func (s *workflowStore) Create(ctx context.Context, input domain.WorkflowInput) (*domain.WorkflowInstance, error) {
	wf := domain.NewWorkflow(input)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[wf.ID] = wf
	s.nextSeq++
	s.order[wf.ID] = s.nextSeq
	return wf.Clone(), nil
}

func (s *workflowStore) Get(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.instances[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (s *workflowStore) List(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error) {
	type listed struct {
		wf  *domain.WorkflowInstance
		seq uint64
	}

	s.mu.RLock()
	rows := make([]listed, 0, len(s.instances))
	for id, wf := range s.instances {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		rows = append(rows, listed{wf: wf.Clone(), seq: s.order[id]})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].wf.CreatedAt.Equal(rows[j].wf.CreatedAt) {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].wf.CreatedAt.After(rows[j].wf.CreatedAt)
	})

	items := make([]*domain.WorkflowInstance, len(rows))
	for i, r := range rows {
		items[i] = r.wf
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *workflowStore) UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus) error {
	return s.mutate(id, func(wf *domain.WorkflowInstance) error {
		return transition(wf, status)
	})
}

func (s *workflowStore) AppendStep(ctx context.Context, id string, result domain.StepResult) error {
	return s.mutate(id, func(wf *domain.WorkflowInstance) error {
		if wf.Status != domain.WorkflowRunning {
			return fmt.Errorf("append step %s to %s workflow: %w", result.Step, wf.Status, domain.ErrInvalidTransition)
		}
		wf.Steps = append(wf.Steps, result.Clone())
		return nil
	})
}

func (s *workflowStore) Complete(ctx context.Context, id string, output *domain.WorkflowOutput) error {
	return s.mutate(id, func(wf *domain.WorkflowInstance) error {
		if err := transition(wf, domain.WorkflowCompleted); err != nil {
			return err
		}
		if output != nil {
			out := output.Clone()
			wf.Output = &out
		}
		return nil
	})
}

func (s *workflowStore) Fail(ctx context.Context, id string, message string) error {
	return s.mutate(id, func(wf *domain.WorkflowInstance) error {
		if err := transition(wf, domain.WorkflowFailed); err != nil {
			return err
		}
		wf.Error = &message
		return nil
	})
}

// mutate applies fn to a working copy and swaps it in only when fn succeeds,
// so readers never observe a half-applied update.
func (s *workflowStore) mutate(id string, fn func(wf *domain.WorkflowInstance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[id]
	if !ok {
		return domain.ErrWorkflowNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	s.instances[id] = next
	return nil
}

func transition(wf *domain.WorkflowInstance, to domain.WorkflowStatus) error {
	if !domain.CanTransition(wf.Status, to) {
		return fmt.Errorf("%s -> %s: %w", wf.Status, to, domain.ErrInvalidTransition)
	}
	wf.Status = to
	return nil
}
