package service

import (
	"context"
	"sync"
	"time"

	"minutes-orchestrator/internal/api/dto"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/stepclient"

	"golang.org/x/sync/errgroup"
)

const ServiceName = "orchestrator"

type WorkflowService interface {
	SubmitWorkflow(ctx context.Context, req dto.CreateWorkflowRequest) (*domain.WorkflowInstance, error)
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowInstance, error)
	ListWorkflows(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error)
	EventsSince(seq int64) []domain.WorkflowEvent
	Health(ctx context.Context) dto.HealthResponse
}

// Engine is the admission side of the coordinator.
type Engine interface {
	Submit(ctx context.Context, input domain.WorkflowInput) (*domain.WorkflowInstance, error)
	Get(ctx context.Context, id string) (*domain.WorkflowInstance, error)
	List(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error)
	QueueDepth() int
}

type Pinger interface {
	Ping(ctx context.Context, s stepclient.Service) error
}

type EventSource interface {
	Since(seq int64) []domain.WorkflowEvent
}

// The Implementation
type workflowService struct {
	engine        Engine
	pinger        Pinger
	events        EventSource
	healthTimeout time.Duration
}

// Constructor
func NewWorkflowService(engine Engine, pinger Pinger, events EventSource, healthTimeout time.Duration) WorkflowService {
	return &workflowService{
		engine:        engine,
		pinger:        pinger,
		events:        events,
		healthTimeout: healthTimeout,
	}
}

func (s *workflowService) SubmitWorkflow(ctx context.Context, req dto.CreateWorkflowRequest) (*domain.WorkflowInstance, error) {
	return s.engine.Submit(ctx, req.ToInput())
}

func (s *workflowService) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	return s.engine.Get(ctx, id)
}

func (s *workflowService) ListWorkflows(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error) {
	return s.engine.List(ctx, filter)
}

func (s *workflowService) EventsSince(seq int64) []domain.WorkflowEvent {
	return s.events.Since(seq)
}

// Health checks every collaborator concurrently. A failed check is reported,
// never returned as an error.
func (s *workflowService) Health(ctx context.Context) dto.HealthResponse {
	var mu sync.Mutex
	deps := make(map[string]dto.DependencyHealth, len(stepclient.Services))

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range stepclient.Services {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.healthTimeout)
			defer cancel()

			h := dto.DependencyHealth{OK: true}
			if err := s.pinger.Ping(pctx, svc); err != nil {
				h = dto.DependencyHealth{OK: false, Error: err.Error()}
			}
			mu.Lock()
			deps[string(svc)] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return dto.HealthResponse{
		Status:       "healthy",
		Service:      ServiceName,
		QueueDepth:   s.engine.QueueDepth(),
		Dependencies: deps,
	}
}
