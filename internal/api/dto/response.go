package dto

import (
	"time"

	"minutes-orchestrator/internal/domain"
)

type CreateWorkflowResponse struct {
	ID        string                `json:"id"`
	Status    domain.WorkflowStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

type ListWorkflowsResponse struct {
	Workflows []*domain.WorkflowInstance `json:"workflows"`
	Count     int                        `json:"count"`
}

type EventsResponse struct {
	Events []domain.WorkflowEvent `json:"events"`
	Count  int                    `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// DependencyHealth is the outcome of one collaborator health check.
type DependencyHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	QueueDepth   int                         `json:"queue_depth"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
}
