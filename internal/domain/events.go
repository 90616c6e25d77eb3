package domain

import (
	"time"
)

type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeStep   EventType = "step"
)

// WorkflowEvent is published on every status change and every recorded step.
type WorkflowEvent struct {
	Seq        int64          `json:"seq"`
	WorkflowID string         `json:"workflow_id"`
	Type       EventType      `json:"type"`
	Status     WorkflowStatus `json:"status,omitempty"`
	Step       StepName       `json:"step,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func NewStatusEvent(workflowID string, status WorkflowStatus, errMsg string) WorkflowEvent {
	return WorkflowEvent{
		WorkflowID: workflowID,
		Type:       EventTypeStatus,
		Status:     status,
		Error:      errMsg,
		Timestamp:  time.Now().UTC(),
	}
}

func NewStepEvent(workflowID string, result StepResult) WorkflowEvent {
	success := result.Success
	ev := WorkflowEvent{
		WorkflowID: workflowID,
		Type:       EventTypeStep,
		Step:       result.Step,
		Success:    &success,
		Timestamp:  time.Now().UTC(),
	}
	if result.Error != nil {
		ev.Error = *result.Error
	}
	return ev
}
