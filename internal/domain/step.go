package domain

import (
	"maps"
	"time"
)

type StepName string

const (
	StepTranscription    StepName = "transcription"
	StepFormatTranscript StepName = "format_transcript"
	StepGenerateMinutes  StepName = "generate_meeting_minutes"
	StepCreateFolder     StepName = "create_output_folder"
	StepSaveTranscript   StepName = "save_transcript"
	StepSaveMinutesDocx  StepName = "save_meeting_minutes_docx"
	StepSaveMinutesHTML  StepName = "save_meeting_minutes_html"
	StepCopyVideo        StepName = "copy_video"
	StepWorkflowSummary  StepName = "create_workflow_summary"
)

// Pipeline is the fixed execution order. StepCopyVideo is skipped when the
// input does not ask for it.
var Pipeline = []StepName{
	StepTranscription,
	StepFormatTranscript,
	StepGenerateMinutes,
	StepCreateFolder,
	StepSaveTranscript,
	StepSaveMinutesDocx,
	StepSaveMinutesHTML,
	StepCopyVideo,
	StepWorkflowSummary,
}

// PipelineFor returns the steps that will run for the given input.
func PipelineFor(in WorkflowInput) []StepName {
	steps := make([]StepName, 0, len(Pipeline))
	for _, s := range Pipeline {
		if s == StepCopyVideo && !in.CopyVideo {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}

// StepResult is the final outcome of one step after any retries.
type StepResult struct {
	Step        StepName       `json:"step"`
	Success     bool           `json:"success"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	DurationSec float64        `json:"duration_sec"`
	Attempts    int            `json:"attempts"`
	Details     map[string]any `json:"details,omitempty"`
	Error       *string        `json:"error,omitempty"`
}

func NewStepSuccess(step StepName, started time.Time, attempts int, details map[string]any) StepResult {
	ended := time.Now().UTC()
	return StepResult{
		Step:        step,
		Success:     true,
		StartedAt:   started,
		EndedAt:     ended,
		DurationSec: ended.Sub(started).Seconds(),
		Attempts:    attempts,
		Details:     details,
	}
}

func NewStepFailure(step StepName, started time.Time, attempts int, err error) StepResult {
	ended := time.Now().UTC()
	msg := err.Error()
	return StepResult{
		Step:        step,
		Success:     false,
		StartedAt:   started,
		EndedAt:     ended,
		DurationSec: ended.Sub(started).Seconds(),
		Attempts:    attempts,
		Error:       &msg,
	}
}

func (s StepResult) Clone() StepResult {
	s.Details = maps.Clone(s.Details)
	s.Error = cloneString(s.Error)
	return s
}
