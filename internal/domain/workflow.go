package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

var (
	ErrInvalidInput      = errors.New("invalid workflow input")
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseStatus accepts the lowercase wire form of a status.
func ParseStatus(s string) (WorkflowStatus, bool) {
	switch st := WorkflowStatus(s); st {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// CanTransition enforces PENDING -> RUNNING -> {COMPLETED | FAILED}.
// A pending instance may also fail directly when its run could not start.
func CanTransition(from, to WorkflowStatus) bool {
	switch from {
	case WorkflowPending:
		return to == WorkflowRunning || to == WorkflowFailed
	case WorkflowRunning:
		return to == WorkflowCompleted || to == WorkflowFailed
	default:
		return false
	}
}

// WorkflowInput is the submitted request payload.
type WorkflowInput struct {
	VideoPath    string  `json:"video_path"`
	MeetingTitle string  `json:"meeting_title"`
	MeetingDate  *string `json:"meeting_date"`
	Language     *string `json:"language"`
	CopyVideo    bool    `json:"copy_video"`
}

func (in WorkflowInput) Validate() error {
	if in.VideoPath == "" {
		return errors.Join(ErrInvalidInput, errors.New("video_path is required"))
	}
	if in.MeetingTitle == "" {
		return errors.Join(ErrInvalidInput, errors.New("meeting_title is required"))
	}
	return nil
}

// WorkflowOutput maps produced artifacts to their paths. File fields stay
// nil when the step producing them did not run.
type WorkflowOutput struct {
	OutputFolder       string  `json:"output_folder"`
	Transcript         *string `json:"transcript"`
	MeetingMinutesDocx *string `json:"meeting_minutes_docx"`
	MeetingMinutesHTML *string `json:"meeting_minutes_html"`
	OriginalVideo      *string `json:"original_video"`
	WorkflowSummary    *string `json:"workflow_summary"`
}

type WorkflowInstance struct {
	ID        string          `json:"id"`
	Status    WorkflowStatus  `json:"status"`
	Input     WorkflowInput   `json:"input"`
	Steps     []StepResult    `json:"steps"`
	Output    *WorkflowOutput `json:"output"`
	Error     *string         `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// --- FACTORY ---
func NewWorkflow(input WorkflowInput) *WorkflowInstance {
	now := time.Now().UTC()
	return &WorkflowInstance{
		ID:        uuid.New().String(),
		Status:    WorkflowPending,
		Input:     input,
		Steps:     []StepResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- METHODS ---
func (w *WorkflowInstance) IsFinished() bool {
	return w.Status.IsTerminal()
}

// Clone returns a deep copy safe to hand to readers outside the store lock.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	c := *w
	c.Input = w.Input.clone()
	c.Steps = make([]StepResult, len(w.Steps))
	for i, s := range w.Steps {
		c.Steps[i] = s.Clone()
	}
	if w.Output != nil {
		out := w.Output.Clone()
		c.Output = &out
	}
	c.Error = cloneString(w.Error)
	return &c
}

// StepsSoFar returns the names of the recorded steps in execution order.
func (w *WorkflowInstance) StepsSoFar() []StepName {
	names := make([]StepName, len(w.Steps))
	for i, s := range w.Steps {
		names[i] = s.Step
	}
	return names
}

// FindStep returns the recorded result for name, if any.
func (w *WorkflowInstance) FindStep(name StepName) (StepResult, bool) {
	for _, s := range w.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// BuildOutput assembles the artifact mapping from the file_path details of
// the file-producing steps.
func (w *WorkflowInstance) BuildOutput(outputFolder string) *WorkflowOutput {
	filePath := func(name StepName) *string {
		s, ok := w.FindStep(name)
		if !ok || !s.Success {
			return nil
		}
		p, ok := s.Details["file_path"].(string)
		if !ok || p == "" {
			return nil
		}
		return &p
	}
	return &WorkflowOutput{
		OutputFolder:       outputFolder,
		Transcript:         filePath(StepSaveTranscript),
		MeetingMinutesDocx: filePath(StepSaveMinutesDocx),
		MeetingMinutesHTML: filePath(StepSaveMinutesHTML),
		OriginalVideo:      filePath(StepCopyVideo),
		WorkflowSummary:    filePath(StepWorkflowSummary),
	}
}

func (in WorkflowInput) clone() WorkflowInput {
	in.MeetingDate = cloneString(in.MeetingDate)
	in.Language = cloneString(in.Language)
	return in
}

func (o WorkflowOutput) Clone() WorkflowOutput {
	o.Transcript = cloneString(o.Transcript)
	o.MeetingMinutesDocx = cloneString(o.MeetingMinutesDocx)
	o.MeetingMinutesHTML = cloneString(o.MeetingMinutesHTML)
	o.OriginalVideo = cloneString(o.OriginalVideo)
	o.WorkflowSummary = cloneString(o.WorkflowSummary)
	return o
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
