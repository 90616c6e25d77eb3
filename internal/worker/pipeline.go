package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/stepclient"
)

// StepClient is the set of collaborator operations the pipeline calls.
type StepClient interface {
	Transcribe(ctx context.Context, req stepclient.TranscribeRequest) (*stepclient.TranscribeResult, error)
	FormatTranscript(ctx context.Context, transcriptData json.RawMessage) (*stepclient.FormatResult, error)
	GenerateMinutes(ctx context.Context, req stepclient.MinutesRequest) (*stepclient.MinutesResult, error)
	CreateDatedFolder(ctx context.Context, meetingTitle string, meetingDate *string) (*stepclient.FolderResult, error)
	SaveTranscript(ctx context.Context, transcriptText, outputFolder string) (*stepclient.FileResult, error)
	SaveMinutesDocx(ctx context.Context, meetingData json.RawMessage, outputFolder string) (*stepclient.FileResult, error)
	SaveMinutesHTML(ctx context.Context, meetingData json.RawMessage, outputFolder string) (*stepclient.FileResult, error)
	CopyVideo(ctx context.Context, videoPath, outputFolder string) (*stepclient.FileResult, error)
	CreateWorkflowSummary(ctx context.Context, outputFolder string, summary stepclient.WorkflowSummary) (*stepclient.FileResult, error)
}

// Pipeline runs the fixed step sequence for one instance. It stops at the
// first step whose retries are exhausted and leaves earlier side effects in
// place.
type Pipeline struct {
	client StepClient
	store  ports.WorkflowStore
	exec   *Executor
	now    func() time.Time
}

func NewPipeline(client StepClient, store ports.WorkflowStore, exec *Executor) *Pipeline {
	return &Pipeline{client: client, store: store, exec: exec, now: time.Now}
}

// Run executes every step for wf and returns the assembled output mapping.
func (p *Pipeline) Run(ctx context.Context, wf *domain.WorkflowInstance) (*domain.WorkflowOutput, error) {
	id := wf.ID
	in := wf.Input

	transcript, err := RunStep(ctx, p.exec, id, domain.StepTranscription, func(ctx context.Context) (*stepclient.TranscribeResult, error) {
		return p.client.Transcribe(ctx, stepclient.TranscribeRequest{
			VideoPath:      in.VideoPath,
			Language:       in.Language,
			WordTimestamps: true,
		})
	})
	if err != nil {
		return nil, err
	}

	formatted, err := RunStep(ctx, p.exec, id, domain.StepFormatTranscript, func(ctx context.Context) (*stepclient.FormatResult, error) {
		return p.client.FormatTranscript(ctx, transcript.Data)
	})
	if err != nil {
		return nil, err
	}

	minutes, err := RunStep(ctx, p.exec, id, domain.StepGenerateMinutes, func(ctx context.Context) (*stepclient.MinutesResult, error) {
		return p.client.GenerateMinutes(ctx, stepclient.MinutesRequest{
			TranscriptionText: formatted.FormattedText,
			MeetingTitle:      in.MeetingTitle,
			MeetingDate:       in.MeetingDate,
		})
	})
	if err != nil {
		return nil, err
	}

	folder, err := RunStep(ctx, p.exec, id, domain.StepCreateFolder, func(ctx context.Context) (*stepclient.FolderResult, error) {
		return p.client.CreateDatedFolder(ctx, in.MeetingTitle, in.MeetingDate)
	})
	if err != nil {
		return nil, err
	}
	outputFolder := folder.FolderPath

	if _, err := RunStep(ctx, p.exec, id, domain.StepSaveTranscript, func(ctx context.Context) (*stepclient.FileResult, error) {
		return p.client.SaveTranscript(ctx, formatted.FormattedText, outputFolder)
	}); err != nil {
		return nil, err
	}

	if _, err := RunStep(ctx, p.exec, id, domain.StepSaveMinutesDocx, func(ctx context.Context) (*stepclient.FileResult, error) {
		return p.client.SaveMinutesDocx(ctx, minutes.Data, outputFolder)
	}); err != nil {
		return nil, err
	}

	if _, err := RunStep(ctx, p.exec, id, domain.StepSaveMinutesHTML, func(ctx context.Context) (*stepclient.FileResult, error) {
		return p.client.SaveMinutesHTML(ctx, minutes.Data, outputFolder)
	}); err != nil {
		return nil, err
	}

	if in.CopyVideo {
		if _, err := RunStep(ctx, p.exec, id, domain.StepCopyVideo, func(ctx context.Context) (*stepclient.FileResult, error) {
			return p.client.CopyVideo(ctx, in.VideoPath, outputFolder)
		}); err != nil {
			return nil, err
		}
	}

	sofar, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for summary: %w", err)
	}
	meetingDate := p.now().UTC().Format(time.RFC3339)
	if in.MeetingDate != nil && *in.MeetingDate != "" {
		meetingDate = *in.MeetingDate
	}
	summary := stepclient.WorkflowSummary{
		VideoPath:    in.VideoPath,
		MeetingTitle: in.MeetingTitle,
		MeetingDate:  meetingDate,
		Language:     in.Language,
		Steps:        sofar.Steps,
	}
	if _, err := RunStep(ctx, p.exec, id, domain.StepWorkflowSummary, func(ctx context.Context) (*stepclient.FileResult, error) {
		return p.client.CreateWorkflowSummary(ctx, outputFolder, summary)
	}); err != nil {
		return nil, err
	}

	final, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for output: %w", err)
	}
	return final.BuildOutput(outputFolder), nil
}
