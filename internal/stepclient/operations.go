package stepclient

import (
	"context"
	"encoding/json"
	"sort"

	"minutes-orchestrator/internal/domain"
)

type TranscribeRequest struct {
	VideoPath      string  `json:"video_path"`
	Language       *string `json:"language"`
	WordTimestamps bool    `json:"word_timestamps"`
}

// TranscribeResult keeps the collaborator's transcript untouched in Data.
type TranscribeResult struct {
	Data     json.RawMessage
	Language string
	Duration float64
	Segments int
}

func (r *TranscribeResult) StepDetails() map[string]any {
	return map[string]any{
		"language": r.Language,
		"duration": r.Duration,
		"segments": r.Segments,
	}
}

func (c *Client) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	raw, err := c.post(ctx, opTranscribe, req)
	if err != nil {
		return nil, err
	}
	resp, err := decode[struct {
		Data json.RawMessage `json:"data"`
	}](opTranscribe, raw)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, &CallError{Operation: opTranscribe.name, StatusCode: 200, Message: "failed: response has no data", Rejected: true}
	}

	var summary struct {
		Language string            `json:"language"`
		Duration float64           `json:"duration"`
		Segments []json.RawMessage `json:"segments"`
	}
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		return nil, &CallError{Operation: opTranscribe.name, StatusCode: 200, Message: "failed to decode transcript", Err: err}
	}
	return &TranscribeResult{
		Data:     resp.Data,
		Language: summary.Language,
		Duration: summary.Duration,
		Segments: len(summary.Segments),
	}, nil
}

type FormatResult struct {
	FormattedText string `json:"formatted_text"`
}

func (r *FormatResult) StepDetails() map[string]any {
	return map[string]any{"characters": len(r.FormattedText)}
}

func (c *Client) FormatTranscript(ctx context.Context, transcriptData json.RawMessage) (*FormatResult, error) {
	raw, err := c.post(ctx, opFormatTranscript, map[string]any{"transcript_data": transcriptData})
	if err != nil {
		return nil, err
	}
	return decode[FormatResult](opFormatTranscript, raw)
}

type MinutesRequest struct {
	TranscriptionText string  `json:"transcription_text"`
	MeetingTitle      string  `json:"meeting_title"`
	MeetingDate       *string `json:"meeting_date"`
}

// MinutesResult carries the structured minutes document as produced.
type MinutesResult struct {
	Data json.RawMessage `json:"data"`
}

func (r *MinutesResult) StepDetails() map[string]any {
	var doc map[string]json.RawMessage
	sections := []string{}
	if err := json.Unmarshal(r.Data, &doc); err == nil {
		for k := range doc {
			sections = append(sections, k)
		}
		sort.Strings(sections)
	}
	return map[string]any{"sections": sections}
}

func (c *Client) GenerateMinutes(ctx context.Context, req MinutesRequest) (*MinutesResult, error) {
	raw, err := c.post(ctx, opGenerateMinutes, req)
	if err != nil {
		return nil, err
	}
	return decode[MinutesResult](opGenerateMinutes, raw)
}

type FolderResult struct {
	FolderPath string `json:"folder_path"`
}

func (r *FolderResult) StepDetails() map[string]any {
	return map[string]any{"folder_path": r.FolderPath}
}

func (c *Client) CreateDatedFolder(ctx context.Context, meetingTitle string, meetingDate *string) (*FolderResult, error) {
	raw, err := c.post(ctx, opCreateFolder, map[string]any{
		"meeting_title": meetingTitle,
		"meeting_date":  meetingDate,
	})
	if err != nil {
		return nil, err
	}
	return decode[FolderResult](opCreateFolder, raw)
}

// FileResult is what every file-producing operation returns.
type FileResult struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
}

func (r *FileResult) StepDetails() map[string]any {
	return map[string]any{
		"file_path": r.FilePath,
		"file_size": r.FileSize,
	}
}

func (c *Client) saveFile(ctx context.Context, op operation, body any) (*FileResult, error) {
	raw, err := c.post(ctx, op, body)
	if err != nil {
		return nil, err
	}
	return decode[FileResult](op, raw)
}

func (c *Client) SaveTranscript(ctx context.Context, transcriptText, outputFolder string) (*FileResult, error) {
	return c.saveFile(ctx, opSaveTranscript, map[string]any{
		"transcript_text": transcriptText,
		"output_folder":   outputFolder,
		"filename":        "transcript.txt",
	})
}

func (c *Client) SaveMinutesDocx(ctx context.Context, meetingData json.RawMessage, outputFolder string) (*FileResult, error) {
	return c.saveFile(ctx, opSaveDocx, map[string]any{
		"meeting_data":  meetingData,
		"output_folder": outputFolder,
		"filename":      "meeting_minutes.docx",
	})
}

func (c *Client) SaveMinutesHTML(ctx context.Context, meetingData json.RawMessage, outputFolder string) (*FileResult, error) {
	return c.saveFile(ctx, opSaveHTML, map[string]any{
		"meeting_data":  meetingData,
		"output_folder": outputFolder,
		"filename":      "meeting_minutes.html",
	})
}

func (c *Client) CopyVideo(ctx context.Context, videoPath, outputFolder string) (*FileResult, error) {
	return c.saveFile(ctx, opCopyVideo, map[string]any{
		"video_path":    videoPath,
		"output_folder": outputFolder,
	})
}

// WorkflowSummary is the run record written next to the produced files.
type WorkflowSummary struct {
	VideoPath    string              `json:"video_path"`
	MeetingTitle string              `json:"meeting_title"`
	MeetingDate  string              `json:"meeting_date"`
	Language     *string             `json:"language"`
	Steps        []domain.StepResult `json:"steps"`
}

func (c *Client) CreateWorkflowSummary(ctx context.Context, outputFolder string, summary WorkflowSummary) (*FileResult, error) {
	return c.saveFile(ctx, opSummary, map[string]any{
		"output_folder": outputFolder,
		"workflow_data": summary,
	})
}
