package dto

import "minutes-orchestrator/internal/domain"

type CreateWorkflowRequest struct {
	VideoPath    string  `json:"video_path" binding:"required"`
	MeetingTitle string  `json:"meeting_title" binding:"required"`
	MeetingDate  *string `json:"meeting_date"`
	Language     *string `json:"language"`
	CopyVideo    *bool   `json:"copy_video"`
}

// ToInput maps the request body onto the domain input. copy_video defaults
// to true when omitted.
func (r CreateWorkflowRequest) ToInput() domain.WorkflowInput {
	copyVideo := true
	if r.CopyVideo != nil {
		copyVideo = *r.CopyVideo
	}
	return domain.WorkflowInput{
		VideoPath:    r.VideoPath,
		MeetingTitle: r.MeetingTitle,
		MeetingDate:  r.MeetingDate,
		Language:     r.Language,
		CopyVideo:    copyVideo,
	}
}

type ListWorkflowsQuery struct {
	Limit  string `form:"limit"`
	Status string `form:"status"`
}

type EventsQuery struct {
	Since int64 `form:"since"`
}
