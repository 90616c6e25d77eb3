package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInputDefaultsCopyVideo(t *testing.T) {
	req := CreateWorkflowRequest{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"}
	assert.True(t, req.ToInput().CopyVideo)

	off := false
	req.CopyVideo = &off
	in := req.ToInput()
	assert.False(t, in.CopyVideo)
	assert.Equal(t, "a.mp4", in.VideoPath)
	assert.Equal(t, "Weekly Sync", in.MeetingTitle)
}
