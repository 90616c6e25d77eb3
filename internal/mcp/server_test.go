package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"minutes-orchestrator/internal/api/dto"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	submitted []dto.CreateWorkflowRequest
	filters   []ports.WorkflowFilter
	submitErr error
	workflows map[string]*domain.WorkflowInstance
}

func (f *fakeService) SubmitWorkflow(ctx context.Context, req dto.CreateWorkflowRequest) (*domain.WorkflowInstance, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if req.VideoPath == "" || req.MeetingTitle == "" {
		return nil, domain.ErrInvalidInput
	}
	wf := domain.NewWorkflow(req.ToInput())
	f.workflows[wf.ID] = wf
	return wf, nil
}

func (f *fakeService) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf, nil
}

func (f *fakeService) ListWorkflows(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error) {
	f.filters = append(f.filters, filter)
	out := []*domain.WorkflowInstance{}
	for _, wf := range f.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (f *fakeService) EventsSince(seq int64) []domain.WorkflowEvent { return nil }

func (f *fakeService) Health(ctx context.Context) dto.HealthResponse { return dto.HealthResponse{} }

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSubmitAndGetTools(t *testing.T) {
	svc := &fakeService{workflows: map[string]*domain.WorkflowInstance{}}
	s := NewServer(svc)
	ctx := context.Background()

	res, err := s.handleSubmit(ctx, call("submit_workflow", map[string]any{
		"video_path":    "a.mp4",
		"meeting_title": "Weekly Sync",
		"copy_video":    false,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var created dto.CreateWorkflowResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &created))
	assert.Equal(t, domain.WorkflowPending, created.Status)
	require.Len(t, svc.submitted, 1)
	require.NotNil(t, svc.submitted[0].CopyVideo)
	assert.False(t, *svc.submitted[0].CopyVideo)
	assert.Nil(t, svc.submitted[0].MeetingDate)

	res, err = s.handleGet(ctx, call("get_workflow", map[string]any{"id": created.ID}))
	require.NoError(t, err)
	var wf domain.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &wf))
	assert.Equal(t, "Weekly Sync", wf.Input.MeetingTitle)
	assert.False(t, wf.Input.CopyVideo)
}

func TestToolErrorsAreResults(t *testing.T) {
	svc := &fakeService{workflows: map[string]*domain.WorkflowInstance{}}
	s := NewServer(svc)
	ctx := context.Background()

	res, err := s.handleSubmit(ctx, call("submit_workflow", map[string]any{"video_path": "a.mp4"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGet(ctx, call("get_workflow", map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "workflow not found")

	res, err = s.handleGet(ctx, call("get_workflow", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	svc.submitErr = ports.ErrQueueFull
	res, err = s.handleSubmit(ctx, call("submit_workflow", map[string]any{"video_path": "a.mp4", "meeting_title": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "retry later")
}

func TestListTool(t *testing.T) {
	svc := &fakeService{workflows: map[string]*domain.WorkflowInstance{}}
	s := NewServer(svc)
	ctx := context.Background()

	res, err := s.handleList(ctx, call("list_workflows", map[string]any{"limit": float64(5), "status": "failed"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, ports.WorkflowFilter{Limit: 5, Status: domain.WorkflowFailed}, svc.filters[0])

	var list dto.ListWorkflowsResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &list))
	assert.Zero(t, list.Count)

	res, err = s.handleList(ctx, call("list_workflows", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 50, svc.filters[1].Limit)

	for _, args := range []map[string]any{{"limit": float64(0)}, {"limit": 2.5}, {"status": "done"}} {
		res, err = s.handleList(ctx, call("list_workflows", args))
		require.NoError(t, err)
		assert.True(t, res.IsError, args)
	}
}
