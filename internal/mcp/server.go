package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"minutes-orchestrator/internal/api/dto"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "Meeting Minutes Orchestrator"
	serverVersion = "1.0.0"
	basePath      = "/mcp"
)

// Server exposes workflow submission and lookup as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	service   service.WorkflowService
}

func NewServer(svc service.WorkflowService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
		),
		service: svc,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler serves the SSE transport under /mcp (/mcp/sse and /mcp/message).
func (s *Server) Handler() http.Handler {
	return server.NewSSEServer(s.mcpServer, server.WithStaticBasePath(basePath))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_workflow",
			mcp.WithDescription("Queue a meeting recording for transcription and minutes generation"),
			mcp.WithString("video_path", mcp.Required(), mcp.Description("Path of the recording on the shared volume")),
			mcp.WithString("meeting_title", mcp.Required(), mcp.Description("Title used for the output folder and minutes")),
			mcp.WithString("meeting_date", mcp.Description("Meeting date, passed through to the collaborators")),
			mcp.WithString("language", mcp.Description("Transcription language hint")),
			mcp.WithBoolean("copy_video", mcp.Description("Copy the recording into the output folder (default true)")),
		),
		s.handleSubmit,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get the current snapshot of a workflow"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow id")),
		),
		s.handleGet,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List workflows, newest first"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of workflows (default 50)")),
			mcp.WithString("status", mcp.Description("Only workflows in this status: pending, running, completed or failed")),
		),
		s.handleList,
	)
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	req := dto.CreateWorkflowRequest{
		MeetingDate: optionalString(args, "meeting_date"),
		Language:    optionalString(args, "language"),
	}
	req.VideoPath, _ = args["video_path"].(string)
	req.MeetingTitle, _ = args["meeting_title"].(string)
	if v, ok := args["copy_video"].(bool); ok {
		req.CopyVideo = &v
	}

	wf, err := s.service.SubmitWorkflow(ctx, req)
	if err != nil {
		if errors.Is(err, ports.ErrQueueFull) {
			return mcp.NewToolResultError("Workflow queue is full, retry later"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit workflow: %v", err)), nil
	}

	return jsonResult(dto.CreateWorkflowResponse{ID: wf.ID, Status: wf.Status, CreatedAt: wf.CreatedAt})
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	wf, err := s.service.GetWorkflow(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}
	return jsonResult(wf)
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	filter := ports.WorkflowFilter{Limit: 50}
	if raw, ok := args["limit"]; ok {
		limit, ok := raw.(float64)
		if !ok || limit < 1 || limit != float64(int(limit)) {
			return mcp.NewToolResultError("limit must be a positive integer"), nil
		}
		filter.Limit = int(limit)
	}
	if raw, ok := args["status"].(string); ok && raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown status %q", raw)), nil
		}
		filter.Status = status
	}

	wfs, err := s.service.ListWorkflows(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}
	return jsonResult(dto.ListWorkflowsResponse{Workflows: wfs, Count: len(wfs)})
}

func optionalString(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
