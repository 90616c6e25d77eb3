package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"minutes-orchestrator/internal/api/dto"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/logging"
	"minutes-orchestrator/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	defaultListLimit = 50
	// retryAfterSeconds is advertised when the queue is full.
	retryAfterSeconds = "5"
)

type WorkflowHandler struct {
	service service.WorkflowService
	logger  *logging.Logger
}

func NewWorkflowHandler(svc service.WorkflowService, logger *logging.Logger) *WorkflowHandler {
	return &WorkflowHandler{service: svc, logger: logger}
}

func (h *WorkflowHandler) SubmitWorkflow(c *gin.Context) {
	var req dto.CreateWorkflowRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: bindingMessage(err, req)})
		return
	}

	wf, err := h.service.SubmitWorkflow(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateWorkflowResponse{
		ID:        wf.ID,
		Status:    wf.Status,
		CreatedAt: wf.CreatedAt,
	})
}

func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	wf, err := h.service.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	var q dto.ListWorkflowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	filter := ports.WorkflowFilter{Limit: defaultListLimit}
	if q.Limit != "" {
		limit, err := strconv.Atoi(q.Limit)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}
	if q.Status != "" {
		status, ok := domain.ParseStatus(q.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status must be one of pending, running, completed, failed"})
			return
		}
		filter.Status = status
	}

	wfs, err := h.service.ListWorkflows(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListWorkflowsResponse{Workflows: wfs, Count: len(wfs)})
}

func (h *WorkflowHandler) ListEvents(c *gin.Context) {
	var q dto.EventsQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Since < 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "since must be a non-negative integer"})
		return
	}
	evs := h.service.EventsSince(q.Since)
	c.JSON(http.StatusOK, dto.EventsResponse{Events: evs, Count: len(evs)})
}

func (h *WorkflowHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health(c.Request.Context()))
}

// writeError maps engine errors onto HTTP status codes.
func (h *WorkflowHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrWorkflowNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrWorkflowNotFound.Error()})
	case errors.Is(err, ports.ErrQueueFull):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
}

// bindingMessage renders validator failures using the json field names, so a
// missing title reads "meeting_title is required". Other bind errors pass
// through unchanged.
func bindingMessage(err error, obj any) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	t := reflect.TypeOf(obj)
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
				name = tag
			}
		}
		if fe.Tag() == "required" {
			msgs = append(msgs, name+" is required")
		} else {
			msgs = append(msgs, name+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
