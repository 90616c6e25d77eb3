// Package stepclient talks to the transcription, minutes and file management
// services. Every method is a single request/response exchange: no retries,
// one timeout per operation, and a *CallError for anything but a 2xx
// response carrying success:true.
package stepclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Service string

const (
	ServiceTranscription  Service = "transcription"
	ServiceMeetingMinutes Service = "meeting_minutes"
	ServiceFileManagement Service = "file_management"
)

// Services lists the collaborators in a stable order.
var Services = []Service{ServiceTranscription, ServiceMeetingMinutes, ServiceFileManagement}

// Endpoints holds the base URL of each collaborator.
type Endpoints struct {
	Transcription  string
	MeetingMinutes string
	FileManagement string
}

type operation struct {
	name    string
	service Service
	path    string
	timeout time.Duration
}

var (
	opTranscribe       = operation{"transcribe", ServiceTranscription, "/transcribe", 10 * time.Minute}
	opFormatTranscript = operation{"format", ServiceTranscription, "/format-transcript", 60 * time.Second}
	opGenerateMinutes  = operation{"minutes", ServiceMeetingMinutes, "/generate-minutes", 3 * time.Minute}
	opCreateFolder     = operation{"folder", ServiceFileManagement, "/create-dated-folder", 30 * time.Second}
	opSaveTranscript   = operation{"save transcript", ServiceFileManagement, "/save-transcript", 60 * time.Second}
	opSaveDocx         = operation{"save docx", ServiceFileManagement, "/save-meeting-minutes-docx", 2 * time.Minute}
	opSaveHTML         = operation{"save html", ServiceFileManagement, "/save-meeting-minutes-html", 60 * time.Second}
	opCopyVideo        = operation{"copy video", ServiceFileManagement, "/copy-video", 2 * time.Minute}
	opSummary          = operation{"summary", ServiceFileManagement, "/create-workflow-summary", 60 * time.Second}
)

// Client is the HTTP implementation of every pipeline operation.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Per-operation timeouts are
// applied through the request context, so the client itself should not
// carry a shorter Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the base URL configured for s.
func (c *Client) Endpoint(s Service) string {
	var base string
	switch s {
	case ServiceTranscription:
		base = c.endpoints.Transcription
	case ServiceMeetingMinutes:
		base = c.endpoints.MeetingMinutes
	case ServiceFileManagement:
		base = c.endpoints.FileManagement
	}
	return strings.TrimRight(base, "/")
}

// envelope is the part of the response every collaborator shares.
type envelope struct {
	Success *bool   `json:"success"`
	Error   *string `json:"error"`
}

// post sends body as JSON and returns the raw response once the status code
// and the success flag have been checked.
func (c *Client) post(ctx context.Context, op operation, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CallError{Operation: op.name, Message: "failed to marshal request body", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, op.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(op.service)+op.path, bytes.NewReader(payload))
	if err != nil {
		return nil, &CallError{Operation: op.name, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Operation: op.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Operation: op.name, StatusCode: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	var env envelope
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if envErr == nil && env.Error != nil && *env.Error != "" {
			msg += ": " + *env.Error
		}
		return nil, &CallError{Operation: op.name, StatusCode: resp.StatusCode, Message: msg}
	}
	if envErr != nil {
		return nil, &CallError{Operation: op.name, StatusCode: resp.StatusCode, Message: "failed to decode response body", Err: envErr}
	}
	if env.Success == nil || !*env.Success {
		reason := "no error reported"
		if env.Error != nil && *env.Error != "" {
			reason = *env.Error
		}
		return nil, &CallError{Operation: op.name, StatusCode: resp.StatusCode, Message: "failed: " + reason, Rejected: true}
	}
	return raw, nil
}

func decode[T any](op operation, raw []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &CallError{Operation: op.name, StatusCode: http.StatusOK, Message: "failed to decode response body", Err: err}
	}
	return &out, nil
}

// Ping calls the collaborator's /health endpoint. The caller bounds it
// with ctx.
func (c *Client) Ping(ctx context.Context, s Service) error {
	op := string(s) + " health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(s)+"/health", nil)
	if err != nil {
		return &CallError{Operation: op, Message: "failed to create request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CallError{Operation: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &CallError{Operation: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return nil
}
