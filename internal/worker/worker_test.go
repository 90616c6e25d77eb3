package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"minutes-orchestrator/internal/core/memory"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"
	"minutes-orchestrator/internal/infrastructure/events"
	"minutes-orchestrator/internal/infrastructure/queue"
	"minutes-orchestrator/internal/logging"
	"minutes-orchestrator/internal/metrics"
	"minutes-orchestrator/internal/stepclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collaborators answers every collaborator route with a successful envelope
// unless a path override is installed.
type collaborators struct {
	mu        sync.Mutex
	calls     map[string]int
	bodies    map[string][]byte
	overrides map[string]http.HandlerFunc
}

func newCollaborators() *collaborators {
	return &collaborators{
		calls:     map[string]int{},
		bodies:    map[string][]byte{},
		overrides: map[string]http.HandlerFunc{},
	}
}

func (c *collaborators) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.calls[r.URL.Path]++
	c.bodies[r.URL.Path] = raw
	override := c.overrides[r.URL.Path]
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if override != nil {
		override(w, r)
		return
	}

	var resp string
	switch r.URL.Path {
	case "/transcribe":
		resp = `{"success": true, "data": {"language": "en", "duration": 12.5, "segments": [{"text": "hi"}]}}`
	case "/format-transcript":
		resp = `{"success": true, "formatted_text": "[00:00:00] hi"}`
	case "/generate-minutes":
		resp = `{"success": true, "data": {"summary": "s", "action_items": []}}`
	case "/create-dated-folder":
		resp = `{"success": true, "folder_path": "/out/2026-10-19_Weekly_Sync"}`
	default:
		name := strings.TrimPrefix(r.URL.Path, "/")
		resp = fmt.Sprintf(`{"success": true, "file_path": "/out/2026-10-19_Weekly_Sync/%s", "file_size": 10}`, name)
	}
	_, _ = io.WriteString(w, resp)
}

func (c *collaborators) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func (c *collaborators) body(path string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bodies[path]
}

type workerFixture struct {
	store  ports.WorkflowStore
	bus    *events.MemoryBus
	queue  *queue.ChannelQueue
	collab *collaborators
	worker *Worker
}

func newWorkerFixture(t *testing.T, policy RetryPolicy) *workerFixture {
	t.Helper()
	collab := newCollaborators()
	srv := httptest.NewServer(collab)
	t.Cleanup(srv.Close)

	f := &workerFixture{
		store:  memory.NewWorkflowStore(),
		bus:    events.NewMemoryBus(0),
		queue:  queue.NewChannelQueue(10),
		collab: collab,
	}
	client := stepclient.NewClient(stepclient.Endpoints{
		Transcription:  srv.URL,
		MeetingMinutes: srv.URL,
		FileManagement: srv.URL,
	})
	m := metrics.New()
	exec := NewExecutor(f.store, f.bus, m, logging.NewNop(), policy)
	exec.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	f.worker = NewWorker(f.queue, f.store, f.bus, NewPipeline(client, f.store, exec), m, logging.NewNop())
	return f
}

func (f *workerFixture) submit(t *testing.T, in domain.WorkflowInput) string {
	t.Helper()
	wf, err := f.store.Create(context.Background(), in)
	require.NoError(t, err)
	return wf.ID
}

func (f *workerFixture) get(t *testing.T, id string) *domain.WorkflowInstance {
	t.Helper()
	wf, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return wf
}

func TestProcessWorkflowCompletes(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync", CopyVideo: true})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	require.Equal(t, domain.WorkflowCompleted, wf.Status)
	assert.Nil(t, wf.Error)
	assert.Equal(t, domain.Pipeline, wf.StepsSoFar())
	for _, s := range wf.Steps {
		assert.True(t, s.Success, s.Step)
		assert.Equal(t, 1, s.Attempts)
	}

	require.NotNil(t, wf.Output)
	assert.Equal(t, "/out/2026-10-19_Weekly_Sync", wf.Output.OutputFolder)
	for _, p := range []*string{
		wf.Output.Transcript,
		wf.Output.MeetingMinutesDocx,
		wf.Output.MeetingMinutesHTML,
		wf.Output.OriginalVideo,
		wf.Output.WorkflowSummary,
	} {
		assert.NotNil(t, p)
	}
	assert.Equal(t, "/out/2026-10-19_Weekly_Sync/copy-video", *wf.Output.OriginalVideo)

	var statuses []domain.WorkflowStatus
	for _, ev := range f.bus.Since(0) {
		if ev.Type == domain.EventTypeStatus {
			statuses = append(statuses, ev.Status)
		}
	}
	assert.Equal(t, []domain.WorkflowStatus{domain.WorkflowRunning, domain.WorkflowCompleted}, statuses)
}

func TestProcessWorkflowWithoutVideoCopy(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync", CopyVideo: false})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	require.Equal(t, domain.WorkflowCompleted, wf.Status)
	require.NotNil(t, wf.Output)
	assert.Nil(t, wf.Output.OriginalVideo)
	_, found := wf.FindStep(domain.StepCopyVideo)
	assert.False(t, found)
	assert.Zero(t, f.collab.count("/copy-video"))
	assert.Len(t, wf.Steps, 8)
}

func TestProcessWorkflowTranscriptionRejected(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	f.collab.overrides["/transcribe"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "error": "unsupported codec"}`)
	}
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync", CopyVideo: true})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	require.Equal(t, domain.WorkflowFailed, wf.Status)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, domain.StepTranscription, wf.Steps[0].Step)
	assert.False(t, wf.Steps[0].Success)
	assert.Equal(t, 4, wf.Steps[0].Attempts)
	assert.Equal(t, 4, f.collab.count("/transcribe"))
	assert.Zero(t, f.collab.count("/format-transcript"))

	require.NotNil(t, wf.Error)
	assert.Equal(t, "transcribe failed: unsupported codec", *wf.Error)
	assert.Nil(t, wf.Output)
}

func TestProcessWorkflowStopsAtFirstExhaustedStep(t *testing.T) {
	f := newWorkerFixture(t, RetryPolicy{MaxRetries: 1})
	f.collab.overrides["/save-meeting-minutes-html"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success": false, "error": "template missing"}`)
	}
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync", CopyVideo: true})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	require.Equal(t, domain.WorkflowFailed, wf.Status)
	assert.Equal(t, domain.Pipeline[:7], wf.StepsSoFar())
	last := wf.Steps[len(wf.Steps)-1]
	assert.False(t, last.Success)
	assert.Equal(t, 2, last.Attempts)
	assert.Equal(t, "save html HTTP 500: template missing", *wf.Error)
	assert.Zero(t, f.collab.count("/copy-video"))
	assert.Zero(t, f.collab.count("/create-workflow-summary"))
}

func TestProcessWorkflowRecoversAfterTransientFailures(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	var mu sync.Mutex
	attempts := 0
	f.collab.overrides["/format-transcript"] = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"success": true, "formatted_text": "text"}`)
	}
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	require.Equal(t, domain.WorkflowCompleted, wf.Status)
	step, ok := wf.FindStep(domain.StepFormatTranscript)
	require.True(t, ok)
	assert.Equal(t, 3, step.Attempts)
	assert.True(t, step.Success)
}

func TestSummaryCarriesStepsSoFar(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	date := "2026-10-19"
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync", MeetingDate: &date})

	f.worker.ProcessWorkflow(context.Background(), id)

	var payload struct {
		OutputFolder string                    `json:"output_folder"`
		WorkflowData stepclient.WorkflowSummary `json:"workflow_data"`
	}
	require.NoError(t, json.Unmarshal(f.collab.body("/create-workflow-summary"), &payload))
	assert.Equal(t, "/out/2026-10-19_Weekly_Sync", payload.OutputFolder)
	assert.Equal(t, "2026-10-19", payload.WorkflowData.MeetingDate)
	require.Len(t, payload.WorkflowData.Steps, 7)
	assert.Equal(t, domain.StepSaveMinutesHTML, payload.WorkflowData.Steps[6].Step)
}

func TestSummaryDefaultsMeetingDateToNow(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})

	f.worker.ProcessWorkflow(context.Background(), id)

	var payload struct {
		WorkflowData stepclient.WorkflowSummary `json:"workflow_data"`
	}
	require.NoError(t, json.Unmarshal(f.collab.body("/create-workflow-summary"), &payload))
	_, err := time.Parse(time.RFC3339, payload.WorkflowData.MeetingDate)
	assert.NoError(t, err)
}

func TestProcessWorkflowSkipsNonPending(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})
	require.NoError(t, f.store.UpdateStatus(context.Background(), id, domain.WorkflowRunning))
	require.NoError(t, f.store.Fail(context.Background(), id, "earlier"))

	f.worker.ProcessWorkflow(context.Background(), id)
	f.worker.ProcessWorkflow(context.Background(), "missing")

	assert.Zero(t, f.collab.count("/transcribe"))
	assert.Equal(t, "earlier", *f.get(t, id).Error)
}

type panickingClient struct{ StepClient }

func (panickingClient) Transcribe(context.Context, stepclient.TranscribeRequest) (*stepclient.TranscribeResult, error) {
	panic("decoder exploded")
}

func TestProcessWorkflowRecoversPanic(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	f.worker.pipeline.client = panickingClient{}
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})

	assert.NotPanics(t, func() { f.worker.ProcessWorkflow(context.Background(), id) })

	wf := f.get(t, id)
	assert.Equal(t, domain.WorkflowFailed, wf.Status)
	assert.Contains(t, *wf.Error, "decoder exploded")
}

// flakyStore fails the first Get the way a dropped database connection does.
type flakyStore struct {
	ports.WorkflowStore
	tripped atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	if s.tripped.CompareAndSwap(false, true) {
		return nil, errors.New("connection reset by peer")
	}
	return s.WorkflowStore.Get(ctx, id)
}

func TestProcessWorkflowFailsOnStoreError(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	f.worker.store = &flakyStore{WorkflowStore: f.store}
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})

	f.worker.ProcessWorkflow(context.Background(), id)

	wf := f.get(t, id)
	assert.Equal(t, domain.WorkflowFailed, wf.Status)
	require.NotNil(t, wf.Error)
	assert.Equal(t, "internal error: connection reset by peer", *wf.Error)
	assert.Zero(t, f.collab.count("/transcribe"))

	// The worker keeps going with the next instance.
	next := f.submit(t, domain.WorkflowInput{VideoPath: "b.mp4", MeetingTitle: "Retro"})
	f.worker.ProcessWorkflow(context.Background(), next)
	assert.Equal(t, domain.WorkflowCompleted, f.get(t, next).Status)
}

func TestProcessWorkflowIgnoresUnknownID(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())

	assert.NotPanics(t, func() { f.worker.ProcessWorkflow(context.Background(), "missing") })
	assert.Empty(t, f.bus.Since(0))
}

func TestRunConsumesInFIFOOrder(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "first"})
	second := f.submit(t, domain.WorkflowInput{VideoPath: "b.mp4", MeetingTitle: "second"})
	require.NoError(t, f.queue.Push(ctx, first))
	require.NoError(t, f.queue.Push(ctx, second))

	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.get(t, second).Status == domain.WorkflowCompleted
	}, 5*time.Second, 10*time.Millisecond)

	a, b := f.get(t, first), f.get(t, second)
	assert.Equal(t, domain.WorkflowCompleted, a.Status)
	assert.False(t, b.Steps[0].StartedAt.Before(a.Steps[len(a.Steps)-1].EndedAt),
		"second run starts after the first finished")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestReadsAreStableAfterCompletion(t *testing.T) {
	f := newWorkerFixture(t, DefaultRetryPolicy())
	id := f.submit(t, domain.WorkflowInput{VideoPath: "a.mp4", MeetingTitle: "Weekly Sync"})
	f.worker.ProcessWorkflow(context.Background(), id)

	assert.Equal(t, f.get(t, id), f.get(t, id))
}
