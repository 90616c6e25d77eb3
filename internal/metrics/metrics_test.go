package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.WorkflowSubmitted()
	m.WorkflowSubmitted()
	m.WorkflowRejected("queue_full")
	m.StepAttempt("transcription", errors.New("HTTP 500"))
	m.StepAttempt("transcription", nil)
	m.WorkflowFinished("completed", 3*time.Second)
	m.SetQueueDepth(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("queue_full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepAttempts.WithLabelValues("transcription", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepAttempts.WithLabelValues("transcription", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues("completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueDepth))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.StepFinished("save_transcript", true, 250*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `minutes_orchestrator_step_duration_seconds_count{step="save_transcript",success="true"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
