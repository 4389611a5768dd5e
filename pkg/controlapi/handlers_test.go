package controlapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *storage.FakeStore) {
	t.Helper()
	store := storage.NewFakeStore()
	s := New(":0", nil, store, zerolog.Nop())
	return s, store
}

func TestHandleIsRunning(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/is-running", nil)
	w := httptest.NewRecorder()

	s.handleIsRunning(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRunJobEnqueuesNormalizedMessage(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"kind":"shell","runTarget":"test.sh"}`
	req := httptest.NewRequest(http.MethodPost, "/run-job", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRunJob(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	select {
	case msg := <-s.Messages():
		assert.Equal(t, KindRunJob, msg.Kind)
		assert.Contains(t, string(msg.Payload), "manual-shell-test.sh")
	default:
		t.Fatal("expected a message to be enqueued")
	}
}

func TestHandleRunJobRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/run-job", strings.NewReader(`{"kind":"shell"}`))
	w := httptest.NewRecorder()

	s.handleRunJob(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleRunJobRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/run-job", strings.NewReader(`not json`))
	w := httptest.NewRecorder()

	s.handleRunJob(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleJobUpdateEnqueuesMessage(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/job-update", strings.NewReader(`{"anything":true}`))
	w := httptest.NewRecorder()

	s.handleJobUpdate(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	select {
	case msg := <-s.Messages():
		assert.Equal(t, KindJobUpdate, msg.Kind)
	default:
		t.Fatal("expected a message to be enqueued")
	}
}

func TestHandleMetricsRefreshesGauges(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.InsertOne(t.Context(), "jobs", &types.JobRecord{ID: "1", State: types.JobPending}))
	require.NoError(t, store.InsertOne(t.Context(), "jobs", &types.JobRecord{ID: "2", State: types.JobRunning}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	s.handleMetrics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheduler_jobs_pending")
}

func TestHandleCronSpecsListsSpecs(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.InsertOne(t.Context(), "crons", &types.CronSpec{ID: "c1", Name: "heartbeat"}))

	req := httptest.NewRequest(http.MethodGet, "/cron-specs", nil)
	w := httptest.NewRecorder()

	s.handleCronSpecs(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "heartbeat")
}

func TestHandleCronSpecsRejectsNonGet(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/cron-specs", nil)
	w := httptest.NewRecorder()

	s.handleCronSpecs(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
