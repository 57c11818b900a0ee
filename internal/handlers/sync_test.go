package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescope/salescope-api/internal/authz"
	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
	"github.com/salescope/salescope-api/internal/sync"
)

type fakeRunner struct {
	result sync.Result
	err    error
	got    sync.Request
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, req sync.Request) (sync.Result, error) {
	f.got = req
	f.calls++
	return f.result, f.err
}

type fakeProgressStore struct {
	latest models.SyncProgress
	err    error
}

func (f *fakeProgressStore) Start(tenantID, dataSourceID string) (models.SyncProgress, error) {
	return models.SyncProgress{}, nil
}

func (f *fakeProgressStore) GetRunning(string) (models.SyncProgress, error) { return f.latest, f.err }
func (f *fakeProgressStore) GetLatest(string) (models.SyncProgress, error)  { return f.latest, f.err }

func (f *fakeProgressStore) Heartbeat(string, models.Phase, int, int, string) error { return nil }
func (f *fakeProgressStore) AppendError(string, string) error                       { return nil }
func (f *fakeProgressStore) Finish(string, models.ProgressStatus) error             { return nil }

func newSyncTestHandler(runner *fakeRunner) *SyncHandler {
	return NewSyncHandler(runner, &fakeProgressStore{}, zerolog.Nop())
}

func triggerRequest(t *testing.T, body map[string]interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", bytes.NewReader(raw))
	return req.WithContext(authz.WithIdentity(req.Context(), "tenant-1", "user-1", []models.UserRole{models.RoleEditor}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestTriggerPartialResponse(t *testing.T) {
	runner := &fakeRunner{result: sync.Result{
		Complete:    false,
		Progress:    models.Counters{TotalUnits: 3, Processed: 2},
		Current:     "2/3",
		Total:       3,
		Phase:       models.PhaseSequences,
		BatchNumber: 2,
		Message:     "Sync in progress, continuation scheduled",
	}}
	h := newSyncTestHandler(runner)

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{
		"client_id":      "cl-1",
		"engagement_id":  "eng-1",
		"data_source_id": "ds-1",
	}))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, "2/3", body["current"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, "sequences", body["phase"])
	assert.Equal(t, float64(2), body["batch_number"])

	progress, ok := body["progress"].(map[string]interface{})
	require.True(t, ok, "progress must be a nested counters object")
	assert.Equal(t, float64(3), progress["total_units"])
	assert.Equal(t, float64(2), progress["processed"])

	assert.Equal(t, "tenant-1", runner.got.TenantID)
	assert.True(t, runner.got.AutoContinue, "auto_continue defaults to true")
}

func TestTriggerCompleteResponse(t *testing.T) {
	runner := &fakeRunner{result: sync.Result{
		Complete: true,
		Progress: models.Counters{TotalUnits: 3, Processed: 3},
		Message:  "Sync completed",
	}}
	h := newSyncTestHandler(runner)

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{
		"engagement_id":  "eng-1",
		"data_source_id": "ds-1",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["complete"])
	require.Contains(t, body, "progress")
	assert.NotContains(t, body, "current")
	assert.NotContains(t, body, "phase")
	assert.NotContains(t, body, "batch_number")
}

func TestTriggerUnknownSourceError(t *testing.T) {
	h := newSyncTestHandler(&fakeRunner{err: repository.ErrNotFound})

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{
		"engagement_id":  "eng-1",
		"data_source_id": "ds-missing",
	}))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
}

func TestTriggerLeaseConflictError(t *testing.T) {
	h := newSyncTestHandler(&fakeRunner{err: repository.ErrLeaseHeld})

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{
		"engagement_id":  "eng-1",
		"data_source_id": "ds-busy",
	}))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
}

func TestTriggerRejectsInteractiveContinuation(t *testing.T) {
	runner := &fakeRunner{}
	h := newSyncTestHandler(runner)

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{
		"engagement_id":         "eng-1",
		"data_source_id":        "ds-1",
		"internal_continuation": true,
	}))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
	assert.Zero(t, runner.calls)
}

func TestTriggerServiceCallTakesTenantFromBody(t *testing.T) {
	runner := &fakeRunner{result: sync.Result{Complete: true, Message: "Sync completed"}}
	h := newSyncTestHandler(runner)

	raw, err := json.Marshal(map[string]interface{}{
		"engagement_id":         "eng-1",
		"data_source_id":        "ds-1",
		"tenant_id":             "tenant-2",
		"internal_continuation": true,
		"batch_number":          3,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", bytes.NewReader(raw))
	req = req.WithContext(authz.WithServiceIdentity(req.Context()))

	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-2", runner.got.TenantID)
	assert.Equal(t, 3, runner.got.BatchNumber)
	assert.True(t, runner.got.InternalContinuation)
}

func TestTriggerRequiresDataSource(t *testing.T) {
	runner := &fakeRunner{}
	h := newSyncTestHandler(runner)

	rec := httptest.NewRecorder()
	h.Trigger(rec, triggerRequest(t, map[string]interface{}{"engagement_id": "eng-1"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
	assert.Zero(t, runner.calls)
}
