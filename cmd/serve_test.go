package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/jobs"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/store"
)

// stubRunner completes instantly with a fixed outcome, or fails when err is
// set.
type stubRunner struct {
	err error
}

func (r *stubRunner) Run(_ context.Context, sectorName, _ string) (*model.ResearchOutcome, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &model.ResearchOutcome{
		SectorKey: sectorName,
		Results: map[model.AgentType]*model.ResearchOutput{
			model.AgentMarketStructure: {Summary: "stub", Confidence: model.ConfidenceHigh},
		},
	}, nil
}

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	tracker := jobs.New(&stubRunner{}, config.JobsConfig{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tracker.Start(ctx)

	return newRouter(tracker, st, []string{"*"}), st
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestServe_Health(t *testing.T) {
	handler, _ := newTestRouter(t)

	rr := doRequest(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServe_SubmitAndPoll(t *testing.T) {
	handler, _ := newTestRouter(t)

	rr := doRequest(t, handler, http.MethodPost, "/api/v1/research/jobs", map[string]string{
		"sector":      "Vertical SaaS",
		"description": "B2B software for niche industries",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var job model.ResearchJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "vertical_saas", job.SectorKey)

	// The stub runner completes almost immediately; poll until terminal.
	require.Eventually(t, func() bool {
		poll := doRequest(t, handler, http.MethodGet, "/api/v1/research/jobs/"+job.ID, nil)
		if poll.Code != http.StatusOK {
			return false
		}
		var polled model.ResearchJob
		if err := json.Unmarshal(poll.Body.Bytes(), &polled); err != nil {
			return false
		}
		return polled.State == model.JobCompleted && polled.Result != nil
	}, 5*time.Second, 10*time.Millisecond)

	list := doRequest(t, handler, http.MethodGet, "/api/v1/research/jobs", nil)
	assert.Equal(t, http.StatusOK, list.Code)
	var listed []model.ResearchJob
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestServe_SubmitValidation(t *testing.T) {
	handler, _ := newTestRouter(t)

	rr := doRequest(t, handler, http.MethodPost, "/api/v1/research/jobs", map[string]string{
		"description": "no sector",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/research/jobs", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_UnknownJob(t *testing.T) {
	handler, _ := newTestRouter(t)

	rr := doRequest(t, handler, http.MethodGet, "/api/v1/research/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, handler, http.MethodDelete, "/api/v1/research/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_Cancel(t *testing.T) {
	handler, _ := newTestRouter(t)

	rr := doRequest(t, handler, http.MethodPost, "/api/v1/research/jobs", map[string]string{
		"sector": "Ecommerce Tools",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var job model.ResearchJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))

	del := doRequest(t, handler, http.MethodDelete, "/api/v1/research/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, del.Code)
	var cancelled model.ResearchJob
	require.NoError(t, json.Unmarshal(del.Body.Bytes(), &cancelled))
	assert.True(t, cancelled.State.Terminal())
}

func TestServe_QuestionResponse(t *testing.T) {
	handler, st := newTestRouter(t)
	ctx := context.Background()

	questions := []model.FollowUpQuestion{{
		BusinessID:    "src:q-1",
		RecordVersion: 1,
		Text:          "What is the churn rate?",
		TriggeredBy:   "customers.churn_rate",
		Severity:      model.SeverityHigh,
	}}
	require.NoError(t, st.InsertQuestions(ctx, questions))
	questionID := questions[0].ID

	path := fmt.Sprintf("/api/v1/questions/%s/response", questionID)
	rr := doRequest(t, handler, http.MethodPost, path, map[string]string{
		"status":   "responded",
		"response": "Monthly churn is 2.1% measured on logo count.",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated model.FollowUpQuestion
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, model.ResponseResponded, updated.ResponseStatus)
	assert.NotNil(t, updated.RespondedAt)

	// A terminal question never transitions again.
	again := doRequest(t, handler, http.MethodPost, path, map[string]string{
		"status": "escalated",
	})
	assert.Equal(t, http.StatusBadRequest, again.Code)

	// Unknown question and illegal target status.
	missing := doRequest(t, handler, http.MethodPost, "/api/v1/questions/nope/response", map[string]string{
		"status": "responded",
	})
	assert.Equal(t, http.StatusNotFound, missing.Code)

	bad := doRequest(t, handler, http.MethodPost, path, map[string]string{
		"status": "pending",
	})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}
