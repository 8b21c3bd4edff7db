// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polygen/services/polygen/config"
	"github.com/AleutianAI/polygen/services/polygen/runner"
	"github.com/AleutianAI/polygen/services/polygen/score"
	pgbadger "github.com/AleutianAI/polygen/services/polygen/storage/badger"
	"github.com/AleutianAI/polygen/services/polygen/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seededStore(t *testing.T) (*store.RunStore, string) {
	t.Helper()
	db, err := pgbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.New(db)
	ctx := context.Background()
	id, err := s.BeginRun(ctx, config.Default())
	require.NoError(t, err)
	require.NoError(t, s.RecordTry(ctx, id, runner.TryRecord{
		Try: 1, Found: true, Payload: "<svg/onload=x>", Solved: []score.TestID{"html"},
	}))
	require.NoError(t, s.FinishRun(ctx, runner.Report{RunID: id, Tries: 1}, nil))
	return s, id
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _ := seededStore(t)
	w := get(t, NewRouter(s, nil), "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestHandleListRuns(t *testing.T) {
	s, id := seededStore(t)
	w := get(t, NewRouter(s, nil), "/v1/runs")

	require.Equal(t, http.StatusOK, w.Code)
	var resp RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, id, resp.Runs[0].ID)
	assert.Equal(t, store.StatusFinished, resp.Runs[0].Status)
}

func TestHandleGetRun(t *testing.T) {
	s, id := seededStore(t)
	router := NewRouter(s, nil)

	w := get(t, router, "/v1/runs/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Run.ID)
	require.Len(t, resp.Tries, 1)
	assert.Equal(t, []string{"<svg/onload=x>"}, resp.Polyglots)

	w = get(t, router, "/v1/runs/"+id+"/polyglots")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"polyglots":["<svg/onload=x>"]}`, w.Body.String())
}

func TestHandleGetRun_NotFound(t *testing.T) {
	s, _ := seededStore(t)
	router := NewRouter(s, nil)

	for _, path := range []string{"/v1/runs/nope", "/v1/runs/nope/polyglots"} {
		w := get(t, router, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "RUN_NOT_FOUND", resp.Code)
	}
}

type brokenReader struct{ RunReader }

func (brokenReader) ListRuns(context.Context) ([]store.Run, error) {
	return nil, errors.New("disk on fire")
}

func TestHandleListRuns_StoreError(t *testing.T) {
	w := get(t, NewRouter(brokenReader{}, nil), "/v1/runs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}

func TestMetricsRoute(t *testing.T) {
	s, _ := seededStore(t)
	w := get(t, NewRouter(s, nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
