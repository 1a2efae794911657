package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/infra/runstore"
)

func fixtures(t *testing.T) (runlog.Store, *runstore.Store) {
	t.Helper()
	ctx := context.Background()
	log, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "it.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r1", "r2"} {
		require.NoError(t, log.Append(ctx, runlog.Record{RunID: id, Instance: "d-" + id, Iteration: i, Timestamp: base.Add(time.Duration(i) * time.Hour)}))
	}

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	sums := runstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "api")
	t.Cleanup(func() { sums.Close() })
	require.NoError(t, sums.Save(ctx, runstore.Summary{RunID: "r1", Converged: true, Finished: base}))
	require.NoError(t, sums.Save(ctx, runstore.Summary{RunID: "r2", Finished: base.Add(time.Hour)}))
	return log, sums
}

func get(t *testing.T, h http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIterations(t *testing.T) {
	log, sums := fixtures(t)
	mux := NewMux(log, sums, "tok", nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, mux, "/api/iterations", "").Code)

	rr := get(t, mux, "/api/iterations?run_id=r1&start=2026-01-01T00:30:00Z", "tok")
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []runlog.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Iteration)

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/iterations?end=yesterday", "tok").Code)

	rr = get(t, mux, "/api/iterations?run_id=none", "tok")
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestRuns(t *testing.T) {
	log, sums := fixtures(t)
	mux := NewMux(log, sums, "", nil)

	rr := get(t, mux, "/api/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []runstore.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].RunID)

	rr = get(t, mux, "/api/runs/r1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sum runstore.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.True(t, sum.Converged)

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/runs/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/runs?limit=x", "").Code)
}

func TestMuxWithoutSummaries(t *testing.T) {
	log, _ := fixtures(t)
	extra := map[string]http.Handler{"/metrics": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})}
	mux := NewMux(log, nil, "", extra)
	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/runs", "").Code)
	assert.Equal(t, http.StatusTeapot, get(t, mux, "/metrics", "").Code)
}
