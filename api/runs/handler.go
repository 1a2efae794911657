// Package runs exposes the stored run history over HTTP.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/infra/runstore"
)

// Summaries reads run summaries.
type Summaries interface {
	Load(ctx context.Context, id string) (runstore.Summary, error)
	List(ctx context.Context, limit int) ([]runstore.Summary, error)
}

// authorized checks the bearer token when one is configured.
func authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" || r.Header.Get("Authorization") == "Bearer "+token {
		return true
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewIterationsHandler serves GET /api/iterations. The run_id and instance
// parameters filter the records, start and end (RFC 3339) bound them in time.
func NewIterationsHandler(store runlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		params := r.URL.Query()
		q := runlog.Query{RunID: params.Get("run_id"), Instance: params.Get("instance")}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			if s := params.Get(name); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					http.Error(w, "invalid "+name, http.StatusBadRequest)
					return
				}
				*dst = t
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.Record{}
		}
		writeJSON(w, records)
	})
}

// NewListHandler serves GET /api/runs, most recent first. The limit
// parameter caps the number of summaries.
func NewListHandler(store Summaries, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		list, err := store.List(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	})
}

// NewRunHandler serves GET /api/runs/{id}.
func NewRunHandler(store Summaries, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r, token) {
			return
		}
		sum, err := store.Load(r.Context(), r.PathValue("id"))
		if errors.Is(err, runstore.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sum)
	})
}

// NewMux mounts the handlers. Run summaries are served only when summaries
// is not nil; extra handlers such as /metrics are mounted as given.
func NewMux(iterations runlog.Store, summaries Summaries, token string, extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/iterations", NewIterationsHandler(iterations, token))
	if summaries != nil {
		mux.Handle("GET /api/runs", NewListHandler(summaries, token))
		mux.Handle("GET /api/runs/{id}", NewRunHandler(summaries, token))
	}
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	return mux
}
