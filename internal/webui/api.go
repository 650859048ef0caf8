package webui

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
)

const statusHistory = 20

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"flip": func(on bool) string {
		if on {
			return "false"
		}
		return "true"
	},
}

// tracesResponse is the JSON shape for /api/traces.
type tracesResponse struct {
	Generation  uint64              `json:"generation"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	Loaded      bool                `json:"loaded"`
	Paused      bool                `json:"paused"`
	HasNextPage bool                `json:"has_next_page"`
	Error       string              `json:"error,omitempty"`
	NewIDs      []string            `json:"new_ids,omitempty"`
	Traces      []*invocation.Trace `json:"traces"`
}

// handleTraces returns the current page mapped into trace rows, in the
// order the store returned them.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	snap := s.feed.Snapshot()
	traces := invocation.FromInvocations(snap.Invocations)
	pageSize := s.controls.PageSize()
	writeJSON(w, tracesResponse{
		Generation:  snap.Generation,
		Page:        s.controls.Page(),
		PageSize:    pageSize,
		Loaded:      snap.Loaded,
		Paused:      s.controls.Paused(),
		HasNextPage: snap.Loaded && pageSize > 0 && len(snap.Invocations) == pageSize,
		Error:       snap.Err,
		NewIDs:      snap.NewIDs,
		Traces:      traces,
	})
}

// handleTrace returns one trace, searched at any depth of the current page.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tr := invocation.Find(invocation.FromInvocations(s.feed.Snapshot().Invocations), id)
	if tr == nil {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tr)
}

// statusResponse is the JSON shape for /api/status.
type statusResponse struct {
	Generation uint64               `json:"generation"`
	Polls      uint64               `json:"polls"`
	Failures   uint64               `json:"failures"`
	Paused     bool                 `json:"paused"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	Rows       int                  `json:"rows"`
	Loaded     bool                 `json:"loaded"`
	Error      string               `json:"error,omitempty"`
	Views      int                  `json:"views"`
	Uptime     float64              `json:"uptime_seconds"`
	History    []storage.PollRecord `json:"history"`
}

// handleStatus returns feed counters, polling state and recent polls.
// ?history=N changes how many poll records are included.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	n := statusHistory
	if raw := r.URL.Query().Get("history"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			n = v
		}
	}

	snap := s.feed.Snapshot()
	history := s.feed.History(n)
	if history == nil {
		history = []storage.PollRecord{}
	}
	writeJSON(w, statusResponse{
		Generation: s.feed.Generation(),
		Polls:      s.feed.Polls(),
		Failures:   s.feed.Failures(),
		Paused:     s.controls.Paused(),
		Page:       s.controls.Page(),
		PageSize:   s.controls.PageSize(),
		Rows:       len(snap.Invocations),
		Loaded:     snap.Loaded,
		Error:      snap.Err,
		Views:      s.views.len(),
		Uptime:     s.feed.UptimeSeconds(),
		History:    history,
	})
}
