package webui

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// pushURLHeader carries the query string the page script pushes into the
// browser history after a selection.
const pushURLHeader = "X-Push-Url"

type pageData struct {
	Title string
	Table tableData
}

// handleUI serves the full traces page. ?i=<id> focuses that trace, now or
// on the first load that contains it.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	v := s.view(w, r)
	v.mu.Lock()
	snap := s.feed.Snapshot()
	v.sync(snap, s.controls)
	if id := r.URL.Query().Get("i"); id != "" {
		v.page.SelectFromQuery(id)
	}
	data := pageData{Title: "Traces", Table: v.data(snap)}
	v.mu.Unlock()

	s.render(w, "page", data)
}

// handleTable re-renders the table fragment. ?i= behaves as on the page.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("i")
	s.withView(w, r, func(v *view) int {
		if id != "" {
			v.page.SelectFromQuery(id)
		}
		return http.StatusOK
	})
}

func (s *Server) handleToggleRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.withView(w, r, func(v *view) int {
		if _, ok := v.findTrace(id); !ok {
			return http.StatusNotFound
		}
		v.page.Table.State().ToggleRow(id)
		return http.StatusOK
	})
}

func (s *Server) handleSelectRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	checked, err := parseChecked(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.withView(w, r, func(v *view) int {
		tr, ok := v.findTrace(id)
		if !ok {
			return http.StatusNotFound
		}
		v.page.Table.State().ToggleSelection(tr, checked)
		return http.StatusOK
	})
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	checked, err := parseChecked(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.withView(w, r, func(v *view) int {
		v.page.Table.State().ToggleAllSelection(checked)
		return http.StatusOK
	})
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.withView(w, r, func(v *view) int {
		if !v.page.Table.Sort(key) {
			return http.StatusBadRequest
		}
		return http.StatusOK
	})
}

// handlePage switches the shared page. The table shows the loading state
// until the poller lands the new page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		http.Error(w, "page must be a non-negative integer", http.StatusBadRequest)
		return
	}
	s.controls.SetPage(n)
	s.withView(w, r, func(v *view) int { return http.StatusOK })
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.withView(w, r, func(v *view) int {
		push, ok := v.page.SelectTrace(id)
		if !ok {
			return http.StatusNotFound
		}
		w.Header().Set(pushURLHeader, push)
		return http.StatusOK
	})
}

// handleNav moves the focused trace one row up or down.
func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	var delta int
	switch chi.URLParam(r, "dir") {
	case "up":
		delta = -1
	case "down":
		delta = 1
	default:
		http.Error(w, "direction must be up or down", http.StatusBadRequest)
		return
	}
	s.withView(w, r, func(v *view) int {
		if tr := v.page.Table.MoveSelection(delta); tr != nil {
			w.Header().Set(pushURLHeader, "?i="+tr.ID)
		}
		return http.StatusOK
	})
}

func (s *Server) handlePolling(w http.ResponseWriter, r *http.Request) {
	paused := s.controls.Toggle()
	if s.verbose {
		log.Printf("⏯️  webui: polling paused=%v\n", paused)
	}
	s.withView(w, r, func(v *view) int { return http.StatusOK })
}

// withView syncs the caller's view, applies fn under the view lock and
// answers with the re-rendered table fragment. A non-200 status from fn is
// returned as a plain error without a body.
func (s *Server) withView(w http.ResponseWriter, r *http.Request, fn func(v *view) int) {
	v := s.view(w, r)
	v.mu.Lock()
	snap := s.feed.Snapshot()
	v.sync(snap, s.controls)
	status := fn(v)
	data := v.data(snap)
	v.mu.Unlock()

	if status != http.StatusOK {
		w.Header().Del(pushURLHeader)
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.render(w, "table", data)
}

// render executes a template into a buffer so a failure can still produce
// a clean 500.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("⚠️  webui: failed to render %s: %v\n", name, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func parseChecked(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("checked")
	if raw == "" {
		return true, nil
	}
	checked, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("checked must be true or false, got %q", raw)
	}
	return checked, nil
}
