// Package webui serves the browser dashboard: the traces page, the table
// fragments its controls swap in, a small JSON API and a WebSocket that
// tells open pages when the feed changed.
package webui

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/tobert/trace-studio/internal/storage"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

const (
	sessionName    = "trace-studio"
	sessionViewKey = "view"

	// KeepaliveInterval is how often an idle WebSocket gets a status frame.
	KeepaliveInterval = 15 * time.Second
)

// Controls is the shared polling state the dashboard drives. *poller.Poller
// implements it.
type Controls interface {
	Page() int
	SetPage(n int) bool
	PageSize() int
	Paused() bool
	Pause()
	Resume()
	Toggle() bool
	Refresh()
}

// Config configures a Server.
type Config struct {
	Feed     *storage.Feed
	Controls Controls

	// SessionSecret signs the view cookie. Empty generates a random secret,
	// which forgets every browser's view on restart.
	SessionSecret string

	OmitColumns []string
	ExpandAll   bool
	Now         func() time.Time
	Verbose     bool
}

// Server serves the web dashboard.
type Server struct {
	feed     *storage.Feed
	controls Controls
	sessions *sessions.CookieStore
	views    *viewStore
	tmpl     *template.Template
	now      func() time.Time
	verbose  bool

	keepalive time.Duration
	mounts    []mount
}

type mount struct {
	pattern string
	handler http.Handler
}

// New creates a web UI server.
func New(cfg Config) (*Server, error) {
	if cfg.Feed == nil {
		return nil, fmt.Errorf("feed cannot be nil")
	}
	if cfg.Controls == nil {
		return nil, fmt.Errorf("controls cannot be nil")
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		if cfg.Verbose {
			log.Println("🍪 webui: no session secret configured, using a random one")
		}
	}

	store := sessions.NewCookieStore(secret)
	store.MaxAge(86400 * 30)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	tmpl, err := template.New("webui").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		feed:      cfg.Feed,
		controls:  cfg.Controls,
		sessions:  store,
		views:     newViewStore(cfg.OmitColumns, cfg.ExpandAll, cfg.Controls.PageSize(), now),
		tmpl:      tmpl,
		now:       now,
		verbose:   cfg.Verbose,
		keepalive: KeepaliveInterval,
	}, nil
}

// Handler returns the router with logging, panic recovery and compression.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	if s.verbose {
		r.Use(middleware.Logger)
	}
	r.Use(
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.RegisterRoutes(r)
	for _, m := range s.mounts {
		r.Mount(m.pattern, m.handler)
	}
	return r
}

// Mount serves h under pattern next to the dashboard, e.g. the MCP HTTP
// transport at /mcp. Call it before Handler or Serve.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mounts = append(s.mounts, mount{pattern: pattern, handler: h})
}

// RegisterRoutes attaches web UI routes to an existing router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/", s.handleUIRedirect)
	r.Get("/ui", s.handleUIRedirect)
	r.Get("/ui/", s.handleUI)
	r.Get("/ui/table", s.handleTable)
	r.Post("/ui/rows/{id}/toggle", s.handleToggleRow)
	r.Post("/ui/rows/{id}/select", s.handleSelectRow)
	r.Post("/ui/select-all", s.handleSelectAll)
	r.Post("/ui/sort/{key}", s.handleSort)
	r.Post("/ui/page/{n}", s.handlePage)
	r.Post("/ui/focus/{id}", s.handleFocus)
	r.Post("/ui/nav/{dir}", s.handleNav)
	r.Post("/ui/polling", s.handlePolling)
	r.Handle("/ui/static/*", s.staticHandler())
	r.Get("/api/traces", s.handleTraces)
	r.Get("/api/traces/{id}", s.handleTrace)
	r.Get("/api/status", s.handleStatus)
	r.Get("/ws", s.handleWebSocket)
}

// ListenAndServe serves the dashboard on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves the dashboard on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) staticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/ui/static/", http.FileServer(http.FS(sub)))
}

// view returns the caller's per-browser view, creating it and setting the
// session cookie when needed. It must run before anything writes the body.
func (s *Server) view(w http.ResponseWriter, r *http.Request) *view {
	session, _ := s.sessions.Get(r, sessionName)
	id, _ := session.Values[sessionViewKey].(string)

	if v := s.views.get(id); v != nil {
		return v
	}

	id = newViewID()
	session.Values[sessionViewKey] = id
	if err := session.Save(r, w); err != nil {
		log.Printf("⚠️  webui: failed to save session: %v\n", err)
	}
	return s.views.create(id)
}

func newViewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Server) handleUIRedirect(w http.ResponseWriter, r *http.Request) {
	target := "/ui/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
