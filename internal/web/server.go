package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"graderelay/internal/gitlab"
)

// Server is the HTTP face of the relay: it ingests GitLab push webhooks on
// /push and serves artifact files under /zips/.
type Server struct {
	base   context.Context
	secret string
	zipDir string
	hooks  chan<- gitlab.PushEvent
	logger *slog.Logger
}

// NewServer wires the HTTP surface. Accepted hooks go out on hooks; base
// bounds the lifetime of the forwarding goroutines.
func NewServer(base context.Context, secret, zipDir string, hooks chan<- gitlab.PushEvent, logger *slog.Logger) *Server {
	return &Server{
		base:   base,
		secret: secret,
		zipDir: zipDir,
		hooks:  hooks,
		logger: logger,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/push", s.handlePush)
	r.Get("/"+zipPrefix+"/*", s.handleZip)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.logger.Info("unknown incoming request", "method", req.Method, "path", req.URL.Path)
		http.NotFound(w, req)
	})
	return r
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var hook gitlab.PushEvent
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		s.logger.Error("error when decoding body", "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.secret != "" {
		// Never echo the expected value; the log line alone has to do.
		token := r.Header.Get("X-Gitlab-Token")
		if token == "" {
			s.logger.Error("missing secret token with hook", "source", hook.Desc())
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if token != s.secret {
			s.logger.Error("incorrect secret token sent to the hook", "source", hook.Desc())
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	switch {
	case hook.ObjectKind != "push":
		s.logger.Debug("ignoring event of unknown kind", "kind", hook.ObjectKind, "source", hook.Desc())
	case hook.IsDelete():
		s.logger.Debug("ignoring branch deletion event", "source", hook.Desc())
	default:
		s.logger.Debug("received hook and will pass it around", "source", hook.Desc())
		// The sender is acknowledged before the relay sees the hook; a
		// full channel blocks this goroutine, never the accept loop.
		go s.forward(hook)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forward(hook gitlab.PushEvent) {
	select {
	case s.hooks <- hook:
	case <-s.base.Done():
		s.logger.Error("unable to pass hook around, dispatcher is gone", "source", hook.Desc())
	}
}

func (s *Server) handleZip(w http.ResponseWriter, r *http.Request) {
	if !isAcceptablePath(r.URL.Path) {
		// 404, not 403: path-guard rejections must be indistinguishable
		// from missing files.
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/"+zipPrefix+"/")
	file := filepath.Join(s.zipDir, filepath.FromSlash(name))
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		s.logger.Warn("unable to serve", "path", r.URL.Path)
		http.NotFound(w, r)
		return
	}
	s.logger.Debug("serving", "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/zip")
	http.ServeFile(w, r, file)
}
