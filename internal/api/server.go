package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gridassign/gridassign/internal/config"
)

// Server wraps the HTTP server and mux for the admin/control surface.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds the three-endpoint admin surface named by SPEC_FULL.md
// §4.8: task claim, assignment lookup, and config reload. version tracks
// the currently-live RuntimeConfig's persisted version number.
func NewServer(
	port int,
	adminToken string,
	apiMaxBodyBytes int64,
	repo interface {
		ClaimRepo
		ConfigRepo
	},
	live *atomic.Pointer[config.RuntimeConfig],
	version *atomic.Int64,
) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	authed := http.NewServeMux()
	authed.Handle("POST /v1/tasks/{id}/claim", HandleClaimTask(repo))
	authed.Handle("GET /v1/tasks/{id}/assignment", HandleGetAssignment(repo))
	authed.Handle("POST /v1/config/reload", HandleConfigReload(repo, live, version))

	limitedAuthed := RequestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/v1/", AuthMiddleware(adminToken, limitedAuthed))

	return &Server{
		mux: mux,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: RequestIDMiddleware(mux),
		},
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
