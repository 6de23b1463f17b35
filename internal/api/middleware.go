package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDMiddleware stamps every request with a UUID, matching the
// teacher's per-request correlation-id convention: the id is attached to
// the request context, echoed back in the X-Request-Id response header,
// and prefixed onto the bracket-tagged access log line.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		log.Printf("[api] request_id=%s method=%s path=%s", id, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request id stamped by RequestIDMiddleware, or ""
// if none is present (e.g. in a unit test that calls a handler directly).
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// AuthMiddleware validates the Bearer token in the Authorization header
// against the expected admin token. An empty adminToken disables auth
// (matching the teacher's "auth mode" convention for unconfigured tokens).
func AuthMiddleware(adminToken string, next http.Handler) http.Handler {
	if adminToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid Authorization header format")
			return
		}

		if auth[len(prefix):] != adminToken {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestBodyLimitMiddleware caps the request body at maxBytes. A zero or
// negative maxBytes disables the limit.
func RequestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}
