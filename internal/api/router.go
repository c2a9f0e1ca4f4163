// Package api wires the broker's public surface onto an HTTP router: the
// read-only session lookup, a health probe, Prometheus scraping, and the
// WebSocket upgrade endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kapdap/cadence/internal/logging"
	"github.com/kapdap/cadence/internal/message"
)

var log = logging.L("api")

// SessionLookup is the read surface a router needs from the broker.
type SessionLookup interface {
	Lookup(sessionID string) (message.SessionPublic, bool)
}

// WSHandler serves the WebSocket upgrade endpoint. Satisfied by
// *transport.Server.
type WSHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// New builds the router: health, metrics, the session snapshot endpoint,
// the WebSocket mount, and, when staticDir is set, a static file server for
// everything else.
func New(broker SessionLookup, ws WSHandler, wsPath, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/session/{sessionId}", handleSessionLookup(broker))
	r.Handle(wsPath, ws)

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleSessionLookup(broker SessionLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := message.CanonicalizeSessionID(chi.URLParam(r, "sessionId"))
		if !message.ValidSessionID(sessionID) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		snapshot, ok := broker.Lookup(sessionID)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Error("encode session snapshot failed", "error", err)
		}
	}
}
