// Package ingress exposes the Ingress HTTP API: the entry point the host
// application uses to hand commands to the bridge, plus health and metrics
// endpoints for operators.
package ingress

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.databridge.dev/internal/common/health"
	"go.databridge.dev/internal/common/metrics"
	"go.databridge.dev/internal/store"
)

// Server serves the Ingress HTTP API.
type Server struct {
	store        store.Store
	sharedSecret string
	health       *health.Checker
}

// Config configures a Server.
type Config struct {
	SharedSecret string
	CORSOrigins  []string
}

// NewRouter builds the chi router for the Ingress API, health, and metrics
// endpoints, following the same middleware stack and endpoint layout the
// rest of this fleet's services use.
func NewRouter(s store.Store, checker *health.Checker, cfg Config) http.Handler {
	srv := &Server{store: s, sharedSecret: cfg.SharedSecret, health: checker}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Content-Type", "X-Shared-Secret", "X-Idempotency-Key"},
			AllowCredentials: false,
		}))
	}

	r.Get("/health", handleHealth)
	r.Get("/q/health", checker.HandleHealth)
	r.Get("/q/health/live", checker.HandleLive)
	r.Get("/q/health/ready", checker.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(srv.requireSharedSecret)
		api.Post("/inbox", srv.handleInbox)
	})

	return r
}

// requireSharedSecret rejects requests that don't present the configured
// shared secret. When no secret is configured, auth is disabled — useful in
// development but never the production default.
func (s *Server) requireSharedSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get("X-Shared-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.sharedSecret)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing shared secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth is the cheap, dependency-free liveness probe: always 200,
// never touches the Store.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type inboxResponse struct {
	OK             bool   `json:"ok"`
	Stored         bool   `json:"stored"`
	IdempotencyKey string `json:"idempotency_key"`
}

// handleInbox accepts a raw command payload from the host, persisting it
// durably before returning. The Router Loop picks it up asynchronously — the
// host does not wait for device dispatch.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.IngressRequestDuration.WithLabelValues("/api/inbox").Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		metrics.IngressRequestsTotal.WithLabelValues("error").Inc()
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		metrics.IngressRequestsTotal.WithLabelValues("rejected").Inc()
		writeJSONError(w, http.StatusBadRequest, "empty request body")
		return
	}

	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	source := extractSource(body, r.Header.Get("Content-Type"))

	_, stored, err := s.store.InboxInsert(r.Context(), idempotencyKey, source, body)
	if err != nil {
		metrics.IngressRequestsTotal.WithLabelValues("error").Inc()
		slog.Error("ingress: inbox insert failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	if stored {
		metrics.IngressRequestsTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.IngressRequestsTotal.WithLabelValues("deduped").Inc()
	}

	writeJSON(w, http.StatusOK, inboxResponse{
		OK:             true,
		Stored:         stored,
		IdempotencyKey: idempotencyKey,
	})
}

// extractSource pulls the JSON "source" field out of a JSON request body.
// Plaintext bodies (Content-Type without "json") have no source.
func extractSource(body []byte, contentType string) string {
	if !strings.Contains(contentType, "json") {
		return ""
	}
	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if v, ok := probe["source"].(string); ok {
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
