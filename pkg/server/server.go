// Package server exposes session streams and agent invocation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/procura/pkg/agentapi"
	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/resilience"
	"github.com/harunnryd/procura/pkg/stream"
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	JournalSize    int      `mapstructure:"journal_size"`
}

// Invoker calls one agent synchronously.
type Invoker interface {
	Invoke(ctx context.Context, req agentapi.Request) (agentapi.Result, error)
}

type handlers struct {
	hub    *Hub
	agents Invoker
	log    *slog.Logger
}

// New builds the HTTP handler. /metrics is served only when gatherer is
// set; the agent endpoint answers 503 when agents is nil.
func New(cfg Config, hub *Hub, agents Invoker, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{hub: hub, agents: agents, log: log}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Get("/health", h.health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/v1/sessions/{sessionID}", func(sr chi.Router) {
		sr.Post("/connect", h.connect)
		sr.Delete("/", h.disconnect)
		sr.Get("/events", h.events)
		sr.Post("/agents/{agent}", h.invoke)
	})
	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.hub.Draining() {
		status = "draining"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"sessions": h.hub.Count(),
	})
}

type connectRequest struct {
	Credential string `json:"credential"`
}

func (h *handlers) connect(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var body connectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	credential := body.Credential
	if credential == "" {
		credential = r.Header.Get("X-API-Key")
	}
	sess, err := h.hub.Connect(r.Context(), sessionID, credential)
	switch {
	case errors.Is(err, ErrDraining):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, stream.ErrSessionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Warn("session_connect_failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sess.ID,
		"state":      sess.Stream.State().String(),
	})
}

func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Remove(chi.URLParam(r, "sessionID")) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.hub.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	after, err := queryUint(r, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}
	limit, err := queryUint(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"state":      sess.Stream.State().String(),
		"last_seq":   sess.Journal.LastSeq(),
		"events":     sess.Journal.Since(after, int(limit)),
	})
}

type invokeRequest struct {
	AgentID string           `json:"agent_id"`
	UserID  string           `json:"user_id"`
	Message string           `json:"message"`
	Assets  []map[string]any `json:"assets"`
}

func (h *handlers) invoke(w http.ResponseWriter, r *http.Request) {
	if h.agents == nil {
		writeError(w, http.StatusServiceUnavailable, "agents are not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	agent := chi.URLParam(r, "agent")
	var body invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.agents.Invoke(r.Context(), agentapi.Request{
		Agent:     agent,
		AgentID:   body.AgentID,
		UserID:    body.UserID,
		SessionID: sessionID,
		Message:   body.Message,
		Assets:    body.Assets,
	})
	if err != nil {
		if d, ok := resilience.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.Round(time.Second)/time.Second)))
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	if sess, ok := h.hub.Get(sessionID); ok {
		meta := map[string]string{
			frames.MetaSource:   "agent_api",
			frames.MetaAgentKey: res.AgentID,
		}
		sess.Journal.Append(frames.NewOutputFrame(sessionID, time.Now().UnixNano(), res.Event, meta), time.Now())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": res.AgentID,
		"intent":   res.Event.Intent(),
		"event":    res.Event,
		"value":    res.Value,
	})
}

func statusFor(err error) int {
	switch {
	case resilience.IsRateLimit(err):
		return http.StatusTooManyRequests
	case errorsx.HasReason(err, errorsx.ReasonAgentUnknown):
		return http.StatusNotFound
	case errorsx.HasReason(err, errorsx.ReasonAgentHTTP):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryUint(r *http.Request, key string) (uint64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
