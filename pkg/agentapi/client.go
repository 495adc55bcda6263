// Package agentapi invokes the hosted procurement agents over HTTP and
// normalizes their {response: ...} envelope into routed events.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/procura/pkg/configutil"
	"github.com/harunnryd/procura/pkg/envelope"
	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/redact"
	"github.com/harunnryd/procura/pkg/resilience"
	"github.com/harunnryd/procura/pkg/router"
)

// Named agents. Their ids come from configuration.
const (
	AgentRFQ           = "rfq"
	AgentRFP           = "rfp"
	AgentContract      = "contract"
	AgentPricing       = "pricing"
	AgentCertification = "certification"
	AgentNegotiation   = "negotiation"
	AgentVendorSearch  = "vendor_search"
	AgentDecision      = "decision"
	AgentManager       = "manager"
	AgentGeneralChat   = "general_chat"
)

const (
	defaultPath    = "/v3/inference/chat/"
	defaultTimeout = 60 * time.Second
	providerName   = "agent_platform"
	maxErrorBody   = 4096
)

type Config struct {
	BaseURL   string            `mapstructure:"base_url"`
	Path      string            `mapstructure:"path"`
	APIKey    string            `mapstructure:"api_key"`
	UserID    string            `mapstructure:"user_id"`
	TimeoutMS int               `mapstructure:"timeout_ms"`
	IDs       map[string]string `mapstructure:"ids"`
}

// Request is one agent invocation. AgentID wins over Agent, which names
// one of the configured agents.
type Request struct {
	Agent     string
	AgentID   string
	UserID    string
	SessionID string
	Message   string
	Assets    []map[string]any
}

type Result struct {
	AgentID string
	// Raw is the response body as received.
	Raw   string
	Value any
	Event router.Event
}

type wireRequest struct {
	UserID    string           `json:"user_id"`
	AgentID   string           `json:"agent_id"`
	SessionID string           `json:"session_id"`
	Message   string           `json:"message"`
	Assets    []map[string]any `json:"assets,omitempty"`
}

type wireResponse struct {
	Response json.RawMessage `json:"response"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithRouter(r *router.Router) Option {
	return func(c *Client) {
		if r != nil {
			c.router = r
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(c *Client) {
		if obs != nil {
			c.obs = obs
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client does not retry; failures go back to the caller.
type Client struct {
	endpoint string
	apiKey   string
	userID   string
	ids      map[string]string
	http     *http.Client
	router   *router.Router
	obs      metrics.Observer
	log      *slog.Logger
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := configutil.RequireString(cfg.BaseURL, "agents.base_url"); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errorsx.Newf(errorsx.ReasonConfigInvalid, "agents.base_url %q is not an absolute url", cfg.BaseURL)
	}
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	ids := make(map[string]string, len(cfg.IDs))
	for name, id := range cfg.IDs {
		ids[configutil.NormalizeKey(name)] = strings.TrimSpace(id)
	}
	c := &Client{
		endpoint: base.String() + path,
		apiKey:   cfg.APIKey,
		userID:   cfg.UserID,
		ids:      ids,
		http:     &http.Client{Timeout: configutil.Millis(cfg.TimeoutMS, defaultTimeout)},
		router:   router.New(nil),
		obs:      metrics.NoopObserver{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AgentID resolves a named agent. Names match ignoring case, '_' and '-'.
func (c *Client) AgentID(name string) (string, bool) {
	id, ok := c.ids[configutil.NormalizeKey(name)]
	return id, ok && id != ""
}

// Agents lists the configured agent names.
func (c *Client) Agents() []string {
	out := make([]string, 0, len(c.ids))
	for name := range c.ids {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) Invoke(ctx context.Context, req Request) (Result, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		id, ok := c.AgentID(req.Agent)
		if !ok {
			return Result{}, errorsx.Newf(errorsx.ReasonAgentUnknown, "agent %q is not configured", req.Agent)
		}
		agentID = id
	}
	userID := req.UserID
	if userID == "" {
		userID = c.userID
	}
	body, err := json.Marshal(wireRequest{
		UserID:    userID,
		AgentID:   agentID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Assets:    req.Assets,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(agentID, "network_error", start)
		return Result{}, fmt.Errorf("invoke agent %s: %w", agentID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(agentID, "network_error", start)
		return Result{}, fmt.Errorf("read agent %s response: %w", agentID, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.record(agentID, "rate_limited", start)
		return Result{}, resilience.RateLimitError{
			Provider:   providerName,
			Message:    errorBody(raw),
			RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.record(agentID, "http_error", start)
		c.log.Warn("agent_call_failed",
			"agent_id", agentID,
			"request_id", requestID,
			"status", resp.StatusCode,
			"body", redact.Snippet(string(raw)),
		)
		return Result{}, errorsx.Newf(errorsx.ReasonAgentHTTP, "agent %s returned %d: %s", agentID, resp.StatusCode, errorBody(raw))
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil || len(wire.Response) == 0 {
		// Some deployments answer with the bare response value.
		wire.Response = raw
	}
	value := envelope.Normalize(wire.Response)
	event := c.router.Route(value)
	c.record(agentID, "ok", start)
	c.log.Debug("agent_call",
		"agent_id", agentID,
		"request_id", requestID,
		"session_id", req.SessionID,
		"intent", event.Intent(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{AgentID: agentID, Raw: string(raw), Value: value, Event: event}, nil
}

func (c *Client) record(agentID, status string, start time.Time) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventAgentCall,
		Time:  time.Now(),
		Value: float64(time.Since(start).Milliseconds()),
		Tags: map[string]string{
			"agent":  agentID,
			"status": status,
		},
	})
}

func errorBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return redact.Text(s)
}
