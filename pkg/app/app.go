// Package app wires configuration, transports, session streams, the agent
// client and the HTTP surface into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/harunnryd/procura/pkg/agentapi"
	"github.com/harunnryd/procura/pkg/agents"
	"github.com/harunnryd/procura/pkg/clock"
	"github.com/harunnryd/procura/pkg/logging"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/observers"
	"github.com/harunnryd/procura/pkg/redact"
	"github.com/harunnryd/procura/pkg/router"
	"github.com/harunnryd/procura/pkg/runner"
	"github.com/harunnryd/procura/pkg/server"
	"github.com/harunnryd/procura/pkg/stream"
)

const drainTimeout = 30 * time.Second

type Options struct {
	Transports *TransportRegistry
	Clock      clock.Clock
	Logger     *slog.Logger
}

type App struct {
	cfg      Config
	log      *slog.Logger
	hub      *server.Hub
	agents   *agentapi.Client
	handler  http.Handler
	http     *http.Server
	runner   *runner.LifecycleRunner
	asyncObs *metrics.AsyncObserver
	closers  []func() error
}

func New(cfg Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Transports == nil {
		opts.Transports = DefaultTransports()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log.Info("procura_init",
		"environment", cfg.Environment,
		"transport", cfg.Transport.Provider,
		"unknown_policy", cfg.Stream.UnknownPolicy,
		"agents_base_url", cfg.Agents.BaseURL,
	)

	a := &App{cfg: cfg, log: log}

	// Observers
	obsList := []metrics.Observer{
		observers.NewLoggerObserver(logging.NewComponentLogger(log, "metrics")),
		observers.NewAgentLatencyObserver(logging.NewComponentLogger(log, "latency")),
	}
	var gatherer prometheus.Gatherer
	if cfg.Observability.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom := metrics.NewPromObserver()
		if err := prom.Register(reg); err != nil {
			return nil, fmt.Errorf("register prometheus collectors: %w", err)
		}
		obsList = append(obsList, prom)
		gatherer = reg
	}
	var timeline *observers.TimelineObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			maxAge := time.Duration(cfg.Observability.RetentionDays) * 24 * time.Hour
			if n, err := observers.PurgeArtifacts(dir, maxAge, time.Now()); err != nil {
				log.Warn("artifact_purge_failed", "dir", dir, "error", err)
			} else if n > 0 {
				log.Info("artifact_purge", "dir", dir, "removed", n)
			}
		}
		timeline = observers.NewTimelineObserver(dir)
		summary := observers.NewSummaryObserver(dir)
		obsList = append(obsList, timeline, summary)
		a.closers = append(a.closers, timeline.Close, summary.Close)
	}
	if path := strings.TrimSpace(cfg.Observability.MetricsJSONL); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("metrics jsonl dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics jsonl: %w", err)
		}
		obsList = append(obsList, metrics.NewJSONLObserver(f))
		a.closers = append(a.closers, f.Close)
	}
	var obs metrics.Observer = observers.NewMultiObserver(obsList...)
	if rate := cfg.Observability.MetricsSampleRate; rate > 0 && rate < 1 {
		obs = metrics.NewSamplingObserver(obs, rate)
	}
	a.asyncObs = metrics.NewAsyncObserver(obs, cfg.Observability.AsyncBuffer)

	// Classification and routing
	registry := agents.Default()
	if len(cfg.Agents.Registry) > 0 {
		extra, err := agents.DecodeIdentities(cfg.Agents.Registry)
		if err != nil {
			return nil, err
		}
		registry = agents.Extend(extra...)
	}
	rt := router.New(registry, router.WithLogger(logging.NewComponentLogger(log, "router")))

	// Transport and sessions
	dialer, err := opts.Transports.Build(cfg.Transport.Provider, cfg, logging.NewComponentLogger(log, "transport"))
	if err != nil {
		return nil, err
	}
	streamLog := logging.NewComponentLogger(log, "stream")
	a.hub = server.NewHub(func(sessionID string) *stream.Stream {
		return stream.New(cfg.Stream.Config, stream.Options{
			Dialer:   dialer,
			Registry: registry,
			Router:   rt,
			Clock:    opts.Clock,
			Observer: a.asyncObs,
			Logger:   streamLog.With("session_id", sessionID),
		})
	}, cfg.Server.JournalSize, logging.NewComponentLogger(log, "hub"))
	if timeline != nil {
		a.hub.OnRemove(func(sessionID string) {
			if err := timeline.CloseSession(sessionID); err != nil {
				log.Warn("timeline_close_failed", "session_id", sessionID, "error", err)
			}
		})
	}

	// Agents
	var invoker server.Invoker
	if strings.TrimSpace(cfg.Agents.BaseURL) != "" {
		client, err := agentapi.NewClient(cfg.Agents.Config,
			agentapi.WithRouter(rt),
			agentapi.WithObserver(a.asyncObs),
			agentapi.WithLogger(logging.NewComponentLogger(log, "agentapi")),
		)
		if err != nil {
			return nil, err
		}
		a.agents = client
		invoker = client
		log.Info("agents_configured", "agents", client.Agents())
	}

	a.handler = server.New(cfg.Server, a.hub, invoker, gatherer, logging.NewComponentLogger(log, "http"))
	a.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hooks := runner.Hooks{
		OnStart: a.start,
		OnStop:  a.closeObservers,
	}
	a.runner = runner.NewLifecycleRunner(runner.DrainerFunc(a.drain), hooks, drainTimeout)
	return a, nil
}

// Handler returns the HTTP surface without starting a listener.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Hub() *server.Hub { return a.hub }

// Run serves until ctx is done, then drains every session.
func (a *App) Run(ctx context.Context) error {
	return a.runner.Run(ctx)
}

func (a *App) Stop() error {
	return a.runner.Stop()
}

func (a *App) start() error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.http.Addr, err)
	}
	go func() {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http_serve_failed", "error", err)
		}
	}()
	a.log.Info("procura_ready", "addr", ln.Addr().String())
	return nil
}

func (a *App) drain(ctx context.Context) error {
	httpErr := a.http.Shutdown(ctx)
	hubErr := a.hub.Drain(ctx)
	return errors.Join(httpErr, hubErr)
}

func (a *App) closeObservers() {
	if a.asyncObs != nil {
		if err := a.asyncObs.Close(); err != nil {
			a.log.Warn("metrics_close_failed", "error", err)
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("artifact_close_failed", "error", err)
		}
	}
	a.log.Info("shutdown", "goroutines", runtime.NumGoroutine(), "sessions", a.hub.Count())
}
