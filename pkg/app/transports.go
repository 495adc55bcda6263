package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/procura/pkg/configutil"
	"github.com/harunnryd/procura/pkg/transports"
	"github.com/harunnryd/procura/pkg/transports/mock"
	"github.com/harunnryd/procura/pkg/transports/websocket"
)

// TransportFactory builds the dialer used by every session stream.
type TransportFactory func(cfg Config, log *slog.Logger) (transports.Dialer, error)

type TransportRegistry struct {
	factories map[string]TransportFactory
}

func NewTransportRegistry() *TransportRegistry {
	return &TransportRegistry{factories: make(map[string]TransportFactory)}
}

// DefaultTransports registers the websocket and mock dialers.
func DefaultTransports() *TransportRegistry {
	r := NewTransportRegistry()
	r.Register("websocket", buildWebSocket)
	r.Register("mock", func(Config, *slog.Logger) (transports.Dialer, error) {
		return mock.NewDialer(), nil
	})
	return r
}

func (r *TransportRegistry) Register(name string, factory TransportFactory) {
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *TransportRegistry) Build(provider string, cfg Config, log *slog.Logger) (transports.Dialer, error) {
	fn := r.factories[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg, log)
}

func buildWebSocket(cfg Config, log *slog.Logger) (transports.Dialer, error) {
	settings := cfg.Transport.Settings
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Optional: []string{
			"url", "session_param", "credential_param", "credential_header",
			"handshake_ms", "ping_interval_ms", "pong_wait_ms", "read_limit_bytes", "buffer",
		},
	}); err != nil {
		return nil, fmt.Errorf("transport.settings: %w", err)
	}
	var wsCfg websocket.Config
	if err := configutil.DecodeSettings(settings, &wsCfg); err != nil {
		return nil, fmt.Errorf("transport.settings: %w", err)
	}
	if wsCfg.URL == "" {
		wsCfg.URL = cfg.Stream.WSURL
	}
	if wsCfg.ReadLimitBytes == 0 {
		wsCfg.ReadLimitBytes = cfg.Stream.ReadLimitBytes
	}
	if err := configutil.RequireString(wsCfg.URL, "transport.settings.url"); err != nil {
		return nil, err
	}
	return websocket.NewDialer(wsCfg, log), nil
}
