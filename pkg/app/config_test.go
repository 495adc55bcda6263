package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/procura/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procura.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("PROCURA_WS_URL", "wss://metrics.example.com/ws")
	t.Setenv("PROCURA_API_KEY", "secret")
	path := writeConfig(t, `
stream:
  ws_url: ${PROCURA_WS_URL}
agents:
  base_url: https://agents.example.com
  api_key: ${PROCURA_API_KEY}
  ids:
    rfq: agent-rfq
  registry:
    - key: logistics_agent
      canonical_name: Logistics Planner ${PROCURA_API_KEY}
      status_description: Planning shipments
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.WSURL != "wss://metrics.example.com/ws" {
		t.Fatalf("ws_url not expanded: %q", cfg.Stream.WSURL)
	}
	if cfg.Agents.APIKey != "secret" {
		t.Fatalf("api_key not expanded: %q", cfg.Agents.APIKey)
	}
	if cfg.Agents.Registry[0]["canonical_name"] != "Logistics Planner secret" {
		t.Fatalf("registry settings not expanded: %+v", cfg.Agents.Registry[0])
	}
	if cfg.Stream.BaseDelayMS != 1000 || cfg.Stream.MaxAttempts != 5 {
		t.Fatalf("unexpected reconnect defaults %+v", cfg.Stream.Config)
	}
	if cfg.Stream.UnknownPolicy != "surface" {
		t.Fatalf("unexpected unknown policy %q", cfg.Stream.UnknownPolicy)
	}
	if cfg.Transport.Provider != "websocket" || cfg.Server.Addr != ":8080" || cfg.Server.JournalSize != 256 {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Transport, cfg.Server)
	}
	if !cfg.Privacy.RedactPII || !cfg.Observability.Prometheus {
		t.Fatalf("unexpected privacy/observability defaults %+v %+v", cfg.Privacy, cfg.Observability)
	}
	if cfg.Agents.IDs["rfq"] != "agent-rfq" {
		t.Fatalf("unexpected agent ids %+v", cfg.Agents.IDs)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing ws url": `
transport:
  provider: websocket
`,
		"bad policy": `
stream:
  ws_url: wss://x
  unknown_policy: explode
`,
		"negative attempts": `
stream:
  ws_url: wss://x
  max_attempts: -1
`,
		"sample rate": `
stream:
  ws_url: wss://x
observability:
  metrics_sample_rate: 2
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
				t.Fatalf("expected config_invalid, got %v", err)
			}
		})
	}
}

func TestLoadConfigMockNeedsNoURL(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "transport:\n  provider: mock\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Provider != "mock" {
		t.Fatalf("unexpected provider %q", cfg.Transport.Provider)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestTransportRegistry(t *testing.T) {
	r := DefaultTransports()
	if _, err := r.Build("nope", Config{}, nil); err == nil {
		t.Fatalf("expected unregistered provider error")
	}
	if _, err := r.Build("websocket", Config{}, nil); err == nil {
		t.Fatalf("expected missing url error")
	}
	cfg := Config{Transport: TransportConfig{Settings: map[string]any{"bogus": 1}}}
	cfg.Stream.WSURL = "wss://x"
	if _, err := r.Build("websocket", cfg, nil); err == nil {
		t.Fatalf("expected unknown setting error")
	}
	cfg.Transport.Settings = nil
	if d, err := r.Build(" WebSocket ", cfg, nil); err != nil || d == nil {
		t.Fatalf("expected websocket dialer, got %v", err)
	}
	if d, err := r.Build("mock", Config{}, nil); err != nil || d == nil {
		t.Fatalf("expected mock dialer, got %v", err)
	}
}
