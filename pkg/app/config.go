package app

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/harunnryd/procura/pkg/agentapi"
	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/processors"
	"github.com/harunnryd/procura/pkg/server"
	"github.com/harunnryd/procura/pkg/stream"
)

type Config struct {
	Stream        StreamConfig        `mapstructure:"stream"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Agents        AgentsConfig        `mapstructure:"agents"`
	Server        server.Config       `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

// StreamConfig holds the reconnect policy plus the metrics socket
// shortcuts that fill in transport settings left unset.
type StreamConfig struct {
	stream.Config  `mapstructure:",squash"`
	WSURL          string `mapstructure:"ws_url"`
	ReadLimitBytes int64  `mapstructure:"read_limit_bytes"`
}

type TransportConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AgentsConfig struct {
	agentapi.Config `mapstructure:",squash"`
	Registry        []map[string]any `mapstructure:"registry"`
}

type ObservabilityConfig struct {
	ArtifactsDir      string  `mapstructure:"artifacts_dir"`
	RetentionDays     int     `mapstructure:"retention_days"`
	MetricsSampleRate float64 `mapstructure:"metrics_sample_rate"`
	MetricsJSONL      string  `mapstructure:"metrics_jsonl"`
	Prometheus        bool    `mapstructure:"prometheus"`
	AsyncBuffer       int     `mapstructure:"async_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("stream.base_delay_ms", 1000)
	v.SetDefault("stream.max_attempts", 5)
	v.SetDefault("stream.unknown_policy", string(processors.UnknownSurface))
	v.SetDefault("stream.read_limit_bytes", 4<<20)
	v.SetDefault("transport.provider", "websocket")
	v.SetDefault("agents.path", "/v3/inference/chat/")
	v.SetDefault("agents.timeout_ms", 60000)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.journal_size", 256)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.metrics_sample_rate", 1.0)
	v.SetDefault("observability.prometheus", true)
	v.SetDefault("observability.async_buffer", 2048)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Transport.Provider))
	if provider == "" {
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "transport.provider is required")
	}
	if provider == "websocket" && strings.TrimSpace(c.Stream.WSURL) == "" && settingString(c.Transport.Settings, "url") == "" {
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "stream.ws_url or transport.settings.url is required")
	}
	switch processors.UnknownPolicy(c.Stream.UnknownPolicy) {
	case processors.UnknownSurface, processors.UnknownLog, "":
	default:
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "stream.unknown_policy must be one of [surface, log], got %s", c.Stream.UnknownPolicy)
	}
	if c.Stream.MaxAttempts < 0 || c.Stream.BaseDelayMS < 0 {
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "stream.max_attempts and stream.base_delay_ms must not be negative")
	}
	if r := c.Observability.MetricsSampleRate; r < 0 || r > 1 {
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "observability.metrics_sample_rate must be between 0 and 1, got %v", r)
	}
	return nil
}

func settingString(settings map[string]any, key string) string {
	for k, v := range settings {
		if strings.EqualFold(k, key) {
			s, _ := v.(string)
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transport.Settings = expandSettings(cfg.Transport.Settings)
	for i := range cfg.Agents.Registry {
		cfg.Agents.Registry[i] = expandSettings(cfg.Agents.Registry[i])
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.String {
			for i := 0; i < v.Len(); i++ {
				expandValue(v.Index(i))
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				expanded := os.ExpandEnv(v.MapIndex(key).String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
