package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/edgecap/pkg/capability"
	"github.com/psantana5/edgecap/pkg/node"
	"github.com/psantana5/edgecap/pkg/telemetry"
	edgetls "github.com/psantana5/edgecap/pkg/tls"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. EDGECAP_LOG_LEVEL
const EnvPrefix = "EDGECAP"

// Telemetry source names accepted in the source key
const (
	SourceHost = "host"
	SourceEnv  = "env"
	SourceNone = "none"
)

// Config is the complete edgecap configuration
type Config struct {
	Source  string        `mapstructure:"source" yaml:"source"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Refresh RefreshConfig `mapstructure:"refresh" yaml:"refresh"`
	Policy  PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// LogConfig controls logger construction
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	File  bool   `mapstructure:"file" yaml:"file"` // also write under /var/log/edgecap
	// MaxSizeMB rotates the log file from watch once it grows past this; 0 disables
	MaxSizeMB int64 `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// RefreshConfig controls how often telemetry is pulled
type RefreshConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`         // watch loop period
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`           // 0 waits forever
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"` // 0 disables throttling
	Burst       int           `mapstructure:"burst" yaml:"burst"`
	StaleAfter  time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// PolicyConfig overrides deriver thresholds
type PolicyConfig struct {
	LowBatteryThreshold float64 `mapstructure:"low_battery_threshold" yaml:"low_battery_threshold"`
	MidBatteryThreshold float64 `mapstructure:"mid_battery_threshold" yaml:"mid_battery_threshold"`
	PauseMinMemoryMB    uint32  `mapstructure:"pause_min_memory_mb" yaml:"pause_min_memory_mb"`
	PauseMinCPUCores    uint32  `mapstructure:"pause_min_cpu_cores" yaml:"pause_min_cpu_cores"`
	MinModelDim         int     `mapstructure:"min_model_dim" yaml:"min_model_dim"`
	MaxModelDim         int     `mapstructure:"max_model_dim" yaml:"max_model_dim"`
	MinTickMS           int64   `mapstructure:"min_tick_ms" yaml:"min_tick_ms"`
	MaxTickMS           int64   `mapstructure:"max_tick_ms" yaml:"max_tick_ms"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// ServerConfig controls the optional HTTP endpoint of watch
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	TLS edgetls.ServerConfig `mapstructure:"tls" yaml:"tls"`
}

func setDefaults(v *viper.Viper) {
	p := capability.DefaultPolicy()

	v.SetDefault("source", SourceHost)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", false)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("refresh.interval", 30*time.Second)
	v.SetDefault("refresh.timeout", 2*time.Second)
	v.SetDefault("refresh.min_interval", time.Duration(0))
	v.SetDefault("refresh.burst", 1)
	v.SetDefault("refresh.stale_after", node.DefaultStaleAfter)
	v.SetDefault("policy.low_battery_threshold", p.LowBatteryThreshold)
	v.SetDefault("policy.mid_battery_threshold", p.MidBatteryThreshold)
	v.SetDefault("policy.pause_min_memory_mb", p.PauseMinMemoryMB)
	v.SetDefault("policy.pause_min_cpu_cores", p.PauseMinCPUCores)
	v.SetDefault("policy.min_model_dim", p.MinModelDim)
	v.SetDefault("policy.max_model_dim", p.MaxModelDim)
	v.SetDefault("policy.min_tick_ms", p.MinTickMS)
	v.SetDefault("policy.max_tick_ms", p.MaxTickMS)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "edgecap")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.client_ca_file", "")
}

// NewViper returns a viper instance with defaults and EDGECAP_* overrides.
// Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration, ignoring the environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("default config does not decode: %v", err))
	}
	return cfg
}

// Load reads path (YAML) if non-empty, applies environment overrides and
// validates the result. Without a path, ./edgecap.yaml and
// $HOME/.edgecap/config.yaml are tried and may be absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("edgecap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.edgecap")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	return &cfg, nil
}

// Validate rejects settings the node cannot run with
func (c *Config) Validate() error {
	switch c.Source {
	case SourceHost, SourceEnv, SourceNone:
	default:
		return fmt.Errorf("source must be one of host, env, none; got %q", c.Source)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	if c.Log.MaxSizeMB < 0 {
		return fmt.Errorf("log.max_size_mb must not be negative, got %d", c.Log.MaxSizeMB)
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("refresh.timeout must not be negative, got %s", c.Refresh.Timeout)
	}
	if c.Refresh.MinInterval < 0 {
		return fmt.Errorf("refresh.min_interval must not be negative, got %s", c.Refresh.MinInterval)
	}
	if c.Refresh.MinInterval > 0 && c.Refresh.Burst < 1 {
		return fmt.Errorf("refresh.burst must be at least 1, got %d", c.Refresh.Burst)
	}
	if c.Refresh.StaleAfter <= 0 {
		return fmt.Errorf("refresh.stale_after must be positive, got %s", c.Refresh.StaleAfter)
	}

	if err := c.CapabilityPolicy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if err := c.Server.TLS.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// CapabilityPolicy converts the policy section
func (c *Config) CapabilityPolicy() capability.Policy {
	return capability.Policy{
		LowBatteryThreshold: c.Policy.LowBatteryThreshold,
		MidBatteryThreshold: c.Policy.MidBatteryThreshold,
		PauseMinMemoryMB:    c.Policy.PauseMinMemoryMB,
		PauseMinCPUCores:    c.Policy.PauseMinCPUCores,
		MinModelDim:         c.Policy.MinModelDim,
		MaxModelDim:         c.Policy.MaxModelDim,
		MinTickMS:           c.Policy.MinTickMS,
		MaxTickMS:           c.Policy.MaxTickMS,
	}
}

// NodeOptions returns the node settings this configuration implies
func (c *Config) NodeOptions() []node.Option {
	return []node.Option{
		node.WithPolicy(c.CapabilityPolicy()),
		node.WithRefreshTimeout(c.Refresh.Timeout),
		node.WithStaleAfter(c.Refresh.StaleAfter),
	}
}

// TelemetrySource builds the configured source, throttled when
// refresh.min_interval is set. SourceNone yields nil.
func (c *Config) TelemetrySource() (telemetry.Source, error) {
	var src telemetry.Source
	switch c.Source {
	case SourceHost:
		src = telemetry.NewHost()
	case SourceEnv:
		src = telemetry.NewEnv()
	case SourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown telemetry source %q", c.Source)
	}

	if c.Refresh.MinInterval > 0 {
		src = telemetry.Throttle(src, c.Refresh.MinInterval, c.Refresh.Burst)
	}
	return src, nil
}
