// Package config defines the tlsgate configuration surface: the static
// connection-policy document, its validation rules, and a file loader with
// change notification.
package config

import "fmt"

// FileConfig is the root of the tlsgate configuration document.
type FileConfig struct {
	TLS       TLSConfig                `yaml:"tls" json:"tls"`
	Profiles  map[string]OptionsConfig `yaml:"profiles,omitempty" json:"profiles,omitempty"`
	Audit     AuditConfig              `yaml:"audit,omitempty" json:"audit,omitempty"`
	Telemetry TelemetryConfig          `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
	Metrics   MetricsConfig            `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Log       LogConfig                `yaml:"log,omitempty" json:"log,omitempty"`
}

// AuditConfig configures the optional Rego gate applied to resolved
// decisions by the watch daemon and the CLI.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ModuleFile string `yaml:"module_file,omitempty" json:"module_file,omitempty"`
	Entrypoint string `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	Environment string            `yaml:"environment,omitempty" json:"environment,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// MetricsConfig configures the watch daemon's metrics listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// DefaultFileConfig returns the configuration applied before the document is
// decoded over it.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Metrics: MetricsConfig{ListenAddr: ":9465"},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate checks the whole document.
func (c *FileConfig) Validate() error {
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if c.Audit.Enabled && c.Audit.ModuleFile == "" {
		return NewConfigMissingError("audit.module_file").
			WithSuggestion("Point audit.module_file at a Rego module").
			WithSuggestion("Disable the audit gate if no policy module is available")
	}
	if err := validateLogLevel(c.Log.Level); err != nil {
		return NewConfigValidationError("log.level", c.Log.Level, err.Error()).
			WithSuggestion("Use one of: debug, info, warn, error")
	}
	return nil
}

func validateLogLevel(level string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}
