// Package config loads the process-level configuration: the supervisor
// TCP/TLS listener, the path to the device configuration document, log
// settings, and the metrics port. This is distinct from internal/configview,
// which owns the device/tag configuration document itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProcessConfig is the top-level process configuration, loaded with
// viper from an optional file plus environment variable overrides.
type ProcessConfig struct {
	Supervisor SupervisorConfig
	Device     DeviceConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

// SupervisorConfig configures the line-delimited JSON TCP/TLS listener
// the supervisor connects to.
type SupervisorConfig struct {
	ListenAddress string
	TLSEnabled    bool
	TLSCertFile   string
	TLSKeyFile    string
	BatchWindow   time.Duration
}

// DeviceConfig points at the device/tag configuration document Config
// View loads.
type DeviceConfig struct {
	Path string
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the /metrics and /healthz HTTP listener.
type MetricsConfig struct {
	ListenAddress string
}

const envPrefix = "OPCUA_BRIDGE"

// Load reads process configuration from an optional YAML file plus
// environment variables prefixed OPCUA_BRIDGE_, applying defaults for
// anything left unset.
func Load(path string) (*ProcessConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &ProcessConfig{
		Supervisor: SupervisorConfig{
			ListenAddress: v.GetString("supervisor.listen_address"),
			TLSEnabled:    v.GetBool("supervisor.tls_enabled"),
			TLSCertFile:   v.GetString("supervisor.tls_cert_file"),
			TLSKeyFile:    v.GetString("supervisor.tls_key_file"),
			BatchWindow:   v.GetDuration("supervisor.batch_window"),
		},
		Device: DeviceConfig{
			Path: v.GetString("device.config_path"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Metrics: MetricsConfig{
			ListenAddress: v.GetString("metrics.listen_address"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("supervisor.listen_address", ":4840")
	v.SetDefault("supervisor.tls_enabled", false)
	v.SetDefault("supervisor.batch_window", 100*time.Millisecond)
	v.SetDefault("device.config_path", "./devices.json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.listen_address", ":9090")
}

func validate(cfg *ProcessConfig) error {
	if cfg.Supervisor.ListenAddress == "" {
		return fmt.Errorf("supervisor.listen_address must not be empty")
	}
	if cfg.Supervisor.TLSEnabled && (cfg.Supervisor.TLSCertFile == "" || cfg.Supervisor.TLSKeyFile == "") {
		return fmt.Errorf("supervisor.tls_cert_file and tls_key_file are required when tls_enabled is true")
	}
	if cfg.Device.Path == "" {
		return fmt.Errorf("device.config_path must not be empty")
	}
	return nil
}
