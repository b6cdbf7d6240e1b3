// Package config loads the gateway configuration from defaults, an optional
// config file, CLAMAV_GATEWAY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	clamav "github.com/DevHatRo/clamav-gateway-go"
)

// EnvPrefix is the prefix of every environment variable, e.g. CLAMAV_GATEWAY_LOG_LEVEL.
const EnvPrefix = "CLAMAV_GATEWAY"

// Keys shared by config files, environment variables and flags.
const (
	KeyListenAddress     = "listen_address"
	KeyBackendAddress    = "backend_address"
	KeyBackendTimeout    = "backend_timeout"
	KeyDialTimeout       = "dial_timeout"
	KeyChunkSize         = "chunk_size"
	KeyMaxBodyBytes      = "max_body_bytes"
	KeyGRPCHealthAddress = "grpc_health_address"
	KeyHealthInterval    = "health_interval"
	KeyShutdownTimeout   = "shutdown_timeout"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
)

// Config holds the gateway configuration.
type Config struct {
	// ListenAddress is the HTTP listen address.
	ListenAddress string `mapstructure:"listen_address"`
	// BackendAddress is the clamd address: host:port, tcp://host:port or unix:///path.
	BackendAddress string `mapstructure:"backend_address"`
	// BackendTimeout bounds every single read or write on the clamd connection.
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ChunkSize is the INSTREAM frame size in bytes.
	ChunkSize int `mapstructure:"chunk_size"`
	// MaxBodyBytes rejects larger uploads with 413; 0 disables the limit.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// GRPCHealthAddress serves grpc.health.v1 when set.
	GRPCHealthAddress string `mapstructure:"grpc_health_address"`
	// HealthInterval is the clamd PING interval.
	HealthInterval time.Duration `mapstructure:"health_interval"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddress:   "0.0.0.0:4242",
		BackendAddress:  "clams:3310",
		BackendTimeout:  30 * time.Second,
		DialTimeout:     5 * time.Second,
		ChunkSize:       64 * 1024,
		HealthInterval:  15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyListenAddress, d.ListenAddress)
	v.SetDefault(KeyBackendAddress, d.BackendAddress)
	v.SetDefault(KeyBackendTimeout, d.BackendTimeout)
	v.SetDefault(KeyDialTimeout, d.DialTimeout)
	v.SetDefault(KeyChunkSize, d.ChunkSize)
	v.SetDefault(KeyMaxBodyBytes, d.MaxBodyBytes)
	v.SetDefault(KeyGRPCHealthAddress, d.GRPCHealthAddress)
	v.SetDefault(KeyHealthInterval, d.HealthInterval)
	v.SetDefault(KeyShutdownTimeout, d.ShutdownTimeout)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// BindFlags binds every flag in fs whose name matches a key, with dashes
// standing in for underscores (--backend-address binds backend_address).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKey(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file and decodes the merged configuration.
// It does not validate.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("invalid %s %q: %w", KeyListenAddress, c.ListenAddress, err))
	}
	if _, err := clamav.NewClient(c.BackendAddress); err != nil {
		errs = append(errs, fmt.Errorf("invalid %s: %w", KeyBackendAddress, err))
	}
	if c.GRPCHealthAddress != "" {
		if _, _, err := net.SplitHostPort(c.GRPCHealthAddress); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", KeyGRPCHealthAddress, c.GRPCHealthAddress, err))
		}
	}

	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{KeyBackendTimeout, c.BackendTimeout},
		{KeyDialTimeout, c.DialTimeout},
		{KeyHealthInterval, c.HealthInterval},
		{KeyShutdownTimeout, c.ShutdownTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.value))
		}
	}

	if c.ChunkSize <= 0 || c.ChunkSize > 8*1024*1024 {
		errs = append(errs, fmt.Errorf("%s must be in (0, 8MiB], got %d", KeyChunkSize, c.ChunkSize))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyMaxBodyBytes, c.MaxBodyBytes))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid %s: %q", KeyLogLevel, c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid %s: %q", KeyLogFormat, c.LogFormat))
	}

	return errors.Join(errs...)
}

func isKey(key string) bool {
	switch key {
	case KeyListenAddress, KeyBackendAddress, KeyBackendTimeout, KeyDialTimeout,
		KeyChunkSize, KeyMaxBodyBytes, KeyGRPCHealthAddress, KeyHealthInterval,
		KeyShutdownTimeout, KeyLogLevel, KeyLogFormat:
		return true
	}
	return false
}
