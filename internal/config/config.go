// Package config loads service configuration from defaults, an optional YAML
// file and INVENTORY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. INVENTORY_DATABASE_HOST
const EnvPrefix = "INVENTORY"

// Config is the full service configuration
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServiceConfig identifies the running service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the gRPC server
type GRPCConfig struct {
	Port       int  `mapstructure:"port"`
	Reflection bool `mapstructure:"reflection"`
}

// DatabaseConfig configures the Postgres pool
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	MaxConnTime    time.Duration `mapstructure:"max_conn_time"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	HealthCheck    time.Duration `mapstructure:"health_check"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`
}

// NATSConfig configures the notification and refresh publishers.
// An empty URL disables publishing.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	ConnectWait   time.Duration `mapstructure:"connect_wait"`
}

// WorkflowConfig tunes the guided mutation dialogs
type WorkflowConfig struct {
	// DemoMode makes every dialog read-only: confirmations are blocked
	DemoMode        bool          `mapstructure:"demo_mode"`
	Debounce        time.Duration `mapstructure:"debounce"`
	MinSearchLength int           `mapstructure:"min_search_length"`
	SearchLimit     int           `mapstructure:"search_limit"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout"`
	CommitTimeout   time.Duration `mapstructure:"commit_timeout"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
}

// TelemetryConfig toggles OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Stdout  bool `mapstructure:"stdout"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-inventory")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("grpc.port", 9086)
	v.SetDefault("grpc.reflection", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "inventory")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_time", time.Hour)
	v.SetDefault("database.max_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check", time.Minute)
	v.SetDefault("database.connect_timeout", 30*time.Second)
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "")
	v.SetDefault("nats.connect_wait", 5*time.Second)

	v.SetDefault("workflow.demo_mode", false)
	v.SetDefault("workflow.debounce", 300*time.Millisecond)
	v.SetDefault("workflow.min_search_length", 2)
	v.SetDefault("workflow.search_limit", 20)
	v.SetDefault("workflow.lookup_timeout", 5*time.Second)
	v.SetDefault("workflow.commit_timeout", 15*time.Second)
	v.SetDefault("workflow.session_ttl", 30*time.Minute)
	v.SetDefault("workflow.max_sessions", 1000)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)

	v.SetDefault("log.level", "info")
}

// Load reads configuration. path may be empty, in which case only defaults and
// environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required values
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		errs = append(errs, fmt.Errorf("grpc.port out of range: %d", c.GRPC.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Errorf("database.max_conns (%d) below min_conns (%d)", c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Workflow.MinSearchLength < 1 {
		errs = append(errs, fmt.Errorf("workflow.min_search_length must be positive, got %d", c.Workflow.MinSearchLength))
	}
	if c.Workflow.SearchLimit < 1 {
		errs = append(errs, fmt.Errorf("workflow.search_limit must be positive, got %d", c.Workflow.SearchLimit))
	}
	if c.Workflow.Debounce < 0 {
		errs = append(errs, errors.New("workflow.debounce cannot be negative"))
	}
	if c.Workflow.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("workflow.max_sessions must be positive, got %d", c.Workflow.MaxSessions))
	}

	return errors.Join(errs...)
}

// DSN renders the Postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
