package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for vanmesh.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Registry  RegistryConfig  `yaml:"registry"`
	Forward   ForwardConfig   `yaml:"forward"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// RegistryConfig contains presence registry settings.
//
// Thresholds are expressed in seconds. A device that has not heartbeated
// within InactiveThreshold is reported inactive; past RemovalThreshold it
// is eligible for eviction by the cleanup sweeper.
type RegistryConfig struct {
	InactiveThreshold int `yaml:"inactive_threshold"`
	RemovalThreshold  int `yaml:"removal_threshold"`
	SweepInterval     int `yaml:"sweep_interval"`
	FailureThreshold  int `yaml:"failure_threshold"`

	// ResetFailuresOnHeartbeat controls whether a successful heartbeat clears
	// the consecutive failure counter, or only a successful forwarded command.
	ResetFailuresOnHeartbeat *bool `yaml:"reset_failures_on_heartbeat"`

	// Quotas maps a device type to the maximum number of devices of that type
	// allowed to be registered concurrently. Types absent from the map are
	// rejected at registration.
	Quotas map[string]int `yaml:"quotas"`
}

// ForwardConfig contains command forwarding settings.
type ForwardConfig struct {
	// TimeoutSeconds bounds a single forwarded command round-trip to a device.
	TimeoutSeconds int `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite audit database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default threshold values, matching the documented device heartbeat contract:
// devices announce every 30 seconds, turn inactive after 2 minutes of silence
// and are evicted after 5.
const (
	DefaultInactiveThreshold = 120
	DefaultRemovalThreshold  = 300
	DefaultSweepInterval     = 60
	DefaultFailureThreshold  = 3
	DefaultForwardTimeout    = 10
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VANMESH_SECTION_KEY
// For example: VANMESH_API_PORT, VANMESH_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	resetOnHeartbeat := true
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Registry: RegistryConfig{
			InactiveThreshold:        DefaultInactiveThreshold,
			RemovalThreshold:         DefaultRemovalThreshold,
			SweepInterval:            DefaultSweepInterval,
			FailureThreshold:         DefaultFailureThreshold,
			ResetFailuresOnHeartbeat: &resetOnHeartbeat,
			Quotas: map[string]int{
				"rear-camera": 1,
			},
		},
		Forward: ForwardConfig{
			TimeoutSeconds: DefaultForwardTimeout,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vanmesh-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/vanmesh.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VANMESH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("VANMESH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("VANMESH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("VANMESH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VANMESH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VANMESH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VANMESH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VANMESH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Registry.InactiveThreshold <= 0 {
		errs = append(errs, "registry.inactive_threshold must be positive")
	}
	if c.Registry.RemovalThreshold <= c.Registry.InactiveThreshold {
		errs = append(errs, "registry.removal_threshold must be greater than registry.inactive_threshold")
	}
	if c.Registry.SweepInterval <= 0 {
		errs = append(errs, "registry.sweep_interval must be positive")
	}
	if c.Registry.FailureThreshold <= 0 {
		errs = append(errs, "registry.failure_threshold must be positive")
	}
	if len(c.Registry.Quotas) == 0 {
		errs = append(errs, "registry.quotas must declare at least one device type")
	}
	for deviceType, quota := range c.Registry.Quotas {
		if quota < 0 {
			errs = append(errs, fmt.Sprintf("registry.quotas.%s must not be negative", deviceType))
		}
	}

	if c.Forward.TimeoutSeconds <= 0 {
		errs = append(errs, "forward.timeout must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ResetOnHeartbeat returns the heartbeat failure-reset policy,
// defaulting to true when unset.
func (c *RegistryConfig) ResetOnHeartbeat() bool {
	if c.ResetFailuresOnHeartbeat == nil {
		return true
	}
	return *c.ResetFailuresOnHeartbeat
}

// GetInactiveThreshold returns the inactivity threshold as a Duration.
func (c *RegistryConfig) GetInactiveThreshold() time.Duration {
	return time.Duration(c.InactiveThreshold) * time.Second
}

// GetRemovalThreshold returns the removal threshold as a Duration.
func (c *RegistryConfig) GetRemovalThreshold() time.Duration {
	return time.Duration(c.RemovalThreshold) * time.Second
}

// GetSweepInterval returns the sweep interval as a Duration.
func (c *RegistryConfig) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// GetTimeout returns the command forwarding timeout as a Duration.
func (c *ForwardConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
