package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Poll interval bounds accepted by Validate.
const (
	minPollInterval = 100 * time.Millisecond
	maxPollInterval = 60 * time.Second
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Registry   RegistryConfig   `yaml:"registry"`
	Poller     PollerConfig     `yaml:"poller"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
}

// BridgeConfig contains bridge identity and topic namespace.
type BridgeConfig struct {
	// ID identifies this bridge instance in status and health messages.
	ID string `yaml:"id"`

	// Namespace is the first segment of every state and command topic.
	Namespace string `yaml:"namespace"`

	// HealthInterval is how often to publish health status (seconds).
	HealthInterval int `yaml:"health_interval"`
}

// RegistryConfig points at the static device list.
type RegistryConfig struct {
	// Path is a devices.json (tinytuya format) or YAML file.
	Path string `yaml:"path"`
}

// PollerConfig controls the change-detecting poll loop.
type PollerConfig struct {
	// Interval is the fixed period between poll passes.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single device status fetch.
	Timeout time.Duration `yaml:"timeout"`

	// ResyncInterval republishes every known channel when > 0.
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

// DispatcherConfig controls inbound command handling.
type DispatcherConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// String returns a representation safe for logging.
func (a MQTTAuthConfig) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTAuthConfig{Username:%q, Password:%s}", a.Username, password)
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
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

// NATSConfig contains settings for the change-event fan-out over NATS.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// SubjectPrefix defaults to the bridge namespace.
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig contains settings for the last-known state mirror.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: TUYABRIDGE_SECTION_KEY
// For example: TUYABRIDGE_MQTT_HOST, TUYABRIDGE_REGISTRY_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from a dotenv file.
// Variables that are already set win. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "tuya-bridge-01",
			Namespace:      "tuya",
			HealthInterval: 30,
		},
		Registry: RegistryConfig{
			Path: "devices.json",
		},
		Poller: PollerConfig{
			Interval: time.Second,
			Timeout:  5 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			QueueSize:      64,
			Workers:        4,
			CommandTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tuya-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/tuyabridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUYABRIDGE_NAMESPACE"); v != "" {
		cfg.Bridge.Namespace = v
	}
	if v := os.Getenv("TUYABRIDGE_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}

	// MQTT
	if v := os.Getenv("TUYABRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TUYABRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TUYABRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Sinks
	if v := os.Getenv("TUYABRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("TUYABRIDGE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("TUYABRIDGE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validatePoller()...)
	errs = append(errs, c.validateDispatcher()...)
	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateOptional()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.Namespace == "" {
		errs = append(errs, "bridge.namespace is required")
	} else if strings.ContainsAny(c.Bridge.Namespace, "/+#") {
		errs = append(errs, fmt.Sprintf("bridge.namespace %q must be a single topic level without wildcards", c.Bridge.Namespace))
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	if c.Registry.Path == "" {
		errs = append(errs, "registry.path is required")
	}
	return errs
}

func (c *Config) validatePoller() []string {
	var errs []string
	if c.Poller.Interval < minPollInterval || c.Poller.Interval > maxPollInterval {
		errs = append(errs, fmt.Sprintf("poller.interval must be between %v and %v", minPollInterval, maxPollInterval))
	}
	if c.Poller.Timeout <= 0 {
		errs = append(errs, "poller.timeout must be positive")
	}
	if c.Poller.ResyncInterval < 0 {
		errs = append(errs, "poller.resync_interval cannot be negative")
	}
	return errs
}

func (c *Config) validateDispatcher() []string {
	var errs []string
	if c.Dispatcher.QueueSize < 1 {
		errs = append(errs, "dispatcher.queue_size must be at least 1")
	}
	if c.Dispatcher.Workers < 1 {
		errs = append(errs, "dispatcher.workers must be at least 1")
	}
	if c.Dispatcher.CommandTimeout <= 0 {
		errs = append(errs, "dispatcher.command_timeout must be positive")
	}
	return errs
}

func (c *Config) validateMQTT() []string {
	var errs []string
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// validateOptional checks the optional integrations only when enabled.
func (c *Config) validateOptional() []string {
	var errs []string
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	return errs
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetNATSSubjectPrefix returns the NATS subject prefix, defaulting to the namespace.
func (c *Config) GetNATSSubjectPrefix() string {
	if c.NATS.SubjectPrefix != "" {
		return c.NATS.SubjectPrefix
	}
	return c.Bridge.Namespace
}
