package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/gauge"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Poller    PollerConfig    `mapstructure:"poller"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Security  SecurityConfig  `mapstructure:"security"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Alarms    AlarmsConfig    `mapstructure:"alarms"`
	Gauges    []gauge.Config  `mapstructure:"gauges"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Compression     bool          `mapstructure:"compression"`
}

// DatabaseConfig selects the reading store. Driver is "sqlite" (Path) or
// "postgres" (DSN).
type DatabaseConfig struct {
	Driver         string          `mapstructure:"driver"`
	Path           string          `mapstructure:"path"`
	DSN            string          `mapstructure:"dsn"`
	MigrationsPath string          `mapstructure:"migrations_path"`
	MaxConnections int             `mapstructure:"max_connections"`
	QueryTimeout   time.Duration   `mapstructure:"query_timeout"`
	Migration      MigrationConfig `mapstructure:"migration"`
}

type MigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// SinkFailures consecutive publish errors pause a sink for SinkCooldown.
	SinkFailures   int           `mapstructure:"sink_failures"`
	SinkCooldown   time.Duration `mapstructure:"sink_cooldown"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type WebSocketConfig struct {
	PingInterval   int `mapstructure:"ping_interval"`
	PongTimeout    int `mapstructure:"pong_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	MaxMessageSize int `mapstructure:"max_message_size"`
	SendBufferSize int `mapstructure:"send_buffer_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// BatchSize is how many successful requests are summarised per log line.
	BatchSize int `mapstructure:"batch_size"`
}

// AnalyticsConfig tunes the historical endpoints.
type AnalyticsConfig struct {
	CoerceTextValues bool          `mapstructure:"coerce_text_values"`
	SQLMonthlyRollup bool          `mapstructure:"sql_monthly_rollup"`
	MaxRange         time.Duration `mapstructure:"max_range"`
	DefaultTimezone  string        `mapstructure:"default_timezone"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	Path    string `mapstructure:"path"`
}

type SecurityConfig struct {
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RateLimitRPS of 0 disables per-client rate limiting.
	RateLimitRPS   int `mapstructure:"rate_limit_rps"`
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
}

// AlarmsConfig points at an optional YAML file that seeds alarm_settings
// when the table is empty.
type AlarmsConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom reads configuration into v. An explicit file overrides the
// default search paths.
func LoadFrom(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by the original deployment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("security.allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("mqtt.broker", "MQTT_BROKER")
	v.BindEnv("mqtt.password", "MQTT_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration for completeness and correctness
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		errors = append(errors, "server.host is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errors = append(errors, "database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			errors = append(errors, "database.dsn is required for postgres")
		}
	default:
		errors = append(errors, fmt.Sprintf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.MaxConnections <= 0 {
		errors = append(errors, "database.max_connections must be greater than 0")
	}

	if c.Poller.Enabled {
		if c.Poller.Interval < time.Second {
			errors = append(errors, "poller.interval must be at least 1s")
		}
		if c.Poller.Timeout <= 0 {
			errors = append(errors, "poller.timeout must be greater than 0")
		}
		if c.Poller.SinkFailures < 0 {
			errors = append(errors, "poller.sink_failures must not be negative")
		}
		if c.Poller.SinkCooldown < 0 {
			errors = append(errors, "poller.sink_cooldown must not be negative")
		}
		if c.Poller.PublishTimeout < 0 {
			errors = append(errors, "poller.publish_timeout must not be negative")
		}
	}

	if c.Analytics.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.Analytics.DefaultTimezone); err != nil {
			errors = append(errors, fmt.Sprintf("analytics.default_timezone %q is not a valid zone", c.Analytics.DefaultTimezone))
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errors = append(errors, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errors = append(errors, "kafka.topic is required when kafka is enabled")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errors = append(errors, "mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			errors = append(errors, "mqtt.topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			errors = append(errors, "mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.Security.RateLimitRPS < 0 {
		errors = append(errors, "security.rate_limit_rps must not be negative")
	}
	if c.Security.RateLimitRPS > 0 && c.Security.RateLimitBurst < 1 {
		errors = append(errors, "security.rate_limit_burst must be at least 1 when rate limiting is on")
	}

	for i, g := range c.Gauges {
		if g.Field == "" {
			errors = append(errors, fmt.Sprintf("gauges[%d].field is required", i))
		}
		if g.Max <= g.Min {
			errors = append(errors, fmt.Sprintf("gauges[%d].max must be greater than min", i))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.compression", true)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/meter.db")
	v.SetDefault("database.migrations_path", "./migrations/sqlite")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.query_timeout", "30s")
	v.SetDefault("database.migration.auto_migrate", true)

	// Poller defaults
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "5s")
	v.SetDefault("poller.timeout", "4s")
	v.SetDefault("poller.sink_failures", 5)
	v.SetDefault("poller.sink_cooldown", "30s")
	v.SetDefault("poller.publish_timeout", "5s")

	// WebSocket defaults
	v.SetDefault("websocket.ping_interval", 30)
	v.SetDefault("websocket.pong_timeout", 60)
	v.SetDefault("websocket.write_timeout", 10)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer_size", 256)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.batch_size", 10)

	// Analytics defaults
	v.SetDefault("analytics.coerce_text_values", true)
	v.SetDefault("analytics.sql_monthly_rollup", true)
	v.SetDefault("analytics.max_range", "8760h")
	v.SetDefault("analytics.default_timezone", "UTC")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prefix", "meterdash")
	v.SetDefault("metrics.path", "/metrics")

	// Security defaults
	v.SetDefault("security.enable_cors", true)
	v.SetDefault("security.allowed_origins", []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	})
	v.SetDefault("security.rate_limit_rps", 50)
	v.SetDefault("security.rate_limit_burst", 100)

	// Sinks are off unless configured
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "meter.alarms")
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "meterdash")
	v.SetDefault("mqtt.topic", "meter/live")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("alarms.seed_file", "")

	v.SetDefault("gauges", []map[string]interface{}{
		{"field": "Voltage_A_N", "min": 200, "max": 260, "zones": []map[string]interface{}{
			{"value": 210, "color": "#F44336"},
			{"value": 250, "color": "#4CAF50"},
			{"value": 260, "color": "#F44336"},
		}},
		{"field": "Current_Avg", "min": 0, "max": 400, "zones": []map[string]interface{}{
			{"value": 300, "color": "#4CAF50"},
			{"value": 360, "color": "#FF9800"},
			{"value": 400, "color": "#F44336"},
		}},
		{"field": "Frequency", "min": 45, "max": 55, "zones": []map[string]interface{}{
			{"value": 49.5, "color": "#F44336"},
			{"value": 50.5, "color": "#4CAF50"},
			{"value": 55, "color": "#F44336"},
		}},
		{"field": "Power_Factor_Total", "min": 0, "max": 1, "zones": []map[string]interface{}{
			{"value": 0.85, "color": "#F44336"},
			{"value": 0.95, "color": "#FF9800"},
			{"value": 1, "color": "#4CAF50"},
		}},
	})
}
