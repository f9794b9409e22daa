package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pothole-detector/internal/logging"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported sensor sources.
const (
	SensorSerial = "serial"
	SensorFile   = "file"
	SensorStdin  = "stdin"
)

// Supported location providers.
const (
	LocationNone   = "none"
	LocationStatic = "static"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Detection DetectionConfig `mapstructure:"detection"`
	Sensor    SensorConfig    `mapstructure:"sensor"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Location  LocationConfig  `mapstructure:"location"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Status    StatusConfig    `mapstructure:"status"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DetectionConfig tunes the detection gates.
type DetectionConfig struct {
	ZAxisWeight       float64       `mapstructure:"z_axis_weight"`
	MinSampleInterval time.Duration `mapstructure:"min_sample_interval"`
	Refractory        time.Duration `mapstructure:"refractory"`
	VerticalGate      float64       `mapstructure:"vertical_gate"`
	HistorySize       int           `mapstructure:"history_size"`
	AverageWindow     int           `mapstructure:"average_window"`
}

// SensorConfig selects the accelerometer source.
type SensorConfig struct {
	Kind     string `mapstructure:"kind"`
	Path     string `mapstructure:"path"`
	BaudRate int    `mapstructure:"baud_rate"`
	Pace     bool   `mapstructure:"pace"`
}

// SettingsConfig locates the persisted user preferences.
type SettingsConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// StorageConfig locates the plain-text detection log.
type StorageConfig struct {
	LogPath string `mapstructure:"log_path"`
}

// DatabaseConfig encapsulates optional SQL persistence.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SinkConfig governs the asynchronous event dispatcher.
type SinkConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	LocationTimeout time.Duration `mapstructure:"location_timeout"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
}

// LocationConfig selects the location provider.
type LocationConfig struct {
	Provider          string  `mapstructure:"provider"`
	Latitude          float64 `mapstructure:"latitude"`
	Longitude         float64 `mapstructure:"longitude"`
	PermissionGranted bool    `mapstructure:"permission_granted"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Channels  []string       `mapstructure:"channels"`
	Vibration bool           `mapstructure:"vibration"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
	MQTT      MQTTConfig     `mapstructure:"mqtt"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MQTTConfig publishes detections to a broker.
type MQTTConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Broker   string        `mapstructure:"broker"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	QoS      int           `mapstructure:"qos"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StatusConfig controls the periodic status report.
type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POTHOLEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "potholewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("detection.z_axis_weight", 2.0)
	v.SetDefault("detection.min_sample_interval", "50ms")
	v.SetDefault("detection.refractory", "2s")
	v.SetDefault("detection.vertical_gate", 2.0)
	v.SetDefault("detection.history_size", 10)
	v.SetDefault("detection.average_window", 5)

	v.SetDefault("sensor.kind", SensorStdin)
	v.SetDefault("sensor.baud_rate", 115200)
	v.SetDefault("sensor.pace", false)

	v.SetDefault("settings.path", "potholewatch-prefs.yaml")
	v.SetDefault("settings.watch", true)

	v.SetDefault("storage.log_path", "pothole_detections.txt")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.advisory_lock_key", int64(0x706f7468))

	v.SetDefault("sink.queue_size", 64)
	v.SetDefault("sink.location_timeout", "2s")
	v.SetDefault("sink.handler_timeout", "10s")

	v.SetDefault("location.provider", LocationNone)
	v.SetDefault("location.permission_granted", true)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.vibration", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.mqtt.enabled", false)
	v.SetDefault("alerting.mqtt.topic", "potholewatch/detections")
	v.SetDefault("alerting.mqtt.client_id", "potholewatch")
	v.SetDefault("alerting.mqtt.qos", 1)
	v.SetDefault("alerting.mqtt.timeout", "5s")

	v.SetDefault("status.interval", "1m")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Detection.ZAxisWeight <= 0 {
		return fmt.Errorf("detection.z_axis_weight must be greater than zero")
	}
	if c.Detection.MinSampleInterval < 0 || c.Detection.Refractory < 0 {
		return fmt.Errorf("detection intervals cannot be negative")
	}
	if c.Detection.HistorySize <= 0 || c.Detection.AverageWindow <= 0 {
		return fmt.Errorf("detection.history_size and detection.average_window must be greater than zero")
	}
	if c.Detection.AverageWindow > c.Detection.HistorySize {
		return fmt.Errorf("detection.average_window cannot exceed detection.history_size")
	}
	switch c.Sensor.Kind {
	case SensorStdin:
	case SensorSerial, SensorFile:
		if c.Sensor.Path == "" {
			return fmt.Errorf("sensor.path is required for %s sensors", c.Sensor.Kind)
		}
	default:
		return fmt.Errorf("unsupported sensor.kind %q", c.Sensor.Kind)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Location.Provider {
	case LocationNone, LocationStatic:
	default:
		return fmt.Errorf("unsupported location.provider %q", c.Location.Provider)
	}
	if c.Storage.LogPath == "" {
		return fmt.Errorf("storage.log_path must be set")
	}
	if c.Settings.Path == "" {
		return fmt.Errorf("settings.path must be set")
	}
	if c.Sink.QueueSize <= 0 {
		return fmt.Errorf("sink.queue_size must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.MQTT.Enabled {
		if c.Alerting.MQTT.Broker == "" {
			return fmt.Errorf("alerting.mqtt.broker must be set")
		}
		if c.Alerting.MQTT.QoS < 0 || c.Alerting.MQTT.QoS > 1 {
			return fmt.Errorf("alerting.mqtt.qos must be 0 or 1")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
