package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure so callers can refuse to start.
var ErrInvalidConfig = errors.New("invalid configuration")

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type SchedulerConfig struct {
	TimerInterval         time.Duration
	MaxConcurrentCameras  int
	MaxConcurrentAnalyses int
	MaxConcurrentImages   int
	MaxConcurrentScoring  int
}

type StorageConfig struct {
	AccountName   string
	ContainerName string
	Domain        string
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	PublishTimeout time.Duration
}

type FleetSource struct {
	Path string
	URL  string
}

type Config struct {
	Environment       string
	LogLevel          string
	HTTP              HTTPConfig
	DB                DBConfig
	Auth              AuthConfig
	Scheduler         SchedulerConfig
	Storage           StorageConfig
	MQTT              MQTTConfig
	Fleet             FleetSource
	HTTPClientTimeout time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TIMER_INTERVAL", "1s")
	v.SetDefault("MAX_CONCURRENT_CAMERAS", 16)
	v.SetDefault("MAX_CONCURRENT_ANALYSES", 16)
	v.SetDefault("MAX_CONCURRENT_IMAGES", 8)
	v.SetDefault("MAX_CONCURRENT_SCORING", 16)
	v.SetDefault("STORAGE_DOMAIN", "core.windows.net")
	v.SetDefault("MQTT_CLIENT_ID", "edge-analyzer")
	v.SetDefault("MQTT_TOPIC_PREFIX", "edge/analysis")
	v.SetDefault("MQTT_PUBLISH_TIMEOUT", "5s")
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "30s")

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Scheduler: SchedulerConfig{
			TimerInterval:         v.GetDuration("TIMER_INTERVAL"),
			MaxConcurrentCameras:  v.GetInt("MAX_CONCURRENT_CAMERAS"),
			MaxConcurrentAnalyses: v.GetInt("MAX_CONCURRENT_ANALYSES"),
			MaxConcurrentImages:   v.GetInt("MAX_CONCURRENT_IMAGES"),
			MaxConcurrentScoring:  v.GetInt("MAX_CONCURRENT_SCORING"),
		},
		Storage: StorageConfig{
			AccountName:   v.GetString("STORAGE_ACCOUNT_NAME"),
			ContainerName: v.GetString("STORAGE_CONTAINER_NAME"),
			Domain:        v.GetString("STORAGE_DOMAIN"),
		},
		MQTT: MQTTConfig{
			Broker:         v.GetString("MQTT_BROKER"),
			ClientID:       v.GetString("MQTT_CLIENT_ID"),
			Username:       v.GetString("MQTT_USERNAME"),
			Password:       v.GetString("MQTT_PASSWORD"),
			TopicPrefix:    v.GetString("MQTT_TOPIC_PREFIX"),
			PublishTimeout: v.GetDuration("MQTT_PUBLISH_TIMEOUT"),
		},
		Fleet: FleetSource{
			Path: v.GetString("FLEET_CONFIG"),
			URL:  v.GetString("FLEET_CONFIG_URL"),
		},
		HTTPClientTimeout: v.GetDuration("HTTP_CLIENT_TIMEOUT"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.Storage.AccountName == "" {
		errs = append(errs, fmt.Errorf("STORAGE_ACCOUNT_NAME is required"))
	}
	if cfg.Storage.ContainerName == "" {
		errs = append(errs, fmt.Errorf("STORAGE_CONTAINER_NAME is required"))
	}
	if cfg.Fleet.Path == "" && cfg.Fleet.URL == "" {
		errs = append(errs, fmt.Errorf("FLEET_CONFIG or FLEET_CONFIG_URL is required"))
	}
	if cfg.Scheduler.TimerInterval < time.Second {
		errs = append(errs, fmt.Errorf("TIMER_INTERVAL must be at least 1s, got %s", cfg.Scheduler.TimerInterval))
	}
	for name, n := range map[string]int{
		"MAX_CONCURRENT_CAMERAS":  cfg.Scheduler.MaxConcurrentCameras,
		"MAX_CONCURRENT_ANALYSES": cfg.Scheduler.MaxConcurrentAnalyses,
		"MAX_CONCURRENT_IMAGES":   cfg.Scheduler.MaxConcurrentImages,
		"MAX_CONCURRENT_SCORING":  cfg.Scheduler.MaxConcurrentScoring,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
