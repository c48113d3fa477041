package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSUrl          string
	JWTSecret        string
	AutosaveInterval time.Duration
	EventSubject     string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RUBRIX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Rubrix API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("autosave.interval", "60s")
	v.SetDefault("event.subject", "grading.completed")

	intervalString := v.GetString("autosave.interval")
	if intervalString == "" {
		intervalString = "60s"
	}

	interval, err := time.ParseDuration(intervalString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid autosave interval: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSUrl:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		AutosaveInterval: interval,
		EventSubject:     v.GetString("event.subject"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = time.Minute
	}

	return cfg, nil
}
