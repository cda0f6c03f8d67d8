package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting the service needs. Values come from a
// .env file when present and environment variables otherwise.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`

	// RabbitMQ fan-out for tracking events. Empty URL disables the channel.
	AmqpURL string `mapstructure:"AMQP_URL"`

	// SES email alerts for geofence events. Empty region disables the channel.
	SESRegion       string `mapstructure:"SES_REGION"`
	SESFromEmail    string `mapstructure:"SES_FROM_EMAIL"`
	AlertRecipients string `mapstructure:"ALERT_RECIPIENTS"` // comma-separated

	// Tracking pipeline tuning.
	GeofenceRefreshInterval time.Duration `mapstructure:"GEOFENCE_REFRESH_INTERVAL"`
	SessionIdleCutoff       time.Duration `mapstructure:"SESSION_IDLE_CUTOFF"`
	StaleSweepInterval      time.Duration `mapstructure:"STALE_SWEEP_INTERVAL"`
	StoreTimeout            time.Duration `mapstructure:"STORE_TIMEOUT"`
	NotifyTimeout           time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
}

// LoadConfig reads configuration from the given directory's .env file, with
// environment variables taking precedence.
func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CLIENT_ORIGIN", "http://localhost:5173")
	viper.SetDefault("GEOFENCE_REFRESH_INTERVAL", "30s")
	viper.SetDefault("SESSION_IDLE_CUTOFF", "30m")
	viper.SetDefault("STALE_SWEEP_INTERVAL", "5m")
	viper.SetDefault("STORE_TIMEOUT", "5s")
	viper.SetDefault("NOTIFY_TIMEOUT", "10s")

	if err := viper.ReadInConfig(); err != nil {
		// A missing .env is fine; everything can come from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
