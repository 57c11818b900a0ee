package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type PlatformConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	ListDelay   time.Duration `mapstructure:"list_delay"`
	StatsDelay  time.Duration `mapstructure:"stats_delay"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

type SyncConfig struct {
	TimeBudget      time.Duration `mapstructure:"time_budget"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	LeaseDuration   time.Duration `mapstructure:"lease_duration"`
}

type ReconcileConfig struct {
	Schedule           string        `mapstructure:"schedule"`
	FreshnessThreshold time.Duration `mapstructure:"freshness_threshold"`
	Tolerance          int           `mapstructure:"tolerance"`
}

type Config struct {
	DatabaseURL  string          `mapstructure:"database_url"`
	ServerPort   string          `mapstructure:"server_port"`
	JWTSecret    string          `mapstructure:"jwt_secret"`
	ServiceToken string          `mapstructure:"service_token"`
	Platform     PlatformConfig  `mapstructure:"platform"`
	Sync         SyncConfig      `mapstructure:"sync"`
	Reconcile    ReconcileConfig `mapstructure:"reconcile"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.ServiceToken == "" {
		log.Fatal("Service token must be set in the config file")
	}

	if config.Platform.ListDelay == 0 {
		config.Platform.ListDelay = 500 * time.Millisecond
	}
	if config.Platform.StatsDelay == 0 {
		config.Platform.StatsDelay = time.Second
	}
	if config.Platform.MaxRetries == 0 {
		config.Platform.MaxRetries = 3
	}
	if config.Platform.BackoffBase == 0 {
		config.Platform.BackoffBase = time.Second
	}

	if config.Sync.TimeBudget == 0 {
		config.Sync.TimeBudget = 50 * time.Second
	}
	if config.Sync.CheckpointEvery == 0 {
		config.Sync.CheckpointEvery = 5
	}
	if config.Sync.LeaseDuration == 0 {
		config.Sync.LeaseDuration = 2 * config.Sync.TimeBudget
	}

	if config.Reconcile.Schedule == "" {
		config.Reconcile.Schedule = "0 */6 * * *"
	}
	if config.Reconcile.FreshnessThreshold == 0 {
		config.Reconcile.FreshnessThreshold = 24 * time.Hour
	}

	return &config
}
