package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Real-time coordination knobs.
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	ReaperInterval  time.Duration `mapstructure:"reaper_interval"`
	IdleThreshold   time.Duration `mapstructure:"idle_threshold"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	FinishedGrace   time.Duration `mapstructure:"finished_grace"`

	// Anti-cheat plausibility bounds.
	ClockTolerance time.Duration `mapstructure:"clock_tolerance"`
	MaxHealth      float64       `mapstructure:"max_health"`

	// Per-connection inbound command budget.
	CommandRate  float64 `mapstructure:"command_rate"`
	CommandBurst int     `mapstructure:"command_burst"`

	// External collaborators.
	ExchangeURL string `mapstructure:"exchange_url"`
	StoreURL    string `mapstructure:"store_url"`
	ChatURL     string `mapstructure:"chat_url"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("sync_interval", "5s")
	v.SetDefault("reaper_interval", "60s")
	v.SetDefault("idle_threshold", "10m")
	v.SetDefault("disconnect_grace", "30s")
	v.SetDefault("finished_grace", "5m")
	v.SetDefault("clock_tolerance", "10s")
	v.SetDefault("max_health", 1000)
	v.SetDefault("command_rate", 20)
	v.SetDefault("command_burst", 40)
	v.SetDefault("secret", "dev-only-secret")
	v.SetDefault("exchange_url", "http://localhost:9000")
	v.SetDefault("store_url", "http://localhost:9001")
	v.SetDefault("chat_url", "http://localhost:9002")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
