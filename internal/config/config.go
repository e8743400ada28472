package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	RateLimitPerMinute  int    `mapstructure:"rate_limit_per_minute"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MongoCfg struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTCfg struct {
	Secret string `mapstructure:"secret"`
}

type ClientCfg struct {
	HistoryURL           string `mapstructure:"history_url"`
	RelayURL             string `mapstructure:"relay_url"`
	TypingDebounceMillis int    `mapstructure:"typing_debounce_millis"`
	TypingTimeoutMillis  int    `mapstructure:"typing_timeout_millis"`
}

type Config struct {
	Development bool      `mapstructure:"development"`
	Server      ServerCfg `mapstructure:"server"`
	Redis       RedisCfg  `mapstructure:"redis"`
	Mongo       MongoCfg  `mapstructure:"mongo"`
	Kafka       KafkaCfg  `mapstructure:"kafka"`
	JWT         JWTCfg    `mapstructure:"jwt"`
	Client      ClientCfg `mapstructure:"client"`

	// Derived
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TypingDebounce time.Duration
	TypingTimeout  time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The config file is optional: env vars alone can configure a dev relay.
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8085"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 300
	}
	if cfg.Client.TypingDebounceMillis == 0 {
		cfg.Client.TypingDebounceMillis = 1500
	}
	if cfg.Client.TypingTimeoutMillis == 0 {
		cfg.Client.TypingTimeoutMillis = 3000
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.TypingDebounce = time.Duration(cfg.Client.TypingDebounceMillis) * time.Millisecond
	cfg.TypingTimeout = time.Duration(cfg.Client.TypingTimeoutMillis) * time.Millisecond
	return &cfg, nil
}
