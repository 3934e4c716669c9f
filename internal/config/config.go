package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type ProximityConfig struct {
	Threshold  float64            `mapstructure:"threshold"`
	Spawn      domain.Point       `mapstructure:"spawn"`
	Partitions []domain.Partition `mapstructure:"partitions"`
}

type GroupConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type RelayConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DirectoryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode      string          `mapstructure:"mode"`
	Port      int             `mapstructure:"port"`
	WS        WSConfig        `mapstructure:"ws"`
	Proximity ProximityConfig `mapstructure:"proximity"`
	Group     GroupConfig     `mapstructure:"group"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Directory DirectoryConfig `mapstructure:"directory"`
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
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("proximity.threshold", 10)
	v.SetDefault("proximity.spawn.x", 34)
	v.SetDefault("proximity.spawn.y", 29)
	v.SetDefault("proximity.partitions", []map[string]any{
		{
			"name":         "room1",
			"top_left":     map[string]any{"x": 9, "y": 12},
			"bottom_right": map[string]any{"x": 74, "y": 64},
		},
	})
	v.SetDefault("group.ttl", "24h")
	v.SetDefault("redis.addr", "")
	v.SetDefault("relay.url", "ws://localhost:4000/rpc")
	v.SetDefault("relay.timeout", "5s")
	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.timeout", "3s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
