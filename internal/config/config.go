package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"live-poll-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// Responses stores responses in Redis instead of the primary store.
		Responses bool `yaml:"responses"`
		// Roster reads course membership from Redis.
		Roster bool `yaml:"roster"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"questions"`
	Live struct {
		SendBuffer    int    `yaml:"send_buffer"`
		ChannelBuffer int    `yaml:"channel_buffer"`
		WriteTimeout  string `yaml:"write_timeout"`
		PingInterval  string `yaml:"ping_interval"`
		PongTimeout   string `yaml:"pong_timeout"`
		OpenPolicy    string `yaml:"open_policy"`
		Tally         bool   `yaml:"tally"`
	} `yaml:"live"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Roster struct {
		Courses []domain.Course `yaml:"courses"`
	} `yaml:"roster"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
