package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the sidecar configuration file.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	GameServer struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"game_server"`
	Push struct {
		URL        string `yaml:"url"`
		StreamName string `yaml:"stream_name"`
	} `yaml:"push"`
	Engine struct {
		PollIntervalMs   int `yaml:"poll_interval_ms"`
		CountdownSeconds int `yaml:"countdown_seconds"`
		ChatHistoryLimit int `yaml:"chat_history_limit"`
	} `yaml:"engine"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// pollInterval returns the configured polling period, defaulting to the
// upstream client's 1.5s.
func (c *Config) pollInterval() time.Duration {
	if c.Engine.PollIntervalMs > 0 {
		return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
	}
	return 1500 * time.Millisecond
}
