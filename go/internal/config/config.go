// Package config loads synchronizer settings from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "25s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything the synchronizer binaries need.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Sync   SyncConfig   `yaml:"sync"`
	User   UserConfig   `yaml:"user"`
	Notify NotifyConfig `yaml:"notify"`
}

// ServerConfig points at the game backend.
type ServerConfig struct {
	SocketURL  string `yaml:"socket_url"`
	APIBaseURL string `yaml:"api_base_url"`
	AuthToken  string `yaml:"auth_token"`
}

// SyncConfig tunes the transport connection.
type SyncConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
	BackoffMin        Duration `yaml:"backoff_min"`
	BackoffMax        Duration `yaml:"backoff_max"`
}

// UserConfig identifies the local participant.
type UserConfig struct {
	ID        string `yaml:"id"`
	Username  string `yaml:"username"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	AvatarURL string `yaml:"avatar_url"`
}

// NotifyConfig configures the optional NATS observability sink. An empty
// URL disables it.
type NotifyConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Load reads the YAML file at path, then overlays environment variables.
// A missing file is not an error; env and defaults still apply.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.SocketURL = getEnv("HOHMA_SOCKET_URL", c.Server.SocketURL)
	c.Server.APIBaseURL = getEnv("HOHMA_API_URL", c.Server.APIBaseURL)
	c.Server.AuthToken = getEnv("HOHMA_AUTH_TOKEN", c.Server.AuthToken)
	c.User.ID = getEnv("HOHMA_USER_ID", c.User.ID)
	c.User.Username = getEnv("HOHMA_USERNAME", c.User.Username)
	c.Notify.NATSURL = getEnv("HOHMA_NATS_URL", c.Notify.NATSURL)
	if v := getEnvAsInt("HOHMA_RECONNECT_ATTEMPTS", 0); v > 0 {
		c.Sync.ReconnectAttempts = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.SocketURL == "" {
		c.Server.SocketURL = "http://localhost:3001"
	}
	if c.Sync.HeartbeatInterval <= 0 {
		c.Sync.HeartbeatInterval = Duration(25 * time.Second)
	}
	if c.Sync.ConnectionTimeout <= 0 {
		c.Sync.ConnectionTimeout = Duration(60 * time.Second)
	}
	if c.Sync.ReconnectAttempts <= 0 {
		c.Sync.ReconnectAttempts = 10
	}
	if c.Sync.BackoffMin <= 0 {
		c.Sync.BackoffMin = Duration(2 * time.Second)
	}
	if c.Sync.BackoffMax <= 0 {
		c.Sync.BackoffMax = Duration(30 * time.Second)
	}
	if c.Notify.SubjectPrefix == "" {
		c.Notify.SubjectPrefix = "hohma.sync"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
