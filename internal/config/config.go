// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Env always wins, so a container deployment
// can run without any file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the server and historian binaries need to wire
// their collaborators.
type Config struct {
	ListenAddr  string        `yaml:"listenAddr"`
	DatabaseURL string        `yaml:"databaseURL"`
	Redis       RedisConfig   `yaml:"redis"`
	Auth        AuthConfig    `yaml:"auth"`
	Session     SessionConfig `yaml:"session"`
}

// RedisConfig locates the event queue.
type RedisConfig struct {
	Addr  string `yaml:"addr"`
	DB    int    `yaml:"db"`
	Queue string `yaml:"queue"`
}

// AuthConfig controls player tokens and the platform API secret.
type AuthConfig struct {
	// TokenExpire bounds player token lifetime.
	TokenExpire time.Duration `yaml:"tokenExpire"`
	// KeySeed is a hex-encoded 32-byte ed25519 seed. Empty means a fresh
	// keypair each boot, which invalidates outstanding tokens on restart.
	KeySeed string `yaml:"keySeed"`
	// APISecretHash is the argon2id hash the platform secret is checked
	// against. Empty disables the platform endpoints.
	APISecretHash string `yaml:"apiSecretHash"`
}

// SessionConfig tunes per-connection behavior.
type SessionConfig struct {
	// NotifyBuffer is the per-connection outbound event buffer.
	NotifyBuffer int `yaml:"notifyBuffer"`
	// MsgRate and MsgBurst bound inbound frames per connection.
	MsgRate  float64 `yaml:"msgRate"`
	MsgBurst int     `yaml:"msgBurst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Redis: RedisConfig{
			Addr:  "localhost:6379",
			Queue: "muster_events",
		},
		Auth: AuthConfig{
			TokenExpire: 24 * time.Hour,
		},
		Session: SessionConfig{
			NotifyBuffer: 32,
			MsgRate:      10,
			MsgBurst:     20,
		},
	}
}

// Load reads the config file at configPath, falling back to the default
// candidate paths when it is empty, then applies env overrides. A missing or
// unreadable file is not an error; defaults plus env are enough to run.
func Load(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/muster.yaml",
			"muster.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

// Merge copies the set fields of src over dst, leaving dst's values in place
// where src has the zero value.
func Merge(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.DatabaseURL != "" {
		dst.DatabaseURL = src.DatabaseURL
	}
	if src.Redis.Addr != "" {
		dst.Redis.Addr = src.Redis.Addr
	}
	if src.Redis.DB != 0 {
		dst.Redis.DB = src.Redis.DB
	}
	if src.Redis.Queue != "" {
		dst.Redis.Queue = src.Redis.Queue
	}
	if src.Auth.TokenExpire != 0 {
		dst.Auth.TokenExpire = src.Auth.TokenExpire
	}
	if src.Auth.KeySeed != "" {
		dst.Auth.KeySeed = src.Auth.KeySeed
	}
	if src.Auth.APISecretHash != "" {
		dst.Auth.APISecretHash = src.Auth.APISecretHash
	}
	if src.Session.NotifyBuffer != 0 {
		dst.Session.NotifyBuffer = src.Session.NotifyBuffer
	}
	if src.Session.MsgRate != 0 {
		dst.Session.MsgRate = src.Session.MsgRate
	}
	if src.Session.MsgBurst != 0 {
		dst.Session.MsgBurst = src.Session.MsgBurst
	}
}

// ApplyEnvOverrides lets the environment win over file values.
func ApplyEnvOverrides(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getEnvInt("REDIS_DB", cfg.Redis.DB); v != cfg.Redis.DB {
		cfg.Redis.DB = v
	}
	if v := strings.TrimSpace(os.Getenv("EVENT_QUEUE_NAME")); v != "" {
		cfg.Redis.Queue = v
	}
	if raw := strings.TrimSpace(os.Getenv("TOKEN_EXPIRE_TIME")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.Auth.TokenExpire = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTH_KEY_SEED")); v != "" {
		cfg.Auth.KeySeed = v
	}
	if v := strings.TrimSpace(os.Getenv("API_SECRET_HASH")); v != "" {
		cfg.Auth.APISecretHash = v
	}
	if v := getEnvInt("NOTIFY_BUFFER", cfg.Session.NotifyBuffer); v != cfg.Session.NotifyBuffer {
		cfg.Session.NotifyBuffer = v
	}
	if raw := strings.TrimSpace(os.Getenv("WS_MSG_RATE")); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			cfg.Session.MsgRate = f
		}
	}
	if v := getEnvInt("WS_MSG_BURST", cfg.Session.MsgBurst); v != cfg.Session.MsgBurst {
		cfg.Session.MsgBurst = v
	}
}

// DSN returns the postgres connection string, assembling one from the
// discrete POSTGRES_*/PG_* variables when DatabaseURL is unset.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
