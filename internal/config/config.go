package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Storage StorageConfig
	Groq    GroqConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	DataDir string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type SessionConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    5000,
			MCPPort: 5001,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama3-70b-8192",
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".datasage"
	}
	return filepath.Join(home, ".datasage")
}

// Load reads configuration from defaults, an optional .env file in the
// working directory, and DATASAGE_* environment variables (environment wins).
// A missing Groq key is not an error: the translator falls back to the
// rule-based path without one.
func Load() (Config, error) {
	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg := defaults()
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATASAGE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DATASAGE_PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("DATASAGE_MCP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DATASAGE_MCP_PORT %q: %w", v, err)
		}
		cfg.Server.MCPPort = p
	}
	if v := os.Getenv("DATASAGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DATASAGE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATASAGE_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DATASAGE_REDIS_DB %q: %w", v, err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("DATASAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Groq.APIKey = v
	}
	if v := os.Getenv("DATASAGE_GROQ_API_KEY"); v != "" {
		cfg.Groq.APIKey = v
	}
	if v := os.Getenv("DATASAGE_GROQ_BASE_URL"); v != "" {
		cfg.Groq.BaseURL = v
	}
	if v := os.Getenv("DATASAGE_GROQ_MODEL"); v != "" {
		cfg.Groq.Model = v
	}
	if v := os.Getenv("DATASAGE_GROQ_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DATASAGE_GROQ_TIMEOUT %q: %w", v, err)
		}
		cfg.Groq.Timeout = d
	}
	if v := os.Getenv("DATASAGE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DATASAGE_SESSION_TTL %q: %w", v, err)
		}
		cfg.Session.TTL = d
	}
	if v := os.Getenv("DATASAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
