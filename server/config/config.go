package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

type Config struct {
	Port     string
	Env      string
	NATSURL  string
	LogLevel slog.Level
}

// Load reads the server configuration from the environment. A .env file in
// the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "development"),
		NATSURL:  getEnv("NATS_URL", nats.DefaultURL),
		LogLevel: level,
	}, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LogHandler writes text logs in development and JSON logs elsewhere.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	options := &slog.HandlerOptions{Level: c.LogLevel}
	if c.IsDevelopment() {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

func (c *Config) Address() string {
	return ":" + c.Port
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(value))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
