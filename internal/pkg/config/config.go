package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogRoot  string `env:"LOG_ROOT" envDefault:"./logs"`

	// Per-subsystem defaults; RegisterSubsystem may override them.
	BufferSize    int           `env:"BUFFER_SIZE" envDefault:"100"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	RetentionDays int           `env:"RETENTION_DAYS" envDefault:"30"`
	Compress      bool          `env:"COMPRESS_OLD_LOGS" envDefault:"true"`
	Streaming     bool          `env:"REALTIME_STREAMING" envDefault:"true"`
	IndexSize     int           `env:"SEARCH_INDEX_SIZE" envDefault:"5000"`

	// Push server.
	StreamAddr        string        `env:"STREAM_ADDR" envDefault:":9220"`
	MaxConnections    int           `env:"STREAM_MAX_CONNECTIONS" envDefault:"100"`
	HeartbeatInterval time.Duration `env:"STREAM_HEARTBEAT_INTERVAL" envDefault:"30s"`
	MessagesPerSec    int           `env:"STREAM_MESSAGES_PER_SEC" envDefault:"10"`

	// Management API.
	APIAddr           string `env:"API_ADDR" envDefault:":9210"`
	RequestsPerMinute int    `env:"API_REQUESTS_PER_MINUTE" envDefault:"300"`
	MaxSearchResults  int    `env:"MAX_SEARCH_RESULTS" envDefault:"1000"`
	MaxDownloadBytes  int64  `env:"MAX_DOWNLOAD_BYTES" envDefault:"10485760"` // 10MB

	// Optional external stores; empty disables the adapter.
	RedisAddr   string `env:"REDIS_ADDR"`
	PostgresURL string `env:"POSTGRES_URL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
