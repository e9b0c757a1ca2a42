package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Pipeline worker pool
	WorkerCount   int
	QueueSize     int
	DecodeTimeout time.Duration
	RenderTimeout time.Duration

	// Blob store
	BlobRoot        string
	BlobSigningKey  string
	BlobURLTTL      time.Duration
	ReplayRetention time.Duration // zero keeps raw replays forever

	// Upload
	MaxUploadBytes int64

	// Rate limiting
	UploadRatePerMinute int

	// Notifications
	DiscordWebhookURL string
	FrontendURL       string

	// Rendering
	FFmpegPath string
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		WorkerCount:   getEnvInt("WORKER_COUNT", 4),
		QueueSize:     getEnvInt("QUEUE_SIZE", 1000),
		DecodeTimeout: getEnvDuration("DECODE_TIMEOUT", 30*time.Second),
		RenderTimeout: getEnvDuration("RENDER_TIMEOUT", 10*time.Minute),

		BlobRoot:        getEnv("BLOB_ROOT", "/var/lib/replay-vault"),
		BlobURLTTL:      getEnvDuration("BLOB_URL_TTL", 24*time.Hour),
		ReplayRetention: getEnvDuration("REPLAY_RETENTION", 0),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 50*1024*1024)),

		UploadRatePerMinute: getEnvInt("UPLOAD_RATE_PER_MINUTE", 10),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		FrontendURL:       getEnv("FRONTEND_URL", ""),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	rawOrigins := strings.Split(origins, ",")
	for _, o := range rawOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}
	if cfg.ClickHouseURL, err = getEnvRequired("CLICKHOUSE_URL"); err != nil {
		return nil, err
	}
	if cfg.RedisURL, err = getEnvRequired("REDIS_URL"); err != nil {
		return nil, err
	}
	if cfg.BlobSigningKey, err = getEnvRequired("BLOB_SIGNING_KEY"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
