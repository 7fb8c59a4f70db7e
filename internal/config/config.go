package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort         = "8001"
	DefaultWorkers      = 4
	DefaultMaxRetries   = 3
	DefaultPollInterval = 5 * time.Second
	DefaultAudioDir     = "data/audio"
	DefaultQueueKey     = "podcasts:queue"
)

// Config holds all configuration for the web, worker and provision
// commands, loaded from environment variables.
type Config struct {
	// Postgres (platform provides DATABASE_URL)
	DatabaseURL string

	// HTTP
	Port           string
	AllowedOrigins []string

	// Redis dispatch queue (optional; empty addr = DB polling only)
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	QueueKey           string
	QueueProcessingKey string

	// Worker
	Workers         int
	MaxRetries      int
	PollInterval    time.Duration
	GenerateCommand string
	AudioDir        string

	// Generation API keys, forwarded to the generation command
	OpenAIAPIKey string
	GeminiAPIKey string

	// Cloudflare R2 (optional; unset = audio served locally)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicBaseURL   string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	queueKey := getEnv("REDIS_QUEUE_KEY", DefaultQueueKey)
	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		Port:           getEnv("PORT", DefaultPort),
		AllowedOrigins: splitAndClean(getEnv("ALLOWED_ORIGINS", "*")),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		QueueKey:           queueKey,
		QueueProcessingKey: getEnv("REDIS_PROCESSING_KEY", queueKey+":processing"),

		Workers:         getEnvInt("WORKERS", DefaultWorkers),
		MaxRetries:      getEnvInt("MAX_RETRIES", DefaultMaxRetries),
		PollInterval:    getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		GenerateCommand: os.Getenv("GENERATE_COMMAND"),
		AudioDir:        getEnv("AUDIO_DIR", DefaultAudioDir),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          getEnv("R2_BUCKET_NAME", "podcasts"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		LogFile:  os.Getenv("LOG_FILE"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitAndClean splits a comma-separated list, trimming spaces and dropping
// empty entries.
func splitAndClean(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
