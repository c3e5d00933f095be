package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config is assembled once at startup and passed down explicitly; nothing in
// the tree reads the environment after Load returns.
type Config struct {
	HTTPAddr string

	// DatabaseURL enables the Postgres repositories when set; otherwise the
	// in-memory stores are used.
	DatabaseURL string

	// RedisURL enables the Redis idempotency store and ticket queue when set.
	RedisURL string

	AllowedOrigins []string

	IdempotencyTTL  time.Duration
	ReservationTTL  time.Duration
	SweepInterval   time.Duration
	WorkerCount     int
	WorkerRetryMax  int
	WorkerRetryBase time.Duration
	QueueCapacity   int
}

func Load() Config {
	return Config{
		HTTPAddr:        getEnv("INTAKE_HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("INTAKE_DATABASE_URL"),
		RedisURL:        os.Getenv("INTAKE_REDIS_URL"),
		AllowedOrigins:  []string{getEnv("INTAKE_ALLOWED_ORIGIN", "*")},
		IdempotencyTTL:  getDuration("INTAKE_IDEMPOTENCY_TTL", 24*time.Hour),
		ReservationTTL:  getDuration("INTAKE_RESERVATION_TTL", 2*time.Minute),
		SweepInterval:   getDuration("INTAKE_SWEEP_INTERVAL", 30*time.Second),
		WorkerCount:     getInt("INTAKE_WORKER_COUNT", 4),
		WorkerRetryMax:  getInt("INTAKE_WORKER_RETRY_MAX", 3),
		WorkerRetryBase: getDuration("INTAKE_WORKER_RETRY_BASE", 200*time.Millisecond),
		QueueCapacity:   getInt("INTAKE_QUEUE_CAPACITY", 1024),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
