package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment.
type Config struct {
	HTTPPort string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	AdminUsername string
	AdminPassword string

	DefaultDailyQuota int

	// Per-stage processing durations; each falls back to STAGE_DURATION.
	WashingDuration time.Duration
	DryingDuration  time.Duration
	FoldingDuration time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
}

// Load reads .env (searching the working directory and up to two parents)
// and builds the Config. Missing optional values fall back to defaults.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "9000"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnvInt("DB_PORT", 5432),
		DBUser:             os.Getenv("POSTGRES_USER"),
		DBPassword:         os.Getenv("POSTGRES_PASSWORD"),
		DBName:             os.Getenv("POSTGRES_DB"),
		KafkaBrokers:       splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "laundry.order-events"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		CacheTTL:           getEnvDuration("CACHE_TTL", 30*time.Second),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUsername:       os.Getenv("SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:           os.Getenv("SMTP_FROM"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		DefaultDailyQuota:  getEnvInt("DAILY_QUOTA", 3),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  getEnvInt("OUTBOX_MAX_ATTEMPTS", 5),
	}

	stageDefault := getEnvDuration("STAGE_DURATION", time.Hour)
	cfg.WashingDuration = getEnvDuration("WASHING_DURATION", stageDefault)
	cfg.DryingDuration = getEnvDuration("DRYING_DURATION", stageDefault)
	cfg.FoldingDuration = getEnvDuration("FOLDING_DURATION", stageDefault)

	if cfg.DBUser == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("config: POSTGRES_USER and POSTGRES_DB must be set")
	}
	return cfg, nil
}

// Dsn builds the postgres connection string.
func (c *Config) Dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func loadEnvFile() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			return
		}
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
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
