package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	StoreDriver     string
	MySQLDSN        string
	RedisAddr       string
	KafkaBrokers    []string
	NotifyTopic     string
	NotifyWorkers   int
	NotifyQueueSize int
	DuesAmount      int64
	DuesTitle       string
	AdminEmails     []string
	JWTSecret       string
	ImageDir        string
	ImageBaseURL    string
	RequestTimeout  time.Duration
	LogLevel        slog.Level
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "err", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":50051"),
		StoreDriver:  getEnv("STORE_DRIVER", StoreMySQL),
		MySQLDSN:     getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/campus"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:  getEnv("NOTIFY_TOPIC", "payment-events"),
		DuesTitle:    getEnv("DUES_TITLE", "Membership dues"),
		AdminEmails:  splitList(os.Getenv("ADMIN_EMAILS")),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		ImageDir:     os.Getenv("IMAGE_DIR"),
		ImageBaseURL: getEnv("IMAGE_BASE_URL", "/uploads"),
	}

	var err error
	if cfg.NotifyWorkers, err = getInt("NOTIFY_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.NotifyQueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 1000); err != nil {
		return Config{}, err
	}
	amount, err := getInt("DUES_AMOUNT", 500000)
	if err != nil {
		return Config{}, err
	}
	cfg.DuesAmount = int64(amount)
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.StoreDriver != StoreMySQL && c.StoreDriver != StoreMemory {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMySQL, StoreMemory, c.StoreDriver)
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return errors.New("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.DuesAmount <= 0 {
		return errors.New("DUES_AMOUNT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
