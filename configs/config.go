package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string

	// 学習データ（CSV / XLSX）。ファイルが無ければ平均スコアにフォールバックする
	TrainingDataPath  string
	TrainingSheet     string
	TrainingTestRatio float64
	TrainingSeed      int64

	// セッション設定
	SessionStore  string // "memory" or "redis"
	SessionTTL    time.Duration
	SessionCookie string
	CookieSecure  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AdminUsername string
	AdminPassword string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		TrainingDataPath:  getEnv("TRAINING_DATA_PATH", "nigerian_depression_data.csv"),
		TrainingSheet:     getEnv("TRAINING_SHEET", ""),
		TrainingTestRatio: getEnvFloat("TRAINING_TEST_RATIO", 0.2),
		TrainingSeed:      int64(getEnvInt("TRAINING_SEED", 42)),
		SessionStore:      strings.ToLower(getEnv("SESSION_STORE", "memory")),
		SessionTTL:        getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionCookie:     getEnv("SESSION_COOKIE", "mindcheck_session"),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
	}
}

// IsProduction 本番環境かどうか
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
