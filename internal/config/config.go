// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port           string
	PostgresDSN    string
	RedisAddr      string
	StorageAPIBase string
	MembershipFile string
	WorkerCount    int

	SendGridAPIKey string
	FromName       string
	FromAddress    string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		StorageAPIBase: getEnv("STORAGE_API_BASE", ""),
		MembershipFile: getEnv("MEMBERSHIP_FILE", "paid_users.csv"),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		FromName:       getEnv("FROM_NAME", "SubtitleMaster"),
		FromAddress:    getEnv("FROM_ADDRESS", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
