package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Worker struct {
	Interval        time.Duration
	BatchSize       int
	PublishingLease time.Duration
}

type Credits struct {
	Delegated    bool
	ServiceURL   string
	ServiceToken string
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	ThreadsClientID       string
	ThreadsClientSecret   string
	GoogleClientID        string
	GoogleClientSecret    string
	PostgresURI           string
	RedisURI              string
	CrossPostURL          string
	R2                    R2
	Worker                Worker
	Credits               Credits
	SecretKey             string
	CookieName            string
}

func LoadConfig() *Config {
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		ThreadsClientID:       getEnv("THREADS_CLIENT_ID", ""),
		ThreadsClientSecret:   getEnv("THREADS_CLIENT_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		CrossPostURL:          getEnv("CROSSPOST_URL", ""),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Worker: Worker{
			Interval:        getEnvDuration("WORKER_INTERVAL", time.Minute),
			BatchSize:       getEnvInt("WORKER_BATCH_SIZE", 20),
			PublishingLease: getEnvDuration("WORKER_PUBLISHING_LEASE", 15*time.Minute),
		},
		Credits: Credits{
			Delegated:    getEnv("CREDIT_SERVICE_URL", "") != "",
			ServiceURL:   getEnv("CREDIT_SERVICE_URL", ""),
			ServiceToken: getEnv("CREDIT_SERVICE_TOKEN", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "publora_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
