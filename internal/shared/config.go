package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	GBPBase            string // Google Business Profile API base
	OAuthTokenURL      string
	GoogleClientID     string
	GoogleClientSecret string
	EncryptionKey      string // hex, 32 bytes

	Workers        int
	PollInterval   time.Duration
	PublishRetries int
	IngestRetries  int
	CacheTTL       time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/gmbpro?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		GBPBase:            env("GBP_BASE_URL", "https://mybusiness.googleapis.com/v4"),
		OAuthTokenURL:      env("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		EncryptionKey:      env("ENCRYPTION_KEY", ""),

		Workers:        atoi("QUEUE_WORKERS", 8),
		PollInterval:   time.Duration(atoi("POLL_INTERVAL_SECONDS", 900)) * time.Second,
		PublishRetries: atoi("PUBLISH_MAX_ATTEMPTS", 5),
		IngestRetries:  atoi("INGEST_MAX_ATTEMPTS", 3),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		log.Warn().Msg("GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET are empty")
	}
	if c.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY is empty; stored credentials cannot be decrypted")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
