package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverRedis     = "redis"
	StoreDriverPostgres  = "postgres"
	StoreDriverFirestore = "firestore"

	DispatchInline = "inline"
	DispatchQueue  = "queue"

	defaultPort           = "3000"
	defaultGatewayBaseURL = "https://paygateglobal.com/api/v1"
	defaultGatewayTimeout = 15 * time.Second
	defaultPhoneRegion    = "TG"
	defaultRedisPoolSize  = 100
	defaultMaxDeliver     = 5
	defaultMaxAckPending  = 40
)

// Config is loaded once at startup and handed to constructors; nothing mutates it afterwards.
type Config struct {
	Port     string
	LogLevel string

	AuthToken      string
	GatewayBaseURL string
	GatewayTimeout time.Duration
	PhoneRegion    string

	CorsAllowOrigins string

	StoreDriver string
	Redis       RedisConfig
	Postgres    PostgresConfig
	Firestore   FirestoreConfig

	CallbackDispatch string
	Nats             NatsConfig
}

type RedisConfig struct {
	Addr     string
	PoolSize int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
	SSLMode  string
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsJSON string
}

type NatsConfig struct {
	URL           string
	MaxDeliver    int
	MaxAckPending int
}

func Load() (*Config, error) {
	getEnv := func(key string, required bool) (string, error) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" && required {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg := &Config{
		Port:             envOr("PORT", defaultPort),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		GatewayBaseURL:   strings.TrimRight(envOr("PAYGATE_BASE_URL", defaultGatewayBaseURL), "/"),
		GatewayTimeout:   durationFromEnv("GATEWAY_TIMEOUT", defaultGatewayTimeout),
		PhoneRegion:      strings.ToUpper(envOr("PHONE_REGION", defaultPhoneRegion)),
		CorsAllowOrigins: envOr("CORS_ALLOW_ORIGINS", "*"),
		StoreDriver:      strings.ToLower(envOr("STORE_DRIVER", StoreDriverRedis)),
		CallbackDispatch: strings.ToLower(envOr("CALLBACK_DISPATCH", DispatchInline)),
		Redis: RedisConfig{
			Addr:     envOr("REDIS_HOST", "localhost:6379"),
			PoolSize: intFromEnv("REDIS_POOL_SIZE", defaultRedisPoolSize),
		},
		Postgres: PostgresConfig{
			User:     os.Getenv("DATABASE_USER"),
			Password: os.Getenv("DATABASE_PASSWORD"),
			Name:     os.Getenv("DATABASE_NAME"),
			Host:     os.Getenv("DATABASE_HOSTNAME"),
			Port:     os.Getenv("DATABASE_PORT"),
			SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       firstNonEmpty(os.Getenv("FIRESTORE_PROJECT_ID"), os.Getenv("GOOGLE_CLOUD_PROJECT")),
			CredentialsJSON: os.Getenv("FIRESTORE_CREDENTIALS_JSON"),
		},
		Nats: NatsConfig{
			URL:           os.Getenv("NATS_URL"),
			MaxDeliver:    intFromEnv("NATS_MAX_DELIVER", defaultMaxDeliver),
			MaxAckPending: intFromEnv("NATS_MAX_ACK_PENDING", defaultMaxAckPending),
		},
	}

	var err error
	if cfg.AuthToken, err = getEnv("AUTH_TOKEN", true); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case StoreDriverRedis:
	case StoreDriverPostgres:
		p := cfg.Postgres
		if p.User == "" || p.Password == "" || p.Name == "" || p.Host == "" || p.Port == "" {
			return nil, fmt.Errorf("all database environment variables must be set for store driver %q", cfg.StoreDriver)
		}
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			return nil, fmt.Errorf("missing required environment variable: FIRESTORE_PROJECT_ID or GOOGLE_CLOUD_PROJECT")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.CallbackDispatch != DispatchInline && cfg.CallbackDispatch != DispatchQueue {
		return nil, fmt.Errorf("unknown CALLBACK_DISPATCH %q", cfg.CallbackDispatch)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
