package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	API       APIConfig
	Storage   StorageConfig
	Media     MediaConfig
	Recording RecordingConfig
	Secrets   SecretsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// APIConfig holds the server-to-server API key.
type APIConfig struct {
	Key string
}

// StorageConfig selects and configures the object-storage provider.
// Provider is "s3" (AWS), "s3compat" (custom endpoint, e.g. MinIO or another
// S3-compatible store) or "memory" (single-node dev only).
type StorageConfig struct {
	Provider             string
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	Endpoint             string // s3compat only
	PresignExpireMinutes int
}

// MediaConfig holds the external media server control endpoint and the shared
// secrets for outbound control calls and inbound webhook verification.
type MediaConfig struct {
	ControlURL     string
	APIKey         string
	APISecret      string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// RecordingConfig holds recording orchestration tunables. LockLease must stay
// below ReconcileTimeout so a crashed holder's lease expires before the
// reconciliation sweep takes over.
type RecordingConfig struct {
	LockLease        time.Duration
	LockWait         time.Duration
	ReconcileTimeout time.Duration
	ReconcileEvery   time.Duration
	DedupTTL         time.Duration
	StorageRetries   int
}

// SecretsConfig holds the key used to derive room access secrets.
type SecretsConfig struct {
	AccessSecretKey string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/roomkit?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "roomkit"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		API: APIConfig{
			Key: getEnv("API_KEY", ""),
		},
		Storage: StorageConfig{
			Provider:             getEnv("STORAGE_PROVIDER", "s3"),
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:               getEnv("STORAGE_BUCKET", "roomkit-recordings"),
			Endpoint:             getEnv("STORAGE_ENDPOINT", ""),
			PresignExpireMinutes: getEnvInt("PRESIGN_EXPIRE_MINUTES", 15),
		},
		Media: MediaConfig{
			ControlURL:     getEnv("MEDIA_CONTROL_URL", "http://localhost:7880"),
			APIKey:         getEnv("MEDIA_API_KEY", ""),
			APISecret:      getEnv("MEDIA_API_SECRET", ""),
			WebhookSecret:  getEnv("MEDIA_WEBHOOK_SECRET", ""),
			RequestTimeout: getEnvDuration("MEDIA_REQUEST_TIMEOUT", 10*time.Second),
		},
		Recording: RecordingConfig{
			LockLease:        getEnvDuration("RECORDING_LOCK_LEASE", 15*time.Second),
			LockWait:         getEnvDuration("RECORDING_LOCK_WAIT", 5*time.Second),
			ReconcileTimeout: getEnvDuration("RECORDING_RECONCILE_TIMEOUT", 2*time.Minute),
			ReconcileEvery:   getEnvDuration("RECORDING_RECONCILE_EVERY", 30*time.Second),
			DedupTTL:         getEnvDuration("WEBHOOK_DEDUP_TTL", 10*time.Minute),
			StorageRetries:   getEnvInt("STORAGE_RETRIES", 3),
		},
		Secrets: SecretsConfig{
			AccessSecretKey: getEnv("ACCESS_SECRET_KEY", "change-me-in-production"),
		},
	}
	if cfg.Recording.LockLease >= cfg.Recording.ReconcileTimeout {
		return nil, fmt.Errorf("RECORDING_LOCK_LEASE (%s) must be shorter than RECORDING_RECONCILE_TIMEOUT (%s)",
			cfg.Recording.LockLease, cfg.Recording.ReconcileTimeout)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
