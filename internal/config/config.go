package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Port        string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Billing      BillingConfig
	Webhook      WebhookConfig
	Ingest       IngestConfig
	Credentials  CredentialConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	ArtifactS3   ArtifactS3Config
	UsageMetrics UsageMetricsConfig
}

type BillingConfig struct {
	Amount string
	Client string
}

type WebhookConfig struct {
	TimeoutSeconds      int
	MaxAttempts         int
	PollIntervalSeconds int
	BatchSize           int
}

type IngestConfig struct {
	ArtifactPolicy string
	MaxUploadBytes int64
}

type CredentialConfig struct {
	LiveToken    string
	SandboxToken string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled              bool
	EmploymentRate       float64
	EmploymentBurst      int
	IngestLockTTLSeconds int
}

type ArtifactS3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type UsageMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

const (
	ArtifactPolicyStrict     = "strict"
	ArtifactPolicyPermissive = "permissive"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "taxverify"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		Port:         getenv("PORT", "3001"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "taxverify"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "taxverify.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SECONDS", 300),

		Billing: BillingConfig{
			Amount: getenv("BILLING_AMOUNT", "59.98"),
			Client: getenv("BILLING_CLIENT", "employer_com"),
		},
		Webhook: WebhookConfig{
			TimeoutSeconds:      getenvInt("WEBHOOK_TIMEOUT_SECONDS", 10),
			MaxAttempts:         getenvInt("WEBHOOK_MAX_ATTEMPTS", 5),
			PollIntervalSeconds: getenvInt("WEBHOOK_POLL_INTERVAL_SECONDS", 5),
			BatchSize:           getenvInt("WEBHOOK_BATCH_SIZE", 20),
		},
		Ingest: IngestConfig{
			ArtifactPolicy: NormalizeArtifactPolicy(getenv("ARTIFACT_POLICY", ArtifactPolicyStrict)),
			MaxUploadBytes: getenvInt64("UPLOAD_MAX_BYTES", 10<<20),
		},
		Credentials: CredentialConfig{
			LiveToken:    strings.TrimSpace(os.Getenv("EMPLOYMENT_API_KEY_LIVE")),
			SandboxToken: strings.TrimSpace(os.Getenv("EMPLOYMENT_API_KEY_SANDBOX")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			EmploymentRate:       getenvFloat("EMPLOYMENT_RATE", 5),
			EmploymentBurst:      getenvInt("EMPLOYMENT_BURST", 20),
			IngestLockTTLSeconds: getenvInt("INGEST_LOCK_TTL_SECONDS", 30),
		},
		ArtifactS3: ArtifactS3Config{
			Enabled:         getenvBool("ARTIFACT_S3_ENABLED", false),
			Bucket:          strings.TrimSpace(getenv("ARTIFACT_S3_BUCKET", "")),
			Region:          getenv("ARTIFACT_S3_REGION", "us-east-1"),
			Endpoint:        strings.TrimSpace(getenv("ARTIFACT_S3_ENDPOINT", "")),
			AccessKeyID:     strings.TrimSpace(getenv("ARTIFACT_S3_ACCESS_KEY_ID", "")),
			SecretAccessKey: strings.TrimSpace(getenv("ARTIFACT_S3_SECRET_ACCESS_KEY", "")),
		},
		UsageMetrics: UsageMetricsConfig{
			Enabled:   getenvBool("USAGE_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("USAGE_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("USAGE_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("USAGE_METRICS_AUTH_TOKEN", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// NormalizeArtifactPolicy falls back to strict for unknown values.
func NormalizeArtifactPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ArtifactPolicyPermissive:
		return ArtifactPolicyPermissive
	default:
		return ArtifactPolicyStrict
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
