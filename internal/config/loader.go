package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the CarePulse service.
type Config struct {
	HTTPPort    int
	LogLevel    string
	SQLiteDSN   string
	ProductName string

	// NotificationLocation is the zone appointment times are rendered in for SMS bodies.
	NotificationLocation *time.Location

	AdminPasskey     string
	AdminPasskeyHash string

	SMSBaseURL string
	SMSAPIKey  string
	SMSFrom    string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	StorageEndpoint   string
	StorageProject    string

	OutboxInterval    time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int
}

// Load parses configuration values from the current process environment.
//
// A .env file in the working directory is read first when present; variables
// already set in the environment win. Defaults are applied to optional fields
// and every missing or malformed variable is reported in a single error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:             8080,
		LogLevel:             "info",
		SQLiteDSN:            "carepulse.db",
		ProductName:          "CarePulse",
		NotificationLocation: time.UTC,
		S3Region:             "us-east-1",
		IdempotencyTTL:       24 * time.Hour,
		OutboxInterval:       30 * time.Second,
		OutboxBatchSize:      50,
		OutboxMaxAttempts:    5,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("CAREPULSE_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "CAREPULSE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if level := env("CAREPULSE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	if dsn := env("CAREPULSE_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if name := env("CAREPULSE_PRODUCT_NAME"); name != "" {
		cfg.ProductName = name
	}

	if zone := env("CAREPULSE_NOTIFICATION_TIMEZONE"); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "CAREPULSE_NOTIFICATION_TIMEZONE")
		} else {
			cfg.NotificationLocation = loc
		}
	}

	cfg.AdminPasskey = env("CAREPULSE_ADMIN_PASSKEY")
	cfg.AdminPasskeyHash = env("CAREPULSE_ADMIN_PASSKEY_HASH")

	cfg.SMSBaseURL = env("CAREPULSE_SMS_BASE_URL")
	cfg.SMSAPIKey = env("CAREPULSE_SMS_API_KEY")
	cfg.SMSFrom = env("CAREPULSE_SMS_FROM")
	if cfg.SMSBaseURL != "" && cfg.SMSAPIKey == "" {
		missing = append(missing, "CAREPULSE_SMS_API_KEY")
	}

	cfg.RedisAddr = env("CAREPULSE_REDIS_ADDR")
	cfg.RedisPassword = env("CAREPULSE_REDIS_PASSWORD")
	if dbValue := env("CAREPULSE_REDIS_DB"); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			invalid = append(invalid, "CAREPULSE_REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}
	if ttlValue := env("CAREPULSE_IDEMPOTENCY_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "CAREPULSE_IDEMPOTENCY_TTL")
		} else {
			cfg.IdempotencyTTL = ttl
		}
	}

	cfg.S3Bucket = env("CAREPULSE_S3_BUCKET")
	if region := env("CAREPULSE_S3_REGION"); region != "" {
		cfg.S3Region = region
	}
	cfg.S3Endpoint = env("CAREPULSE_S3_ENDPOINT")
	cfg.S3AccessKeyID = env("CAREPULSE_S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = env("CAREPULSE_S3_SECRET_ACCESS_KEY")
	cfg.StorageEndpoint = strings.TrimRight(env("CAREPULSE_STORAGE_ENDPOINT"), "/")
	cfg.StorageProject = env("CAREPULSE_STORAGE_PROJECT")
	if cfg.S3Bucket != "" && cfg.StorageEndpoint == "" {
		missing = append(missing, "CAREPULSE_STORAGE_ENDPOINT")
	}

	if intervalValue := env("CAREPULSE_OUTBOX_INTERVAL"); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "CAREPULSE_OUTBOX_INTERVAL")
		} else {
			cfg.OutboxInterval = interval
		}
	}

	if batchValue := env("CAREPULSE_OUTBOX_BATCH_SIZE"); batchValue != "" {
		batch, err := strconv.Atoi(batchValue)
		if err != nil || batch <= 0 {
			invalid = append(invalid, "CAREPULSE_OUTBOX_BATCH_SIZE")
		} else {
			cfg.OutboxBatchSize = batch
		}
	}

	if attemptsValue := env("CAREPULSE_OUTBOX_MAX_ATTEMPTS"); attemptsValue != "" {
		attempts, err := strconv.Atoi(attemptsValue)
		if err != nil || attempts <= 0 {
			invalid = append(invalid, "CAREPULSE_OUTBOX_MAX_ATTEMPTS")
		} else {
			cfg.OutboxMaxAttempts = attempts
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// RequireAdminPasskey fails when neither a passkey nor its hash is set. Only
// the HTTP server guards the admin routes, so Load leaves this check to serve.
func (c Config) RequireAdminPasskey() error {
	if c.AdminPasskey == "" && c.AdminPasskeyHash == "" {
		return fmt.Errorf("missing required environment variables: CAREPULSE_ADMIN_PASSKEY")
	}
	return nil
}

// RedisEnabled reports whether an idempotency store should be wired.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// BlobStorageEnabled reports whether identification documents can be uploaded.
func (c Config) BlobStorageEnabled() bool {
	return c.S3Bucket != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
