package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendGridFS = "gridfs"
	BackendS3     = "s3"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env            string
	HTTPAddr       string
	CORSOrigins    []string
	StorageBackend string
	MongoURI       string
	MongoDB        string

	AttachmentBackend  string
	AttachmentMaxBytes int64
	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	JWTSecret       string
	JWTIssuer       string
	// AuthInsecureDev accepts unsigned bearer tokens when no JWT secret is set.
	AuthInsecureDev bool

	KafkaBrokers         []string
	KafkaTopicPrefix     string
	KafkaClientID        string
	ProfileConsumerGroup string
	OutboxPollInterval   time.Duration
	RetryBackoff         []time.Duration

	IdempotencyTTL time.Duration

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ProfileCacheTTL time.Duration

	SendRatePerMinute int
	SendBurst         int

	UserFixtures string
}

// DevEnv reports whether the environment allows development defaults.
func (c Config) DevEnv() bool {
	switch c.Env {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	cfg := Config{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		StorageBackend:       strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getEnv("MONGO_DB", "learnhub_messaging"),
		AttachmentBackend:    strings.ToLower(getEnv("ATTACHMENT_BACKEND", BackendMemory)),
		S3Endpoint:           getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3PublicEndpoint:     getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:          getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:             getEnv("S3_BUCKET", "learnhub-attachments"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTIssuer:            getEnv("JWT_ISSUER", ""),
		KafkaTopicPrefix:     getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaClientID:        getEnv("KAFKA_CLIENT_ID", "learnhub-messenger"),
		ProfileConsumerGroup: getEnv("PROFILE_CONSUMER_GROUP", "learnhub-messenger-profiles"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		UserFixtures:         os.Getenv("USER_FIXTURES"),
	}
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.ProfileCacheTTL, err = parseDurationEnv("PROFILE_CACHE_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.BreakerTimeout, err = parseDurationEnv("BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.AuthInsecureDev, err = parseBoolEnv("AUTH_INSECURE_DEV", false); err != nil {
		return Config{}, err
	}
	maxBytes, err := parseIntEnv("ATTACHMENT_MAX_BYTES", 10<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.AttachmentMaxBytes = int64(maxBytes)
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.SendRatePerMinute, err = parseIntEnv("SEND_RATE_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	if cfg.SendBurst, err = parseIntEnv("SEND_BURST", 10); err != nil {
		return Config{}, err
	}
	failures, err := parseIntEnv("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	if failures < 1 {
		return Config{}, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %d", failures)
	}
	cfg.BreakerMaxFailures = uint32(failures)

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORAGE_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.AttachmentBackend {
	case BackendMemory, BackendS3:
	case BackendGridFS:
		if c.StorageBackend != BackendMongo {
			return errors.New("ATTACHMENT_BACKEND=gridfs requires STORAGE_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("invalid ATTACHMENT_BACKEND %q", c.AttachmentBackend)
	}
	if c.AuthInsecureDev && !c.DevEnv() {
		return errors.New("AUTH_INSECURE_DEV is only allowed in dev, local or test")
	}
	if c.JWTSecret == "" && !c.AuthInsecureDev {
		return errors.New("JWT_SECRET is required unless AUTH_INSECURE_DEV=true")
	}
	if c.SendRatePerMinute < 0 || c.SendBurst < 0 {
		return errors.New("SEND_RATE_PER_MINUTE and SEND_BURST must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
