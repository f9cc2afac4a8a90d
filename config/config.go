package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Port          string
	PublicBaseURL string // prefix for image URLs handed to clients
	LogLevel      string

	StoreDriver string // "mongo" or "memory"
	MongoURI    string
	DBName      string

	ImageStore    string // "local" or "s3"
	ImagesDir     string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	S3AccessKeyID string
	S3SecretKey   string
	WebPQuality   float32
	MaxUploadMB   int64

	JWTSecret string
	TokenTTL  time.Duration

	BestRatingLimit int64
	MinGrade        int
	MaxGrade        int
	VoteAttempts    int
	VoteBaseDelay   time.Duration

	AuthRateLimit float64 // requests per second per client on /api/auth
	AuthBurst     int
	CORSOrigins   []string
}

// Load reads configuration from the environment. Call godotenv.Load beforehand to pick up a .env file.
func Load() (*Config, error) {
	port := getEnv("PORT", "4000")
	cfg := &Config{
		Port:          port,
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:"+port),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", "mongo")),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("MONGODB_DB", "grimoire"),
		ImageStore:    strings.ToLower(getEnv("IMAGE_STORE", "local")),
		ImagesDir:     getEnv("IMAGES_DIR", "images"),
		S3Bucket:      getEnv("AWS_S3_BUCKET", ""),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3Prefix:      getEnv("AWS_S3_PREFIX", "images/"),
		S3AccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
	}

	var err error
	if cfg.MaxUploadMB, err = getInt64("MAX_UPLOAD_MB", 10); err != nil {
		return nil, err
	}
	quality, err := strconv.ParseFloat(getEnv("WEBP_QUALITY", "80"), 32)
	if err != nil || quality <= 0 || quality > 100 {
		return nil, fmt.Errorf("WEBP_QUALITY must be in (0, 100]")
	}
	cfg.WebPQuality = float32(quality)
	if cfg.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	if cfg.BestRatingLimit, err = getInt64("BEST_RATING_LIMIT", 3); err != nil {
		return nil, err
	}
	minGrade, err := getInt64("RATING_MIN", 0)
	if err != nil {
		return nil, err
	}
	maxGrade, err := getInt64("RATING_MAX", 5)
	if err != nil {
		return nil, err
	}
	cfg.MinGrade, cfg.MaxGrade = int(minGrade), int(maxGrade)
	attempts, err := getInt64("RATING_WRITE_ATTEMPTS", 6)
	if err != nil {
		return nil, err
	}
	cfg.VoteAttempts = int(attempts)
	if cfg.VoteBaseDelay, err = time.ParseDuration(getEnv("RATING_RETRY_DELAY", "10ms")); err != nil {
		return nil, fmt.Errorf("RATING_RETRY_DELAY: %w", err)
	}
	if cfg.AuthRateLimit, err = strconv.ParseFloat(getEnv("AUTH_RATE_LIMIT", "5"), 64); err != nil {
		return nil, fmt.Errorf("AUTH_RATE_LIMIT: %w", err)
	}
	burst, err := getInt64("AUTH_RATE_BURST", 10)
	if err != nil {
		return nil, err
	}
	cfg.AuthBurst = int(burst)
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.StoreDriver)
	}
	switch c.ImageStore {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required when IMAGE_STORE=s3")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be local or s3, got %q", c.ImageStore)
	}
	if c.MinGrade < 0 || c.MaxGrade < c.MinGrade {
		return fmt.Errorf("rating range [%d, %d] is invalid", c.MinGrade, c.MaxGrade)
	}
	if c.BestRatingLimit <= 0 || c.MaxUploadMB <= 0 || c.VoteAttempts <= 0 {
		return fmt.Errorf("BEST_RATING_LIMIT, MAX_UPLOAD_MB and RATING_WRITE_ATTEMPTS must be positive")
	}
	return nil
}

// ValidateEnv refuses to start with a missing or default JWT secret.
func (c *Config) ValidateEnv(logger *zap.Logger) error {
	if strings.TrimSpace(os.Getenv("JWT_SECRET")) == "" || c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set to a strong secret")
	}
	logger.Info("config loaded",
		zap.String("port", c.Port),
		zap.String("store", c.StoreDriver),
		zap.String("images", c.ImageStore),
		zap.String("public_base_url", c.PublicBaseURL),
	)
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
