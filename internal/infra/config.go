package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	WorkerMetricsPort string

	DatabaseURL string
	RedisURL    string

	QueueStream   string
	QueueGroup    string
	QueueConsumer string

	StoragePath   string
	UploadPath    string
	GeneratedPath string

	FireflyClientID     string
	FireflyClientSecret string
	FireflyAPIKey       string
	FireflyBaseURL      string
	FireflyTokenURL     string

	DropboxAccessToken string
	DropboxFolderPath  string

	ProhibitedWords         []string
	EnableContentValidation bool

	BrandColors              []string
	EnableBrandValidation    bool
	BrandColorTolerance      int
	BrandComplianceThreshold float64

	MaxRetries      int
	RetryBackoffCap time.Duration

	BasicAuthUsername string
	BasicAuthPassword string

	AllowedOrigins []string

	CleanupMaxAge time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

const (
	defaultProhibitedWords = "spam,scam,fake,fraud,illegal,drugs,weapons,violence,hate,explicit,adult,casino,gambling,phishing"
	defaultBrandColors     = "#FF5733,#3498DB,#2ECC71,#F39C12,#9B59B6"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	storagePath := getEnv("STORAGE_PATH", "./storage")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9090"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		QueueStream:   getEnv("QUEUE_STREAM", "campaigns:process"),
		QueueGroup:    getEnv("QUEUE_GROUP", "campaign-workers"),
		QueueConsumer: os.Getenv("QUEUE_CONSUMER"),

		StoragePath:   storagePath,
		UploadPath:    getEnv("UPLOAD_PATH", storagePath+"/uploads"),
		GeneratedPath: getEnv("GENERATED_PATH", storagePath+"/generated"),

		FireflyClientID:     os.Getenv("FIREFLY_CLIENT_ID"),
		FireflyClientSecret: os.Getenv("FIREFLY_CLIENT_SECRET"),
		FireflyAPIKey:       os.Getenv("FIREFLY_API_KEY"),
		FireflyBaseURL:      getEnv("FIREFLY_BASE_URL", "https://firefly-api.adobe.io"),
		FireflyTokenURL:     getEnv("FIREFLY_TOKEN_URL", "https://ims-na1.adobelogin.com/ims/token/v3"),

		DropboxAccessToken: os.Getenv("DROPBOX_ACCESS_TOKEN"),
		DropboxFolderPath:  getEnv("DROPBOX_FOLDER_PATH", "/campaign-images"),

		ProhibitedWords:         splitList(getEnv("PROHIBITED_WORDS", defaultProhibitedWords)),
		EnableContentValidation: getEnvBool("ENABLE_CONTENT_VALIDATION", true),

		BrandColors:              splitList(getEnv("BRAND_COLORS", defaultBrandColors)),
		EnableBrandValidation:    getEnvBool("ENABLE_BRAND_VALIDATION", true),
		BrandColorTolerance:      getEnvInt("BRAND_COLOR_TOLERANCE", 30),
		BrandComplianceThreshold: getEnvFloat("BRAND_COMPLIANCE_THRESHOLD", 50.0),

		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		RetryBackoffCap: time.Second * time.Duration(getEnvInt("RETRY_BACKOFF_CAP_SECONDS", 600)),

		BasicAuthUsername: getEnv("BASIC_AUTH_USERNAME", "admin"),
		BasicAuthPassword: getEnv("BASIC_AUTH_PASSWORD", "changeme"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		CleanupMaxAge: 24 * time.Hour * time.Duration(getEnvInt("CLEANUP_MAX_AGE_DAYS", 30)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
