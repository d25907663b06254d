package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// T24Config holds settings for the upstream core-banking API and its token endpoint.
type T24Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Scope        string

	// APIKeyHeader carries the raw token on customer lookups and notifications.
	APIKeyHeader string
	// ProxyHeader and ProxyHeaderPrefix carry the token on generic proxy calls.
	ProxyHeader       string
	ProxyHeaderPrefix string

	CustomerPath string
	NotifyPath   string

	Timeout         time.Duration
	RefreshSkew     time.Duration
	DefaultTokenTTL time.Duration
}

// UploadConfig limits what the intake boundary accepts.
type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
	// StoreTimeout bounds a single content store write.
	StoreTimeout time.Duration
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RedisConfig holds settings for the optional customer lookup cache.
// An empty Addr disables caching.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CustomerTTL time.Duration
}

type TracingConfig struct {
	ServiceName string
	Disabled    bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost         string
	Port            string
	FrontendURL     string
	ShutdownTimeout time.Duration
	T24             T24Config
	Upload          UploadConfig
	MinIO           MinIOConfig
	Redis           RedisConfig
	Tracing         TracingConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:         getEnv("APP_HOST", "localhost:5000"),
		Port:            getEnv("PORT", "5000"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		T24: T24Config{
			BaseURL:           getEnv("T24_BASE_URL", "https://api.temenos.com/api/v5.8.0"),
			AuthURL:           getEnv("T24_AUTH_URL", ""),
			ClientID:          getEnv("T24_CLIENT_ID", ""),
			ClientSecret:      getEnv("T24_CLIENT_SECRET", ""),
			Scope:             getEnv("T24_SCOPE", ""),
			APIKeyHeader:      getEnv("T24_API_KEY_HEADER", "ApiKey"),
			ProxyHeader:       getEnv("T24_PROXY_HEADER", "Authorization"),
			ProxyHeaderPrefix: getEnv("T24_PROXY_HEADER_PREFIX", "Bearer "),
			CustomerPath:      getEnv("T24_CUSTOMER_PATH", "party/customers"),
			NotifyPath:        getEnv("T24_NOTIFY_PATH", "party/customers/documents"),
			Timeout:           getEnvDuration("T24_TIMEOUT", 15*time.Second),
			RefreshSkew:       getEnvDuration("T24_REFRESH_SKEW", 30*time.Second),
			DefaultTokenTTL:   getEnvDuration("T24_DEFAULT_TOKEN_TTL", 5*time.Minute),
		},
		Upload: UploadConfig{
			MaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 10<<20),
			AllowedTypes: getEnvList("UPLOAD_ALLOWED_TYPES", []string{
				"identity", "proof-of-address", "financial-statement", "contract", "other",
			}),
			StoreTimeout: getEnvDuration("UPLOAD_STORE_TIMEOUT", time.Minute),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			CustomerTTL: getEnvDuration("REDIS_CUSTOMER_TTL", 10*time.Minute),
		},
		Tracing: TracingConfig{
			ServiceName: getEnv("OTEL_SERVICE_NAME", "docintake"),
			Disabled:    getEnvBool("OTEL_SDK_DISABLED", false),
		},
	}
}

// Validate reports settings the gateway cannot start without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.T24.BaseURL == "" {
		errs = append(errs, errors.New("T24_BASE_URL is required"))
	}
	if c.T24.AuthURL == "" {
		errs = append(errs, errors.New("T24_AUTH_URL is required"))
	}
	if c.T24.ClientID == "" || c.T24.ClientSecret == "" {
		errs = append(errs, errors.New("T24_CLIENT_ID and T24_CLIENT_SECRET are required"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
