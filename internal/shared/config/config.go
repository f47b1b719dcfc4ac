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
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ObjectStoreS3     = "s3"
	ObjectStoreGCS    = "gcs"
	ObjectStoreMemory = "memory"
)

type Config struct {
	Server    ServerConfig
	TLS       TLSConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Receipts  ReceiptsConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
	// AllowedOrigins restricts CORS when non-empty; empty allows any origin.
	AllowedOrigins     []string
	ExposeErrorDetails bool
	// TrustedOwnerHeader names a gateway-injected header carrying the caller's owner id.
	TrustedOwnerHeader string
	// OwnerTokenSecret enables bearer-token identity when set.
	OwnerTokenSecret string
	OwnerTokenTTL    time.Duration
	ShutdownTimeout  time.Duration
	// AllowedHosts limits the hosts the HTTP-to-HTTPS redirect will answer for.
	AllowedHosts []string
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type StoreConfig struct {
	Backend       string
	ExpensesTable string
	AWSRegion     string
	AWSEndpoint   string
	EnsureSchema  bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ReceiptsConfig struct {
	Backend            string
	Bucket             string
	Prefix             string
	PublicBaseURL      string
	GCSCredentialsFile string
	MaxUploadBytes     int64
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
	SampleRatio  float64
}

// LoadDotEnv reads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	tokenTTL, err := time.ParseDuration(getEnv("OWNER_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_TOKEN_TTL: %w", err)
	}

	region := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			Host:               getEnv("HOST", "0.0.0.0"),
			AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "")),
			ExposeErrorDetails: getBoolEnv("EXPOSE_ERROR_DETAILS", false),
			TrustedOwnerHeader: getEnv("TRUSTED_OWNER_HEADER", ""),
			OwnerTokenSecret:   getEnv("OWNER_TOKEN_SECRET", ""),
			OwnerTokenTTL:      tokenTTL,
			ShutdownTimeout:    shutdownTimeout,
			AllowedHosts:       splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", StoreDynamoDB)),
			ExpensesTable: getEnv("EXPENSES_TABLE", "Expenses"),
			AWSRegion:     region,
			AWSEndpoint:   getEnv("AWS_ENDPOINT_URL", ""),
			EnsureSchema:  getBoolEnv("DB_ENSURE_SCHEMA", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "fintrack"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fintrack"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Receipts: ReceiptsConfig{
			Backend:            strings.ToLower(getEnv("OBJECT_STORE_BACKEND", ObjectStoreS3)),
			Bucket:             getEnv("RECEIPTS_BUCKET", "fintrack-receipts"),
			Prefix:             getEnv("RECEIPTS_PREFIX", "receipts"),
			PublicBaseURL:      getEnv("RECEIPTS_PUBLIC_BASE_URL", ""),
			GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			MaxUploadBytes:     maxUpload,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fintrack-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: otlpEndpoint(),
			MetricsPort:  getEnv("OTEL_METRICS_PORT", "9464"),
			SampleRatio:  getFloatEnv("OTEL_TRACE_SAMPLE_RATIO", 1),
		},
	}

	switch cfg.Store.Backend {
	case StoreDynamoDB, StorePostgres, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}

	switch cfg.Receipts.Backend {
	case ObjectStoreS3, ObjectStoreGCS:
		if cfg.Receipts.Bucket == "" {
			return nil, fmt.Errorf("RECEIPTS_BUCKET is required when OBJECT_STORE_BACKEND=%s", cfg.Receipts.Backend)
		}
	case ObjectStoreMemory:
	default:
		return nil, fmt.Errorf("unknown OBJECT_STORE_BACKEND %q", cfg.Receipts.Backend)
	}

	if cfg.Receipts.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

// ClientConfig configures the command-line dashboard.
type ClientConfig struct {
	BaseURL        string
	OwnerID        string
	MessagesFile   string
	Token          string
	RequestTimeout time.Duration
}

func LoadClient() (*ClientConfig, error) {
	timeout, err := time.ParseDuration(getEnv("FINTRACK_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FINTRACK_TIMEOUT: %w", err)
	}
	return &ClientConfig{
		BaseURL:        strings.TrimRight(getEnv("FINTRACK_API_URL", "http://localhost:8080"), "/"),
		OwnerID:        getEnv("FINTRACK_OWNER_ID", ""),
		MessagesFile:   getEnv("FINTRACK_MESSAGES_FILE", ""),
		Token:          getEnv("FINTRACK_TOKEN", ""),
		RequestTimeout: timeout,
	}, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// otlpEndpoint returns the collector address; "none" disables trace export.
func otlpEndpoint() string {
	endpoint := getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317")
	if strings.EqualFold(endpoint, "none") {
		return ""
	}
	return endpoint
}
