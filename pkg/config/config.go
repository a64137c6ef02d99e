package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Auth providers supported by the token middleware.
const (
	AuthProviderFirebase = "firebase"
	AuthProviderLocal    = "local"
)

// Storage drivers for uploaded documents.
const (
	StorageDriverLocal = "local"
	StorageDriverAzure = "azure"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	CORS       CORSConfig
	Log        LogConfig
	Policy     PolicyConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Classifier ClassifierConfig
	Executor   ExecutorConfig
	Summary    SummaryConfig
	Dashboard  DashboardConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Provider          string
	FirebaseProjectID string
	JWTSecret         string
	JWTExpiration     time.Duration
	JWTIssuer         string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PolicyConfig controls how usage days are bucketed.
type PolicyConfig struct {
	Timezone string
}

// StorageConfig selects the document store and signed link parameters.
type StorageConfig struct {
	Driver                string
	Dir                   string
	AzureConnectionString string
	AzureAccountURL       string
	AzureContainer        string
	SignedURLSecret       string
	SignedURLTTL          time.Duration
	// PublicBaseURL prefixes signed download links handed to the executor and to users.
	PublicBaseURL string
}

// UploadConfig bounds uploaded print documents.
type UploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ClassifierConfig configures the external classifier and its fallback.
type ClassifierConfig struct {
	URL       string
	Timeout   time.Duration
	Fallback  bool
	RulesFile string
	Workers   int
	Retries   int
}

// ExecutorConfig configures the print executor endpoint.
type ExecutorConfig struct {
	URL     string
	Timeout time.Duration
}

// SummaryConfig enables executive summaries for official documents.
type SummaryConfig struct {
	APIKey string
	Model  string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Provider:          strings.ToLower(v.GetString("AUTH_PROVIDER")),
		FirebaseProjectID: v.GetString("FIREBASE_PROJECT_ID"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTExpiration:     parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		JWTIssuer:         v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Policy = PolicyConfig{Timezone: v.GetString("POLICY_TIMEZONE")}

	cfg.Storage = StorageConfig{
		Driver:                strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Dir:                   v.GetString("STORAGE_DIR"),
		AzureConnectionString: v.GetString("AZURE_STORAGE_CONNECTION_STRING"),
		AzureAccountURL:       v.GetString("AZURE_STORAGE_ACCOUNT_URL"),
		AzureContainer:        v.GetString("AZURE_STORAGE_CONTAINER"),
		SignedURLSecret:       v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:          parseDuration(v.GetString("SIGNED_URL_TTL"), 30*time.Minute),
		PublicBaseURL:         strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeBytes: maxUpload,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
	}

	cfg.Classifier = ClassifierConfig{
		URL:       strings.TrimRight(v.GetString("CLASSIFIER_URL"), "/"),
		Timeout:   parseDuration(v.GetString("CLASSIFIER_TIMEOUT"), 15*time.Second),
		Fallback:  v.GetBool("CLASSIFIER_FALLBACK"),
		RulesFile: v.GetString("CLASSIFIER_RULES_FILE"),
		Workers:   v.GetInt("CLASSIFIER_WORKERS"),
		Retries:   v.GetInt("CLASSIFIER_RETRIES"),
	}

	cfg.Executor = ExecutorConfig{
		URL:     strings.TrimRight(v.GetString("EXECUTOR_URL"), "/"),
		Timeout: parseDuration(v.GetString("EXECUTOR_TIMEOUT"), 10*time.Second),
	}

	cfg.Summary = SummaryConfig{
		APIKey: v.GetString("SUMMARY_API_KEY"),
		Model:  v.GetString("SUMMARY_MODEL"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheEnabled: v.GetBool("ENABLE_CACHE"),
		CacheTTL:     parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 2*time.Minute),
	}

	return cfg, nil
}

// Location resolves the policy timezone, falling back to UTC.
func (c PolicyConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ouslpms")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_PROVIDER", AuthProviderLocal)
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "ouslpms")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("POLICY_TIMEZONE", "Asia/Colombo")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_DIR", "./documents")
	v.SetDefault("AZURE_STORAGE_CONTAINER", "print-documents")
	v.SetDefault("SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("SIGNED_URL_TTL", "30m")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "application/pdf,text/plain,image/png,image/jpeg,application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("CLASSIFIER_TIMEOUT", "15s")
	v.SetDefault("CLASSIFIER_FALLBACK", true)
	v.SetDefault("CLASSIFIER_RULES_FILE", "")
	v.SetDefault("CLASSIFIER_WORKERS", 2)
	v.SetDefault("CLASSIFIER_RETRIES", 2)

	v.SetDefault("EXECUTOR_URL", "")
	v.SetDefault("EXECUTOR_TIMEOUT", "10s")

	v.SetDefault("SUMMARY_API_KEY", "")
	v.SetDefault("SUMMARY_MODEL", "gemini-2.0-flash")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "2m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
