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

// Identity resolution modes.
const (
	IdentityModeJWT    = "jwt"
	IdentityModeRemote = "remote"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	ServiceName string

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Identity       IdentityConfig
	Catalog        DependencyConfig
	EnrollmentAPI  DependencyConfig
	Enrollment     EnrollmentConfig
	Reconciliation ReconciliationConfig

	// EnrollmentAPIPrefix is the ledger's route prefix; it defaults to APIPrefix.
	EnrollmentAPIPrefix string
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DependencyConfig locates a collaborating service.
type DependencyConfig struct {
	BaseURL string
	Timeout time.Duration
}

// IdentityConfig selects how bearer credentials are resolved into principals.
type IdentityConfig struct {
	DependencyConfig
	Mode string
}

// EnrollmentConfig tunes ledger behaviour.
type EnrollmentConfig struct {
	Workflow          string
	EnforceCapacity   bool
	EnrichConcurrency int
}

// ReconciliationConfig controls the write-after-authorization failure journal.
type ReconciliationConfig struct {
	Enabled    bool
	MaxEntries int64
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ServiceName = v.GetString("SERVICE_NAME")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Identity = IdentityConfig{
		DependencyConfig: DependencyConfig{
			BaseURL: strings.TrimRight(v.GetString("IDENTITY_SERVICE_URL"), "/"),
			Timeout: parseDuration(v.GetString("IDENTITY_TIMEOUT"), 3*time.Second),
		},
		Mode: strings.ToLower(v.GetString("IDENTITY_RESOLVE_MODE")),
	}

	cfg.Catalog = DependencyConfig{
		BaseURL: strings.TrimRight(v.GetString("CATALOG_SERVICE_URL"), "/"),
		Timeout: parseDuration(v.GetString("CATALOG_TIMEOUT"), 3*time.Second),
	}

	cfg.EnrollmentAPI = DependencyConfig{
		BaseURL: strings.TrimRight(v.GetString("ENROLLMENT_SERVICE_URL"), "/"),
		Timeout: parseDuration(v.GetString("ENROLLMENT_TIMEOUT"), 3*time.Second),
	}
	cfg.EnrollmentAPIPrefix = v.GetString("ENROLLMENT_SERVICE_PREFIX")
	if cfg.EnrollmentAPIPrefix == "" {
		cfg.EnrollmentAPIPrefix = cfg.APIPrefix
	}

	concurrency := v.GetInt("ROSTER_ENRICH_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 8
	}
	cfg.Enrollment = EnrollmentConfig{
		Workflow:          strings.ToLower(v.GetString("ENROLLMENT_WORKFLOW")),
		EnforceCapacity:   v.GetBool("ENROLLMENT_ENFORCE_CAPACITY"),
		EnrichConcurrency: concurrency,
	}

	maxEntries := v.GetInt64("RECONCILIATION_MAX_ENTRIES")
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cfg.Reconciliation = ReconciliationConfig{
		Enabled:    v.GetBool("ENABLE_RECONCILIATION_JOURNAL"),
		MaxEntries: maxEntries,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SERVICE_NAME", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_RECONCILIATION_JOURNAL", false)
	v.SetDefault("RECONCILIATION_MAX_ENTRIES", 1000)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("IDENTITY_RESOLVE_MODE", IdentityModeJWT)
	v.SetDefault("IDENTITY_SERVICE_URL", "http://localhost:3001")
	v.SetDefault("IDENTITY_TIMEOUT", "3s")
	v.SetDefault("CATALOG_SERVICE_URL", "http://localhost:3002")
	v.SetDefault("CATALOG_TIMEOUT", "3s")
	v.SetDefault("ENROLLMENT_SERVICE_URL", "http://localhost:3003")
	v.SetDefault("ENROLLMENT_TIMEOUT", "3s")
	v.SetDefault("ENROLLMENT_SERVICE_PREFIX", "")

	v.SetDefault("ENROLLMENT_WORKFLOW", "immediate")
	v.SetDefault("ENROLLMENT_ENFORCE_CAPACITY", false)
	v.SetDefault("ROSTER_ENRICH_CONCURRENCY", 8)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// isMissingFile covers viper returning the raw fs error when SetConfigFile
// points at an absent .env.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
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
