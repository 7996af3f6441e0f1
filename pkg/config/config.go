package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Archiver ArchiverConfig
	Vocab    VocabConfig
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

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ArchiverConfig governs the connection to the external archive
// service and the submission pipeline around it.
type ArchiverConfig struct {
	BaseURL           string
	BaseURI           string
	Username          string
	Password          string
	Timeout           time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	RetryGrace        time.Duration
	SweepInterval     time.Duration
	MediaDir          string
	ReceiptDir        string
	ReceiptURLSecret  string
	ReceiptURLTTL     time.Duration
}

// VocabConfig tunes the role vocabulary cache.
type VocabConfig struct {
	CacheTTL time.Duration
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
		if !errors.As(err, &notFound) {
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Archiver = ArchiverConfig{
		BaseURL:           v.GetString("ARCHIVER_BASE_URL"),
		BaseURI:           v.GetString("ARCHIVER_BASE_URI"),
		Username:          v.GetString("ARCHIVER_USERNAME"),
		Password:          v.GetString("ARCHIVER_PASSWORD"),
		Timeout:           parseDuration(v.GetString("ARCHIVER_TIMEOUT"), time.Minute),
		WorkerConcurrency: v.GetInt("ARCHIVER_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("ARCHIVER_WORKER_RETRIES"),
		RetryGrace:        parseDuration(v.GetString("ARCHIVER_RETRY_GRACE"), 15*time.Minute),
		SweepInterval:     parseDuration(v.GetString("ARCHIVER_SWEEP_INTERVAL"), 5*time.Minute),
		MediaDir:          v.GetString("ARCHIVER_MEDIA_DIR"),
		ReceiptDir:        v.GetString("ARCHIVER_RECEIPT_DIR"),
		ReceiptURLSecret:  v.GetString("ARCHIVER_RECEIPT_URL_SECRET"),
		ReceiptURLTTL:     parseDuration(v.GetString("ARCHIVER_RECEIPT_URL_TTL"), 30*time.Minute),
	}

	cfg.Vocab = VocabConfig{
		CacheTTL: parseDuration(v.GetString("VOCAB_CACHE_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "openfolio")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ARCHIVER_BASE_URL", "http://localhost:8081")
	v.SetDefault("ARCHIVER_BASE_URI", "https://archive.example.org/")
	v.SetDefault("ARCHIVER_USERNAME", "")
	v.SetDefault("ARCHIVER_PASSWORD", "")
	v.SetDefault("ARCHIVER_TIMEOUT", "1m")
	v.SetDefault("ARCHIVER_WORKER_CONCURRENCY", 2)
	v.SetDefault("ARCHIVER_WORKER_RETRIES", 3)
	v.SetDefault("ARCHIVER_RETRY_GRACE", "15m")
	v.SetDefault("ARCHIVER_SWEEP_INTERVAL", "5m")
	v.SetDefault("ARCHIVER_MEDIA_DIR", "./media")
	v.SetDefault("ARCHIVER_RECEIPT_DIR", "./receipts")
	v.SetDefault("ARCHIVER_RECEIPT_URL_SECRET", "dev_receipt_secret")
	v.SetDefault("ARCHIVER_RECEIPT_URL_TTL", "30m")

	v.SetDefault("VOCAB_CACHE_TTL", "1h")
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
