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
	Cache    CacheConfig
	Ledger   LedgerConfig
	Media    MediaConfig
	Drafts   DraftsConfig
	Commits  CommitsConfig
	Limits   LimitsConfig
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

// CacheConfig tunes the ledger read cache.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// LedgerConfig governs write submission and confirmation waiting.
type LedgerConfig struct {
	GatewayURL          string
	Network             string
	Account             string
	CourseAddress       string
	Confirmations       int
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	SettleDelay         time.Duration
	CounterRetries      int
	CounterRetryDelay   time.Duration
	AbortOnRevert       bool
}

// MediaConfig governs chunked uploads and processing-status polling.
type MediaConfig struct {
	BaseURL       string
	APIKey        string
	ChunkSize     int64
	PollInterval  time.Duration
	PollAttempts  int
	UploadTimeout time.Duration
}

// DraftsConfig toggles draft snapshot persistence.
type DraftsConfig struct {
	Persist bool
}

// CommitsConfig tunes the serialized commit dispatcher.
type CommitsConfig struct {
	QueueSize  int
	RunTimeout time.Duration
}

// LimitsConfig carries the fixed validation bounds for course drafts.
type LimitsConfig struct {
	TitleMax       int
	DescriptionMax int
	PriceMax       int64
	SectionMax     int
	DurationMaxSec int64
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

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("ENABLE_CACHE"),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 30*time.Second),
	}

	cfg.Ledger = LedgerConfig{
		GatewayURL:          v.GetString("LEDGER_GATEWAY_URL"),
		Network:             v.GetString("LEDGER_NETWORK"),
		Account:             v.GetString("LEDGER_ACCOUNT"),
		CourseAddress:       v.GetString("LEDGER_COURSE_ADDRESS"),
		Confirmations:       v.GetInt("LEDGER_CONFIRMATIONS"),
		ConfirmTimeout:      parseDuration(v.GetString("LEDGER_CONFIRM_TIMEOUT"), 90*time.Second),
		ConfirmPollInterval: parseDuration(v.GetString("LEDGER_CONFIRM_POLL_INTERVAL"), 3*time.Second),
		SettleDelay:         parseDuration(v.GetString("LEDGER_SETTLE_DELAY"), 3*time.Second),
		CounterRetries:      v.GetInt("LEDGER_COUNTER_RETRIES"),
		CounterRetryDelay:   parseDuration(v.GetString("LEDGER_COUNTER_RETRY_DELAY"), 2*time.Second),
		AbortOnRevert:       v.GetBool("LEDGER_ABORT_ON_REVERT"),
	}
	if cfg.Ledger.Confirmations <= 0 {
		cfg.Ledger.Confirmations = 1
	}
	if cfg.Ledger.CounterRetries <= 0 {
		cfg.Ledger.CounterRetries = 3
	}

	cfg.Media = MediaConfig{
		BaseURL:       v.GetString("MEDIA_BASE_URL"),
		APIKey:        v.GetString("MEDIA_API_KEY"),
		ChunkSize:     v.GetInt64("MEDIA_CHUNK_SIZE"),
		PollInterval:  parseDuration(v.GetString("MEDIA_POLL_INTERVAL"), 2*time.Second),
		PollAttempts:  v.GetInt("MEDIA_POLL_ATTEMPTS"),
		UploadTimeout: parseDuration(v.GetString("MEDIA_UPLOAD_TIMEOUT"), 10*time.Minute),
	}
	if cfg.Media.ChunkSize <= 0 {
		cfg.Media.ChunkSize = 1 << 20
	}
	if cfg.Media.PollAttempts <= 0 {
		cfg.Media.PollAttempts = 60
	}

	cfg.Drafts = DraftsConfig{Persist: v.GetBool("ENABLE_DRAFT_PERSISTENCE")}

	cfg.Commits = CommitsConfig{
		QueueSize:  v.GetInt("COMMIT_QUEUE_SIZE"),
		RunTimeout: parseDuration(v.GetString("COMMIT_RUN_TIMEOUT"), 30*time.Minute),
	}
	if cfg.Commits.QueueSize <= 0 {
		cfg.Commits.QueueSize = 16
	}

	cfg.Limits = LimitsConfig{
		TitleMax:       v.GetInt("LIMIT_TITLE_MAX"),
		DescriptionMax: v.GetInt("LIMIT_DESCRIPTION_MAX"),
		PriceMax:       v.GetInt64("LIMIT_PRICE_MAX"),
		SectionMax:     v.GetInt("LIMIT_SECTION_MAX"),
		DurationMaxSec: v.GetInt64("LIMIT_DURATION_MAX_SEC"),
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
	v.SetDefault("DB_SSL_MODE", "disable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("LEDGER_NETWORK", "mainnet")
	v.SetDefault("LEDGER_ABORT_ON_REVERT", true)

	v.SetDefault("LIMIT_TITLE_MAX", 120)
	v.SetDefault("LIMIT_DESCRIPTION_MAX", 4000)
	v.SetDefault("LIMIT_PRICE_MAX", 1_000_000_000)
	v.SetDefault("LIMIT_SECTION_MAX", 100)
	v.SetDefault("LIMIT_DURATION_MAX_SEC", 6*60*60)
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
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
