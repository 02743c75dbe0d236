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

	Database      DatabaseConfig
	Redis         RedisConfig
	NATS          NATSConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Schedule      ScheduleConfig
	Reschedule    RescheduleConfig
	Validator     ValidatorConfig
	Generation    GenerationConfig
	Incomplete    IncompleteConfig
	Notifications NotificationConfig
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
	Enabled  bool
}

// NATSConfig points the notification publisher at a NATS server. Empty URL disables it.
type NATSConfig struct {
	URL           string
	Name          string
	ConnectWait   time.Duration
	MaxReconnects int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ScheduleConfig drives the window calculator.
type ScheduleConfig struct {
	Timezone        string
	PreWindow       time.Duration
	PostWindow      time.Duration
	GracePeriod     time.Duration
	WeekdayStart    string
	WeekdayEnd      string
	SaturdayStart   string
	SaturdayEnd     string
	SaturdayEnabled bool
}

// RescheduleConfig bounds teacher initiated window moves.
type RescheduleConfig struct {
	WindowDuration  time.Duration
	GraceExtension  time.Duration
	MinReasonLength int
	MaxAhead        time.Duration
}

// ValidatorConfig controls the periodic submission sweep.
type ValidatorConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	BatchSize     int
}

// GenerationConfig sizes the weekly generation worker pool.
type GenerationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// IncompleteConfig configures incomplete reporting caches and exports.
type IncompleteConfig struct {
	CacheTTL        time.Duration
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MarkInterval    time.Duration
	MarkBatchSize   int
}

// NotificationConfig names the channels domain events are published on.
type NotificationConfig struct {
	RedisChannel string
	NATSSubject  string
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
	}

	cfg.NATS = NATSConfig{
		URL:           v.GetString("NATS_URL"),
		Name:          v.GetString("NATS_CLIENT_NAME"),
		ConnectWait:   parseDuration(v.GetString("NATS_CONNECT_WAIT"), 2*time.Second),
		MaxReconnects: v.GetInt("NATS_MAX_RECONNECTS"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Schedule = ScheduleConfig{
		Timezone:        v.GetString("SCHEDULE_TIMEZONE"),
		PreWindow:       parseDuration(v.GetString("SCHEDULE_PRE_WINDOW"), 0),
		PostWindow:      parseDuration(v.GetString("SCHEDULE_POST_WINDOW"), 0),
		GracePeriod:     parseDuration(v.GetString("SCHEDULE_GRACE_PERIOD"), 30*time.Minute),
		WeekdayStart:    v.GetString("SCHEDULE_WEEKDAY_START"),
		WeekdayEnd:      v.GetString("SCHEDULE_WEEKDAY_END"),
		SaturdayStart:   v.GetString("SCHEDULE_SATURDAY_START"),
		SaturdayEnd:     v.GetString("SCHEDULE_SATURDAY_END"),
		SaturdayEnabled: v.GetBool("SCHEDULE_SATURDAY_ENABLED"),
	}

	cfg.Reschedule = RescheduleConfig{
		WindowDuration:  parseDuration(v.GetString("RESCHEDULE_WINDOW_DURATION"), time.Hour),
		GraceExtension:  parseDuration(v.GetString("RESCHEDULE_GRACE_EXTENSION"), 30*time.Minute),
		MinReasonLength: v.GetInt("RESCHEDULE_MIN_REASON_LENGTH"),
		MaxAhead:        parseDuration(v.GetString("RESCHEDULE_MAX_AHEAD"), 90*24*time.Hour),
	}

	cfg.Validator = ValidatorConfig{
		Enabled:       v.GetBool("ENABLE_SUBMISSION_SWEEP"),
		SweepInterval: parseDuration(v.GetString("VALIDATOR_SWEEP_INTERVAL"), 15*time.Minute),
		BatchSize:     v.GetInt("VALIDATOR_BATCH_SIZE"),
	}

	cfg.Generation = GenerationConfig{
		Workers:    v.GetInt("GENERATION_WORKERS"),
		MaxRetries: v.GetInt("GENERATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("GENERATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Incomplete = IncompleteConfig{
		CacheTTL:        parseDuration(v.GetString("INCOMPLETE_CACHE_TTL"), 5*time.Minute),
		StorageDir:      v.GetString("INCOMPLETE_EXPORT_DIR"),
		SignedURLSecret: v.GetString("INCOMPLETE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("INCOMPLETE_SIGNED_URL_TTL"), time.Hour),
		MarkInterval:    parseDuration(v.GetString("INCOMPLETE_MARK_INTERVAL"), time.Hour),
		MarkBatchSize:   v.GetInt("INCOMPLETE_MARK_BATCH_SIZE"),
	}

	cfg.Notifications = NotificationConfig{
		RedisChannel: v.GetString("NOTIFY_REDIS_CHANNEL"),
		NATSSubject:  v.GetString("NOTIFY_NATS_SUBJECT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "assessment_windows")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_CLIENT_NAME", "assessment-window-api")
	v.SetDefault("NATS_CONNECT_WAIT", "2s")
	v.SetDefault("NATS_MAX_RECONNECTS", 10)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "assessment-window-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULE_PRE_WINDOW", "0s")
	v.SetDefault("SCHEDULE_POST_WINDOW", "0s")
	v.SetDefault("SCHEDULE_GRACE_PERIOD", "30m")
	v.SetDefault("SCHEDULE_WEEKDAY_START", "07:00")
	v.SetDefault("SCHEDULE_WEEKDAY_END", "18:00")
	v.SetDefault("SCHEDULE_SATURDAY_START", "07:00")
	v.SetDefault("SCHEDULE_SATURDAY_END", "15:00")
	v.SetDefault("SCHEDULE_SATURDAY_ENABLED", true)

	v.SetDefault("RESCHEDULE_WINDOW_DURATION", "1h")
	v.SetDefault("RESCHEDULE_GRACE_EXTENSION", "30m")
	v.SetDefault("RESCHEDULE_MIN_REASON_LENGTH", 10)
	v.SetDefault("RESCHEDULE_MAX_AHEAD", "2160h")

	v.SetDefault("ENABLE_SUBMISSION_SWEEP", true)
	v.SetDefault("VALIDATOR_SWEEP_INTERVAL", "15m")
	v.SetDefault("VALIDATOR_BATCH_SIZE", 200)

	v.SetDefault("GENERATION_WORKERS", 1)
	v.SetDefault("GENERATION_MAX_RETRIES", 2)
	v.SetDefault("GENERATION_RETRY_DELAY", "5s")

	v.SetDefault("INCOMPLETE_CACHE_TTL", "5m")
	v.SetDefault("INCOMPLETE_EXPORT_DIR", "./exports")
	v.SetDefault("INCOMPLETE_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("INCOMPLETE_SIGNED_URL_TTL", "1h")
	v.SetDefault("INCOMPLETE_MARK_INTERVAL", "1h")
	v.SetDefault("INCOMPLETE_MARK_BATCH_SIZE", 200)

	v.SetDefault("NOTIFY_REDIS_CHANNEL", "assessment:events")
	v.SetDefault("NOTIFY_NATS_SUBJECT", "assessment.events")
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
