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

	Database  DatabaseConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	CORS      CORSConfig
	Log       LogConfig
	Blob      BlobConfig
	Images    ImageConfig
	Reconcile ReconcileConfig
	Admission AdmissionConfig
	Payment   PaymentConfig
	Content   ContentConfig
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
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
}

// IdentityConfig describes how admin identity tokens are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BlobConfig tunes the chunked blob store.
type BlobConfig struct {
	ChunkSize        int
	OpTimeout        time.Duration
	MaxUploadBytes   int64
	AllowedMIMEs     []string
	MetaCacheSize    int
	MetaCacheTTL     time.Duration
	ListPageSize     int
	OrphanGraceDelay time.Duration
}

// ImageConfig controls the optional image downsizing step.
type ImageConfig struct {
	Optimize     bool
	MaxDimension int
}

// ReconcileConfig governs the periodic asset reconciliation pass.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
	LockTTL  time.Duration
}

// AdmissionConfig holds student numbering rules.
type AdmissionConfig struct {
	StudentIDPrefix        string
	AcademicYearStartMonth int
}

// PaymentConfig configures the payment gateway and refund workers.
type PaymentConfig struct {
	MidtransServerKey  string
	MidtransProduction bool
	NotificationToken  string
	RefundWorkers      int
	RefundRetries      int
	RefundRetryDelay   time.Duration
}

// ContentConfig toggles the published listing cache.
type ContentConfig struct {
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:     v.GetBool("REDIS_ENABLED"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
	}

	cfg.Identity = IdentityConfig{
		Secret:   v.GetString("IDENTITY_JWT_SECRET"),
		Issuer:   v.GetString("IDENTITY_ISSUER"),
		Audience: v.GetString("IDENTITY_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("BLOB_MAX_UPLOAD_SIZE")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Blob = BlobConfig{
		ChunkSize:        v.GetInt("BLOB_CHUNK_SIZE"),
		OpTimeout:        parseDuration(v.GetString("BLOB_OP_TIMEOUT"), 15*time.Second),
		MaxUploadBytes:   maxUpload,
		AllowedMIMEs:     splitAndTrim(v.GetString("BLOB_ALLOWED_MIME_TYPES")),
		MetaCacheSize:    v.GetInt("BLOB_META_CACHE_SIZE"),
		MetaCacheTTL:     parseDuration(v.GetString("BLOB_META_CACHE_TTL"), 5*time.Minute),
		ListPageSize:     v.GetInt("BLOB_LIST_PAGE_SIZE"),
		OrphanGraceDelay: parseDuration(v.GetString("ORPHAN_GRACE_PERIOD"), 24*time.Hour),
	}

	cfg.Images = ImageConfig{
		Optimize:     v.GetBool("IMAGE_OPTIMIZE"),
		MaxDimension: v.GetInt("IMAGE_MAX_DIMENSION"),
	}

	cfg.Reconcile = ReconcileConfig{
		Enabled:  v.GetBool("RECONCILE_ENABLED"),
		Interval: parseDuration(v.GetString("RECONCILE_INTERVAL"), 6*time.Hour),
		LockTTL:  parseDuration(v.GetString("RECONCILE_LOCK_TTL"), 30*time.Minute),
	}

	startMonth := v.GetInt("ACADEMIC_YEAR_START_MONTH")
	if startMonth < 1 || startMonth > 12 {
		startMonth = 7
	}
	cfg.Admission = AdmissionConfig{
		StudentIDPrefix:        v.GetString("STUDENT_ID_PREFIX"),
		AcademicYearStartMonth: startMonth,
	}

	cfg.Payment = PaymentConfig{
		MidtransServerKey:  v.GetString("MIDTRANS_SERVER_KEY"),
		MidtransProduction: v.GetBool("MIDTRANS_PRODUCTION"),
		NotificationToken:  v.GetString("PAYMENT_NOTIFICATION_TOKEN"),
		RefundWorkers:      v.GetInt("REFUND_WORKERS"),
		RefundRetries:      v.GetInt("REFUND_RETRIES"),
		RefundRetryDelay:   parseDuration(v.GetString("REFUND_RETRY_DELAY"), 30*time.Second),
	}

	cfg.Content = ContentConfig{
		CacheEnabled: v.GetBool("CONTENT_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CONTENT_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "sma_admission")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("IDENTITY_JWT_SECRET", "dev_secret")
	v.SetDefault("IDENTITY_ISSUER", "")
	v.SetDefault("IDENTITY_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BLOB_CHUNK_SIZE", 255*1024)
	v.SetDefault("BLOB_OP_TIMEOUT", "15s")
	v.SetDefault("BLOB_MAX_UPLOAD_SIZE", 10*1024*1024)
	v.SetDefault("BLOB_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/gif,image/webp,application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/msword")
	v.SetDefault("BLOB_META_CACHE_SIZE", 1024)
	v.SetDefault("BLOB_META_CACHE_TTL", "5m")
	v.SetDefault("BLOB_LIST_PAGE_SIZE", 200)
	v.SetDefault("ORPHAN_GRACE_PERIOD", "24h")

	v.SetDefault("IMAGE_OPTIMIZE", true)
	v.SetDefault("IMAGE_MAX_DIMENSION", 1920)

	v.SetDefault("RECONCILE_ENABLED", false)
	v.SetDefault("RECONCILE_INTERVAL", "6h")
	v.SetDefault("RECONCILE_LOCK_TTL", "30m")

	v.SetDefault("STUDENT_ID_PREFIX", "STU")
	v.SetDefault("ACADEMIC_YEAR_START_MONTH", 7)

	v.SetDefault("MIDTRANS_SERVER_KEY", "")
	v.SetDefault("MIDTRANS_PRODUCTION", false)
	v.SetDefault("PAYMENT_NOTIFICATION_TOKEN", "")
	v.SetDefault("REFUND_WORKERS", 1)
	v.SetDefault("REFUND_RETRIES", 3)
	v.SetDefault("REFUND_RETRY_DELAY", "30s")

	v.SetDefault("CONTENT_CACHE_ENABLED", false)
	v.SetDefault("CONTENT_CACHE_TTL", "5m")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
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
