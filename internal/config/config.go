package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Posts     PostsConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type StorageConfig struct {
	S3 storage.S3Config
	// DeleteConcurrency bounds parallel object deletions per mutation.
	DeleteConcurrency int
	PresignTTL        time.Duration
	UploadPrefix      string
}

type PostsConfig struct {
	// Counter selects the sequence number backend: auto, memory, mongo or redis.
	Counter string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type SweepConfig struct {
	// Interval 0 disables the background sweep.
	Interval time.Duration
	MinAge   time.Duration
	Prefix   string
	DryRun   bool
}

type AdminConfig struct {
	Role string
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("MONGODB_DATABASE", "postboard")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("STORAGE_DELETE_CONCURRENCY", 8)
	v.SetDefault("PRESIGN_TTL", "5m")
	v.SetDefault("UPLOAD_PREFIX", "uploads/")
	v.SetDefault("POST_COUNTER", "auto")
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("SWEEP_INTERVAL", "0s")
	v.SetDefault("SWEEP_MIN_AGE", "24h")
	v.SetDefault("ADMIN_ROLE", "admin")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  splitList(v.GetString("CORS_ORIGINS")),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          v.GetString("KEYCLOAK_URL"),
			Realm:        v.GetString("KEYCLOAK_REALM"),
			ClientID:     v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: v.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		Storage: StorageConfig{
			S3: storage.S3Config{
				Endpoint:  v.GetString("S3_ENDPOINT"),
				AccessKey: v.GetString("S3_ACCESS_KEY"),
				SecretKey: v.GetString("S3_SECRET_KEY"),
				UseSSL:    v.GetBool("S3_USE_SSL"),
				Bucket:    v.GetString("S3_BUCKET"),
				Region:    v.GetString("S3_REGION"),
				BaseURL:   v.GetString("S3_BASE_URL"),
			},
			DeleteConcurrency: v.GetInt("STORAGE_DELETE_CONCURRENCY"),
			PresignTTL:        v.GetDuration("PRESIGN_TTL"),
			UploadPrefix:      v.GetString("UPLOAD_PREFIX"),
		},
		Posts: PostsConfig{
			Counter: strings.ToLower(v.GetString("POST_COUNTER")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Sweep: SweepConfig{
			Interval: v.GetDuration("SWEEP_INTERVAL"),
			MinAge:   v.GetDuration("SWEEP_MIN_AGE"),
			Prefix:   v.GetString("SWEEP_PREFIX"),
			DryRun:   v.GetBool("SWEEP_DRY_RUN"),
		},
		Admin: AdminConfig{
			Role: v.GetString("ADMIN_ROLE"),
		},
	}
	if cfg.Sweep.Prefix == "" {
		cfg.Sweep.Prefix = cfg.Storage.UploadPrefix
	}

	if cfg.JWT.Secret == "" {
		logger.Warnf("JWT_SECRET is not set; locally issued tokens are disabled")
	}
	if cfg.MongoDB.URI == "" {
		logger.Warnf("MONGODB_URI is not set; posts are kept in memory")
	}

	return cfg, nil
}

// StorageConfigured reports whether an S3 endpoint and bucket are set.
func (c *Config) StorageConfigured() bool {
	return c.Storage.S3.Endpoint != "" && c.Storage.S3.Bucket != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
