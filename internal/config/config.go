package config

import (
	"errors"
	"time"

	"github.com/gogotex/docsync/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	AppName  string
	// Memory serves the store from process memory instead of MongoDB.
	Memory bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// EventsChannel is the pub/sub channel lifecycle events go to. Empty
	// disables publishing.
	EventsChannel string
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

// Addr is host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables rate limiting.
	RequestsPerMinute int
	Burst             int
	// UseRedis shares the limit across instances through Redis.
	UseRedis bool
}

type LogConfig struct {
	Level string
}

var ErrMissingMongoURI = errors.New("config: MONGODB_URI is required unless MONGODB_MEMORY is set")

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	return LoadConfigWith(nil)
}

// LoadConfigWith is LoadConfig with explicit values that take precedence
// over the environment, keyed by variable name (e.g. command line flags).
func LoadConfigWith(overrides map[string]interface{}) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range overrides {
		v.Set(k, val)
	}

	v.SetDefault("SERVER_PORT", "5010")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "docsync")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_APP_NAME", "docsync")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_EVENTS_CHANNEL", "docsync:events")
	v.SetDefault("JWT_ISSUER", "docsync")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("MINIO_BUCKET", "docsync-exports")
	v.SetDefault("RATE_LIMIT_RPM", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			AppName:  v.GetString("MONGODB_APP_NAME"),
			Memory:   v.GetBool("MONGODB_MEMORY"),
		},
		Redis: RedisConfig{
			Host:          v.GetString("REDIS_HOST"),
			Port:          v.GetString("REDIS_PORT"),
			Password:      v.GetString("REDIS_PASSWORD"),
			DB:            v.GetInt("REDIS_DB"),
			EventsChannel: v.GetString("REDIS_EVENTS_CHANNEL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		OIDC: OIDCConfig{
			IssuerURL: v.GetString("OIDC_ISSUER_URL"),
			ClientID:  v.GetString("OIDC_CLIENT_ID"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: v.GetInt("RATE_LIMIT_RPM"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:          v.GetBool("RATE_LIMIT_USE_REDIS"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if cfg.MongoDB.URI == "" && !cfg.MongoDB.Memory {
		return nil, ErrMissingMongoURI
	}
	if cfg.JWT.Secret == "" {
		logger.Warnf("JWT_SECRET is not set; bearer tokens are only accepted through OIDC")
	}
	return cfg, nil
}
