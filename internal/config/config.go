// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env             string `mapstructure:"APP_ENV"`
	Port            string `mapstructure:"PORT"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	SessionTTLHrs   int    `mapstructure:"SESSION_TTL_HOURS"`
	AllowedOrigins  string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags    string `mapstructure:"FEATURE_FLAGS"`
	RateLimitPerMin int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// Repo host (document store)
	RepoAPIURL      string `mapstructure:"REPO_API_URL"`
	RepoRawURL      string `mapstructure:"REPO_RAW_URL"`
	RepoOwner       string `mapstructure:"REPO_OWNER"`
	RepoName        string `mapstructure:"REPO_NAME"`
	RepoBranch      string `mapstructure:"REPO_BRANCH"`
	RepoToken       string `mapstructure:"REPO_TOKEN"`
	RepoTimeoutSecs int    `mapstructure:"REPO_TIMEOUT_SECONDS"`
	RepoMaxRetries  int    `mapstructure:"REPO_MAX_RETRIES"`

	// Blob host
	BlobUploadURL   string `mapstructure:"BLOB_UPLOAD_URL"`
	BlobUserhash    string `mapstructure:"BLOB_USERHASH"`
	BlobFileField   string `mapstructure:"BLOB_FILE_FIELD"`
	BlobTimeoutSecs int    `mapstructure:"BLOB_TIMEOUT_SECONDS"`

	// Media
	MediaMaxUploadMB  int    `mapstructure:"MEDIA_MAX_UPLOAD_MB"`
	MediaMaxDimension int    `mapstructure:"MEDIA_MAX_DIMENSION"`
	MediaFormat       string `mapstructure:"MEDIA_FORMAT"`

	// Local mirror
	MirrorDriver string `mapstructure:"MIRROR_DRIVER"`
	MirrorDSN    string `mapstructure:"MIRROR_DSN"`
	RedisURL     string `mapstructure:"REDIS_URL"`
	// MirrorReloadOnStart rebuilds the mirror from the repository at boot.
	MirrorReloadOnStart bool `mapstructure:"MIRROR_RELOAD_ON_START"`

	StoryCompactionMins int `mapstructure:"STORY_COMPACTION_MINUTES"`

	// Tracing
	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from .env files, config files and environment variables.
func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("SESSION_TTL_HOURS", 24*7)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "stories=on,popular_feed=on")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 10)

	viper.SetDefault("REPO_API_URL", "https://api.github.com/")
	viper.SetDefault("REPO_RAW_URL", "https://raw.githubusercontent.com/")
	viper.SetDefault("REPO_OWNER", "")
	viper.SetDefault("REPO_NAME", "vortexx-data")
	viper.SetDefault("REPO_BRANCH", "main")
	viper.SetDefault("REPO_TOKEN", "")
	viper.SetDefault("REPO_TIMEOUT_SECONDS", 15)
	viper.SetDefault("REPO_MAX_RETRIES", 3)

	viper.SetDefault("BLOB_UPLOAD_URL", "https://catbox.moe/user/api.php")
	viper.SetDefault("BLOB_USERHASH", "")
	viper.SetDefault("BLOB_FILE_FIELD", "fileToUpload")
	viper.SetDefault("BLOB_TIMEOUT_SECONDS", 60)

	viper.SetDefault("MEDIA_MAX_UPLOAD_MB", 10)
	viper.SetDefault("MEDIA_MAX_DIMENSION", 2048)
	viper.SetDefault("MEDIA_FORMAT", "jpeg")

	viper.SetDefault("MIRROR_DRIVER", "sqlite")
	viper.SetDefault("MIRROR_DSN", "vortexx-mirror.db")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("MIRROR_RELOAD_ON_START", true)

	viper.SetDefault("STORY_COMPACTION_MINUTES", 60)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.MirrorDriver = strings.ToLower(strings.TrimSpace(c.MirrorDriver))
	c.MediaFormat = strings.ToLower(strings.TrimSpace(c.MediaFormat))
	c.TracingExporter = strings.ToLower(strings.TrimSpace(c.TracingExporter))
	c.RepoAPIURL = withTrailingSlash(strings.TrimSpace(c.RepoAPIURL))
	c.RepoRawURL = withTrailingSlash(strings.TrimSpace(c.RepoRawURL))
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.RepoName == "" {
		return errors.New("REPO_NAME is required")
	}
	if _, err := url.ParseRequestURI(c.RepoAPIURL); err != nil {
		return fmt.Errorf("REPO_API_URL is not a valid URL: %w", err)
	}
	if c.BlobUploadURL == "" {
		return errors.New("BLOB_UPLOAD_URL is required")
	}
	if c.MediaMaxUploadMB <= 0 {
		return errors.New("MEDIA_MAX_UPLOAD_MB must be positive")
	}
	if c.RepoMaxRetries < 0 {
		return errors.New("REPO_MAX_RETRIES must not be negative")
	}
	switch c.MirrorDriver {
	case "redis", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("MIRROR_DRIVER %q is not supported", c.MirrorDriver)
	}
	switch c.MediaFormat {
	case "jpeg", "webp":
	default:
		return fmt.Errorf("MEDIA_FORMAT %q is not supported", c.MediaFormat)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.RepoToken == "" {
			return errors.New("REPO_TOKEN is required in production")
		}
		if c.RepoOwner == "" {
			return errors.New("REPO_OWNER is required in production")
		}
		if c.MirrorDriver == "memory" {
			log.Println("WARNING: MIRROR_DRIVER is 'memory' in production. The local mirror will not survive restarts.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// SessionTTL is the lifetime of an issued session token.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHrs) * time.Hour
}

// RepoTimeout bounds every call to the repo host.
func (c *Config) RepoTimeout() time.Duration {
	return time.Duration(c.RepoTimeoutSecs) * time.Second
}

// BlobTimeout bounds a single upload to the blob host.
func (c *Config) BlobTimeout() time.Duration {
	return time.Duration(c.BlobTimeoutSecs) * time.Second
}

// MaxUploadBytes is the media size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MediaMaxUploadMB) << 20
}

// StoryCompactionInterval is how often expired stories are purged.
func (c *Config) StoryCompactionInterval() time.Duration {
	return time.Duration(c.StoryCompactionMins) * time.Minute
}

func withTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
