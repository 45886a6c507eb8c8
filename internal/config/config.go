package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	// Blob store (MinIO / S3-compatible). When BLOB_ENDPOINT is empty the
	// server falls back to the in-memory store, which is development-only.
	BlobEndpoint  string `mapstructure:"BLOB_ENDPOINT"`
	BlobRegion    string `mapstructure:"BLOB_REGION"`
	BlobBucket    string `mapstructure:"BLOB_BUCKET"`
	BlobAccessKey string `mapstructure:"BLOB_ACCESS_KEY"`
	BlobSecretKey string `mapstructure:"BLOB_SECRET_KEY"`
	BlobUseSSL    bool   `mapstructure:"BLOB_USE_SSL"`

	// External document renderer.
	RendererURL        string `mapstructure:"RENDERER_URL"`
	RendererTimeoutSec int    `mapstructure:"RENDERER_TIMEOUT_SEC"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BLOB_BUCKET", "raypacs-documents")
	v.SetDefault("RENDERER_TIMEOUT_SEC", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("BLOB_ENDPOINT")
	v.BindEnv("BLOB_REGION")
	v.BindEnv("BLOB_BUCKET")
	v.BindEnv("BLOB_ACCESS_KEY")
	v.BindEnv("BLOB_SECRET_KEY")
	v.BindEnv("BLOB_USE_SSL")
	v.BindEnv("RENDERER_URL")
	v.BindEnv("RENDERER_TIMEOUT_SEC")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode real JWT authentication and a real blob store are required.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set when ENV=%q; refusing to start without authentication", c.Env)
		}
		if c.BlobEndpoint == "" {
			return fmt.Errorf("BLOB_ENDPOINT must be set when ENV=%q; the in-memory blob store is development-only", c.Env)
		}
	}
	if c.BlobEndpoint != "" {
		if c.BlobAccessKey == "" || c.BlobSecretKey == "" {
			return fmt.Errorf("BLOB_ACCESS_KEY and BLOB_SECRET_KEY are required when BLOB_ENDPOINT is set")
		}
		if c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required when BLOB_ENDPOINT is set")
		}
	}
	if c.RendererTimeoutSec <= 0 {
		return fmt.Errorf("RENDERER_TIMEOUT_SEC must be positive, got %d", c.RendererTimeoutSec)
	}
	return nil
}
