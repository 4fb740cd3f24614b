package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	ConfidenceBaseline float64 `mapstructure:"DIAGNOSIS_CONFIDENCE_BASELINE"`
	ConfidenceCap      float64 `mapstructure:"DIAGNOSIS_CONFIDENCE_CAP"`
	MaxDifferential    int     `mapstructure:"DIAGNOSIS_MAX_DIFFERENTIAL"`

	AnalysisConcurrency int           `mapstructure:"IMAGE_ANALYSIS_CONCURRENCY"`
	AnalysisCacheSize   int           `mapstructure:"IMAGE_ANALYSIS_CACHE_SIZE"`
	MockMinDelay        time.Duration `mapstructure:"MOCK_ANALYSIS_MIN_DELAY"`
	MockMaxDelay        time.Duration `mapstructure:"MOCK_ANALYSIS_MAX_DELAY"`

	PDFFontPath string `mapstructure:"PDF_FONT_PATH"`

	PHIEncryptionKey string `mapstructure:"PHI_ENCRYPTION_KEY"`
	PHIKeyVersion    int    `mapstructure:"PHI_KEY_VERSION"`
	PHIPreviousKeys  string `mapstructure:"PHI_PREVIOUS_KEYS"`
}

// maxDifferentialLimit is the longest differential the engine produces.
const maxDifferentialLimit = 7

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"STORAGE_BACKEND", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	"MINIO_BUCKET", "MINIO_USE_SSL", "MAX_UPLOAD_BYTES",
	"DIAGNOSIS_CONFIDENCE_BASELINE", "DIAGNOSIS_CONFIDENCE_CAP", "DIAGNOSIS_MAX_DIFFERENTIAL",
	"IMAGE_ANALYSIS_CONCURRENCY", "IMAGE_ANALYSIS_CACHE_SIZE",
	"MOCK_ANALYSIS_MIN_DELAY", "MOCK_ANALYSIS_MAX_DELAY",
	"PDF_FONT_PATH",
	"PHI_ENCRYPTION_KEY", "PHI_KEY_VERSION", "PHI_PREVIOUS_KEYS",
}

// Load reads configuration from an optional .env file and the environment.
// It does not require DATABASE_URL; commands that need a database call
// RequireDatabase.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("MINIO_BUCKET", "medical-images")
	v.SetDefault("MAX_UPLOAD_BYTES", 50<<20)
	v.SetDefault("DIAGNOSIS_CONFIDENCE_BASELINE", 0.65)
	v.SetDefault("DIAGNOSIS_CONFIDENCE_CAP", 0.92)
	v.SetDefault("DIAGNOSIS_MAX_DIFFERENTIAL", 7)
	v.SetDefault("IMAGE_ANALYSIS_CONCURRENCY", 4)
	v.SetDefault("IMAGE_ANALYSIS_CACHE_SIZE", 512)
	v.SetDefault("MOCK_ANALYSIS_MIN_DELAY", "2s")
	v.SetDefault("MOCK_ANALYSIS_MAX_DELAY", "5s")
	v.SetDefault("PHI_KEY_VERSION", 1)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// SigningKey decodes AUTH_SIGNING_KEY. It returns nil when unset.
func (c *Config) SigningKey() ([]byte, error) {
	if c.AuthSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set outside development (current ENV=%q)", c.Env)
	}
	key, err := c.SigningKey()
	if err != nil {
		return err
	}
	if key != nil && len(key) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	switch c.StorageBackend {
	case "memory":
	case "minio":
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND is \"minio\"")
		}
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_BACKEND is \"minio\"")
		}
		if c.MinIOBucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when STORAGE_BACKEND is \"minio\"")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be \"memory\" or \"minio\", got %q", c.StorageBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if c.ConfidenceBaseline < 0 || c.ConfidenceCap > 1 || c.ConfidenceBaseline > c.ConfidenceCap {
		return fmt.Errorf("diagnosis confidence must satisfy 0 <= baseline (%v) <= cap (%v) <= 1",
			c.ConfidenceBaseline, c.ConfidenceCap)
	}
	if c.MaxDifferential < 1 || c.MaxDifferential > maxDifferentialLimit {
		return fmt.Errorf("DIAGNOSIS_MAX_DIFFERENTIAL must be between 1 and %d", maxDifferentialLimit)
	}
	if c.AnalysisConcurrency < 1 {
		return fmt.Errorf("IMAGE_ANALYSIS_CONCURRENCY must be at least 1")
	}
	if c.AnalysisCacheSize < 1 {
		return fmt.Errorf("IMAGE_ANALYSIS_CACHE_SIZE must be at least 1")
	}
	if c.MockMinDelay < 0 || c.MockMinDelay > c.MockMaxDelay {
		return fmt.Errorf("MOCK_ANALYSIS_MIN_DELAY (%s) must not exceed MOCK_ANALYSIS_MAX_DELAY (%s)",
			c.MockMinDelay, c.MockMaxDelay)
	}
	if c.PHIKeyVersion < 1 {
		return fmt.Errorf("PHI_KEY_VERSION must be at least 1")
	}
	if c.PHIEncryptionKey != "" {
		key, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 64 hex chars")
		}
	}
	return nil
}
