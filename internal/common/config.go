package common

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	DocIntel DocIntelConfig `mapstructure:"doc_intelligence"`
	Mistral  MistralConfig  `mapstructure:"mistral"`
	Matching MatchingConfig `mapstructure:"matching"`
	Store    StoreConfig    `mapstructure:"store"`
	Batch    BatchConfig    `mapstructure:"batch"`
}

// OCRConfig selects the provider used to build the spatial index.
type OCRConfig struct {
	Provider    string `mapstructure:"provider"`
	TessdataDir string `mapstructure:"tessdata_dir"`
	Language    string `mapstructure:"language"`
}

// DocIntelConfig configures Azure Document Intelligence. Either APIKey or the
// TenantID/ClientID/ClientSecret triple must be set.
type DocIntelConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	APIVersion   string        `mapstructure:"api_version"`
	TenantID     string        `mapstructure:"tenant_id"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	TokenURL     string        `mapstructure:"token_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MistralConfig configures Mistral Document AI.
type MistralConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	IncludePolygons bool          `mapstructure:"include_polygons"`
}

// MatchingConfig holds correlation settings. Threshold is a 0.0-1.0 fraction.
type MatchingConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	SchemaPath string  `mapstructure:"schema_path"`
}

// StoreConfig selects where run records are kept. An empty Driver disables persistence.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// BatchConfig holds directory batch settings.
type BatchConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	ExportPath string        `mapstructure:"export_path"`
}

// Provider names.
const (
	ProviderDocIntel  = "docintel"
	ProviderMistral   = "mistral"
	ProviderTesseract = "tesseract"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var defaults = map[string]any{
	"log_level":                      "info",
	"ocr.provider":                   ProviderDocIntel,
	"ocr.language":                   "eng",
	"doc_intelligence.api_version":   "2024-11-30",
	"doc_intelligence.poll_interval": time.Second,
	"doc_intelligence.timeout":       2 * time.Minute,
	"mistral.model":                  "mistral-document-ai-2505",
	"mistral.timeout":                300 * time.Second,
	"mistral.include_polygons":       true,
	"matching.threshold":             0.9,
	"store.max_conns":                10,
	"store.min_conns":                1,
	"store.max_conn_lifetime":        30 * time.Minute,
	"store.max_conn_idle_time":       5 * time.Minute,
	"store.dial_timeout":             3 * time.Second,
	"batch.workers":                  2,
	"batch.queue_size":               100,
	"batch.job_timeout":              5 * time.Minute,
}

// env maps config keys onto the environment variables that override them.
var env = map[string]string{
	"log_level":                      "LOG_LEVEL",
	"ocr.provider":                   "OCR_PROVIDER",
	"ocr.tessdata_dir":               "TESSDATA_PREFIX",
	"ocr.language":                   "OCR_LANGUAGE",
	"doc_intelligence.endpoint":      "DOC_INTELLIGENCE_ENDPOINT",
	"doc_intelligence.api_key":       "DOC_INTELLIGENCE_KEY",
	"doc_intelligence.api_version":   "DOC_INTELLIGENCE_API_VERSION",
	"doc_intelligence.tenant_id":     "AZURE_TENANT_ID",
	"doc_intelligence.client_id":     "AZURE_CLIENT_ID",
	"doc_intelligence.client_secret": "AZURE_CLIENT_SECRET",
	"doc_intelligence.token_url":     "AZURE_TOKEN_URL",
	"doc_intelligence.timeout":       "DOC_INTELLIGENCE_TIMEOUT",
	"mistral.endpoint":               "MISTRAL_DOC_AI_ENDPOINT",
	"mistral.api_key":                "MISTRAL_DOC_AI_KEY",
	"mistral.model":                  "MISTRAL_DOC_AI_MODEL",
	"mistral.timeout":                "MISTRAL_DOC_AI_TIMEOUT",
	"matching.threshold":             "CORRELATION_THRESHOLD",
	"matching.schema_path":           "EXTRACTION_SCHEMA",
	"store.driver":                   "DB_DRIVER",
	"store.dsn":                      "DB_URL",
	"batch.workers":                  "BATCH_WORKERS",
	"batch.job_timeout":              "BATCH_JOB_TIMEOUT",
	"batch.export_path":              "BATCH_EXPORT_PATH",
}

// LoadConfig reads an optional YAML/JSON/TOML file at path and then applies
// environment overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, name := range env {
		if err := v.BindEnv(k, name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.OCR.Provider = strings.ToLower(strings.TrimSpace(cfg.OCR.Provider))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return &cfg, nil
}

// Validate checks that the selected provider and store have what they need.
func (c *Config) Validate() error {
	switch c.OCR.Provider {
	case ProviderDocIntel:
		if err := c.DocIntel.Validate(); err != nil {
			return err
		}
	case ProviderMistral:
		if err := c.Mistral.Validate(); err != nil {
			return err
		}
	case ProviderTesseract:
	default:
		return ConfigError("unknown OCR provider %q", c.OCR.Provider)
	}

	if math.IsNaN(c.Matching.Threshold) || c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return NewAppError(CodeConfig, fmt.Sprintf("matching threshold %v outside 0.0-1.0", c.Matching.Threshold), ErrInvalidInput)
	}

	switch c.Store.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return NewAppError(CodeConfig, "DB_URL is required when DB_DRIVER is set", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown store driver %q", c.Store.Driver), ErrInvalidInput)
	}

	if c.Batch.Workers < 1 {
		return NewAppError(CodeConfig, "batch workers must be at least 1", ErrInvalidInput)
	}
	return nil
}

func (c DocIntelConfig) Validate() error {
	if c.Endpoint == "" {
		return ConfigError("Document Intelligence endpoint must be configured; set DOC_INTELLIGENCE_ENDPOINT")
	}
	if c.APIKey == "" && !c.UsesAAD() {
		return ConfigError("Document Intelligence credentials must be configured; set DOC_INTELLIGENCE_KEY or AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
	}
	return nil
}

// UsesAAD reports whether an Azure AD client-credentials flow is configured.
func (c DocIntelConfig) UsesAAD() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

func (c MistralConfig) Validate() error {
	if c.Endpoint == "" || c.APIKey == "" {
		return ConfigError("Mistral Document AI endpoint and key must be configured; set MISTRAL_DOC_AI_ENDPOINT and MISTRAL_DOC_AI_KEY")
	}
	return nil
}
