// Package config layers appraise configuration from defaults, an
// optional YAML file, and APPRAISE_-prefixed environment variables.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/recommend"
	"github.com/beaverzip/appraise/internal/solar"
)

// Config is the full process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DatabasePath is the survey SQLite database.
	DatabasePath string `koanf:"database_path"`

	// CorpusDir holds the book-embedding shard files.
	CorpusDir string `koanf:"corpus_dir"`

	// OutputDir receives the rendered PDF reports.
	OutputDir string `koanf:"output_dir"`

	// UpstageAPIKey authenticates against the Solar API.
	UpstageAPIKey string `koanf:"upstage_api_key"`

	// SolarBaseURL overrides the Solar endpoint (tests, proxies).
	SolarBaseURL string `koanf:"solar_base_url"`

	// SolarRateLimit is the client-side requests-per-second cap.
	SolarRateLimit float64 `koanf:"solar_rate_limit"`

	// Mailjet credentials and sender identity.
	MailjetAPIKey    string `koanf:"mailjet_api_key"`
	MailjetSecretKey string `koanf:"mailjet_secret_key"`
	SenderEmail      string `koanf:"sender_email"`
	SenderName       string `koanf:"sender_name"`

	// AdminEmail receives the batch summary.
	AdminEmail string `koanf:"admin_email"`

	// Workers sizes the report worker pool.
	Workers int `koanf:"workers"`

	// APIConcurrency caps simultaneous in-flight provider calls.
	APIConcurrency int `koanf:"api_concurrency"`

	// TopK is the number of books recommended per employee.
	TopK int `koanf:"top_k"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		DatabasePath:   "survey.db",
		CorpusDir:      "corpus",
		OutputDir:      "reports",
		SolarBaseURL:   solar.DefaultBaseURL,
		SolarRateLimit: solar.DefaultRateLimit,
		SenderName:     "Appraisal Reports",
		Workers:        pipeline.DefaultWorkers(),
		APIConcurrency: pipeline.DefaultAPIConcurrency,
		TopK:           recommend.DefaultTopK,
	}
}

// Load builds a Config by layering defaults, an optional YAML file, and
// environment variables. Precedence (low to high):
//  1. defaults (New)
//  2. YAML file at path, or at APPRAISE_CONFIG when path is empty
//  3. env (prefix APPRAISE_)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv("APPRAISE_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// APPRAISE_DATABASE_PATH -> database_path, APPRAISE_TOP_K -> top_k
	envProvider := env.Provider("APPRAISE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "appraise_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateRun checks the settings the report pipeline needs.
func (c *Config) ValidateRun() error {
	if c.DatabasePath == "" {
		return errors.New("database_path must not be empty")
	}
	if c.CorpusDir == "" {
		return errors.New("corpus_dir must not be empty")
	}
	if c.UpstageAPIKey == "" {
		return errors.New("upstage_api_key must be set")
	}
	return nil
}

// ValidateDispatch checks the settings email delivery needs.
func (c *Config) ValidateDispatch() error {
	if c.MailjetAPIKey == "" || c.MailjetSecretKey == "" {
		return errors.New("mailjet_api_key and mailjet_secret_key must be set")
	}
	if c.SenderEmail == "" {
		return errors.New("sender_email must not be empty")
	}
	if c.AdminEmail == "" {
		return errors.New("admin_email must not be empty")
	}
	return nil
}
