// Package config loads process-level configuration (bind address, document
// paths, credentials) and the on-disk RunConfig/Template documents the
// pipeline operates on.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/adgen/internal/domain"
)

// ServeConfig holds the settings for the `serve` subcommand, loaded from
// environment variables the same way the rest of this shop's services do.
type ServeConfig struct {
	Bind          string
	ConfigPath    string
	TemplatePath  string
	HistoryDBPath string
	LogLevel      string
	LogFilePath   string
}

// LoadServeConfig loads ServeConfig from the environment, first loading a
// .env file from the working directory if one is there. Parent
// directories are not searched.
func LoadServeConfig() *ServeConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	return &ServeConfig{
		Bind:          getEnv("ADGEN_BIND", "0.0.0.0:8787"),
		ConfigPath:    getEnv("ADGEN_CONFIG_PATH", "./run-config.yaml"),
		TemplatePath:  getEnv("ADGEN_TEMPLATE_PATH", "./template.yml"),
		HistoryDBPath: getEnv("ADGEN_HISTORY_DB", "./run-history.db"),
		LogLevel:      getEnv("ADGEN_LOG_LEVEL", "info"),
		LogFilePath:   getEnv("ADGEN_LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// LoadRunConfig reads and validates a RunConfig document from path.
func LoadRunConfig(path string) (domain.RunConfig, error) {
	var cfg domain.RunConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config %s: %v", path, errs)
	}
	return cfg, nil
}

// SaveRunConfig writes cfg to path as YAML.
func SaveRunConfig(path string, cfg domain.RunConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadTemplate reads and validates a Template document from path.
func LoadTemplate(path string) (domain.Template, error) {
	var tpl domain.Template
	data, err := os.ReadFile(path)
	if err != nil {
		return tpl, fmt.Errorf("read template %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return tpl, fmt.Errorf("parse template %s: %w", path, err)
	}
	if errs := tpl.Validate(); len(errs) > 0 {
		return tpl, fmt.Errorf("invalid template %s: %v", path, errs)
	}
	return tpl, nil
}

// SaveTemplate writes tpl to path as YAML.
func SaveTemplate(path string, tpl domain.Template) error {
	data, err := yaml.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultRunConfig returns a minimal, valid starting configuration, used
// when no document exists yet at ServeConfig.ConfigPath.
func DefaultRunConfig() domain.RunConfig {
	return domain.RunConfig{
		Provider: domain.ProviderConfig{
			Kind:        domain.ProviderKindMock,
			Model:       "mock-v1",
			Width:       512,
			Height:      512,
			PricePerImg: 0,
		},
		Orchestrator: domain.OrchestratorConfig{
			TargetImages:  10,
			Concurrency:   4,
			QueueCap:      64,
			RatePerMin:    120,
			BackoffBaseMs: 500,
			BackoffFactor: 2.0,
			BackoffJitter: 250,
		},
		Dedupe: domain.DedupeConfig{
			Enabled:          true,
			HashBits:         64,
			HammingThreshold: 4,
		},
		Post: domain.PostConfig{
			Thumbnail:  true,
			ThumbMaxPx: 256,
		},
		Rewrite: domain.RewriteConfig{
			Enabled: false,
		},
		OutDir: "./out",
		Seed:   1,
	}
}

// DefaultTemplate returns a minimal, valid starting template.
func DefaultTemplate() domain.Template {
	return domain.Template{
		Kind: domain.TemplateKindAd,
		Ad: &domain.AdTemplate{
			Brand:   "Acme",
			Product: "Widget",
			Styles:  []string{"studio photography", "hand-drawn illustration", "retro poster"},
		},
	}
}
