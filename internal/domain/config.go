package domain

import (
	"fmt"
	"math"
)

// ProviderConfig describes how to generate images.
type ProviderConfig struct {
	Kind        ProviderKind `yaml:"kind" json:"kind"`
	Model       string       `yaml:"model" json:"model"`
	APIKeyEnv   string       `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Width       int          `yaml:"width" json:"width"`
	Height      int          `yaml:"height" json:"height"`
	PricePerImg float64      `yaml:"price_per_image" json:"price_per_image"`
}

// OrchestratorConfig controls scheduling and retry behavior for a run.
type OrchestratorConfig struct {
	TargetImages  int     `yaml:"target_images" json:"target_images"`
	Concurrency   int     `yaml:"concurrency" json:"concurrency"`
	QueueCap      int     `yaml:"queue_cap" json:"queue_cap"`
	RatePerMin    int     `yaml:"rate_per_min" json:"rate_per_min"`
	BackoffBaseMs int     `yaml:"backoff_base_ms" json:"backoff_base_ms"`
	BackoffFactor float64 `yaml:"backoff_factor" json:"backoff_factor"`
	BackoffJitter int     `yaml:"backoff_jitter_ms" json:"backoff_jitter_ms"`
}

// DedupeConfig controls perceptual deduplication.
type DedupeConfig struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	HashBits         int  `yaml:"hash_bits" json:"hash_bits"`
	HammingThreshold int  `yaml:"hamming_threshold" json:"hamming_threshold"`
}

// PostConfig controls post-processing of accepted images.
type PostConfig struct {
	Thumbnail  bool `yaml:"thumbnail" json:"thumbnail"`
	ThumbMaxPx int  `yaml:"thumb_max_px" json:"thumb_max_px"`
}

// RewriteConfig controls the optional Prompt Rewriter.
type RewriteConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	MaxTokens    int    `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	CacheFile    string `yaml:"cache_file,omitempty" json:"cache_file,omitempty"`
}

// RunConfig is the full operator-editable configuration document.
type RunConfig struct {
	Provider     ProviderConfig     `yaml:"provider" json:"provider"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Dedupe       DedupeConfig       `yaml:"dedupe" json:"dedupe"`
	Post         PostConfig         `yaml:"post" json:"post"`
	Rewrite      RewriteConfig      `yaml:"rewrite" json:"rewrite"`
	OutDir       string             `yaml:"out_dir" json:"out_dir"`
	Seed         int64              `yaml:"seed" json:"seed"`
	BudgetLimit  *float64           `yaml:"budget_limit,omitempty" json:"budget_limit,omitempty"`
}

// Validate checks the hard invariants every RunConfig must satisfy. It
// returns every violation found rather than stopping at the first.
func (c RunConfig) Validate() []string {
	var errs []string

	if c.Orchestrator.Concurrency < 1 || c.Orchestrator.Concurrency > 100 {
		errs = append(errs, "orchestrator.concurrency must be between 1 and 100")
	}
	if c.Orchestrator.QueueCap < 1 || c.Orchestrator.QueueCap > 10000 {
		errs = append(errs, "orchestrator.queue_cap must be between 1 and 10000")
	}
	if c.Orchestrator.RatePerMin < 1 || c.Orchestrator.RatePerMin > 600 {
		errs = append(errs, "orchestrator.rate_per_min must be between 1 and 600")
	}
	if c.Orchestrator.BackoffFactor < 1.1 || c.Orchestrator.BackoffFactor > 5.0 {
		errs = append(errs, "orchestrator.backoff_factor must be between 1.1 and 5.0")
	}
	if c.Orchestrator.TargetImages < 1 {
		errs = append(errs, "orchestrator.target_images must be at least 1")
	}
	if c.Provider.Width < 64 || c.Provider.Width > 4096 {
		errs = append(errs, "provider.width must be between 64 and 4096")
	}
	if c.Provider.Height < 64 || c.Provider.Height > 4096 {
		errs = append(errs, "provider.height must be between 64 and 4096")
	}
	if c.Provider.Kind != ProviderKindMock && c.Provider.Kind != ProviderKindRemote {
		errs = append(errs, fmt.Sprintf("provider.kind %q is not recognized", c.Provider.Kind))
	}
	if c.Provider.Kind == ProviderKindRemote && c.Provider.APIKeyEnv == "" {
		errs = append(errs, "provider.api_key_env is required when provider.kind is remote")
	}
	if c.OutDir == "" {
		errs = append(errs, "out_dir is required")
	}
	if c.Dedupe.Enabled {
		n := int(math.Round(math.Sqrt(float64(c.Dedupe.HashBits))))
		if n*n != c.Dedupe.HashBits || c.Dedupe.HashBits < 16 || c.Dedupe.HashBits > 64 {
			errs = append(errs, "dedupe.hash_bits must be a perfect square between 16 and 64")
		}
	}

	return errs
}
