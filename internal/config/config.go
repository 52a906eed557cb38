// Package config loads the skill workbench's configuration:
// disclosure defaults, search fusion weights, layer priority, and
// safety-gate settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/skillwb/skillwb/pkg/specid"
)

// Config is the workbench's full configuration surface.
type Config struct {
	Disclosure DisclosureConfig `koanf:"disclosure"`
	Search     SearchConfig     `koanf:"search"`
	Layers     LayersConfig     `koanf:"layers"`
	Safety     SafetyConfig     `koanf:"safety"`
}

// DisclosureConfig controls the default pack contract preset and budget.
type DisclosureConfig struct {
	DefaultLevel string `koanf:"default_level"` // minimal|moderate|standard|full
	TokenBudget  uint32 `koanf:"token_budget"`
}

// SearchConfig controls retrieval's embedding backend and fusion weights.
type SearchConfig struct {
	EmbeddingBackend string  `koanf:"embedding_backend"` // hash|local|api
	EmbeddingDims    int     `koanf:"embedding_dims"`
	BM25Weight       float64 `koanf:"bm25_weight"`
	SemanticWeight   float64 `koanf:"semantic_weight"`
}

// LayersConfig controls tiebreak order among layers.
type LayersConfig struct {
	Priority []string `koanf:"priority"`
}

// SafetyConfig controls the command gate.
type SafetyConfig struct {
	RequireVerbatimApproval bool          `koanf:"require_verbatim_approval"`
	ClassifierBin           string        `koanf:"classifier_bin"`
	Packs                   []string      `koanf:"packs"`
	ApprovalChannel         string        `koanf:"approval_channel"`
	ClassifierTimeout       time.Duration `koanf:"classifier_timeout"`
}

// recognizedLevels is the closed set disclosure.default_level accepts.
var recognizedLevels = map[string]bool{"minimal": true, "moderate": true, "standard": true, "full": true}

// recognizedBackends is the closed set search.embedding_backend accepts.
var recognizedBackends = map[string]bool{"hash": true, "local": true, "api": true}

// Defaults returns the hardcoded baseline config.
func Defaults() Config {
	return Config{
		Disclosure: DisclosureConfig{DefaultLevel: "standard", TokenBudget: 4000},
		Search: SearchConfig{
			EmbeddingBackend: "hash",
			EmbeddingDims:    384,
			BM25Weight:       0.5,
			SemanticWeight:   0.5,
		},
		Layers: LayersConfig{Priority: []string{"user", "project", "org", "base"}},
		Safety: SafetyConfig{
			RequireVerbatimApproval: true,
			ApprovalChannel:         "SKILLWB_APPROVE",
			ClassifierTimeout:       5 * time.Second,
		},
	}
}

// Load builds a Config from hardcoded defaults overridden by
// SKILLWB_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	k := koanf.New(".")
	if err := k.Load(env.ProviderWithValue("SKILLWB_", ".", func(key, value string) (string, interface{}) {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(key, "SKILLWB_")), "_", ".", 1), value
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: loading environment overrides: %v", specid.ErrConfigError, err)
	}

	applyEnvOverrides(&cfg, k)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config, k *koanf.Koanf) {
	if v := k.String("disclosure.default_level"); v != "" {
		cfg.Disclosure.DefaultLevel = v
	}
	if v := k.String("disclosure.token_budget"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Disclosure.TokenBudget = uint32(n)
		}
	}
	if v := k.String("search.embedding_backend"); v != "" {
		cfg.Search.EmbeddingBackend = v
	}
	if v := k.String("search.embedding_dims"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.EmbeddingDims = n
		}
	}
	if v := k.String("search.bm25_weight"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.BM25Weight = f
		}
	}
	if v := k.String("search.semantic_weight"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.SemanticWeight = f
		}
	}
	if v := k.String("layers.priority"); v != "" {
		cfg.Layers.Priority = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("SKILLWB_SAFETY_REQUIRE_VERBATIM_APPROVAL"); ok {
		cfg.Safety.RequireVerbatimApproval = v == "true" || v == "1"
	}
	if v := k.String("safety.classifier_bin"); v != "" {
		cfg.Safety.ClassifierBin = v
	}
	if v := k.String("safety.packs"); v != "" {
		cfg.Safety.Packs = strings.Split(v, ",")
	}
	if v := k.String("safety.approval_channel"); v != "" {
		cfg.Safety.ApprovalChannel = v
	}
}

// Validate enforces the closed option sets and weight constraints.
func (c Config) Validate() error {
	if !recognizedLevels[c.Disclosure.DefaultLevel] {
		return fmt.Errorf("%w: disclosure.default_level %q is not one of minimal|moderate|standard|full", specid.ErrConfigError, c.Disclosure.DefaultLevel)
	}
	if !recognizedBackends[c.Search.EmbeddingBackend] {
		return fmt.Errorf("%w: search.embedding_backend %q is not one of hash|local|api", specid.ErrConfigError, c.Search.EmbeddingBackend)
	}
	if c.Search.BM25Weight < 0 || c.Search.SemanticWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", specid.ErrConfigError)
	}
	if c.Search.BM25Weight == 0 && c.Search.SemanticWeight == 0 {
		return fmt.Errorf("%w: bm25_weight and semantic_weight cannot both be zero", specid.ErrConfigError)
	}
	for _, l := range c.Layers.Priority {
		if _, err := parseLayerName(l); err != nil {
			return fmt.Errorf("%w: layers.priority: %v", specid.ErrConfigError, err)
		}
	}
	return nil
}

func parseLayerName(s string) (string, error) {
	switch s {
	case "base", "org", "project", "user":
		return s, nil
	default:
		return "", fmt.Errorf("unknown layer %q", s)
	}
}
