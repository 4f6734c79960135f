// Package pipeline loads CITE-seq count matrices, runs the affinity /
// fusion / clustering / embedding stages in order, and writes the results.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/citefuse/pkg/affinity"
)

// ModalityConfig describes one input count matrix.
type ModalityConfig struct {
	// Name labels the modality ("rna", "adt", "hto").
	Name string `yaml:"name"`
	// Path points to a CSV count matrix: header row of cell IDs, one row
	// per feature with the feature name in the first column.
	Path string `yaml:"path"`
	// Metric selects the distance for this modality; empty means euclidean.
	Metric string `yaml:"metric"`
}

// Config is the YAML configuration surface of the pipeline.
type Config struct {
	Modalities []ModalityConfig `yaml:"modalities"`

	// KNeighbors is used for affinity bandwidth estimation, fusion
	// neighborhoods, and the community graph.
	KNeighbors int `yaml:"k_neighbors"`
	// SigmaMode is "local" or "global".
	SigmaMode string `yaml:"sigma_mode"`

	MaxIter     int     `yaml:"max_iter"`
	MixFraction float64 `yaml:"mix_fraction"`
	// Tolerance enables fusion early stopping when > 0.
	Tolerance float64 `yaml:"tolerance"`

	// K is the spectral cluster count. 0 picks it from the eigengap.
	K int `yaml:"k"`
	// MaxK bounds the eigengap search when K is 0.
	MaxK int `yaml:"max_k"`

	// CommunityMethod is "", "louvain", or "components". Empty skips
	// community clustering.
	CommunityMethod   string  `yaml:"community_method"`
	LouvainResolution float64 `yaml:"louvain_resolution"`

	// EmbedMethod is "", "tsne", or "spectral". Empty skips embedding.
	EmbedMethod string  `yaml:"embed_method"`
	EmbedDims   int     `yaml:"embed_dims"`
	Perplexity  float64 `yaml:"perplexity"`

	// Seed fixes every stochastic step for reproducible runs.
	Seed int64 `yaml:"seed"`

	// OutDir receives labels, coordinates, and the fused matrix.
	OutDir string `yaml:"out_dir"`
	// CompactExport writes the fused matrix with a float16 payload.
	CompactExport bool `yaml:"compact_export"`
}

// DefaultConfig returns working defaults for a pilot-sized dataset.
func DefaultConfig() Config {
	return Config{
		KNeighbors:        20,
		SigmaMode:         "local",
		MaxIter:           20,
		MixFraction:       0.2,
		Tolerance:         1e-6,
		MaxK:              15,
		CommunityMethod:   "louvain",
		LouvainResolution: 1.0,
		EmbedMethod:       "tsne",
		EmbedDims:         2,
		OutDir:            "citefuse_out",
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("pipeline: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("pipeline: parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the parts of the configuration that the numerical
// packages would otherwise reject mid-run.
func (c Config) Validate() error {
	if len(c.Modalities) < 2 {
		return fmt.Errorf("pipeline: need at least 2 modalities, got %d", len(c.Modalities))
	}
	seen := make(map[string]bool)
	for _, m := range c.Modalities {
		if m.Name == "" || m.Path == "" {
			return fmt.Errorf("pipeline: modality needs both name and path")
		}
		if seen[m.Name] {
			return fmt.Errorf("pipeline: duplicate modality name %q", m.Name)
		}
		seen[m.Name] = true
		switch affinity.Metric(m.Metric) {
		case "", affinity.Euclidean, affinity.Correlation:
		default:
			return fmt.Errorf("pipeline: modality %q: unknown metric %q", m.Name, m.Metric)
		}
	}
	if c.KNeighbors < 1 {
		return fmt.Errorf("pipeline: k_neighbors must be >= 1")
	}
	if c.MixFraction <= 0 || c.MixFraction >= 1 {
		return fmt.Errorf("pipeline: mix_fraction must be in (0,1)")
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("pipeline: max_iter must be >= 1")
	}
	switch c.SigmaMode {
	case "local", "global":
	default:
		return fmt.Errorf("pipeline: sigma_mode must be local or global")
	}
	switch c.CommunityMethod {
	case "", "louvain", "components":
	default:
		return fmt.Errorf("pipeline: unknown community_method %q", c.CommunityMethod)
	}
	switch c.EmbedMethod {
	case "", "tsne", "spectral":
	default:
		return fmt.Errorf("pipeline: unknown embed_method %q", c.EmbedMethod)
	}
	return nil
}
