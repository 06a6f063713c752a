// Package config handles repository configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/noemadb/noema/internal/embedding"
	"github.com/noemadb/noema/internal/relation"
	"github.com/noemadb/noema/internal/spatialkey"
)

// Config represents repository configuration stored in .noema/config.yaml.
type Config struct {
	// BitDepth is the per-axis quantization depth of spatial keys.
	BitDepth int `yaml:"bit_depth"`

	// Window is the co-occurrence window width for relation detection.
	Window int `yaml:"window"`

	// Neighbors is the k used for similarity relation detection.
	Neighbors int `yaml:"neighbors"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	URL        string  `yaml:"url"`
	Model      string  `yaml:"model"`
	Dimensions int     `yaml:"dimensions"`
	RateLimit  float64 `yaml:"rate_limit"`
}

const (
	NoemaDir   = ".noema"
	ConfigFile = "config.yaml"
	CacheDir   = "cache"
	DBFile     = "noema.db"
)

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		BitDepth:  spatialkey.DefaultBits,
		Window:    relation.DefaultWindow,
		Neighbors: relation.DefaultNeighbors,
		Embedding: EmbeddingConfig{
			URL:        embedding.DefaultOllamaURL,
			Model:      embedding.DefaultModel,
			Dimensions: embedding.DefaultDimensions,
			RateLimit:  embedding.DefaultRequestsPerSecond,
		},
	}
}

// NoemaPath returns the path to the .noema directory from a root path.
func NoemaPath(root string) string {
	return filepath.Join(root, NoemaDir)
}

// ConfigPath returns the path to config.yaml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, NoemaDir, ConfigFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, NoemaDir, CacheDir)
}

// DBPath returns the path to noema.db from a root path.
func DBPath(root string) string {
	return filepath.Join(root, NoemaDir, CacheDir, DBFile)
}

// IsRepository checks if the given path contains a noema repository.
func IsRepository(root string) bool {
	info, err := os.Stat(NoemaPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a noema repository.
// Returns the repository root path or an error if not found.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a noema repository (no .noema directory found)")
		}
		abs = parent
	}
}

// Init creates the repository layout at the given root and writes a default
// config. Fails if a repository already exists there.
func Init(root string) (*Config, error) {
	if IsRepository(root) {
		return nil, fmt.Errorf("repository already exists at %s", root)
	}

	if err := os.MkdirAll(CachePath(root), 0755); err != nil {
		return nil, fmt.Errorf("creating repository layout: %w", err)
	}

	cfg := Default()
	if err := cfg.Save(root); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from the repository at the given root. Missing
// fields fall back to their defaults.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks that every configured value is usable.
func (c *Config) Validate() error {
	if c.BitDepth < 1 || c.BitDepth > spatialkey.DefaultBits {
		return fmt.Errorf("bit_depth must be between 1 and %d, got %d", spatialkey.DefaultBits, c.BitDepth)
	}
	if c.Window < 2 {
		return fmt.Errorf("window must be at least 2, got %d", c.Window)
	}
	if c.Neighbors < 1 {
		return fmt.Errorf("neighbors must be at least 1, got %d", c.Neighbors)
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding dimensions must be at least 1, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// Provider builds the embedding provider the config describes.
func (c *Config) Provider() *embedding.OllamaProvider {
	return embedding.NewOllamaProvider(
		embedding.WithBaseURL(c.Embedding.URL),
		embedding.WithModel(c.Embedding.Model),
		embedding.WithDimensions(c.Embedding.Dimensions),
		embedding.WithRateLimit(c.Embedding.RateLimit),
	)
}
