package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SearchConfig holds query-time defaults.
type SearchConfig struct {
	TopK            int     `yaml:"top_k"`
	Threshold       float64 `yaml:"threshold"`
	Workers         int     `yaml:"workers,omitempty"`
	KeywordFallback bool    `yaml:"keyword_fallback"`
	CacheSize       int     `yaml:"cache_size,omitempty"`
}

// BuildConfig holds ingestion options.
type BuildConfig struct {
	Normalize         bool `yaml:"normalize"`
	Similarity        bool `yaml:"similarity"`
	MaxSimilarityRows int  `yaml:"max_similarity_rows,omitempty"`
}

// EmbeddingsConfig selects and configures the embedding provider. Secrets
// belong in ~/.edgerag/.env, not here.
type EmbeddingsConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Dim         int           `yaml:"dim,omitempty"`
	BatchSize   int           `yaml:"batch_size,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Config is the in-memory representation of ~/.edgerag/config.yaml.
type Config struct {
	StoreDir   string           `yaml:"store_dir"`
	Search     SearchConfig     `yaml:"search"`
	Build      BuildConfig      `yaml:"build"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// HomeDir returns the edgerag base directory: $EDGERAG_HOME when set,
// otherwise ~/.edgerag/.
func HomeDir() (string, error) {
	if v := os.Getenv("EDGERAG_HOME"); v != "" {
		return ExpandPath(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".edgerag"), nil
}

// ConfigPath returns the absolute path to config.yaml in HomeDir.
func ConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() (*Config, error) {
	dir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		StoreDir: filepath.Join(dir, "vector_db"),
		Search: SearchConfig{
			TopK:      5,
			Threshold: 0.5,
		},
		Build: BuildConfig{
			MaxSimilarityRows: 4096,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "hash",
			BatchSize:   32,
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
	}, nil
}

// Load reads and parses config.yaml. A missing file yields DefaultConfig.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, filling unset fields with defaults.
func LoadFile(path string) (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	// Expand ~ in StoreDir at load time.
	cfg.StoreDir, err = ExpandPath(cfg.StoreDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that cannot work at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoreDir) == "" {
		return fmt.Errorf("store_dir is required")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be greater than zero")
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be within [-1, 1]")
	}
	if c.Build.MaxSimilarityRows < 0 {
		return fmt.Errorf("build.max_similarity_rows cannot be negative")
	}
	return nil
}

// Save marshals cfg and writes it to config.yaml in HomeDir.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
