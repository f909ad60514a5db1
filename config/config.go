// Package config loads nim-memory settings from a YAML file and NIM_MEMORY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// NIM_MEMORY_STORE_BACKEND=bolt.
const EnvPrefix = "NIM_MEMORY"

// Config is the top-level configuration.
type Config struct {
	Collection CollectionConfig `mapstructure:"collection" yaml:"collection"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// CollectionConfig names the collection memories live in.
type CollectionConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string `mapstructure:"provider" yaml:"provider"` // "mock", "ollama", "openai", "onnx"
	Model             string `mapstructure:"model" yaml:"model"`
	BaseURL           string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKeyEnv         string `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Dimensions        int    `mapstructure:"dimensions" yaml:"dimensions"`
	ModelPath         string `mapstructure:"model_path" yaml:"model_path,omitempty"`
	TokenizerPath     string `mapstructure:"tokenizer_path" yaml:"tokenizer_path,omitempty"`
	SharedLibraryPath string `mapstructure:"shared_library_path" yaml:"shared_library_path,omitempty"`
	CacheSize         int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"` // "chromem" or "bolt"
	Path     string `mapstructure:"path" yaml:"path"`       // empty keeps chromem in memory
	Compress bool   `mapstructure:"compress" yaml:"compress"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	DefaultK int `mapstructure:"default_k" yaml:"default_k"`
}

// ServerConfig controls the websocket server.
type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Default returns the default configuration: mock embeddings and an
// in-memory chromem store, so nothing needs to be installed.
func Default() *Config {
	return &Config{
		Collection: CollectionConfig{
			Name: memory.DefaultConfig.CollectionName,
		},
		Embedding: EmbeddingConfig{
			Provider:   "mock",
			Model:      memory.DefaultConfig.EmbeddingModel,
			Dimensions: 384,
		},
		Store: StoreConfig{
			Backend: "chromem",
		},
		Search: SearchConfig{
			DefaultK: memory.DefaultConfig.DefaultK,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// Load reads configuration from path (or defaults only when path is empty)
// with NIM_MEMORY_ environment overrides, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("collection.name", d.Collection.Name)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key_env", d.Embedding.APIKeyEnv)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.model_path", d.Embedding.ModelPath)
	v.SetDefault("embedding.tokenizer_path", d.Embedding.TokenizerPath)
	v.SetDefault("embedding.shared_library_path", d.Embedding.SharedLibraryPath)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.compress", d.Store.Compress)

	v.SetDefault("search.default_k", d.Search.DefaultK)

	v.SetDefault("server.listen", d.Server.Listen)
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Collection.Name == "" {
		errs = append(errs, fmt.Errorf("config: collection.name must not be empty"))
	}

	validProviders := map[string]bool{"mock": true, "ollama": true, "openai": true, "onnx": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("config: embedding.provider must be one of [mock, ollama, openai, onnx], got %q",
			c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("config: embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("config: embedding.cache_size must not be negative, got %d", c.Embedding.CacheSize))
	}
	if c.Embedding.Provider == "onnx" && (c.Embedding.ModelPath == "" || c.Embedding.TokenizerPath == "") {
		errs = append(errs, fmt.Errorf("config: embedding.model_path and embedding.tokenizer_path are required for onnx"))
	}

	switch c.Store.Backend {
	case "chromem":
	case "bolt":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("config: store.path is required for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: store.backend must be one of [chromem, bolt], got %q", c.Store.Backend))
	}

	if c.Search.DefaultK <= 0 {
		errs = append(errs, fmt.Errorf("config: search.default_k must be greater than 0, got %d", c.Search.DefaultK))
	}

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("config: server.listen must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err))
	}

	return errs
}

// EmbedderConfig converts the embedding section for embedder.New.
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		APIKeyEnv:         c.Embedding.APIKeyEnv,
		Dimensions:        c.Embedding.Dimensions,
		ModelPath:         c.Embedding.ModelPath,
		TokenizerPath:     c.Embedding.TokenizerPath,
		SharedLibraryPath: c.Embedding.SharedLibraryPath,
		CacheSize:         c.Embedding.CacheSize,
	}
}

// RetrieverConfig converts the collection and search sections for
// memory.NewRetriever.
func (c *Config) RetrieverConfig() *memory.Config {
	return &memory.Config{
		CollectionName: c.Collection.Name,
		EmbeddingModel: c.Embedding.Model,
		DefaultK:       c.Search.DefaultK,
	}
}
