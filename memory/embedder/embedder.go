// Package embedder builds a memory.Embedder from configuration.
//
// Supported providers:
//
//	mock    deterministic hashed bag-of-words, no model files
//	ollama  local Ollama server through chromem-go
//	openai  OpenAI or any OpenAI-compatible API through chromem-go
//	onnx    local all-MiniLM-L6-v2 via ONNX Runtime (requires -tags onnx)
package embedder

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string // "mock", "ollama", "openai", "onnx"
	Model      string // e.g. "nomic-embed-text", "text-embedding-3-small"
	BaseURL    string // optional API base URL
	APIKeyEnv  string // environment variable holding the API key
	Dimensions int    // vector size, 0 if unknown up front

	// ONNX only.
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string

	// CacheSize wraps the embedder in a ristretto cache holding this many
	// vectors. 0 disables caching.
	CacheSize int
}

// onnxFactory is set by onnx_enabled.go when built with -tags onnx.
var onnxFactory func(Config) (memory.Embedder, error)

// New creates the embedder described by cfg.
func New(cfg Config) (memory.Embedder, error) {
	var (
		e   memory.Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		e = mock.NewWithDimensions(cfg.Dimensions)
	case "ollama":
		if cfg.Model == "" {
			return nil, fmt.Errorf("ollama provider requires a model")
		}
		e = NewFunc(chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), cfg.Dimensions)
	case "openai":
		e, err = newOpenAI(cfg)
	case "onnx":
		if onnxFactory == nil {
			return nil, fmt.Errorf("onnx provider not available: rebuild with -tags onnx")
		}
		e, err = onnxFactory(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}

	log.Printf("[EMBED] Using provider=%s model=%s dims=%d", providerName(cfg.Provider), cfg.Model, e.Dimensions())

	if cfg.CacheSize > 0 {
		cached, err := cache.New(e, cache.Options{MaxEntries: cfg.CacheSize})
		if err != nil {
			_ = Close(e)
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		return cached, nil
	}
	return e, nil
}

func newOpenAI(cfg Config) (memory.Embedder, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = string(chromem.EmbeddingModelOpenAI3Small)
	}

	if cfg.BaseURL != "" {
		return NewFunc(chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, apiKey, model, nil), cfg.Dimensions), nil
	}
	return NewFunc(chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), cfg.Dimensions), nil
}

func providerName(p string) string {
	if p == "" {
		return "mock"
	}
	return strings.ToLower(p)
}

// Close releases the embedder if it holds resources (ONNX sessions, caches).
func Close(e memory.Embedder) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Func adapts a chromem-go embedding function to memory.Embedder.
type Func struct {
	fn   chromem.EmbeddingFunc
	dims int
}

var _ memory.Embedder = (*Func)(nil)

// NewFunc wraps fn. dims may be 0 when the model size is not known.
func NewFunc(fn chromem.EmbeddingFunc, dims int) *Func {
	return &Func{fn: fn, dims: dims}
}

// Embed calls the wrapped function.
func (f *Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}

// Dimensions returns the configured vector size.
func (f *Func) Dimensions() int {
	return f.dims
}
