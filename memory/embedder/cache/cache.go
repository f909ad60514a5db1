// Package cache memoizes embeddings with ristretto.
package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// Options configures the cache.
type Options struct {
	// MaxEntries is the number of embeddings kept. Default: 1024
	MaxEntries int
}

// Embedder caches the vectors of an inner embedder keyed by text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps inner with a cache.
func New(inner memory.Embedder, opts Options) (*Embedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: inner embedder is nil", memory.ErrInvalidInput)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1024
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(opts.MaxEntries) * 10, // ristretto recommends 10x entries
		MaxCost:            int64(opts.MaxEntries),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
// Callers get their own copy of the vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, clone(vec), 1)
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending writes are visible to Embed.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache and closes the inner embedder if it is closable.
func (e *Embedder) Close() error {
	e.cache.Close()
	if c, ok := e.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
