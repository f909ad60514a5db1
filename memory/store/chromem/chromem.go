package chromem

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// Options configures the chromem-go database.
type Options struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips persisted documents. Only used with Path.
	Compress bool
}

// Store wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type Store struct {
	db          *chromem.DB
	embed       chromem.EmbeddingFunc
	collections map[string]*Collection
	mu          sync.RWMutex
}

var _ memory.Store = (*Store)(nil)

// New creates a chromem-based store that embeds with embedder.
func New(embedder memory.Embedder, opts Options) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", memory.ErrInvalidInput)
	}

	var db *chromem.DB
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db %q: %w", opts.Path, err)
		}
		log.Printf("[CHROMEM] Opened persistent db at %s (compress=%t)", opts.Path, opts.Compress)
	}

	return &Store{
		db:          db,
		embed:       EmbeddingFunc(embedder),
		collections: make(map[string]*Collection),
	}, nil
}

// EmbeddingFunc adapts an Embedder to chromem-go. Vectors are normalized
// because chromem only normalizes embeddings that callers pass in.
func EmbeddingFunc(embedder memory.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return normalize(vec), nil
	}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(ctx context.Context, name string) (memory.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is empty", memory.ErrInvalidInput)
	}

	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	c, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	log.Printf("[CHROMEM] Attached collection %q (%d documents)", name, c.Count())

	col = &Collection{name: name, db: s.db, embed: s.embed, col: c}
	s.collections[name] = col
	return col, nil
}

// Close releases resources.
// chromem-go writes every change through to disk, so there is nothing to
// flush.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*Collection)
	return nil
}

// Collection is a chromem-go collection.
type Collection struct {
	name  string
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	// mu guards col, which Reset swaps for a fresh collection.
	mu  sync.RWMutex
	col *chromem.Collection
}

func (c *Collection) current() *chromem.Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col
}

// Upsert stores a document, replacing one with the same ID.
func (c *Collection) Upsert(ctx context.Context, doc memory.StoredDocument) error {
	err := c.current().AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Delete removes a document. chromem ignores unknown IDs.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := c.current().Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Get returns a document by ID.
func (c *Collection) Get(ctx context.Context, id string) (memory.StoredDocument, error) {
	doc, err := c.current().GetByID(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return memory.StoredDocument{}, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
		}
		return memory.StoredDocument{}, fmt.Errorf("get document: %w", err)
	}
	return memory.StoredDocument{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	}, nil
}

// Query retrieves documents by similarity to text.
func (c *Collection) Query(ctx context.Context, text string, k int) ([]memory.StoredMatch, error) {
	col := c.current()

	// chromem-go requires nResults <= collection size.
	// Retry with smaller limits if documents were deleted concurrently.
	limit := k
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	var results []chromem.Result
	for ; limit >= 1; limit-- {
		var err error
		results, err = col.Query(ctx, text, limit, nil, nil)
		if err == nil {
			break
		}

		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}

		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.StoredMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.StoredMatch{
			StoredDocument: memory.StoredDocument{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Distance: 1 - float64(r.Similarity),
		})
	}
	return matches, nil
}

// Count returns the number of documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.current().Count(), nil
}

// Reset drops and recreates the collection.
func (c *Collection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(c.name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := c.db.CreateCollection(c.name, nil, c.embed)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	c.col = col
	return nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}

	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}

	return normalized
}
