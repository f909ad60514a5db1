package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"unicode/utf8"
)

// Retriever stores memory documents with typed metadata in a vector store
// collection and retrieves the most similar ones for a query.
//
// It holds no state besides the store handles: every call is forwarded to
// the collection and blocks until the store returns. Metadata is flattened
// on write and restored on read (see EncodeMetadata / DecodeMetadata).
//
// Concurrent use is as safe as the underlying Store; the Retriever adds no
// locking and no ordering between concurrent calls.
type Retriever struct {
	store      Store
	collection Collection
	config     *Config
	closed     atomic.Bool
}

// NewRetriever opens (or creates) the configured collection in store.
// The retriever takes ownership of store and closes it on Close.
func NewRetriever(ctx context.Context, store Store, config *Config) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidInput)
	}
	config = config.withDefaults()

	col, err := store.Collection(ctx, config.CollectionName)
	if err != nil {
		return nil, wrapStoreErr("open collection "+config.CollectionName, err)
	}

	log.Printf("[RETRIEVER] Attached to collection %q (model=%s)", config.CollectionName, config.EmbeddingModel)

	return &Retriever{
		store:      store,
		collection: col,
		config:     config,
	}, nil
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config {
	return *r.config
}

// AddDocument stores text under id with the given metadata.
// An existing document with the same id is replaced.
func (r *Retriever) AddDocument(ctx context.Context, text string, metadata Metadata, id string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if text == "" {
		return fmt.Errorf("%w: document text is empty", ErrInvalidInput)
	}
	if id == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidInput)
	}
	if !utf8.ValidString(text) || !utf8.ValidString(id) {
		return fmt.Errorf("%w: document %q is not valid UTF-8", ErrInvalidInput, id)
	}

	stored, err := EncodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("add document %q: %w", id, err)
	}

	log.Printf("[RETRIEVER] Adding document: id=%s, metadata_keys=%d, text=%q", id, len(stored), truncateLog(text, 50))

	err = r.collection.Upsert(ctx, StoredDocument{
		ID:       id,
		Content:  text,
		Metadata: stored,
	})
	if err != nil {
		return wrapStoreErr("add document "+id, err)
	}
	return nil
}

// AddNote stores a note with the metadata built by Note.Metadata.
func (r *Retriever) AddNote(ctx context.Context, note *Note) error {
	if note == nil {
		return fmt.Errorf("%w: note is nil", ErrInvalidInput)
	}
	return r.AddDocument(ctx, note.Content, note.Metadata(), note.ID)
}

// DeleteDocument removes the document with the given id.
// Deleting an id that does not exist succeeds.
func (r *Retriever) DeleteDocument(ctx context.Context, id string) error {
	if r.closed.Load() {
		return ErrClosed
	}

	log.Printf("[RETRIEVER] Deleting document: id=%s", id)

	if err := r.collection.Delete(ctx, id); err != nil {
		return wrapStoreErr("delete document "+id, err)
	}
	return nil
}

// Search returns up to k documents most similar to query, most similar
// first, with metadata decoded.
func (r *Retriever) Search(ctx context.Context, query string, k int) (*SearchResults, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	matches, err := r.collection.Query(ctx, query, k)
	if err != nil {
		return nil, wrapStoreErr("search", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	log.Printf("[RETRIEVER] Search %q returned %d of k=%d", truncateLog(query, 50), len(matches), k)

	results := &SearchResults{
		IDs:       make([]string, 0, len(matches)),
		Documents: make([]string, 0, len(matches)),
		Metadatas: make([]Metadata, 0, len(matches)),
		Distances: make([]float64, 0, len(matches)),
	}
	for _, m := range matches {
		results.IDs = append(results.IDs, m.ID)
		results.Documents = append(results.Documents, m.Content)
		results.Metadatas = append(results.Metadatas, DecodeMetadata(m.Metadata))
		results.Distances = append(results.Distances, m.Distance)
	}
	return results, nil
}

// SearchDefault runs Search with the configured default k.
func (r *Retriever) SearchDefault(ctx context.Context, query string) (*SearchResults, error) {
	return r.Search(ctx, query, r.config.DefaultK)
}

// Get returns a single document by id, or ErrNotFound.
func (r *Retriever) Get(ctx context.Context, id string) (*Document, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if id == "" {
		return nil, fmt.Errorf("%w: document id is empty", ErrInvalidInput)
	}

	doc, err := r.collection.Get(ctx, id)
	if err != nil {
		return nil, wrapStoreErr("get document "+id, err)
	}

	return &Document{
		ID:       doc.ID,
		Text:     doc.Content,
		Metadata: DecodeMetadata(doc.Metadata),
	}, nil
}

// Count returns the number of documents in the collection.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n, err := r.collection.Count(ctx)
	if err != nil {
		return 0, wrapStoreErr("count", err)
	}
	return n, nil
}

// Reset removes every document from the collection.
func (r *Retriever) Reset(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}

	log.Printf("[RETRIEVER] Resetting collection %q", r.config.CollectionName)

	if err := r.collection.Reset(ctx); err != nil {
		return wrapStoreErr("reset", err)
	}
	return nil
}

// Close releases the store. Calling Close more than once is a no-op.
func (r *Retriever) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// wrapStoreErr marks store failures as ErrStoreUnavailable unless the store
// already classified them.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:runeCut(s, maxLen)] + "..."
}

// runeCut returns the largest index <= n that does not split a rune.
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// Config holds Retriever configuration.
type Config struct {
	// CollectionName is the namespace within the store.
	// Default: "memories"
	CollectionName string

	// EmbeddingModel names the model the store's embedder was built from.
	// Every document in a collection must be embedded by the same model or
	// distances are not comparable.
	// Default: "all-MiniLM-L6-v2"
	EmbeddingModel string

	// DefaultK is the result count used by SearchDefault.
	// Default: 5
	DefaultK int
}

// DefaultConfig returns the defaults used when no Config is given.
var DefaultConfig = &Config{
	CollectionName: "memories",
	EmbeddingModel: "all-MiniLM-L6-v2",
	DefaultK:       5,
}

func (c *Config) withDefaults() *Config {
	out := *DefaultConfig
	if c == nil {
		return &out
	}
	if c.CollectionName != "" {
		out.CollectionName = c.CollectionName
	}
	if c.EmbeddingModel != "" {
		out.EmbeddingModel = c.EmbeddingModel
	}
	if c.DefaultK > 0 {
		out.DefaultK = c.DefaultK
	}
	return &out
}
