package memory

import (
	"context"
)

// Document is a stored memory as returned to callers, with its metadata
// already decoded.
type Document struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// StoredDocument is a document in the flat form a vector store accepts.
type StoredDocument struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// StoredMatch is a query hit. Distance is smaller for more similar
// documents; the cosine stores report 1 - cosine similarity.
type StoredMatch struct {
	StoredDocument
	Distance float64
}

// Store is the vector storage backend.
// Implementations: chromem.Store (in-memory or persistent), bolt.Store.
//
// A Store owns the embedding function used for both writes and queries, so
// every document of a collection is embedded by the same model.
type Store interface {
	// Collection returns the named collection, creating it when missing.
	// Opening an existing name attaches to it.
	Collection(ctx context.Context, name string) (Collection, error)

	// Close releases resources.
	Close() error
}

// Collection is a namespace of documents within a Store.
type Collection interface {
	// Upsert embeds doc.Content and stores the document, replacing any
	// document with the same ID.
	Upsert(ctx context.Context, doc StoredDocument) error

	// Delete removes a document. Deleting a missing ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Get returns a document by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (StoredDocument, error)

	// Query embeds text and returns up to k nearest documents ordered by
	// increasing distance. k larger than the collection returns every
	// document; an empty collection returns no matches and no error.
	Query(ctx context.Context, text string, k int) ([]StoredMatch, error)

	// Count returns the number of documents.
	Count(ctx context.Context) (int, error)

	// Reset removes every document; the collection stays usable.
	Reset(ctx context.Context) error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder (local model),
// embedder.Func (Ollama / OpenAI through chromem-go), cache.Embedder.
//
// Embed must be deterministic for a fixed model and safe for concurrent use.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
