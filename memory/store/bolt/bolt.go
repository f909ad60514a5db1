// Package bolt implements memory.Store on top of bbolt.
//
// Each collection is a bucket holding JSON-encoded documents together with
// their embedding. Search is brute force cosine similarity, which is fine
// for the few thousand notes an agent keeps.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/becomeliminal/nim-memory/memory"
)

var (
	bucketCollections = []byte("collections")
	collectionPrefix  = []byte("col:")
)

// Store is a bbolt-backed vector store.
type Store struct {
	db       *bbolt.DB
	embedder memory.Embedder

	mu          sync.Mutex
	collections map[string]*Collection
}

var _ memory.Store = (*Store)(nil)

type collectionInfo struct {
	Dimensions int       `json:"dimensions"`
	CreatedAt  time.Time `json:"created_at"`
}

type storedDoc struct {
	Content  string            `json:"c"`
	Metadata map[string]string `json:"m,omitempty"`
	Vector   []float32         `json:"v"`
}

// Open opens (or creates) the database file at path.
func Open(path string, embedder memory.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", memory.ErrInvalidInput)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %q: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}

	log.Printf("[BOLT] Opened %s", path)

	return &Store{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection, creating its bucket on first use.
// A collection created with a different embedding size is rejected.
func (s *Store) Collection(ctx context.Context, name string) (memory.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is empty", memory.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	bucket := append(append([]byte{}, collectionPrefix...), name...)
	var info collectionInfo

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketCollections)
		if raw := meta.Get([]byte(name)); raw != nil {
			if err := json.Unmarshal(raw, &info); err != nil {
				return fmt.Errorf("decode collection info: %w", err)
			}
		} else {
			info = collectionInfo{Dimensions: s.embedder.Dimensions(), CreatedAt: time.Now().UTC()}
			raw, err := json.Marshal(info)
			if err != nil {
				return err
			}
			if err := meta.Put([]byte(name), raw); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", name, err)
	}

	if want := s.embedder.Dimensions(); want > 0 && info.Dimensions > 0 && want != info.Dimensions {
		return nil, fmt.Errorf("%w: collection %q holds %d-dimensional vectors, embedder produces %d",
			memory.ErrInvalidInput, name, info.Dimensions, want)
	}

	col := &Collection{
		db:        s.db,
		name:      name,
		bucket:    bucket,
		embedder:  s.embedder,
		dimension: info.Dimensions,
	}
	s.collections[name] = col
	return col, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Collection is one bucket of documents.
type Collection struct {
	db       *bbolt.DB
	name     string
	bucket   []byte
	embedder memory.Embedder

	mu        sync.RWMutex
	dimension int
}

func (c *Collection) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	c.mu.RLock()
	dim := c.dimension
	c.mu.RUnlock()

	if dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", memory.ErrInvalidInput, dim, len(vec))
	}
	return vec, nil
}

// Upsert embeds and stores a document.
func (c *Collection) Upsert(ctx context.Context, doc memory.StoredDocument) error {
	vec, err := c.embed(ctx, doc.Content)
	if err != nil {
		return err
	}

	data, err := json.Marshal(storedDoc{
		Content:  doc.Content,
		Metadata: doc.Metadata,
		Vector:   vec,
	})
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("collection bucket %q not found", c.name)
		}
		if c.dimension == 0 {
			if err := c.recordDimension(tx, len(vec)); err != nil {
				return err
			}
		}
		return b.Put([]byte(doc.ID), data)
	})
}

// recordDimension fixes the vector size of a collection whose embedder
// did not report one up front.
func (c *Collection) recordDimension(tx *bbolt.Tx, dim int) error {
	meta := tx.Bucket(bucketCollections)
	var info collectionInfo
	if raw := meta.Get([]byte(c.name)); raw != nil {
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("decode collection info: %w", err)
		}
	}
	info.Dimensions = dim
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := meta.Put([]byte(c.name), raw); err != nil {
		return err
	}
	c.dimension = dim
	return nil
}

// Delete removes a document; missing IDs are ignored.
func (c *Collection) Delete(ctx context.Context, id string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// Get returns a document by ID.
func (c *Collection) Get(ctx context.Context, id string) (memory.StoredDocument, error) {
	var out memory.StoredDocument
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", memory.ErrNotFound, id)
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", memory.ErrNotFound, id)
		}
		var doc storedDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode document %q: %w", id, err)
		}
		out = memory.StoredDocument{ID: id, Content: doc.Content, Metadata: doc.Metadata}
		return nil
	})
	return out, err
}

// Query finds the k nearest documents using cosine distance.
func (c *Collection) Query(ctx context.Context, text string, k int) ([]memory.StoredMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", memory.ErrInvalidInput)
	}

	query, err := c.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	var matches []memory.StoredMatch
	err = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(key, raw []byte) error {
			var doc storedDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				log.Printf("[BOLT] Skipping corrupted document %q: %v", key, err)
				return nil
			}
			matches = append(matches, memory.StoredMatch{
				StoredDocument: memory.StoredDocument{
					ID:       string(bytes.Clone(key)),
					Content:  doc.Content,
					Metadata: doc.Metadata,
				},
				Distance: 1 - cosineSimilarity(query, doc.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan collection %q: %w", c.name, err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(c.bucket); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Reset drops every document of the collection.
func (c *Collection) Reset(ctx context.Context) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(c.bucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(c.bucket)
		return err
	})
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
