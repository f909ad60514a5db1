// Package memory provides a retrieval layer for agent memory documents.
//
// Memories are free text with typed metadata. They are stored in a vector
// store collection and retrieved by similarity to a query.
//
// Architecture:
//   - Store / Collection: vector storage backend (chromem-go in memory or on
//     disk, or bbolt)
//   - Embedder: text-to-vector conversion owned by the store (local ONNX
//     model, Ollama or OpenAI through chromem-go, or a mock for tests)
//   - Retriever: add / delete / search, and the metadata round-trip
//
// Metadata:
//   - Values are tagged (Value): string, integer, float, boolean, sequence,
//     mapping or null
//   - Stores only keep flat string metadata, so values are flattened on
//     write and restored on read (EncodeMetadata / DecodeMetadata)
//   - Numeric-looking strings come back as numbers (see codec.go)
//
// Usage:
//
//	store, _ := chromem.New(mock.New(), chromem.Options{})
//	r, _ := memory.NewRetriever(ctx, store, nil)
//	defer r.Close()
//
//	_ = r.AddDocument(ctx, "Cats are fluffy animals", memory.Metadata{
//		"tags": memory.Sequence(memory.String("pets")),
//	}, "doc1")
//	res, _ := r.Search(ctx, "animals", 5)
package memory
