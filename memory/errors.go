package memory

import "errors"

// Sentinel errors returned by the retriever and the stores.
// Check them with errors.Is; the underlying cause stays in the chain.
var (
	// ErrStoreUnavailable indicates the vector store or its embedding
	// function failed. It is never retried internally.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSerialization indicates metadata that cannot be flattened for
	// storage. It is returned before the store is contacted.
	ErrSerialization = errors.New("metadata serialization failed")

	// ErrNotFound indicates the requested document does not exist.
	// Deleting a missing document is not an error.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidInput indicates empty text, ids or queries, a non-positive
	// result count, or a vector that does not fit the collection.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("retriever closed")
)
