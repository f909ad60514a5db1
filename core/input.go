package core

import "encoding/json"

// AddMemoryInput is the input of add_memory.
type AddMemoryInput struct {
	// ID of the document. A new UUID is assigned when empty.
	ID string `json:"id,omitempty"`

	// Text is the memory content; it is embedded and stored verbatim.
	Text string `json:"text"`

	// Metadata is any JSON object. Values keep their JSON types.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SearchMemoryInput is the input of search_memory.
type SearchMemoryInput struct {
	Query string `json:"query"`

	// K is the number of results. Zero uses the configured default.
	K int `json:"k,omitempty"`
}

// DocumentIDInput is the input of get_memory and delete_memory.
type DocumentIDInput struct {
	ID string `json:"id"`
}
