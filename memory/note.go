package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoteTimeLayout is the minute-resolution layout of Note timestamps.
const NoteTimeLayout = "200601021504"

// Note is a memory note: free text plus the descriptive fields a memory
// manager keeps about it. It is a convenience for building the metadata of
// a document; the Retriever stores any text and Metadata.
type Note struct {
	ID             string
	Content        string
	Keywords       []string
	Tags           []string
	Context        string
	Category       string
	Links          []string
	RetrievalCount int64
	Timestamp      string
	LastAccessed   string
}

// NewNote creates a note with a fresh UUID and the current timestamp.
func NewNote(content string) *Note {
	now := time.Now().Format(NoteTimeLayout)
	return &Note{
		ID:           uuid.New().String(),
		Content:      content,
		Keywords:     []string{},
		Tags:         []string{},
		Links:        []string{},
		Context:      "General",
		Category:     "Uncategorized",
		Timestamp:    now,
		LastAccessed: now,
	}
}

// Metadata returns the metadata stored alongside the note content.
func (n *Note) Metadata() Metadata {
	return Metadata{
		"keywords":        stringSeq(n.Keywords),
		"tags":            stringSeq(n.Tags),
		"links":           stringSeq(n.Links),
		"context":         String(n.Context),
		"category":        String(n.Category),
		"retrieval_count": Int(n.RetrievalCount),
		"timestamp":       String(n.Timestamp),
		"last_accessed":   String(n.LastAccessed),
	}
}

// NoteFromDocument rebuilds a note from a retrieved document.
// Timestamps read back as integers (they are all digits) and are turned
// into strings again here.
func NoteFromDocument(id, text string, md Metadata) *Note {
	n := &Note{
		ID:       id,
		Content:  text,
		Keywords: seqStrings(md["keywords"]),
		Tags:     seqStrings(md["tags"]),
		Links:    seqStrings(md["links"]),
		Context:  scalarText(md["context"]),
		Category: scalarText(md["category"]),
	}
	if c, ok := md["retrieval_count"].Int(); ok {
		n.RetrievalCount = c
	}
	n.Timestamp = scalarText(md["timestamp"])
	n.LastAccessed = scalarText(md["last_accessed"])
	return n
}

// Format formats the note for prompt injection, truncated to maxLength.
func (n *Note) Format(maxLength int) string {
	var parts []string

	header := fmt.Sprintf("[%s] %s", n.Category, n.Timestamp)
	if len(n.Tags) > 0 {
		header += " #" + strings.Join(n.Tags, " #")
	}
	parts = append(parts, header)

	if maxLength <= 0 {
		maxLength = 500
	}
	parts = append(parts, "  "+truncate(n.Content, maxLength))

	if n.Context != "" && n.Context != "General" {
		parts = append(parts, fmt.Sprintf("  Context: %s", truncate(n.Context, maxLength/2)))
	}
	if len(n.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("  Keywords: %s", strings.Join(n.Keywords, ", ")))
	}

	return strings.Join(parts, "\n")
}

func stringSeq(items []string) Value {
	seq := make([]Value, len(items))
	for i, s := range items {
		seq[i] = String(s)
	}
	return Value{kind: KindSequence, seq: seq}
}

func seqStrings(v Value) []string {
	items, ok := v.Seq()
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, scalarText(item))
	}
	return out
}

// scalarText returns the stored text form of a scalar; missing values
// (Null) give "".
func scalarText(v Value) string {
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:runeCut(s, maxLen-3)] + "..."
}
