package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// AuditEntry records one tool call.
type AuditEntry struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	ClientID   string          `json:"client_id,omitempty"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput json.RawMessage `json:"tool_output,omitempty"`
	Error      *string         `json:"error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	IsWriteOp  bool            `json:"is_write_op"`
	Timestamp  int64           `json:"timestamp"`
}

// AuditLogger receives an entry for every executed tool call.
// Log must not block for long; it runs on the calling goroutine.
type AuditLogger interface {
	Log(ctx context.Context, entry *AuditEntry)
}

// LogAuditLogger writes audit entries to the standard logger.
// Tool outputs are omitted; search results can be large.
type LogAuditLogger struct {
	// WritesOnly skips read-only calls.
	WritesOnly bool
}

// Log implements AuditLogger.
func (l *LogAuditLogger) Log(ctx context.Context, entry *AuditEntry) {
	if l.WritesOnly && !entry.IsWriteOp {
		return
	}
	status := "ok"
	if entry.Error != nil {
		status = "error:" + entry.ErrorCode
	}
	log.Printf("[AUDIT] id=%s request=%s client=%s tool=%s write=%t status=%s duration=%dms input=%s",
		entry.ID, entry.RequestID, entry.ClientID, entry.ToolName, entry.IsWriteOp, status, entry.DurationMs,
		truncate(string(entry.ToolInput), 200))
}

// MemoryAuditLogger keeps entries in memory.
type MemoryAuditLogger struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

// Log implements AuditLogger.
func (m *MemoryAuditLogger) Log(ctx context.Context, entry *AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (m *MemoryAuditLogger) Entries() []*AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
