// Package history is the append-only log of uploads and comments kept per
// session. The cleaning pipeline never reads it; the HTTP layer appends a
// version entry after each run.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	KindVersion = "version"
	KindComment = "comment"
)

// Entry is one line of a session's history.
type Entry struct {
	Session   string    `json:"session" bson:"session"`
	Kind      string    `json:"kind" bson:"kind"`
	Source    string    `json:"source,omitempty" bson:"source,omitempty"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	RunID     string    `json:"runId,omitempty" bson:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Validate checks the fields every backend relies on.
func (e Entry) Validate() error {
	if e.Session == "" {
		return fmt.Errorf("session cannot be empty")
	}
	switch e.Kind {
	case KindVersion:
		if e.Source == "" {
			return fmt.Errorf("version entry requires a source")
		}
	case KindComment:
		if e.Text == "" {
			return fmt.Errorf("comment entry requires text")
		}
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}
	return nil
}

// Log stores entries per session in append order.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, session string) ([]Entry, error)
	Close(ctx context.Context) error
}

// MemoryLog keeps entries in process memory.
type MemoryLog struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{sessions: make(map[string][]Entry)}
}

func (m *MemoryLog) Append(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid history entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[entry.Session] = append(m.sessions[entry.Session], entry)
	return nil
}

func (m *MemoryLog) List(_ context.Context, session string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.sessions[session]))
	copy(out, m.sessions[session])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryLog) Close(context.Context) error { return nil }
