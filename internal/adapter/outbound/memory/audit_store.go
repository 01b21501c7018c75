package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/sentinel-project/sentinel/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Store writing JSON lines to stdout or a file.
// Also keeps a bounded in-memory ring buffer for recent record queries.
type AuditStore struct {
	encoder *json.Encoder
	closer  io.Closer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent records.
	recent []audit.Record
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStore(capacity ...int) *AuditStore {
	return NewAuditStoreWithWriter(os.Stdout, capacity...)
}

// NewAuditStoreWithWriter creates an audit store writing to the given writer.
// If the writer is an io.Closer, Close closes it.
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *AuditStore {
	cap := resolveCapacity(capacity...)
	store := &AuditStore{
		encoder: json.NewEncoder(w),
		recent:  make([]audit.Record, 0, cap),
		cap:     cap,
	}
	if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
		store.closer = c
	}
	return store
}

// NewAuditStoreAtPath creates an audit store appending to the file at path.
func NewAuditStoreAtPath(path string, capacity ...int) (*AuditStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewAuditStoreWithWriter(f, capacity...), nil
}

// WriteBatch persists records by writing them as JSON lines and keeping
// them in the in-memory ring buffer.
func (s *AuditStore) WriteBatch(ctx context.Context, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			// Shift left, drop oldest.
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
	}
	return nil
}

// Query returns buffered records matching the filter, newest first.
// Only records still in the ring buffer are visible.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audit.Record
	for i := len(s.recent) - 1; i >= 0; i-- {
		r := s.recent[i]
		if !matchesFilter(r, filter) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func matchesFilter(r audit.Record, filter audit.Filter) bool {
	if filter.Event != "" && r.Event != filter.Event {
		return false
	}
	if filter.AgentID != "" && r.AgentID != filter.AgentID {
		return false
	}
	if filter.Decision != "" && r.Decision != filter.Decision {
		return false
	}
	if !filter.Since.IsZero() && r.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && r.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// Close closes the underlying writer if it is closable.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

// Len returns the number of buffered records.
func (s *AuditStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
