package audit

import (
	"context"
	"log"
	"sync"
)

// MemorySink is an in-process audit sink for local development and tests,
// grounded on the teacher's in-memory EventBus. It never fails Publish.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	logger  *log.Logger
}

// NewMemorySink builds an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{logger: log.New(log.Writer(), "[AUDIT] ", log.LstdFlags)}
}

// Publish appends r to the in-memory log.
func (s *MemorySink) Publish(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	s.logger.Printf("%s %s/%s actor=%s", r.Action, r.EntityType, r.EntityID, r.Actor)
	return nil
}

// Records returns a snapshot of everything published so far, for
// assertions in tests.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
