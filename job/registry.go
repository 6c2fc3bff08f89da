package job

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry stores job records keyed by id. Implementations serialize all access
// and hand out copies, never references to their internal state.
type Registry interface {
	Create(spec Spec) (Record, error)
	Get(id string) (Record, error)
	Update(id string, patch Patch) (Record, error)
	Delete(id string) error
	List() []Record
}

// MemoryRegistry is a Registry backed by a map guarded by a RWMutex
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create inserts a new record in the starting state
func (m *MemoryRegistry) Create(spec Spec) (Record, error) {
	if spec.Source.Locator == "" {
		return Record{}, fmt.Errorf("source locator is required")
	}

	rec := &Record{
		ID:          uuid.NewString(),
		Status:      StatusStarting,
		Progress:    0,
		Source:      spec.Source,
		CreatedAt:   m.now(),
		CallbackURL: spec.CallbackURL,
	}
	if len(spec.PublishKeys) > 0 {
		rec.PublishKeys = append([]string(nil), spec.PublishKeys...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec.clone(), nil
}

// Get returns a copy of the record
func (m *MemoryRegistry) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

// Update applies patch as a single read-modify-write. A rejected patch leaves
// the record unchanged.
func (m *MemoryRegistry) Update(id string, patch Patch) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}

	next := rec.clone()
	if err := applyPatch(&next, patch, m.now()); err != nil {
		return rec.clone(), err
	}

	*rec = next
	return rec.clone(), nil
}

// Delete removes a record
func (m *MemoryRegistry) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// List returns a snapshot of all records ordered by creation time
func (m *MemoryRegistry) List() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// canTransition encodes the job state machine
func canTransition(from, to Status) bool {
	switch from {
	case StatusStarting:
		return to == StatusConverting || to == StatusError
	case StatusConverting:
		return to == StatusConverting || to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

func applyPatch(rec *Record, patch Patch, now time.Time) error {
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", ErrInvalidTransition, rec.ID, rec.Status)
	}

	target := rec.Status
	if patch.Status != nil {
		target = *patch.Status
		if !canTransition(rec.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, target)
		}
	}

	if patch.Artifact != nil && target != StatusCompleted {
		return fmt.Errorf("%w: artifact only allowed when completed", ErrInvalidTransition)
	}
	if patch.ErrorDetail != nil && target != StatusError {
		return fmt.Errorf("%w: error detail only allowed on error", ErrInvalidTransition)
	}

	switch target {
	case StatusCompleted:
		if patch.Artifact == nil {
			return fmt.Errorf("%w: completed without artifact", ErrInvalidTransition)
		}
		a := *patch.Artifact
		rec.Artifact = &a
		rec.Progress = 100
	case StatusError:
		if patch.ErrorDetail == nil || *patch.ErrorDetail == "" {
			return fmt.Errorf("%w: error without detail", ErrInvalidTransition)
		}
		rec.ErrorDetail = *patch.ErrorDetail
		rec.Artifact = nil
	}

	if patch.Progress != nil && target != StatusCompleted {
		rec.Progress = clampProgress(rec.Progress, *patch.Progress)
	}
	if patch.OutputPath != nil {
		rec.OutputPath = *patch.OutputPath
	}

	rec.Status = target
	if target.IsTerminal() {
		t := now
		rec.CompletedAt = &t
	}
	return nil
}

// clampProgress keeps progress within 0-100 and never lets it go backwards
func clampProgress(current, next int) int {
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	if next < current {
		return current
	}
	return next
}
