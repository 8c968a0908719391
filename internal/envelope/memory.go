package envelope

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/projectd/internal/access"
)

type memoryRecord struct {
	owner    string
	public   bool
	content  []byte
	revision uint64
}

// MemoryStore is a mutex-guarded in-memory Store with full owner and
// revision semantics.
type MemoryStore struct {
	mu      sync.RWMutex
	oracle  access.Oracle
	records map[string]*memoryRecord
}

// NewMemoryStore creates an empty store gated by the given oracle.
func NewMemoryStore(oracle access.Oracle) *MemoryStore {
	return &MemoryStore{
		oracle:  oracle,
		records: make(map[string]*memoryRecord),
	}
}

// Fetch implements Store.
func (s *MemoryStore) Fetch(ctx context.Context, key, principal string) (*Envelope, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("fetch %q: %w", key, ErrNotFound)
	}
	// Snapshot under the lock; the oracle call below must not hold it.
	snapshot := *rec
	s.mu.RUnlock()

	if !snapshot.public && !canAct(ctx, s.oracle, snapshot.owner, principal) {
		return nil, fmt.Errorf("fetch %q: %w", key, ErrAccessDenied)
	}

	content := make([]byte, len(snapshot.content))
	copy(content, snapshot.content)
	return &Envelope{
		Key:      key,
		Owner:    snapshot.owner,
		Content:  content,
		Revision: snapshot.revision,
		Public:   snapshot.public,
	}, nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, key, owner string, content []byte) (*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		return nil, fmt.Errorf("create %q: %w", key, ErrExists)
	}

	stored := make([]byte, len(content))
	copy(stored, content)
	s.records[key] = &memoryRecord{owner: owner, content: stored, revision: 1}

	return &Envelope{
		Key:      key,
		Owner:    owner,
		Content:  append([]byte(nil), content...),
		Revision: 1,
	}, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, env *Envelope, content []byte, principal string) error {
	s.mu.RLock()
	rec, ok := s.records[env.Key]
	var owner string
	if ok {
		owner = rec.owner
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("put %q: %w", env.Key, ErrNotFound)
	}
	if !canAct(ctx, s.oracle, owner, principal) {
		return fmt.Errorf("put %q: %w", env.Key, ErrAccessDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok = s.records[env.Key]
	if !ok {
		return fmt.Errorf("put %q: %w", env.Key, ErrNotFound)
	}
	if rec.revision != env.Revision {
		return fmt.Errorf("put %q at revision %d (stored %d): %w", env.Key, env.Revision, rec.revision, ErrConflict)
	}

	rec.content = append([]byte(nil), content...)
	rec.revision++
	env.Revision = rec.revision
	env.Content = append([]byte(nil), content...)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key, principal string) error {
	s.mu.RLock()
	rec, ok := s.records[key]
	var owner string
	if ok {
		owner = rec.owner
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("delete %q: %w", key, ErrNotFound)
	}
	if !canAct(ctx, s.oracle, owner, principal) {
		return fmt.Errorf("delete %q: %w", key, ErrAccessDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// SetPublicReadable implements Store.
func (s *MemoryStore) SetPublicReadable(ctx context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[env.Key]
	if !ok {
		return fmt.Errorf("set public %q: %w", env.Key, ErrNotFound)
	}
	rec.public = true
	rec.revision++
	env.Public = true
	env.Revision = rec.revision
	return nil
}
