// Package envelope provides owner-gated record storage on a key-value
// substrate. Every record has exactly one owning principal (an agent or
// a group); reads and writes are gated by the access oracle unless the
// record was marked public-readable.
//
// Two implementations exist: MemoryStore for tests and embedded
// single-node use, and KVStore on a NATS JetStream key-value bucket for
// distributed deployments. Both expose the bucket's native
// create-if-absent primitive and a revision token for compare-and-swap
// writes, so callers never need a read-check-write pattern.
package envelope

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/projectd/internal/access"
)

// Common errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrAccessDenied = errors.New("record access denied")
	ErrExists       = errors.New("record already exists")
	ErrConflict     = errors.New("record revision conflict")
)

// Envelope is a handle to a stored record. Revision is the version token
// observed at fetch or create time; Put rejects writes against a stale
// revision with ErrConflict.
type Envelope struct {
	Key      string
	Owner    string
	Content  []byte
	Revision uint64
	Public   bool
}

// Store is the record storage contract.
type Store interface {
	// Fetch returns the record under key, gated by principal. An empty
	// principal is an anonymous probe: it succeeds only for
	// public-readable records and returns ErrAccessDenied for records
	// that exist but are restricted.
	Fetch(ctx context.Context, key, principal string) (*Envelope, error)

	// Create stores a new record under key, owned by owner. It is the
	// store's create-if-absent primitive: ErrExists when the key is
	// already taken, regardless of owner.
	Create(ctx context.Context, key, owner string, content []byte) (*Envelope, error)

	// Put replaces the record content. principal must hold the owner
	// capability; the write is compare-and-swap against env.Revision.
	// On success env is updated to the new revision and content.
	Put(ctx context.Context, env *Envelope, content []byte, principal string) error

	// Delete removes the record under key, gated by principal.
	Delete(ctx context.Context, key, principal string) error

	// SetPublicReadable opens the record for anonymous reads. Writes
	// stay gated by the owner. env is updated to the new revision.
	SetPublicReadable(ctx context.Context, env *Envelope) error
}

// canAct reports whether principal may act as owner: either it is the
// owner itself or it holds a handle to the owning group.
func canAct(ctx context.Context, oracle access.Oracle, owner, principal string) bool {
	if principal == "" {
		return false
	}
	if principal == owner {
		return true
	}
	return oracle.RequestGroupHandle(ctx, owner, principal) == nil
}
