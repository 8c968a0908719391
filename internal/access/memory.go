package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type group struct {
	name    string
	members map[string]struct{}
}

// MemoryDirectory is a mutex-guarded in-memory group directory. It backs
// tests and embedded single-node deployments; a networked agent substrate
// can replace it behind the Directory interface.
type MemoryDirectory struct {
	mu     sync.RWMutex
	groups map[string]*group
	agents map[string]string // agent id -> passphrase
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		groups: make(map[string]*group),
		agents: make(map[string]string),
	}
}

// AddGroup registers a group with its initial members.
func (d *MemoryDirectory) AddGroup(groupID, name string, members ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := &group{name: name, members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		g.members[m] = struct{}{}
	}
	d.groups[groupID] = g
}

// CreateGroup registers a group under a generated identifier and
// returns it.
func (d *MemoryDirectory) CreateGroup(name string, members ...string) string {
	id := uuid.NewString()
	d.AddGroup(id, name, members...)
	return id
}

// RegisterAgent stores an unlockable credential.
func (d *MemoryDirectory) RegisterAgent(agentID, passphrase string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agentID] = passphrase
}

// RequestGroupHandle implements Oracle.
func (d *MemoryDirectory) RequestGroupHandle(ctx context.Context, groupID, principal string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[groupID]
	if !ok {
		return fmt.Errorf("group %q: %w", groupID, ErrGroupNotFound)
	}
	if principal == "" {
		return ErrAccessDenied
	}
	if _, ok := g.members[principal]; !ok {
		return fmt.Errorf("principal %q on group %q: %w", principal, groupID, ErrAccessDenied)
	}
	return nil
}

// AddMember implements Directory. The acting principal must be a member.
func (d *MemoryDirectory) AddMember(ctx context.Context, groupID, member, principal string) error {
	if err := d.RequestGroupHandle(ctx, groupID, principal); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[groupID].members[member] = struct{}{}
	return nil
}

// UnlockAgent implements Directory.
func (d *MemoryDirectory) UnlockAgent(ctx context.Context, agentID, passphrase string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stored, ok := d.agents[agentID]
	if !ok {
		return "", fmt.Errorf("agent %q: %w", agentID, ErrAgentNotFound)
	}
	if stored != passphrase {
		return "", fmt.Errorf("agent %q: %w", agentID, ErrBadPassphrase)
	}
	return agentID, nil
}
