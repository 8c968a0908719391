// Package access defines the capability oracle used for all
// authorization decisions, plus the service-group recovery strategy.
//
// A principal that can obtain a handle to a group is an authorized
// member of that group. This is the sole authorization primitive the
// registry uses; there are no roles or ACLs on top of it.
package access

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrAccessDenied  = errors.New("group access denied")
	ErrGroupNotFound = errors.New("group not found")
	ErrAgentNotFound = errors.New("agent not found")
	ErrBadPassphrase = errors.New("agent passphrase rejected")
)

// Oracle answers capability checks against the group substrate.
type Oracle interface {
	// RequestGroupHandle returns nil when principal can obtain a handle
	// to the group, ErrAccessDenied when the group exists but principal
	// is not a member, and ErrGroupNotFound when the group is unknown.
	// Any other error is a transport failure.
	RequestGroupHandle(ctx context.Context, groupID, principal string) error
}

// Directory extends Oracle with the mutations the recovery path needs.
type Directory interface {
	Oracle

	// AddMember adds member to the group. The acting principal must
	// itself hold a handle to the group.
	AddMember(ctx context.Context, groupID, member, principal string) error

	// UnlockAgent unlocks a stored credential and returns the principal
	// identifier it represents.
	UnlockAgent(ctx context.Context, agentID, passphrase string) (string, error)
}
