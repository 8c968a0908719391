// Package naming maps (system, project name) pairs to storage keys.
// All functions are deterministic and side-effect free.
package naming

import "errors"

// ErrEmptyName is returned for empty system or project names.
var ErrEmptyName = errors.New("name cannot be empty")

const (
	projectKeyInfix = "_projects_"
	listKeySuffix   = "_projects"
)

// ProjectKey returns the storage key of the per-project record.
//
// Keys are plain concatenations. Names that themselves contain the
// "_projects_" infix can collide across systems; the scheme does not
// enforce separator-free names.
func ProjectKey(system, name string) string {
	return system + projectKeyInfix + name
}

// ListKey returns the storage key of the per-system aggregate record.
func ListKey(system string) string {
	return system + listKeySuffix
}

// ValidName checks that a system or project name is usable as a key part.
func ValidName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	return nil
}
