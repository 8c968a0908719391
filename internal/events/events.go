// Package events delivers project lifecycle notifications to per-system
// listeners. A notification is a single boolean-outcome call: true means
// the listener acknowledged the event, false means the registry must
// treat the operation as failed (and, on create, roll back its writes).
// Systems without a configured listener always acknowledge.
package events

import (
	"context"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// Kind identifies the lifecycle event.
type Kind string

const (
	// KindCreated is sent after the dual write of a new project.
	KindCreated Kind = "created"
	// KindDeleted is sent after the dual delete of a project.
	KindDeleted Kind = "deleted"
)

// Notifier delivers at most one notification per mutating operation.
type Notifier interface {
	Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool
}

// Noop acknowledges every event. It backs systems without a listener.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	return true
}

// Multi fans one event out to several notifiers; it acknowledges only
// when every notifier does. Delivery is sequential and every notifier is
// invoked even after a failure, so partial listeners still hear the
// event.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	ok := true
	for _, n := range m {
		if !n.Notify(ctx, system, kind, proj) {
			ok = false
		}
	}
	return ok
}
