package events

import (
	"context"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// Router dispatches events to the notifier registered for the system.
// Systems without a registration acknowledge unconditionally.
type Router struct {
	bySystem map[string]Notifier
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{bySystem: make(map[string]Notifier)}
}

// Register binds a notifier to a system, replacing any previous binding.
func (r *Router) Register(system string, n Notifier) {
	r.bySystem[system] = n
}

// Notify implements Notifier.
func (r *Router) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	n, ok := r.bySystem[system]
	if !ok {
		return true
	}
	return n.Notify(ctx, system, kind, proj)
}
