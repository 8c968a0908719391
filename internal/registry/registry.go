// Package registry orchestrates project lifecycle operations over the
// envelope store, the access oracle and the event notifier. It owns the
// dual-record consistency rules: every project lives in a singleton
// per-project record and in the per-system aggregate record, and the two
// must never durably disagree.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/access"
	"github.com/fyrsmithlabs/projectd/internal/apperr"
	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/envelope"
	"github.com/fyrsmithlabs/projectd/internal/events"
	"github.com/fyrsmithlabs/projectd/internal/logging"
	"github.com/fyrsmithlabs/projectd/internal/naming"
	"github.com/fyrsmithlabs/projectd/internal/project"
)

// aggregateRetries bounds the read-modify-write loop on the aggregate
// record. Each retry refetches the current revision.
const aggregateRetries = 3

// Options collects the registry's collaborators.
type Options struct {
	Store    envelope.Store
	Oracle   access.Oracle
	Notifier events.Notifier
	Systems  config.Systems

	// ServiceGroup owns every aggregate record.
	ServiceGroup string

	// Principal is the identity the registry acts under for aggregate
	// reads and writes. It must be a member of ServiceGroup.
	Principal string

	Logger *zap.Logger
}

// Registry implements the project lifecycle operations.
type Registry struct {
	store        envelope.Store
	oracle       access.Oracle
	notifier     events.Notifier
	systems      config.Systems
	serviceGroup string
	principal    string
	logger       *zap.Logger
}

// New creates a registry. A nil Logger disables logging, a nil Notifier
// means every event is acknowledged.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var notifier events.Notifier = opts.Notifier
	if notifier == nil {
		notifier = events.Noop{}
	}
	return &Registry{
		store:        opts.Store,
		oracle:       opts.Oracle,
		notifier:     notifier,
		systems:      opts.Systems,
		serviceGroup: opts.ServiceGroup,
		principal:    opts.Principal,
		logger:       logger,
	}
}

// Create registers a new project from the raw creation payload and
// returns its stored representation.
func (r *Registry) Create(ctx context.Context, system, requester string, rawSpec []byte) (*project.Project, error) {
	if err := r.checkSystem(system); err != nil {
		return nil, err
	}
	if requester == "" {
		return nil, apperr.New(apperr.NotAuthenticated, "requester identity required")
	}
	if err := r.ensureServiceGroup(ctx); err != nil {
		return nil, err
	}

	proj, err := project.FromSpec(rawSpec)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "invalid project spec", err)
	}

	key := naming.ProjectKey(system, proj.Name)

	// Anonymous existence probe. A record that exists but is
	// access-restricted still means the name is taken.
	switch _, err := r.store.Fetch(ctx, key, ""); {
	case err == nil, errors.Is(err, envelope.ErrAccessDenied):
		return nil, apperr.Newf(apperr.Conflict, "project %q already exists", proj.Name)
	case errors.Is(err, envelope.ErrNotFound):
		// continue
	default:
		return nil, apperr.Wrap(apperr.Internal, "existence probe failed", err)
	}

	if err := r.authorizeGroup(ctx, proj.GroupID, requester); err != nil {
		return nil, err
	}

	// Dual write: singleton per-project record first, then the
	// aggregate. Nothing external has observed the project yet, so a
	// store failure here needs no compensation.
	single := project.NewContainer()
	single.Add(*proj)
	content, err := project.EncodeContainer(single)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "encode project record", err)
	}

	if _, err := r.store.Create(ctx, key, proj.GroupID, content); err != nil {
		if errors.Is(err, envelope.ErrExists) {
			return nil, apperr.Newf(apperr.Conflict, "project %q already exists", proj.Name)
		}
		return nil, apperr.Wrap(apperr.Internal, "create project record", err)
	}

	if err := r.updateAggregate(ctx, system, func(c *project.Container) {
		c.Add(*proj)
	}); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "update aggregate record", err)
	}

	if !r.notifier.Notify(ctx, system, events.KindCreated, proj) {
		r.compensateCreate(ctx, system, key, proj.Name, requester)
		return nil, apperr.New(apperr.Internal, "notification failed")
	}

	r.logger.Info("project created",
		append(logging.ContextFields(ctx),
			zap.String("system", system),
			zap.String("project", proj.Name),
			zap.String("group", proj.GroupID))...)
	return proj, nil
}

// compensateCreate undoes the dual write after a rejected creation
// event. Both undo steps are best effort; a project half-removed here is
// still invisible to the listener, which is the property being protected.
func (r *Registry) compensateCreate(ctx context.Context, system, key, name, requester string) {
	if err := r.store.Delete(ctx, key, requester); err != nil {
		r.logger.Warn("compensation: delete project record failed",
			append(logging.ContextFields(ctx),
				zap.String("system", system),
				zap.String("project", name),
				zap.Error(err))...)
	}
	if err := r.updateAggregate(ctx, system, func(c *project.Container) {
		c.Remove(name)
	}); err != nil {
		r.logger.Warn("compensation: aggregate removal failed",
			append(logging.ContextFields(ctx),
				zap.String("system", system),
				zap.String("project", name),
				zap.Error(err))...)
	}
}

// Delete removes a project. The deletion is not undone when the listener
// rejects the event; the caller still gets an Internal error so the
// desynchronization is visible.
func (r *Registry) Delete(ctx context.Context, system, requester, name string) error {
	if err := r.checkSystem(system); err != nil {
		return err
	}
	if requester == "" {
		return apperr.New(apperr.NotAuthenticated, "requester identity required")
	}
	if err := checkName(name); err != nil {
		return err
	}

	key := naming.ProjectKey(system, name)
	proj, _, err := r.fetchProject(ctx, key, name, requester)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, key, requester); err != nil {
		return apperr.Wrap(apperr.Internal, "delete project record", err)
	}

	if err := r.updateAggregate(ctx, system, func(c *project.Container) {
		c.Remove(name)
	}); err != nil {
		return apperr.Wrap(apperr.Internal, "update aggregate record", err)
	}

	if !r.notifier.Notify(ctx, system, events.KindDeleted, proj) {
		r.logger.Warn("deletion event not acknowledged",
			append(logging.ContextFields(ctx),
				zap.String("system", system),
				zap.String("project", name))...)
		return apperr.New(apperr.Internal, "notification failed")
	}

	r.logger.Info("project deleted",
		append(logging.ContextFields(ctx),
			zap.String("system", system),
			zap.String("project", name))...)
	return nil
}

// ChangeGroup rebinds a project to a new authorizing group. Both the
// per-project record content and the aggregate entry are rewritten; the
// per-project record's owner stays with the original group.
func (r *Registry) ChangeGroup(ctx context.Context, system, requester, name, newGroupID, newGroupName string) (*project.Project, error) {
	if err := r.checkSystem(system); err != nil {
		return nil, err
	}
	if requester == "" {
		return nil, apperr.New(apperr.NotAuthenticated, "requester identity required")
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	key := naming.ProjectKey(system, name)
	proj, env, err := r.fetchProject(ctx, key, name, requester)
	if err != nil {
		return nil, err
	}

	listEnv, err := r.store.Fetch(ctx, naming.ListKey(system), r.principal)
	if err != nil {
		if errors.Is(err, envelope.ErrNotFound) {
			return nil, apperr.Newf(apperr.InvalidInput, "system %q has no projects", system)
		}
		return nil, apperr.Wrap(apperr.Internal, "fetch aggregate record", err)
	}
	aggregate, err := project.DecodeContainer(listEnv.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode aggregate record", err)
	}
	current, ok := aggregate.Get(name)
	if !ok {
		return nil, apperr.Newf(apperr.InvalidInput, "system %q has no projects", system)
	}

	// Rebinding to the current group is an explicit success, not an
	// error and not a silent drop.
	if current.GroupID == newGroupID {
		return &current, nil
	}

	switch err := r.oracle.RequestGroupHandle(ctx, newGroupID, requester); {
	case err == nil:
	case errors.Is(err, access.ErrAccessDenied), errors.Is(err, access.ErrGroupNotFound):
		return nil, apperr.Newf(apperr.InvalidInput, "group %q not usable", newGroupID)
	default:
		return nil, apperr.Wrap(apperr.Internal, "authorize new group", err)
	}

	// Rewrite the singleton record first so a later metadata update,
	// which reads the project back from it, cannot revert the binding.
	proj.ChangeGroup(newGroupID, newGroupName)
	single := project.NewContainer()
	single.Add(*proj)
	content, err := project.EncodeContainer(single)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "encode project record", err)
	}
	if err := r.store.Put(ctx, env, content, requester); err != nil {
		if errors.Is(err, envelope.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "concurrent update, retry")
		}
		return nil, apperr.Wrap(apperr.Internal, "update project record", err)
	}

	current.ChangeGroup(newGroupID, newGroupName)
	if err := r.updateAggregate(ctx, system, func(c *project.Container) {
		c.Add(current)
	}); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "update aggregate record", err)
	}

	r.logger.Info("project group changed",
		append(logging.ContextFields(ctx),
			zap.String("system", system),
			zap.String("project", name),
			zap.String("group", newGroupID))...)
	return &current, nil
}

// ChangeMetadata replaces a project's metadata, guarded by a byte-exact
// optimistic check against the value the caller last read.
func (r *Registry) ChangeMetadata(ctx context.Context, system, requester, name string, oldMetadata, newMetadata json.RawMessage) (*project.Project, error) {
	if err := r.checkSystem(system); err != nil {
		return nil, err
	}
	if requester == "" {
		return nil, apperr.New(apperr.NotAuthenticated, "requester identity required")
	}

	if err := checkName(name); err != nil {
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(newMetadata, &obj); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "metadata is not a JSON object", err)
	}

	key := naming.ProjectKey(system, name)
	proj, env, err := r.fetchProject(ctx, key, name, requester)
	if err != nil {
		return nil, err
	}

	if !proj.MetadataEquals(oldMetadata) {
		return nil, apperr.New(apperr.Conflict, "stale metadata, reload")
	}

	proj.ChangeMetadata(newMetadata)
	single := project.NewContainer()
	single.Add(*proj)
	content, err := project.EncodeContainer(single)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "encode project record", err)
	}
	if err := r.store.Put(ctx, env, content, requester); err != nil {
		if errors.Is(err, envelope.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "stale metadata, reload")
		}
		return nil, apperr.Wrap(apperr.Internal, "update project record", err)
	}

	if err := r.updateAggregate(ctx, system, func(c *project.Container) {
		c.Add(*proj)
	}); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "update aggregate record", err)
	}

	return proj, nil
}

// List returns the projects of a system visible to the requester. A
// system with no aggregate record yet lists as empty.
func (r *Registry) List(ctx context.Context, system, requester string) ([]project.View, error) {
	if err := r.checkSystem(system); err != nil {
		return nil, err
	}

	env, err := r.store.Fetch(ctx, naming.ListKey(system), r.principal)
	if err != nil {
		if errors.Is(err, envelope.ErrNotFound) {
			return []project.View{}, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "fetch aggregate record", err)
	}
	aggregate, err := project.DecodeContainer(env.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode aggregate record", err)
	}

	showAll := r.systems.VisibilityOf(system) == config.VisibilityAll
	views := make([]project.View, 0, aggregate.Len())
	for _, p := range aggregate.All() {
		member, err := r.isMember(ctx, p.GroupID, requester)
		if err != nil {
			return nil, err
		}
		if member {
			views = append(views, project.View{Project: p, IsMember: true})
		} else if showAll {
			views = append(views, project.View{Project: p, IsMember: false})
		}
	}
	return views, nil
}

// Get returns a single project under the same visibility rule as List.
func (r *Registry) Get(ctx context.Context, system, requester, name string) (*project.View, error) {
	if err := r.checkSystem(system); err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	env, err := r.store.Fetch(ctx, naming.ListKey(system), r.principal)
	if err != nil {
		if errors.Is(err, envelope.ErrNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "project %q not found", name)
		}
		return nil, apperr.Wrap(apperr.Internal, "fetch aggregate record", err)
	}
	aggregate, err := project.DecodeContainer(env.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode aggregate record", err)
	}
	p, ok := aggregate.Get(name)
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "project %q not found", name)
	}

	member, err := r.isMember(ctx, p.GroupID, requester)
	if err != nil {
		return nil, err
	}
	if member {
		return &project.View{Project: p, IsMember: true}, nil
	}
	if r.systems.VisibilityOf(system) == config.VisibilityAll {
		return &project.View{Project: p, IsMember: false}, nil
	}
	return nil, apperr.Newf(apperr.NotAuthorized, "project %q not visible", name)
}

// HasAccess reports whether principal can reach the per-project record.
func (r *Registry) HasAccess(ctx context.Context, system, name, principal string) (bool, error) {
	if err := r.checkSystem(system); err != nil {
		return false, err
	}
	if err := checkName(name); err != nil {
		return false, err
	}

	switch _, err := r.store.Fetch(ctx, naming.ProjectKey(system, name), principal); {
	case err == nil:
		return true, nil
	case errors.Is(err, envelope.ErrAccessDenied), errors.Is(err, envelope.ErrNotFound):
		return false, nil
	default:
		return false, apperr.Wrap(apperr.Internal, "access probe failed", err)
	}
}

// checkSystem rejects systems absent from the configuration.
func (r *Registry) checkSystem(system string) error {
	if !r.systems.Valid(system) {
		return apperr.Newf(apperr.InvalidInput, "unknown system %q", system)
	}
	return nil
}

// checkName rejects names that cannot form a storage key.
func checkName(name string) error {
	if err := naming.ValidName(name); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid project name", err)
	}
	return nil
}

// ensureServiceGroup verifies the registry's own principal can reach the
// aggregate-owning group. Recovery is never attempted here; a broken
// bootstrap is repaired explicitly at startup or via the admin surface.
func (r *Registry) ensureServiceGroup(ctx context.Context) error {
	if err := r.oracle.RequestGroupHandle(ctx, r.serviceGroup, r.principal); err != nil {
		return apperr.Wrap(apperr.Internal, "service group unreachable", err)
	}
	return nil
}

// authorizeGroup maps the oracle's verdict on the linked group into the
// operation taxonomy.
func (r *Registry) authorizeGroup(ctx context.Context, groupID, requester string) error {
	switch err := r.oracle.RequestGroupHandle(ctx, groupID, requester); {
	case err == nil:
		return nil
	case errors.Is(err, access.ErrAccessDenied):
		return apperr.New(apperr.NotAuthorized, "not a group member")
	case errors.Is(err, access.ErrGroupNotFound):
		return apperr.Newf(apperr.InvalidInput, "group %q unknown", groupID)
	default:
		return apperr.Wrap(apperr.Internal, "group authorization failed", err)
	}
}

// isMember is the read-path membership probe. Unknown groups count as
// non-membership rather than an error so a stale aggregate entry cannot
// break listing.
func (r *Registry) isMember(ctx context.Context, groupID, requester string) (bool, error) {
	if requester == "" {
		return false, nil
	}
	switch err := r.oracle.RequestGroupHandle(ctx, groupID, requester); {
	case err == nil:
		return true, nil
	case errors.Is(err, access.ErrAccessDenied), errors.Is(err, access.ErrGroupNotFound):
		return false, nil
	default:
		return false, apperr.Wrap(apperr.Internal, "membership probe failed", err)
	}
}

// fetchProject loads the singleton per-project record as requester and
// returns the contained project together with its envelope.
func (r *Registry) fetchProject(ctx context.Context, key, name, requester string) (*project.Project, *envelope.Envelope, error) {
	env, err := r.store.Fetch(ctx, key, requester)
	if err != nil {
		switch {
		case errors.Is(err, envelope.ErrAccessDenied):
			return nil, nil, apperr.New(apperr.NotAuthorized, "not a group member")
		case errors.Is(err, envelope.ErrNotFound):
			return nil, nil, apperr.Newf(apperr.NotFound, "project %q not found", name)
		default:
			return nil, nil, apperr.Wrap(apperr.Internal, "fetch project record", err)
		}
	}

	c, err := project.DecodeContainer(env.Content)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "decode project record", err)
	}
	p, ok := c.Get(name)
	if !ok {
		return nil, nil, apperr.Wrap(apperr.Internal, "corrupt project record", project.ErrProjectNotPresent)
	}
	return &p, env, nil
}

// updateAggregate applies mutate to the per-system aggregate record under
// a revision compare-and-swap, retrying a bounded number of times. The
// record is created public-readable on first use; reads stay open while
// writes remain gated by the owning group.
func (r *Registry) updateAggregate(ctx context.Context, system string, mutate func(*project.Container)) error {
	key := naming.ListKey(system)

	for attempt := 0; attempt < aggregateRetries; attempt++ {
		env, err := r.store.Fetch(ctx, key, r.principal)
		if errors.Is(err, envelope.ErrNotFound) {
			c := project.NewContainer()
			mutate(c)
			content, err := project.EncodeContainer(c)
			if err != nil {
				return err
			}
			created, err := r.store.Create(ctx, key, r.serviceGroup, content)
			if errors.Is(err, envelope.ErrExists) {
				continue // lost the creation race, refetch
			}
			if err != nil {
				return fmt.Errorf("create aggregate record: %w", err)
			}
			if err := r.store.SetPublicReadable(ctx, created); err != nil {
				return fmt.Errorf("publish aggregate record: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch aggregate record: %w", err)
		}

		c, err := project.DecodeContainer(env.Content)
		if err != nil {
			return fmt.Errorf("decode aggregate record: %w", err)
		}
		mutate(c)
		content, err := project.EncodeContainer(c)
		if err != nil {
			return err
		}
		err = r.store.Put(ctx, env, content, r.principal)
		if errors.Is(err, envelope.ErrConflict) {
			continue // concurrent writer, refetch
		}
		if err != nil {
			return fmt.Errorf("write aggregate record: %w", err)
		}
		return nil
	}

	return fmt.Errorf("aggregate record for system %q: too much contention", system)
}
