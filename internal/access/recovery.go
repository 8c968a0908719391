package access

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Recovery restores the running principal's membership in the service
// group after the membership was lost (for example when the service was
// redeployed under a fresh agent identity).
//
// Recovery runs only where it is invoked explicitly — at startup or via
// the admin endpoint — never inline on a request path. Registry
// operations that cannot reach the service group fail instead of
// repairing themselves.
type Recovery interface {
	Recover(ctx context.Context) error
}

// LegacyCredentialRecovery repairs service-group membership using a
// configured legacy credential: unlock the legacy agent, obtain the
// service-group handle with it, then re-admit the running principal.
type LegacyCredentialRecovery struct {
	dir          Directory
	serviceGroup string
	principal    string
	legacyAgent  string
	passphrase   string
	logger       *zap.Logger

	// mu serializes concurrent recovery attempts.
	mu sync.Mutex
}

// NewLegacyCredentialRecovery creates the recovery strategy.
func NewLegacyCredentialRecovery(dir Directory, serviceGroup, principal, legacyAgent, passphrase string, logger *zap.Logger) *LegacyCredentialRecovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyCredentialRecovery{
		dir:          dir,
		serviceGroup: serviceGroup,
		principal:    principal,
		legacyAgent:  legacyAgent,
		passphrase:   passphrase,
		logger:       logger,
	}
}

// Recover implements Recovery. It is idempotent: when the running
// principal already holds the service-group handle, nothing is changed.
func (r *LegacyCredentialRecovery) Recover(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.dir.RequestGroupHandle(ctx, r.serviceGroup, r.principal); err == nil {
		r.logger.Debug("service group membership intact, skipping recovery",
			zap.String("group", r.serviceGroup))
		return nil
	}

	legacy, err := r.dir.UnlockAgent(ctx, r.legacyAgent, r.passphrase)
	if err != nil {
		return fmt.Errorf("unlock legacy agent: %w", err)
	}

	if err := r.dir.RequestGroupHandle(ctx, r.serviceGroup, legacy); err != nil {
		return fmt.Errorf("legacy agent cannot reach service group: %w", err)
	}

	if err := r.dir.AddMember(ctx, r.serviceGroup, r.principal, legacy); err != nil {
		return fmt.Errorf("re-admit principal to service group: %w", err)
	}

	r.logger.Info("service group membership recovered",
		zap.String("group", r.serviceGroup),
		zap.String("principal", r.principal))
	return nil
}
