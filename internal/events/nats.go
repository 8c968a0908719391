package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// DefaultAckTimeout bounds how long a listener may take to acknowledge.
const DefaultAckTimeout = 5 * time.Second

// ack is the reply payload a listener sends back.
type ack struct {
	OK bool `json:"ok"`
}

// NATSNotifier delivers events as NATS requests and waits for the
// listener's acknowledgment. No reply within the timeout, a transport
// error, or a negative ack all count as failed delivery.
type NATSNotifier struct {
	nc      *nats.Conn
	timeout time.Duration
	logger  *zap.Logger
}

// NewNATSNotifier creates a notifier on an existing connection.
func NewNATSNotifier(nc *nats.Conn, timeout time.Duration, logger *zap.Logger) *NATSNotifier {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{nc: nc, timeout: timeout, logger: logger}
}

// Subject returns the request subject for a system and event kind.
func Subject(system string, kind Kind) string {
	return fmt.Sprintf("projects.events.%s.%s", system, kind)
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	payload, err := json.Marshal(proj)
	if err != nil {
		n.logger.Error("encode event payload", zap.Error(err))
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg, err := n.nc.RequestWithContext(reqCtx, Subject(system, kind), payload)
	if err != nil {
		n.logger.Warn("event listener did not acknowledge",
			zap.String("system", system),
			zap.String("kind", string(kind)),
			zap.String("project", proj.Name),
			zap.Error(err))
		return false
	}

	var a ack
	if err := json.Unmarshal(msg.Data, &a); err != nil || !a.OK {
		n.logger.Warn("event listener rejected event",
			zap.String("system", system),
			zap.String("kind", string(kind)),
			zap.String("project", proj.Name),
			zap.ByteString("reply", msg.Data))
		return false
	}
	return true
}
