// Package notify declares the notification and audit collaborators invoked
// after a mutation persists. Both are fire-and-forget: implementations must
// swallow their own failures, since a persisted mutation is never rolled
// back because a downstream dispatch failed.
package notify

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/vaultkeep/vaultkeep/internal/model"
)

// Notifier pushes sync hints to client devices. Fan-out to individual
// devices is the implementation's concern.
type Notifier interface {
	// SendCipherUpdate notifies every affected user about one cipher change.
	SendCipherUpdate(ctx context.Context, kind model.ChangeKind, c *model.Cipher, userIDs []uuid.UUID, device model.Device, collectionIDs []uuid.UUID)

	// SendUserUpdate notifies a single user that their whole vault changed.
	SendUserUpdate(ctx context.Context, kind model.ChangeKind, userID uuid.UUID, devicePushID *string)
}

// EventLogger records audit events. Called only for organization-owned ciphers.
type EventLogger interface {
	LogEvent(ctx context.Context, e model.Event)
}

// LogNotifier is a Notifier that only logs. It stands in when no push
// gateway is configured.
type LogNotifier struct{ log *zap.Logger }

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) SendCipherUpdate(_ context.Context, kind model.ChangeKind, c *model.Cipher, userIDs []uuid.UUID, device model.Device, collectionIDs []uuid.UUID) {
	n.log.Debug("cipher update",
		zap.Int32("kind", int32(kind)),
		zap.String("cipher", c.ID.String()),
		zap.Int("users", len(userIDs)),
		zap.String("device", device.ID.String()),
		zap.Int("collections", len(collectionIDs)),
	)
}

func (n *LogNotifier) SendUserUpdate(_ context.Context, kind model.ChangeKind, userID uuid.UUID, _ *string) {
	n.log.Debug("user update",
		zap.Int32("kind", int32(kind)),
		zap.String("user", userID.String()),
	)
}

// LogEventLogger is an EventLogger that only logs.
type LogEventLogger struct{ log *zap.Logger }

// NewLogEventLogger constructs a LogEventLogger.
func NewLogEventLogger(log *zap.Logger) *LogEventLogger { return &LogEventLogger{log: log} }

func (l *LogEventLogger) LogEvent(_ context.Context, e model.Event) {
	l.log.Info("event",
		zap.Int32("type", int32(e.Kind)),
		zap.String("subject", e.SubjectID),
		zap.String("org", e.OrganizationID.String()),
		zap.String("actor", e.ActorUserID.String()),
		zap.String("ip", e.ActorIP),
	)
}
