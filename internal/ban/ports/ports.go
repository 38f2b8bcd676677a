// Package ports defines the interfaces the ban engines consume.
// Interfaces live here when more than one engine needs them.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"

	"banguard/internal/ban/models"
	"banguard/pkg/platform/audit"
	"banguard/pkg/requestcontext"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Gateway is the network gateway that owns player sessions.
type Gateway interface {
	// CurrentIdentity returns the identity of a connected player; ok is false
	// when no session with that name exists.
	CurrentIdentity(ctx context.Context, name string) (identity models.Identity, ok bool)

	// IsConnected reports whether a session with that name exists.
	IsConnected(ctx context.Context, name string) bool

	// Disconnect drops the named session, showing message to the player.
	Disconnect(ctx context.Context, name, message string) error
}

// TempBanChecker answers whether a connecting identity is held by an active
// temporary ban. The permanent engine consults it after its own tables.
type TempBanChecker interface {
	CheckLogin(ctx context.Context, id models.Identity) (denied bool, message string)
}

// LogAudit logs an audit event to the structured logger and forwards it to the
// publisher when one is configured.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	actor := requestcontext.Actor(ctx)
	if actor != "" {
		attrs = append(attrs, "actor", actor)
	}

	args := append(attrs, "event", string(event), "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Category:  categoryOf(event),
		Timestamp: requestcontext.Now(ctx),
		Subject:   extractString(attrs, "name"),
		Action:    string(event),
		Reason:    extractString(attrs, "reason"),
		ActorID:   actor,
		RequestID: requestID,
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func categoryOf(event audit.AuditEvent) audit.EventCategory {
	switch event {
	case audit.EventStoreRecovered, audit.EventConfigReloaded, audit.EventTempBanExpired:
		return audit.CategoryOperations
	default:
		return audit.CategorySecurity
	}
}

// extractString reads a string value from a key-value attribute slice.
func extractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
