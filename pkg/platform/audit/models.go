package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategorySecurity covers denials and the operator actions that create or
	// lift them.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers housekeeping such as sweeps and store repair.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// Subject is the player name the action was about.
	Subject string
	Action  string
	Reason  string
	// ActorID tracks the operator who performed the action, when known.
	ActorID   string
	RequestID string
}

type AuditEvent string

const (
	EventBanCreated       AuditEvent = "ban_created"
	EventBanLifted        AuditEvent = "ban_lifted"
	EventBanBackfilled    AuditEvent = "ban_identity_backfilled"
	EventLoginDenied      AuditEvent = "login_denied"
	EventPlayerKicked     AuditEvent = "player_kicked"
	EventTempBanPending   AuditEvent = "tempban_pending"
	EventTempBanApplied   AuditEvent = "tempban_applied"
	EventTempBanReleased  AuditEvent = "tempban_released"
	EventTempBanExpired   AuditEvent = "tempban_expired"
	EventProtectedRefusal AuditEvent = "protected_target_refused"
	EventStoreRecovered   AuditEvent = "store_recovered"
	EventConfigReloaded   AuditEvent = "config_reloaded"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
