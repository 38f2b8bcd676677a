// Package console is the operator command surface over the ban engines.
// Every method returns a message for the operator or a coded error carrying
// one; nothing panics past this package.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"banguard/internal/ban/allowlist"
	"banguard/internal/ban/models"
	"banguard/internal/ban/ports"
	"banguard/internal/ban/service/permanent"
	"banguard/internal/ban/service/temporary"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/platform/audit"
)

// Reloader re-reads the data file and publishes it to every subscriber.
type Reloader interface {
	Load(ctx context.Context) error
	Settings() models.Settings
}

type Console struct {
	bans           *permanent.Service
	tempBans       *temporary.Service
	guard          *allowlist.Guard
	store          Reloader
	gateway        ports.Gateway
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Console)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(c *Console) {
		c.auditPublisher = publisher
	}
}

// WithGateway enables Kick.
func WithGateway(gateway ports.Gateway) Option {
	return func(c *Console) {
		c.gateway = gateway
	}
}

func New(bans *permanent.Service, tempBans *temporary.Service, guard *allowlist.Guard, store Reloader, opts ...Option) (*Console, error) {
	if bans == nil || tempBans == nil {
		return nil, errors.New("ban engines are required")
	}
	if guard == nil {
		return nil, errors.New("allow-list guard is required")
	}
	if store == nil {
		return nil, errors.New("ban store is required")
	}
	c := &Console{
		bans:     bans,
		tempBans: tempBans,
		guard:    guard,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// run executes fn and turns a panic into a CodeInternal error.
func (c *Console) run(ctx context.Context, op string, fn func() (string, error)) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "command panicked", "command", op, "panic", r)
			message = ""
			err = dErrors.Newf(dErrors.CodeInternal, "%s failed unexpectedly, check the server log", op)
		}
	}()
	return fn()
}

func (c *Console) Ban(ctx context.Context, name, reason, duration string) (string, error) {
	return c.run(ctx, "ban", func() (string, error) {
		result, err := c.bans.Ban(ctx, name, reason, duration)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("Banned %s (%s): %s", result.Ban.Name, result.Ban.TermLabel(), result.Ban.Reason)
		if result.Warning != "" {
			msg += " [" + result.Warning + "]"
		}
		return msg, nil
	})
}

func (c *Console) Unban(ctx context.Context, name string) (string, error) {
	return c.run(ctx, "unban", func() (string, error) {
		if err := c.bans.Unban(ctx, name); err != nil {
			return "", err
		}
		return "Unbanned " + strings.TrimSpace(name), nil
	})
}

// Kick disconnects a connected player without recording a ban.
func (c *Console) Kick(ctx context.Context, name, reason string) (string, error) {
	return c.run(ctx, "kick", func() (string, error) {
		name, err := models.ValidateName(name)
		if err != nil {
			return "", err
		}
		if err := c.guard.Check(name); err != nil {
			ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.EventProtectedRefusal,
				"name", name,
				"operation", "kick",
			)
			return "", err
		}
		if c.gateway == nil || !c.gateway.IsConnected(ctx, name) {
			return "", dErrors.Newf(models.CodeNotConnected, "%s is not online", name)
		}
		if strings.TrimSpace(reason) == "" {
			reason = c.store.Settings().Defaults.KickReason
		}
		if err := c.gateway.Disconnect(ctx, name, reason); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to kick "+name)
		}
		ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.EventPlayerKicked,
			"name", name,
			"reason", reason,
		)
		return fmt.Sprintf("Kicked %s: %s", name, reason), nil
	})
}

// TempBan runs one step of the confirmation protocol. applied is false while
// the request is waiting for confirmation.
func (c *Console) TempBan(ctx context.Context, admin, name, reason string) (message string, applied bool, err error) {
	message, err = c.run(ctx, "tempban", func() (string, error) {
		result, err := c.tempBans.Request(ctx, admin, name, reason)
		if err != nil {
			return "", err
		}
		applied = result.State == temporary.StateApplied
		return result.Message, nil
	})
	return message, applied, err
}

func (c *Console) ReleaseTempBan(ctx context.Context, name string) (string, error) {
	return c.run(ctx, "release", func() (string, error) {
		if err := c.tempBans.Release(ctx, name); err != nil {
			return "", err
		}
		return "Released temporary ban on " + strings.TrimSpace(name), nil
	})
}

// Reload re-reads the data file; engines and the allow list follow.
func (c *Console) Reload(ctx context.Context) (string, error) {
	return c.run(ctx, "reload", func() (string, error) {
		if err := c.store.Load(ctx); err != nil {
			return "", dErrors.Wrap(err, models.CodePersistenceIO, "failed to reload ban data")
		}
		ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.EventConfigReloaded)
		return "Reloaded ban data", nil
	})
}

func (c *Console) ListBanned(ctx context.Context) []string {
	return c.bans.ListBannedNames(ctx)
}

func (c *Console) ListTempBanned(ctx context.Context) []string {
	return c.tempBans.ListActiveNames(ctx)
}

func (c *Console) IsProtected(name string) bool {
	return c.guard.IsProtected(strings.TrimSpace(name))
}

// Login is the gateway's gate: it reports whether id is denied and the
// message to show when it is.
func (c *Console) Login(ctx context.Context, id models.Identity) (denied bool, message string) {
	return c.bans.IsDenied(ctx, id)
}
