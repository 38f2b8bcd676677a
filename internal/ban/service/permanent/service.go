// Package permanent runs the permanent-ban lifecycle: creating and lifting
// bans, and deciding at login whether an identity is denied.
package permanent

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"banguard/internal/ban/metrics"
	"banguard/internal/ban/models"
	"banguard/internal/ban/ports"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/platform/audit"
	"banguard/pkg/requestcontext"
)

// Store is the subset of the ban record store this engine uses.
type Store interface {
	Settings() models.Settings
	Bans() map[string]models.Ban
	FindBan(name string) (models.Ban, bool)
	PutBan(ctx context.Context, ban models.Ban) error
	SetBanActive(ctx context.Context, name string, active bool) error
	BackfillBan(ctx context.Context, name string, id models.Identity) error
	Subscribe(fn func())
}

// Guard refuses operations against protected names.
type Guard interface {
	Check(name string) error
}

type Service struct {
	store          Store
	guard          Guard
	gateway        ports.Gateway
	tempBans       ports.TempBanChecker
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics

	// writeMu is held from the state check of Ban and Unban through the
	// store write, so two commands on one name cannot both pass the check.
	writeMu sync.Mutex

	mu sync.RWMutex
	// active holds active records keyed by lower-cased name. The map is
	// replaced wholesale on reload and never mutated in place.
	active map[string]models.Ban
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithGateway lets the engine resolve identities of connected players and
// disconnect them once banned.
func WithGateway(gateway ports.Gateway) Option {
	return func(s *Service) {
		s.gateway = gateway
	}
}

// WithTempBans makes login checks fall through to the temporary-ban engine.
func WithTempBans(checker ports.TempBanChecker) Option {
	return func(s *Service) {
		s.tempBans = checker
	}
}

func New(store Store, guard Guard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ban store is required")
	}
	if guard == nil {
		return nil, errors.New("allow-list guard is required")
	}
	svc := &Service{
		store:  store,
		guard:  guard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.reload()
	store.Subscribe(svc.reload)
	return svc, nil
}

// reload rebuilds the active-record cache from the store.
func (s *Service) reload() {
	next := make(map[string]models.Ban)
	for _, ban := range s.store.Bans() {
		if ban.Active {
			next[strings.ToLower(ban.Name)] = ban
		}
	}
	s.mu.Lock()
	s.active = next
	s.mu.Unlock()
}

func (s *Service) snapshot() map[string]models.Ban {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// BanResult describes a ban that was just written.
type BanResult struct {
	Ban models.Ban
	// Warning is set when the duration argument was not taken literally.
	Warning string
	// Disconnected reports whether a live session was dropped.
	Disconnected bool
}

// Ban creates a ban on name. An empty reason uses the configured default; the
// duration grammar is described on models.ParseBanTerm.
func (s *Service) Ban(ctx context.Context, name, reason, duration string) (*BanResult, error) {
	name, err := models.ValidateName(name)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(name); err != nil {
		s.metrics.IncrementProtectedRefusals()
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventProtectedRefusal,
			"name", name,
			"operation", "ban",
		)
		return nil, err
	}

	s.writeMu.Lock()
	ban, term, connected, err := s.createLocked(ctx, name, reason, duration)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	result := &BanResult{Ban: ban.Clone(), Warning: term.Warning}
	if connected {
		if err := s.gateway.Disconnect(ctx, name, ban.DenialMessage()); err != nil {
			s.logger.WarnContext(ctx, "failed to disconnect banned player", "name", name, "error", err)
		} else {
			result.Disconnected = true
		}
	}
	return result, nil
}

// createLocked checks for a live ban on name and writes the new record.
// Callers hold s.writeMu.
func (s *Service) createLocked(ctx context.Context, name, reason, duration string) (*models.Ban, models.BanTerm, bool, error) {
	now := requestcontext.Now(ctx)
	if existing, ok := s.snapshot()[strings.ToLower(name)]; ok && existing.IsLiveAt(now) {
		return nil, models.BanTerm{}, false, dErrors.Newf(models.CodeAlreadyBanned, "%s is already banned (%s): %s",
			existing.Name, existing.TermLabel(), existing.Reason)
	}

	term := models.ParseBanTerm(duration, now)
	if term.Warning != "" {
		s.logger.WarnContext(ctx, "ban duration not understood, using fallback",
			"name", name,
			"duration", duration,
			"warning", term.Warning,
		)
	}

	if strings.TrimSpace(reason) == "" {
		reason = s.store.Settings().Defaults.BanReason
	}
	ban := models.NewBan(name, reason, now, term.End)

	connected := false
	if s.gateway != nil {
		if id, ok := s.gateway.CurrentIdentity(ctx, name); ok {
			ban.Backfill(id)
			connected = true
		}
	}
	if !connected {
		s.logger.InfoContext(ctx, "player offline, identity keys will be filled at next login", "name", name)
	}

	if err := s.store.PutBan(ctx, *ban); err != nil {
		return nil, models.BanTerm{}, false, persistenceError(err)
	}
	s.metrics.IncrementBansCreated()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBanCreated,
		"name", name,
		"reason", reason,
		"term", ban.TermLabel(),
	)
	return ban, term, connected, nil
}

// Unban lifts the ban on name. The record stays on disk with its state set
// to inactive.
func (s *Service) Unban(ctx context.Context, name string) error {
	name, err := models.ValidateName(name)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, ok := s.store.FindBan(name)
	if !ok {
		return dErrors.Newf(models.CodeNoSuchBan, "%s has never been banned", name)
	}
	if !existing.Active {
		return dErrors.Newf(models.CodeAlreadyUnbanned, "%s has already been unbanned", existing.Name)
	}

	if err := s.store.SetBanActive(ctx, existing.Name, false); err != nil {
		return persistenceError(err)
	}
	s.metrics.IncrementBansLifted()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBanLifted,
		"name", existing.Name,
		"reason", existing.Reason,
	)
	return nil
}

// IsDenied decides whether id may log in and returns the message to show
// when it may not. A name match wins over account id and address matches;
// a name match also fills identity keys the record does not have yet.
func (s *Service) IsDenied(ctx context.Context, id models.Identity) (bool, string) {
	now := requestcontext.Now(ctx)
	active := s.snapshot()

	if ban, ok := active[strings.ToLower(strings.TrimSpace(id.Name))]; ok && ban.IsLiveAt(now) {
		if ban.NeedsBackfill(id) {
			s.backfill(ctx, ban, id)
		}
		s.denied(ctx, id, metrics.DenialName, ban.Reason)
		return true, ban.DenialMessage()
	}

	for _, ban := range active {
		if !ban.IsLiveAt(now) || !ban.MatchesKeys(id) {
			continue
		}
		kind := metrics.DenialAddress
		if ban.AccountID != nil && *ban.AccountID == id.AccountID {
			kind = metrics.DenialAccountID
		}
		s.denied(ctx, id, kind, ban.Reason)
		return true, ban.DenialMessage()
	}

	if s.tempBans != nil {
		if denied, message := s.tempBans.CheckLogin(ctx, id); denied {
			s.denied(ctx, id, metrics.DenialTempBan, "")
			return true, message
		}
	}
	return false, ""
}

// backfill records identity keys seen at login. A failed write is logged and
// the login is still denied on the name match.
func (s *Service) backfill(ctx context.Context, ban models.Ban, id models.Identity) {
	if err := s.store.BackfillBan(ctx, ban.Name, id); err != nil {
		s.logger.WarnContext(ctx, "failed to backfill ban identity", "name", ban.Name, "error", err)
		return
	}
	s.metrics.IncrementIdentityBackfills()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBanBackfilled,
		"name", ban.Name,
	)
}

func (s *Service) denied(ctx context.Context, id models.Identity, kind, reason string) {
	s.metrics.IncrementLoginDenials(kind)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventLoginDenied,
		"name", id.Name,
		"reason", reason,
		"matched_by", kind,
	)
}

// ListBannedNames returns the names of live bans, sorted.
func (s *Service) ListBannedNames(ctx context.Context) []string {
	now := requestcontext.Now(ctx)
	var names []string
	for _, ban := range s.snapshot() {
		if ban.IsLiveAt(now) {
			names = append(names, ban.Name)
		}
	}
	slices.Sort(names)
	return names
}

// Lookup returns the live ban on name, if any.
func (s *Service) Lookup(ctx context.Context, name string) (models.Ban, bool) {
	ban, ok := s.snapshot()[strings.ToLower(strings.TrimSpace(name))]
	if !ok || !ban.IsLiveAt(requestcontext.Now(ctx)) {
		return models.Ban{}, false
	}
	return ban.Clone(), true
}

// persistenceError keeps coded store errors and marks anything else as a
// failed write.
func persistenceError(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return models.ErrPersistence(err)
}
