// Package temporary runs soft bans: short fixed-length bans that only take
// effect after the same operator issues the same request twice within the
// confirmation window.
package temporary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"banguard/internal/ban/metrics"
	"banguard/internal/ban/models"
	"banguard/internal/ban/ports"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/platform/audit"
	"banguard/pkg/platform/sentinel"
	"banguard/pkg/requestcontext"
)

// Store is the subset of the ban record store this engine uses.
type Store interface {
	Settings() models.Settings
	TempBans() map[string]models.TempBan
	PutTempBan(ctx context.Context, ban models.TempBan) error
	SetTempBanActive(ctx context.Context, name string, active bool) error
	DeactivateExpiredTempBans(ctx context.Context, now time.Time) ([]string, error)
	Subscribe(fn func())
}

// Guard refuses operations against protected names.
type Guard interface {
	Check(name string) error
}

// State is the outcome of a request.
type State string

const (
	StatePending State = "pending"
	StateApplied State = "applied"
)

// RequestResult is returned by Request. TempBan is set once applied.
type RequestResult struct {
	State   State
	Message string
	TempBan *models.TempBan
}

// SweepResult reports what one sweep cleaned up.
type SweepResult struct {
	EvictedPending int
	Expired        []string
}

// pendingKey identifies a confirmation by operator and lower-cased target.
type pendingKey struct {
	admin  string
	target string
}

type pendingConfirmation struct {
	reason   string
	expireAt time.Time
	timer    *time.Timer
}

type Service struct {
	store          Store
	guard          Guard
	gateway        ports.Gateway
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics

	// mu serializes requests, releases and sweeps and guards pending.
	mu      sync.Mutex
	pending map[pendingKey]*pendingConfirmation
	closed  bool

	cacheMu sync.RWMutex
	active  map[string]models.TempBan
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
// disconnect them once the ban applies.
func WithGateway(gateway ports.Gateway) Option {
	return func(s *Service) {
		s.gateway = gateway
	}
}

func New(store Store, guard Guard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("temporary ban store is required")
	}
	if guard == nil {
		return nil, errors.New("allow-list guard is required")
	}
	svc := &Service{
		store:   store,
		guard:   guard,
		logger:  slog.Default(),
		pending: make(map[pendingKey]*pendingConfirmation),
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.reload()
	store.Subscribe(svc.reload)
	return svc, nil
}

func (s *Service) reload() {
	next := make(map[string]models.TempBan)
	for _, ban := range s.store.TempBans() {
		if ban.Active {
			next[strings.ToLower(ban.Name)] = ban
		}
	}
	s.cacheMu.Lock()
	s.active = next
	s.cacheMu.Unlock()
}

func (s *Service) snapshot() map[string]models.TempBan {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.active
}

// Request is both halves of the confirmation protocol. The first call from
// an operator for a target records a pending confirmation and returns the
// prompt; a second call from the same operator before the window closes
// applies the ban with the reason captured by the first call.
func (s *Service) Request(ctx context.Context, adminID, target, reason string) (*RequestResult, error) {
	target, err := models.ValidateName(target)
	if err != nil {
		return nil, err
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "operator id is required")
	}
	if err := s.guard.Check(target); err != nil {
		s.metrics.IncrementProtectedRefusals()
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventProtectedRefusal,
			"name", target,
			"operation", "tempban",
		)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	key := pendingKey{admin: adminID, target: strings.ToLower(target)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("temporary ban engine: %w", sentinel.ErrUnavailable)
	}

	if existing, ok := s.live(target, now); ok {
		if p, ok := s.pending[key]; ok {
			s.dropPendingLocked(key, p)
		}
		return nil, dErrors.Newf(models.CodeAlreadyTempBanned, "%s is already temporarily banned, remaining %s",
			existing.Name, models.FormatRemaining(existing.Remaining(now)))
	}

	if p, ok := s.pending[key]; ok {
		s.dropPendingLocked(key, p)
		if !now.After(p.expireAt) {
			return s.applyLocked(ctx, adminID, target, p.reason, now)
		}
	}
	return s.startPendingLocked(ctx, key, target, reason, now), nil
}

func (s *Service) startPendingLocked(ctx context.Context, key pendingKey, target, reason string, now time.Time) *RequestResult {
	settings := s.store.Settings()
	if strings.TrimSpace(reason) == "" {
		reason = settings.Defaults.TempBanReason
	}
	timeout := settings.TempBan.ConfirmationTimeout

	p := &pendingConfirmation{reason: reason, expireAt: now.Add(timeout)}
	p.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending[key] == p {
			s.dropPendingLocked(key, p)
		}
	})
	s.pending[key] = p
	s.metrics.SetTempBansPending(len(s.pending))

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventTempBanPending,
		"name", target,
		"reason", reason,
		"admin", key.admin,
		"expire_at", p.expireAt,
	)
	return &RequestResult{State: StatePending, Message: settings.TempBan.ConfirmationMessage}
}

func (s *Service) applyLocked(ctx context.Context, adminID, target, reason string, now time.Time) (*RequestResult, error) {
	settings := s.store.Settings()
	ban := models.NewTempBan(target, reason, now, settings.TempBan.Duration)

	connected := false
	if s.gateway != nil {
		if id, ok := s.gateway.CurrentIdentity(ctx, target); ok {
			ban.Backfill(id)
			connected = true
		}
	}

	if err := s.store.PutTempBan(ctx, *ban); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, models.ErrPersistence(err)
	}
	s.metrics.IncrementTempBansApplied()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventTempBanApplied,
		"name", target,
		"reason", reason,
		"admin", adminID,
		"end_time", ban.EndTime,
	)

	if connected {
		if err := s.gateway.Disconnect(ctx, target, ban.DenialMessage(now)); err != nil {
			s.logger.WarnContext(ctx, "failed to disconnect temporarily banned player", "name", target, "error", err)
		}
	}

	applied := ban.Clone()
	return &RequestResult{
		State:   StateApplied,
		Message: fmt.Sprintf("%s has been temporarily banned for %d minutes", target, int(settings.TempBan.Duration/time.Minute)),
		TempBan: &applied,
	}, nil
}

func (s *Service) dropPendingLocked(key pendingKey, p *pendingConfirmation) {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.pending, key)
	s.metrics.SetTempBansPending(len(s.pending))
}

// PendingCount returns the number of confirmations waiting for a second
// request.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Release ends an active temporary ban early.
func (s *Service) Release(ctx context.Context, target string) error {
	target, err := models.ValidateName(target)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.live(target, now)
	if !ok {
		return dErrors.Newf(models.CodeNoActiveTempBan, "%s has no active temporary ban", target)
	}
	if err := s.store.SetTempBanActive(ctx, existing.Name, false); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return models.ErrPersistence(err)
	}
	s.metrics.IncrementTempBansReleased()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventTempBanReleased,
		"name", existing.Name,
		"reason", existing.Reason,
	)
	return nil
}

func (s *Service) live(name string, now time.Time) (models.TempBan, bool) {
	ban, ok := s.snapshot()[strings.ToLower(name)]
	if !ok || !ban.IsLiveAt(now) {
		return models.TempBan{}, false
	}
	return ban, true
}

// Lookup finds the live temporary ban matching id: by name first, then by a
// known account id or address.
func (s *Service) Lookup(ctx context.Context, id models.Identity) (models.TempBan, bool) {
	now := requestcontext.Now(ctx)
	if ban, ok := s.live(strings.TrimSpace(id.Name), now); ok {
		return ban.Clone(), true
	}
	for _, ban := range s.snapshot() {
		if ban.IsLiveAt(now) && ban.MatchesKeys(id) {
			return ban.Clone(), true
		}
	}
	return models.TempBan{}, false
}

func (s *Service) IsActive(ctx context.Context, id models.Identity) bool {
	_, ok := s.Lookup(ctx, id)
	return ok
}

// CheckLogin implements ports.TempBanChecker.
func (s *Service) CheckLogin(ctx context.Context, id models.Identity) (bool, string) {
	ban, ok := s.Lookup(ctx, id)
	if !ok {
		return false, ""
	}
	return true, ban.DenialMessage(requestcontext.Now(ctx))
}

// ListActiveNames returns the names of live temporary bans, sorted.
func (s *Service) ListActiveNames(ctx context.Context) []string {
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

// Sweep evicts expired pending confirmations and deactivates expired
// temporary bans in one store write.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var result SweepResult
	for key, p := range s.pending {
		if now.After(p.expireAt) {
			s.dropPendingLocked(key, p)
			result.EvictedPending++
		}
	}

	expired, err := s.store.DeactivateExpiredTempBans(ctx, now)
	if err != nil {
		return result, err
	}
	result.Expired = expired
	s.metrics.AddTempBansExpired(len(expired))
	for _, name := range expired {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventTempBanExpired, "name", name)
	}
	return result, nil
}

// StartCleanup sweeps every interval until ctx is cancelled. A failed sweep
// is logged and retried on the next tick.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "temporary ban sweep failed", "error", err)
				continue
			}
			if result.EvictedPending > 0 || len(result.Expired) > 0 {
				s.logger.InfoContext(ctx, "temporary ban sweep",
					"evicted_pending", result.EvictedPending,
					"expired", len(result.Expired),
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops pending confirmation timers. Later requests fail with
// sentinel.ErrUnavailable.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pending {
		s.dropPendingLocked(key, p)
	}
	s.closed = true
}
