// Package store persists ban records and engine settings in a single YAML
// document. Every mutation is a read-modify-write of the whole file under one
// lock, followed by a reload, so the in-memory view always mirrors what is on
// disk.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"banguard/internal/ban/metrics"
	"banguard/internal/ban/models"
	"banguard/internal/ban/ports"
	"banguard/pkg/platform/audit"
	"banguard/pkg/platform/fsutil"
	"banguard/pkg/platform/sentinel"
)

const filePerm = 0o644

// errNoChange lets a mutation skip the write when it had nothing to do.
var errNoChange = errors.New("no change")

// errUnbackedDamage blocks writes over a damaged file that could not be
// backed up.
var errUnbackedDamage = errors.New("data file is damaged and could not be backed up; fix or move it, then reload")

// snapshot is the decoded content of the data file. It is never modified
// after publication.
type snapshot struct {
	settings models.Settings
	bans     map[string]models.Ban
	tempBans map[string]models.TempBan
}

// Store is the file-backed ban record store.
type Store struct {
	path           string
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
	tracer         trace.Tracer
	clock          func() time.Time
	backup         func(path string, now time.Time) (string, error)

	// mu serializes loads and read-modify-write cycles.
	mu          sync.Mutex
	closed      bool
	fingerprint [32]byte

	snapMu sync.RWMutex
	snap   *snapshot

	listenersMu sync.Mutex
	listeners   []func()
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Store) {
		s.auditPublisher = publisher
	}
}

// WithTracer replaces the global otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithClock sets the clock used to name backup files.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open creates a store over path and performs the initial load. A missing
// file is created from the default skeleton; a damaged one is backed up and
// repaired. Only I/O failures are returned.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("data file path is required")
	}
	s := &Store{
		path:   path,
		logger: slog.Default(),
		tracer: otel.Tracer("banguard/internal/ban/store"),
		clock:  time.Now,
		backup: backup,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the data file location.
func (s *Store) Path() string {
	return s.path
}

// Subscribe registers fn to run after every successful load or write. fn runs
// outside the store lock and may read from the store.
func (s *Store) Subscribe(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Load re-reads the data file and republishes records and settings.
func (s *Store) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.Load")
	defer span.End()

	s.mu.Lock()
	err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	s.notify()
	return nil
}

// ReloadIfChanged loads the file only when its content differs from what the
// store last read or wrote. It reports whether a load happened.
func (s *Store) ReloadIfChanged(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read data file: %w", err)
	}
	s.mu.Lock()
	unchanged := err == nil && blake3.Sum256(data) == s.fingerprint
	s.mu.Unlock()
	if unchanged {
		return false, nil
	}
	if err := s.Load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close stops the store. Later loads and writes fail with
// sentinel.ErrUnavailable; reads keep serving the last snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Settings returns the engine settings from the last load.
func (s *Store) Settings() models.Settings {
	return s.current().settings.Clone()
}

// Bans returns a copy of every permanent-class record keyed by name.
func (s *Store) Bans() map[string]models.Ban {
	snap := s.current()
	out := make(map[string]models.Ban, len(snap.bans))
	for name, b := range snap.bans {
		out[name] = b.Clone()
	}
	return out
}

// TempBans returns a copy of every temporary record keyed by name.
func (s *Store) TempBans() map[string]models.TempBan {
	snap := s.current()
	out := make(map[string]models.TempBan, len(snap.tempBans))
	for name, t := range snap.tempBans {
		out[name] = t.Clone()
	}
	return out
}

// FindBan looks a permanent-class record up by name, ignoring case. When
// several case variants are stored, the exact spelling wins, then an active
// record, then the lowest name.
func (s *Store) FindBan(name string) (models.Ban, bool) {
	bans := s.current().bans
	key, ok := matchKey(foldMatches(bans, name), name, func(key string) bool { return bans[key].Active })
	if !ok {
		return models.Ban{}, false
	}
	return bans[key].Clone(), true
}

// FindTempBan looks a temporary record up by name, ignoring case, with the
// same precedence as FindBan.
func (s *Store) FindTempBan(name string) (models.TempBan, bool) {
	tempBans := s.current().tempBans
	key, ok := matchKey(foldMatches(tempBans, name), name, func(key string) bool { return tempBans[key].Active })
	if !ok {
		return models.TempBan{}, false
	}
	return tempBans[key].Clone(), true
}

func foldMatches[V any](records map[string]V, name string) []string {
	var keys []string
	for key := range records {
		if strings.EqualFold(key, name) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Store) current() *snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	if s.snap == nil {
		return &snapshot{settings: models.DefaultSettings()}
	}
	return s.snap
}

// PutBan writes b, replacing any record with the same name. An existing
// record keeps its stored name spelling.
func (s *Store) PutBan(ctx context.Context, b models.Ban) error {
	return s.mutate(ctx, "PutBan", b.Name, func(root *yaml.Node) error {
		bans := ensureMapping(root, sectionBans)
		if key, ok := findKey(bans, b.Name); ok {
			b.Name = key
		}
		set(bans, b.Name, encodeBan(b))
		return nil
	})
}

// SetBanActive flips the state of an existing permanent-class record.
func (s *Store) SetBanActive(ctx context.Context, name string, active bool) error {
	return s.mutate(ctx, "SetBanActive", name, func(root *yaml.Node) error {
		return setState(root, sectionBans, name, active)
	})
}

// BackfillBan fills still-unknown identity keys of a record from id. Keys
// already on disk are never overwritten.
func (s *Store) BackfillBan(ctx context.Context, name string, id models.Identity) error {
	return s.mutate(ctx, "BackfillBan", name, func(root *yaml.Node) error {
		bans := lookup(root, sectionBans)
		key, ok := findKey(bans, name)
		if !ok {
			return fmt.Errorf("ban %q: %w", name, sentinel.ErrNotFound)
		}
		record := lookup(bans, key)
		if record == nil || record.Kind != yaml.MappingNode {
			return fmt.Errorf("ban %q: %w", name, sentinel.ErrInvalidState)
		}
		changed := false
		if _, known := scalarString(lookup(record, fieldAccountID)); !known && id.AccountID != "" {
			set(record, fieldAccountID, strNode(id.AccountID))
			changed = true
		}
		if _, known := scalarString(lookup(record, fieldAddress)); !known && id.Address != "" {
			set(record, fieldAddress, strNode(id.Address))
			changed = true
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
}

// PutTempBan writes t, replacing any temporary record with the same name.
func (s *Store) PutTempBan(ctx context.Context, t models.TempBan) error {
	return s.mutate(ctx, "PutTempBan", t.Name, func(root *yaml.Node) error {
		tempBans := ensureMapping(root, sectionTempBans)
		if key, ok := findKey(tempBans, t.Name); ok {
			t.Name = key
		}
		set(tempBans, t.Name, encodeTempBan(t))
		return nil
	})
}

// SetTempBanActive flips the state of an existing temporary record.
func (s *Store) SetTempBanActive(ctx context.Context, name string, active bool) error {
	return s.mutate(ctx, "SetTempBanActive", name, func(root *yaml.Node) error {
		return setState(root, sectionTempBans, name, active)
	})
}

// DeactivateExpiredTempBans marks every active temporary record whose end is
// before now as inactive in a single write and returns their names.
func (s *Store) DeactivateExpiredTempBans(ctx context.Context, now time.Time) ([]string, error) {
	var expired []string
	err := s.mutate(ctx, "DeactivateExpiredTempBans", "", func(root *yaml.Node) error {
		expired = expired[:0]
		section := lookup(root, sectionTempBans)
		if section == nil || section.Kind != yaml.MappingNode {
			return errNoChange
		}
		for i := 0; i+1 < len(section.Content); i += 2 {
			name, record := section.Content[i].Value, section.Content[i+1]
			rec, err := decodeRecord(name, record)
			if err != nil || !rec.active || rec.end == nil || !rec.end.Before(now) {
				continue
			}
			set(record, fieldState, boolNode(false))
			expired = append(expired, name)
		}
		if len(expired) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func setState(root *yaml.Node, section, name string, active bool) error {
	records := lookup(root, section)
	key, ok := findKey(records, name)
	if !ok {
		return fmt.Errorf("%s record %q: %w", section, name, sentinel.ErrNotFound)
	}
	record := lookup(records, key)
	if record == nil || record.Kind != yaml.MappingNode {
		return fmt.Errorf("%s record %q: %w", section, name, sentinel.ErrInvalidState)
	}
	set(record, fieldState, boolNode(active))
	return nil
}

// mutate runs fn against the current file tree, writes the result and reloads
// it. The snapshot is only replaced after the write succeeded.
func (s *Store) mutate(ctx context.Context, op, name string, fn func(root *yaml.Node) error) error {
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attribute.String("ban.name", name)))
	defer span.End()

	s.mu.Lock()
	err := s.mutateLocked(ctx, fn)
	s.mu.Unlock()

	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	s.notify()
	return nil
}

func (s *Store) mutateLocked(ctx context.Context, fn func(root *yaml.Node) error) error {
	if s.closed {
		return fmt.Errorf("ban store: %w", sentinel.ErrUnavailable)
	}
	root, preserved, err := s.readTreeLocked(ctx)
	if err != nil {
		return models.ErrPersistence(err)
	}
	if preserved {
		return models.ErrPersistence(errUnbackedDamage)
	}
	if err := fn(root); err != nil {
		return err
	}
	data, err := render(root)
	if err != nil {
		return models.ErrPersistence(fmt.Errorf("render data file: %w", err))
	}
	if err := s.writeLocked(data); err != nil {
		s.logger.ErrorContext(ctx, "failed to write data file", "path", s.path, "error", err)
		return models.ErrPersistence(err)
	}
	if err := s.loadLocked(ctx); err != nil {
		return models.ErrPersistence(err)
	}
	return nil
}

// loadLocked reads, repairs and publishes the file. Callers hold s.mu.
func (s *Store) loadLocked(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("ban store: %w", sentinel.ErrUnavailable)
	}
	root, _, err := s.readTreeLocked(ctx)
	if err != nil {
		return err
	}

	snap := &snapshot{
		settings: decodeSettings(root, s.logger),
		bans:     decodeBans(lookup(root, sectionBans), s.logger),
		tempBans: decodeTempBans(lookup(root, sectionTempBans), s.logger),
	}
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.metrics.IncrementStoreReloads()
	s.logger.DebugContext(ctx, "data file loaded", "path", s.path, "bans", len(snap.bans), "temp_bans", len(snap.tempBans))
	return nil
}

// readTreeLocked returns the top-level mapping of the data file, creating the
// file or repairing it first when needed. preserved reports that the file was
// damaged, could not be backed up, and was left untouched on disk; the
// returned tree is then the in-memory repair only. Callers hold s.mu.
func (s *Store) readTreeLocked(ctx context.Context) (root *yaml.Node, preserved bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.InfoContext(ctx, "data file missing, writing default skeleton", "path", s.path)
		if err := s.writeLocked(defaultSkeleton); err != nil {
			s.logger.ErrorContext(ctx, "failed to write default skeleton", "path", s.path, "error", err)
			return nil, false, err
		}
		return defaultRoot(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read data file: %w", err)
	}
	s.fingerprint = blake3.Sum256(data)

	var doc yaml.Node
	parseErr := yaml.Unmarshal(data, &doc)
	root = documentRoot(&doc)
	if parseErr != nil || root == nil {
		root, preserved = s.resetLocked(ctx, parseErr)
		return root, preserved, nil
	}
	if n := flattenedKeys(root); n > 0 {
		root, preserved = s.reconstructLocked(ctx, root, n)
		return root, preserved, nil
	}
	return root, false, nil
}

// resetLocked backs up an unparseable file and replaces it with the default
// skeleton. Without a backup the file is left as is and the skeleton is
// served from memory.
func (s *Store) resetLocked(ctx context.Context, cause error) (*yaml.Node, bool) {
	if cause == nil {
		cause = errors.New("top level is not a mapping")
	}
	root := defaultRoot()
	backupPath, ok := s.backupLocked(ctx)
	if !ok {
		s.logger.ErrorContext(ctx, "data file unreadable and not backed up, leaving it in place and serving defaults",
			"path", s.path, "error", cause)
		return root, true
	}
	s.persistRepairLocked(ctx, root)

	s.metrics.IncrementStoreRecoveries(metrics.RecoveryReset)
	s.logger.ErrorContext(ctx, "data file unreadable, reset to defaults",
		"path", s.path, "backup", backupPath, "error", cause)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventStoreRecovered,
		"kind", metrics.RecoveryReset, "backup", backupPath)
	return root, false
}

// reconstructLocked backs up a file with flattened keys and rewrites it in
// nested form.
func (s *Store) reconstructLocked(ctx context.Context, root *yaml.Node, flattened int) (*yaml.Node, bool) {
	repaired := reconstruct(root)
	backupPath, ok := s.backupLocked(ctx)
	if !ok {
		s.logger.ErrorContext(ctx, "data file had flattened keys and was not backed up, leaving it in place",
			"path", s.path, "flattened_keys", flattened)
		return repaired, true
	}
	s.persistRepairLocked(ctx, repaired)

	s.metrics.IncrementStoreRecoveries(metrics.RecoveryReconstructed)
	s.logger.WarnContext(ctx, "data file had flattened keys, reconstructed",
		"path", s.path, "backup", backupPath, "flattened_keys", flattened)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventStoreRecovered,
		"kind", metrics.RecoveryReconstructed, "backup", backupPath)
	return repaired, false
}

func (s *Store) backupLocked(ctx context.Context) (string, bool) {
	backupPath, err := s.backup(s.path, s.clock())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to back up data file", "path", s.path, "error", err)
		return "", false
	}
	return backupPath, true
}

// persistRepairLocked writes a repaired tree. A failed write is logged; the
// repaired tree is still served from memory.
func (s *Store) persistRepairLocked(ctx context.Context, root *yaml.Node) {
	data, err := render(root)
	if err == nil {
		err = s.writeLocked(data)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to write repaired data file", "path", s.path, "error", err)
	}
}

func (s *Store) writeLocked(data []byte) error {
	if err := fsutil.AtomicWriteFile(s.path, data, filePerm); err != nil {
		s.metrics.IncrementStoreWriteFailures()
		return err
	}
	s.fingerprint = blake3.Sum256(data)
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
