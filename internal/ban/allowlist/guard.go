// Package allowlist refuses ban operations against protected player names.
package allowlist

import (
	"slices"
	"sync/atomic"

	"banguard/internal/ban/models"
	strs "banguard/pkg/platform/strings"
)

type state struct {
	enabled bool
	names   []string
	message string
}

// Guard holds the current allow list. Reload swaps the whole list at once so
// readers never see a partially applied change.
type Guard struct {
	current atomic.Pointer[state]
}

// SettingsSource is the part of the store the guard follows.
type SettingsSource interface {
	Settings() models.Settings
	Subscribe(fn func())
}

func New(settings models.AllowlistSettings) *Guard {
	g := &Guard{}
	g.Reload(settings)
	return g
}

// Follow loads the allow list from source and keeps it in sync with every
// store reload.
func Follow(source SettingsSource) *Guard {
	g := New(source.Settings().Allowlist)
	source.Subscribe(func() {
		g.Reload(source.Settings().Allowlist)
	})
	return g
}

// Reload replaces the allow list. Names are trimmed and repeats dropped.
func (g *Guard) Reload(settings models.AllowlistSettings) {
	g.current.Store(&state{
		enabled: settings.Enabled,
		names:   strs.DedupeAndTrim(settings.Names),
		message: settings.ProtectionMessage,
	})
}

// IsProtected reports whether name is on the allow list. Matching is exact
// and case-sensitive; a disabled list protects nobody.
func (g *Guard) IsProtected(name string) bool {
	s := g.current.Load()
	return s.enabled && slices.Contains(s.names, name)
}

// ProtectionMessage returns the refusal shown to operators.
func (g *Guard) ProtectionMessage() string {
	return g.current.Load().message
}

// Check returns a CodeProtected error for protected names.
func (g *Guard) Check(name string) error {
	s := g.current.Load()
	if s.enabled && slices.Contains(s.names, name) {
		return models.ErrProtected(s.message)
	}
	return nil
}
