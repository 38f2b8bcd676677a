package models

import (
	"regexp"
	"strings"

	dErrors "banguard/pkg/domain-errors"
)

// MaxNameLength bounds player names.
const MaxNameLength = 16

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,16}$`)

// Identity is what a connecting subject presents at login. Empty AccountID or
// Address means the caller did not supply it.
type Identity struct {
	AccountID string `json:"account_id,omitempty"`
	Address   string `json:"address,omitempty"`
	Name      string `json:"name"`
}

// ValidateName trims name and checks it against the player-name grammar.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.New(CodeEmptyIdentifier, "player name cannot be empty")
	}
	if len(name) > MaxNameLength || !namePattern.MatchString(name) {
		return "", dErrors.Newf(CodeInvalidIdentifier, "invalid player name %q: use 1-16 letters, digits or underscores", name)
	}
	return name, nil
}

// Subject holds the identity keys stored on a record. Nil AccountID or
// Address means the key was never observed.
type Subject struct {
	Name      string
	AccountID *string
	Address   *string
}

// MatchesName compares names case-insensitively.
func (s Subject) MatchesName(name string) bool {
	return name != "" && strings.EqualFold(s.Name, name)
}

// MatchesKeys reports whether a stored account id or address equals the one
// supplied. Unknown keys on either side never match.
func (s Subject) MatchesKeys(id Identity) bool {
	if s.AccountID != nil && id.AccountID != "" && *s.AccountID == id.AccountID {
		return true
	}
	if s.Address != nil && id.Address != "" && *s.Address == id.Address {
		return true
	}
	return false
}

// NeedsBackfill reports whether id would fill a key that is still unknown.
func (s Subject) NeedsBackfill(id Identity) bool {
	return (s.AccountID == nil && id.AccountID != "") || (s.Address == nil && id.Address != "")
}

// Backfill fills unknown keys from id and reports whether anything changed.
// Keys that are already known are never overwritten.
func (s *Subject) Backfill(id Identity) bool {
	changed := false
	if s.AccountID == nil && id.AccountID != "" {
		s.AccountID = ptr(id.AccountID)
		changed = true
	}
	if s.Address == nil && id.Address != "" {
		s.Address = ptr(id.Address)
		changed = true
	}
	return changed
}

func (s Subject) clone() Subject {
	out := Subject{Name: s.Name}
	if s.AccountID != nil {
		out.AccountID = ptr(*s.AccountID)
	}
	if s.Address != nil {
		out.Address = ptr(*s.Address)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
