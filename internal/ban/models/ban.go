package models

import (
	"fmt"
	"time"
)

const (
	// EndDateLayout formats permanent-ban expiry dates.
	EndDateLayout = "2006/01/02"
	// TempBanEndLayout formats temporary-ban expiry instants.
	TempBanEndLayout = "2006/01/02 15:04"
	// StoredPrecision is the resolution record times are persisted with.
	StoredPrecision = time.Millisecond
)

// Ban is a permanent-class ban. A nil EndTime means it never expires; lifted
// bans keep their record with Active=false.
type Ban struct {
	Subject
	Reason    string
	StartTime time.Time
	EndTime   *time.Time
	Active    bool
}

// NewBan creates an active ban starting at now. Times are truncated to
// StoredPrecision so the record equals what a reload returns.
func NewBan(name, reason string, now time.Time, end *time.Time) *Ban {
	b := &Ban{
		Subject:   Subject{Name: name},
		Reason:    reason,
		StartTime: now.Truncate(StoredPrecision),
		Active:    true,
	}
	if end != nil {
		e := end.Truncate(StoredPrecision)
		b.EndTime = &e
	}
	return b
}

func (b *Ban) IsPermanent() bool {
	return b.EndTime == nil
}

// IsExpiredAt derives expiry from the wall clock; permanent bans never expire.
func (b *Ban) IsExpiredAt(now time.Time) bool {
	return b.EndTime != nil && now.After(*b.EndTime)
}

// IsLiveAt reports whether the ban can deny a login at now.
func (b *Ban) IsLiveAt(now time.Time) bool {
	return b.Active && !b.IsExpiredAt(now)
}

// TermLabel describes the ban length for operators.
func (b *Ban) TermLabel() string {
	if b.IsPermanent() {
		return "permanent"
	}
	return "until " + b.EndTime.Format(EndDateLayout)
}

// DenialMessage is shown to the player when the login is refused.
func (b *Ban) DenialMessage() string {
	if b.IsPermanent() {
		return "permanently banned: " + b.Reason
	}
	return fmt.Sprintf("banned until %s: %s", b.EndTime.Format(EndDateLayout), b.Reason)
}

// Clone returns a deep copy.
func (b Ban) Clone() Ban {
	out := b
	out.Subject = b.Subject.clone()
	if b.EndTime != nil {
		out.EndTime = ptr(*b.EndTime)
	}
	return out
}
