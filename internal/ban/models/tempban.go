package models

import (
	"fmt"
	"time"
)

// TempBan is a soft ban with a fixed end. Active=false marks early release or
// a sweep that saw it expire.
type TempBan struct {
	Subject
	Reason    string
	StartTime time.Time
	EndTime   time.Time
	Active    bool
}

// NewTempBan creates an active temporary ban lasting duration from now, with
// both times truncated to StoredPrecision.
func NewTempBan(name, reason string, now time.Time, duration time.Duration) *TempBan {
	start := now.Truncate(StoredPrecision)
	return &TempBan{
		Subject:   Subject{Name: name},
		Reason:    reason,
		StartTime: start,
		EndTime:   start.Add(duration).Truncate(StoredPrecision),
		Active:    true,
	}
}

func (t *TempBan) IsExpiredAt(now time.Time) bool {
	return now.After(t.EndTime)
}

func (t *TempBan) IsLiveAt(now time.Time) bool {
	return t.Active && !t.IsExpiredAt(now)
}

// Remaining is zero once the ban has expired.
func (t *TempBan) Remaining(now time.Time) time.Duration {
	return max(t.EndTime.Sub(now), 0)
}

func (t *TempBan) DenialMessage(now time.Time) string {
	return fmt.Sprintf("temporarily banned: %s, remaining %s", t.Reason, FormatRemaining(t.Remaining(now)))
}

func (t TempBan) Clone() TempBan {
	out := t
	out.Subject = t.Subject.clone()
	return out
}

// FormatRemaining renders a duration as "2h 5m" or "5m", truncated to the
// minute.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
