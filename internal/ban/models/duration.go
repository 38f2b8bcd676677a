package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxBanDays caps "<N>d" durations.
	MaxBanDays = 3650
	// PermanentTerm is the literal accepted for an explicit permanent ban.
	PermanentTerm = "permanent"
)

// BanTerm is the outcome of parsing an operator-supplied ban duration.
// Warning is set whenever the input was not taken literally.
type BanTerm struct {
	End     *time.Time
	Warning string
}

// ParseBanTerm turns a duration argument into an end time relative to start.
//
//	""  or "permanent"        no end
//	"<N>d"                    start + N days, N in (0, 3650]
//	"YYYY/MM/DD-YYYY/MM/DD"   through the end of the second date; only the
//	                          second date is read
//
// Anything it cannot read degrades to a one-day ban with a warning instead of
// an error. Operators rely on that fallback.
func ParseBanTerm(raw string, start time.Time) BanTerm {
	start = start.Truncate(StoredPrecision)
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, PermanentTerm) {
		return BanTerm{}
	}

	switch {
	case strings.HasSuffix(strings.ToLower(raw), "d"):
		return parseDays(raw, start)
	case strings.Contains(raw, "-"):
		return parseDateRange(raw, start)
	}
	return fallbackTerm(start, fmt.Sprintf("unrecognised duration %q", raw))
}

func parseDays(raw string, start time.Time) BanTerm {
	days, err := strconv.Atoi(strings.TrimSpace(raw[:len(raw)-1]))
	if err != nil || days <= 0 {
		return fallbackTerm(start, fmt.Sprintf("invalid day count in %q", raw))
	}
	if days > MaxBanDays {
		end := start.AddDate(0, 0, MaxBanDays)
		return BanTerm{
			End:     &end,
			Warning: fmt.Sprintf("%d days exceeds the %d day limit, capped", days, MaxBanDays),
		}
	}
	end := start.AddDate(0, 0, days)
	return BanTerm{End: &end}
}

func parseDateRange(raw string, start time.Time) BanTerm {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return fallbackTerm(start, fmt.Sprintf("invalid date range %q", raw))
	}
	last, err := time.ParseInLocation(EndDateLayout, strings.TrimSpace(parts[1]), start.Location())
	if err != nil {
		return fallbackTerm(start, fmt.Sprintf("invalid end date in %q", raw))
	}
	// The range is inclusive: the ban lasts until midnight after the last day.
	end := last.AddDate(0, 0, 1)
	if !end.After(start) {
		return fallbackTerm(start, fmt.Sprintf("date range %q already ended", raw))
	}
	return BanTerm{End: &end}
}

func fallbackTerm(start time.Time, why string) BanTerm {
	end := start.AddDate(0, 0, 1)
	return BanTerm{
		End:     &end,
		Warning: why + ", banning for 1 day instead",
	}
}
