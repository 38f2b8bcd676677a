package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBanTerm(t *testing.T) {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("empty and permanent mean no end", func(t *testing.T) {
		for _, raw := range []string{"", "  ", "permanent", "PERMANENT"} {
			term := ParseBanTerm(raw, start)
			assert.Nil(t, term.End, raw)
			assert.Empty(t, term.Warning, raw)
		}
	})

	t.Run("day count adds whole days", func(t *testing.T) {
		term := ParseBanTerm("7d", start)
		require.NotNil(t, term.End)
		assert.Equal(t, start.AddDate(0, 0, 7), *term.End)
		assert.Empty(t, term.Warning)
	})

	t.Run("day count above the cap is clamped", func(t *testing.T) {
		term := ParseBanTerm("9999d", start)
		require.NotNil(t, term.End)
		assert.Equal(t, start.AddDate(0, 0, MaxBanDays), *term.End)
		assert.NotEmpty(t, term.Warning)
	})

	t.Run("non-positive or garbled day count degrades to one day", func(t *testing.T) {
		for _, raw := range []string{"0d", "-3d", "xd", "d"} {
			term := ParseBanTerm(raw, start)
			require.NotNil(t, term.End, raw)
			assert.Equal(t, start.AddDate(0, 0, 1), *term.End, raw)
			assert.Contains(t, term.Warning, "1 day", raw)
		}
	})

	t.Run("date range expires after the last day", func(t *testing.T) {
		term := ParseBanTerm("2024/06/15-2024/06/20", start)
		require.NotNil(t, term.End)
		assert.Equal(t, time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), *term.End)
		assert.Empty(t, term.Warning)
	})

	t.Run("date range reads only the end date", func(t *testing.T) {
		term := ParseBanTerm("today-2024/06/20", start)
		require.NotNil(t, term.End)
		assert.Equal(t, time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), *term.End)
		assert.Empty(t, term.Warning)
	})

	t.Run("ends are truncated to stored precision", func(t *testing.T) {
		fine := start.Add(123456789 * time.Nanosecond)
		term := ParseBanTerm("2d", fine)
		require.NotNil(t, term.End)
		assert.Equal(t, start.Add(123*time.Millisecond).AddDate(0, 0, 2), *term.End)
	})

	t.Run("malformed or past date range degrades to one day", func(t *testing.T) {
		for _, raw := range []string{"2024/06/15-tomorrow", "a-b-c", "2020/01/01-2020/01/02"} {
			term := ParseBanTerm(raw, start)
			require.NotNil(t, term.End, raw)
			assert.Equal(t, start.AddDate(0, 0, 1), *term.End, raw)
			assert.NotEmpty(t, term.Warning, raw)
		}
	})

	t.Run("unknown grammar degrades to one day", func(t *testing.T) {
		term := ParseBanTerm("forever", start)
		require.NotNil(t, term.End)
		assert.Equal(t, start.AddDate(0, 0, 1), *term.End)
		assert.NotEmpty(t, term.Warning)
	})
}
