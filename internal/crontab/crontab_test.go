package crontab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("* * *")
	require.Error(t, err)
}

func TestParseRejectsZeroDayOfMonth(t *testing.T) {
	_, err := Parse("0 0 0 * *")
	require.Error(t, err)
}

func TestEveryMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)
	now := time.Date(2026, 7, 29, 10, 30, 15, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 7, 29, 10, 31, 0, 0, time.UTC), got)
}

func TestMinuteStep(t *testing.T) {
	s, err := Parse("*/15 * * * *")
	require.NoError(t, err)
	now := time.Date(2026, 7, 29, 10, 16, 0, 0, time.UTC)
	// "*/15" is a bare wildcard token in this grammar: the step is
	// ignored once the range side is "*", so every minute matches.
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 7, 29, 10, 16, 0, 0, time.UTC), got)
}

func TestMinuteRangeStep(t *testing.T) {
	s, err := Parse("0-59/15 * * * *")
	require.NoError(t, err)
	now := time.Date(2026, 7, 29, 10, 16, 0, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 7, 29, 10, 30, 0, 0, time.UTC), got)
}

func TestHourRollover(t *testing.T) {
	s, err := Parse("0 0,12 * * *")
	require.NoError(t, err)
	now := time.Date(2026, 7, 29, 5, 0, 0, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC), got)

	now2 := time.Date(2026, 7, 29, 13, 0, 0, 0, time.UTC)
	got2 := s.Next(now2)
	require.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), got2)
}

func TestDayOfMonthOnly(t *testing.T) {
	s, err := Parse("0 0 15 * *")
	require.NoError(t, err)
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestDayOfWeekOnly(t *testing.T) {
	// Wednesday.
	s, err := Parse("0 0 * * 3")
	require.NoError(t, err)
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC) // a Wednesday
	require.Equal(t, time.Wednesday, now.Weekday())
	got := s.Next(now)
	require.Equal(t, now, got)

	got2 := s.Next(now.Add(time.Minute))
	require.Equal(t, now.AddDate(0, 0, 7), got2)
}

func TestDayOfWeekSundayAliasing(t *testing.T) {
	sZero, err := Parse("0 0 * * 0")
	require.NoError(t, err)
	sSeven, err := Parse("0 0 * * 7")
	require.NoError(t, err)

	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday.Weekday())
	require.Equal(t, sunday, sZero.Next(sunday))
	require.Equal(t, sunday, sSeven.Next(sunday))
}

func TestDayOfMonthOrDayOfWeekUnion(t *testing.T) {
	// Matches the 1st of the month OR a Monday.
	s, err := Parse("0 0 1 * 1")
	require.NoError(t, err)

	monday := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())
	require.Equal(t, monday, s.Next(monday))

	firstOfMonth := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Tuesday, firstOfMonth.Weekday())
	require.Equal(t, firstOfMonth, s.Next(firstOfMonth))
}

func TestWildcardDayOfMonthWithExplicitDayOfWeekMatchesOnlyThatWeekday(t *testing.T) {
	s, err := Parse("0 0 * * 1")
	require.NoError(t, err)
	notMonday := time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Tuesday, notMonday.Weekday())
	got := s.Next(notMonday)
	require.Equal(t, time.Monday, got.Weekday())
	require.Equal(t, notMonday.AddDate(0, 0, 6), got)
}

func TestLeapDayBoundary(t *testing.T) {
	s, err := Parse("0 0 29 2 *")
	require.NoError(t, err)
	now := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), got)
}

func TestMonthField(t *testing.T) {
	s, err := Parse("0 0 1 3,9 *")
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := s.Next(now)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
