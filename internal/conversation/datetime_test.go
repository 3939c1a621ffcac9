package conversation

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refDate = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func TestResolveDateTimeHourFormats(t *testing.T) {
	cases := []struct {
		input  string
		hour   int
		minute int
	}{
		{"14", 14, 0},
		{"8", 8, 0},
		{"0", 0, 0},
		{"23", 23, 0},
		{"16:30", 16, 30},
		{"16.30", 16, 30},
		{"1630", 16, 30},
		{"14hs", 14, 0},
		{"14 hs", 14, 0},
		{"14h", 14, 0},
		{"14:30hs", 14, 30},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			resolved, err := ResolveDateTime(tc.input, refDate, PartialDateTime{})
			require.NoError(t, err)
			// An hour with no date at all schedules on the reference day.
			require.Equal(t, ResolvedComplete, resolved.Kind)
			assert.Equal(t, time.Date(2026, 3, 10, tc.hour, tc.minute, 0, 0, time.UTC), resolved.Value)
		})
	}
}

func TestResolveDateTimeHourWithKnownPartialDate(t *testing.T) {
	// An hour merging into a full known date completes on that date.
	resolved, err := ResolveDateTime("14hs", refDate, PartialDateTime{Day: intPtr(8), Month: intPtr(8)})
	require.NoError(t, err)
	require.Equal(t, ResolvedComplete, resolved.Kind)
	assert.Equal(t, time.Date(2026, 8, 8, 14, 0, 0, 0, time.UTC), resolved.Value)

	// A day without a month is still ambiguous, so no reference-day default.
	resolved, err = ResolveDateTime("14hs", refDate, PartialDateTime{Day: intPtr(8)})
	require.NoError(t, err)
	assert.Equal(t, ResolvedPartial, resolved.Kind)
	assert.Nil(t, resolved.Partial.Month)
	assert.Equal(t, 14, *resolved.Partial.Hour)
}

func TestResolveDateTimeBareNumberRange(t *testing.T) {
	// Any bare one- or two-digit number from 0 to 23 reads as an hour
	// on the reference day.
	for hour := 0; hour <= 23; hour++ {
		resolved, err := ResolveDateTime(strconv.Itoa(hour), refDate, PartialDateTime{})
		require.NoError(t, err)
		require.Equal(t, ResolvedComplete, resolved.Kind)
		assert.Equal(t, hour, resolved.Value.Hour())
		assert.Equal(t, 10, resolved.Value.Day())
	}

	_, err := ResolveDateTime("24", refDate, PartialDateTime{})
	assert.ErrorIs(t, err, ErrDateTimeFormat)
	_, err = ResolveDateTime("99", refDate, PartialDateTime{})
	assert.ErrorIs(t, err, ErrDateTimeFormat)
}

func TestResolveDateTimeDateOnly(t *testing.T) {
	resolved, err := ResolveDateTime("08/08", refDate, PartialDateTime{})
	require.NoError(t, err)
	assert.Equal(t, ResolvedPartial, resolved.Kind)
	assert.Equal(t, 8, *resolved.Partial.Day)
	assert.Equal(t, 8, *resolved.Partial.Month)
	assert.Nil(t, resolved.Partial.Hour)
}

func TestResolveDateTimeDateMergesWithKnownHour(t *testing.T) {
	partial := PartialDateTime{Hour: intPtr(14), Minute: intPtr(0)}

	resolved, err := ResolveDateTime("08/08", refDate, partial)
	require.NoError(t, err)
	require.Equal(t, ResolvedComplete, resolved.Kind)
	assert.Equal(t, time.Date(2026, 8, 8, 14, 0, 0, 0, time.UTC), resolved.Value)
}

func TestResolveDateTimeFullFormats(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"08/08/2026 14:30", time.Date(2026, 8, 8, 14, 30, 0, 0, time.UTC)},
		{"08-08-2026 14.30", time.Date(2026, 8, 8, 14, 30, 0, 0, time.UTC)},
		{"8/8 14hs", time.Date(2026, 8, 8, 14, 0, 0, 0, time.UTC)},
		{"08/08/26 9", time.Date(2026, 8, 8, 9, 0, 0, 0, time.UTC)},
		{"15/12/99 10:00", time.Date(1999, 12, 15, 10, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			resolved, err := ResolveDateTime(tc.input, refDate, PartialDateTime{})
			require.NoError(t, err)
			require.Equal(t, ResolvedComplete, resolved.Kind)
			assert.Equal(t, tc.want, resolved.Value)
		})
	}
}

func TestResolveDateTimeRelative(t *testing.T) {
	cases := []struct {
		input   string
		wantDay int
		hour    *int
	}{
		{"hoy", 10, nil},
		{"mañana", 11, nil},
		{"manana", 11, nil},
		{"pasado mañana", 12, nil},
		{"ayer", 9, nil},
		{"mañana 14hs", 11, intPtr(14)},
		{"hoy 16:30", 10, intPtr(16)},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			resolved, err := ResolveDateTime(tc.input, refDate, PartialDateTime{})
			require.NoError(t, err)
			if tc.hour == nil {
				assert.Equal(t, ResolvedPartial, resolved.Kind)
				assert.Equal(t, tc.wantDay, *resolved.Partial.Day)
				assert.Equal(t, 3, *resolved.Partial.Month)
			} else {
				require.Equal(t, ResolvedComplete, resolved.Kind)
				assert.Equal(t, tc.wantDay, resolved.Value.Day())
				assert.Equal(t, *tc.hour, resolved.Value.Hour())
			}
		})
	}
}

func TestResolveDateTimeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "banana", "99/99", "32/01", "14/13", "hola que tal", "14:75"} {
		_, err := ResolveDateTime(input, refDate, PartialDateTime{})
		assert.ErrorIs(t, err, ErrDateTimeFormat, "input %q", input)
	}
}

func TestResolveDateTimeImpossibleCalendarDate(t *testing.T) {
	// 31/4 has valid components but is not a real date.
	partial := PartialDateTime{Hour: intPtr(10), Minute: intPtr(0)}
	_, err := ResolveDateTime("31/04", refDate, partial)
	assert.ErrorIs(t, err, ErrDateTimeFormat)
}

func TestPartialDateTimeCollapseDefaults(t *testing.T) {
	p := PartialDateTime{Day: intPtr(8), Month: intPtr(8), Hour: intPtr(14)}
	got, err := p.Collapse(refDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 8, 14, 0, 0, 0, time.UTC), got)
}

func TestPartialDateTimeMergeKeepsExisting(t *testing.T) {
	base := PartialDateTime{Hour: intPtr(14)}
	merged := base.Merge(PartialDateTime{Day: intPtr(8), Month: intPtr(8)})
	assert.Equal(t, 14, *merged.Hour)
	assert.Equal(t, 8, *merged.Day)
	assert.True(t, merged.Complete())
}
