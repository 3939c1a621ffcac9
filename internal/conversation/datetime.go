package conversation

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ResolvedKind classifies the outcome of a date/time resolution attempt.
type ResolvedKind int

const (
	// ResolvedNone means no grammar matched.
	ResolvedNone ResolvedKind = iota
	// ResolvedPartial means components were captured but day, month and
	// hour are not all known yet.
	ResolvedPartial
	// ResolvedComplete means a full timestamp was produced.
	ResolvedComplete
)

// ResolvedDateTime is the outcome of ResolveDateTime.
type ResolvedDateTime struct {
	Kind    ResolvedKind
	Value   time.Time       // valid when Kind == ResolvedComplete
	Partial PartialDateTime // merged components when Kind == ResolvedPartial
}

// ErrDateTimeFormat is returned when no date/time grammar matches. The
// message names accepted examples so it can be shown to the user as-is.
var ErrDateTimeFormat = errors.New(
	"no pude interpretar la fecha/hora. Ejemplos válidos: \"14\", \"14:30\", \"1430\", \"14hs\", \"08/08\", \"08/08/2026\", \"08/08 14:30\", \"mañana 14hs\", \"hoy\"")

var (
	hourBareRE   = regexp.MustCompile(`^(\d{1,2})$`)
	hourSepRE    = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})$`)
	hourPackedRE = regexp.MustCompile(`^(\d{4})$`)
	hourSuffixRE = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(?:hs|h)\.?$`)

	dateRE     = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?$`)
	dateTimeRE = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?\s+(\d{1,2})(?:[:.](\d{2}))?\s*(?:hs|h)?\.?$`)

	relativeRE = regexp.MustCompile(`^(hoy|manana|pasado manana|ayer)(?:\s+(.+))?$`)
)

// relativeOffsets maps accent-folded relative keywords to day deltas.
var relativeOffsets = map[string]int{
	"hoy":           0,
	"manana":        1,
	"pasado manana": 2,
	"ayer":          -1,
}

// ResolveDateTime turns free text into a complete or partial date/time.
// Grammars are tried in order and the first match wins: hour-only, date-only,
// date+time, relative keywords. Previously captured components in partial are
// merged; a timestamp is produced once day, month and hour are all known
// (year defaults to the reference year, minute to 0). An hour-only input
// with no date known yet completes on the reference day.
func ResolveDateTime(text string, ref time.Time, partial PartialDateTime) (ResolvedDateTime, error) {
	text = foldAccents(strings.ToLower(strings.TrimSpace(text)))
	if text == "" {
		return ResolvedDateTime{}, ErrDateTimeFormat
	}

	if hour, minute, ok := matchHour(text); ok {
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return ResolvedDateTime{}, ErrDateTimeFormat
		}
		merged := partial.Merge(PartialDateTime{Hour: &hour, Minute: &minute})
		// An hour with no date at all falls on the reference day.
		if merged.Day == nil && merged.Month == nil {
			day, month, year := ref.Day(), int(ref.Month()), ref.Year()
			merged = merged.Merge(PartialDateTime{Day: &day, Month: &month, Year: &year})
		}
		return collapseOrPartial(merged, ref)
	}

	if m := dateTimeRE.FindStringSubmatch(text); m != nil {
		return resolveDateParts(m[1], m[2], m[3], m[4], m[5], ref, partial)
	}

	if m := dateRE.FindStringSubmatch(text); m != nil {
		return resolveDateParts(m[1], m[2], m[3], "", "", ref, partial)
	}

	if m := relativeRE.FindStringSubmatch(text); m != nil {
		offset, ok := relativeOffsets[m[1]]
		if !ok {
			return ResolvedDateTime{}, ErrDateTimeFormat
		}
		date := ref.AddDate(0, 0, offset)
		day, month, year := date.Day(), int(date.Month()), date.Year()
		merged := partial.Merge(PartialDateTime{Day: &day, Month: &month, Year: &year})
		if rest := strings.TrimSpace(m[2]); rest != "" {
			hour, minute, ok := matchHour(rest)
			if !ok || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
				return ResolvedDateTime{}, ErrDateTimeFormat
			}
			merged = merged.Merge(PartialDateTime{Hour: &hour, Minute: &minute})
		}
		return collapseOrPartial(merged, ref)
	}

	return ResolvedDateTime{}, ErrDateTimeFormat
}

// matchHour tries the hour-only grammars: H, H:MM, H.MM, HHMM, H[:MM]hs.
func matchHour(text string) (hour, minute int, ok bool) {
	if m := hourSuffixRE.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		return hour, minute, true
	}
	if m := hourSepRE.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, true
	}
	if m := hourPackedRE.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1][:2])
		minute, _ = strconv.Atoi(m[1][2:])
		return hour, minute, true
	}
	if m := hourBareRE.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		return hour, 0, true
	}
	return 0, 0, false
}

// resolveDateParts validates date (and optional time) captures and merges
// them with previously known components.
func resolveDateParts(dayStr, monthStr, yearStr, hourStr, minStr string, ref time.Time, partial PartialDateTime) (ResolvedDateTime, error) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return ResolvedDateTime{}, ErrDateTimeFormat
	}

	merged := partial.Merge(PartialDateTime{Day: &day, Month: &month})
	if yearStr != "" {
		year, _ := strconv.Atoi(yearStr)
		if len(yearStr) == 2 {
			year = expandTwoDigitYear(year)
		}
		merged = merged.Merge(PartialDateTime{Year: &year})
	}

	if hourStr != "" {
		hour, _ := strconv.Atoi(hourStr)
		minute := 0
		if minStr != "" {
			minute, _ = strconv.Atoi(minStr)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return ResolvedDateTime{}, ErrDateTimeFormat
		}
		merged = merged.Merge(PartialDateTime{Hour: &hour, Minute: &minute})
	}

	return collapseOrPartial(merged, ref)
}

// expandTwoDigitYear maps 2-digit years: below 50 into the 2000s, the rest
// into the 1900s.
func expandTwoDigitYear(y int) int {
	if y < 50 {
		return 2000 + y
	}
	return 1900 + y
}

// collapseOrPartial produces a complete timestamp when possible, otherwise
// keeps the merged components. Construction failures (day 31 in a 30-day
// month) surface as parse errors, never as a panic or a wrong date.
func collapseOrPartial(merged PartialDateTime, ref time.Time) (ResolvedDateTime, error) {
	if !merged.Complete() {
		return ResolvedDateTime{Kind: ResolvedPartial, Partial: merged}, nil
	}
	value, err := merged.Collapse(ref)
	if err != nil {
		return ResolvedDateTime{}, ErrDateTimeFormat
	}
	return ResolvedDateTime{Kind: ResolvedComplete, Value: value}, nil
}
