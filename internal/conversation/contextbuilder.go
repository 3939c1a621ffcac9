package conversation

import (
	"strconv"
	"strings"
	"time"
)

// ExtractMode tags what the entity extractor is being asked to do.
type ExtractMode string

const (
	ModeNewCase        ExtractMode = "new_case"
	ModeNormalizeField ExtractMode = "normalize_field"
	ModeFillMissing    ExtractMode = "fill_missing"
)

// Correction is an explicit "fieldname value" instruction that bypasses the
// pending-field machinery.
type Correction struct {
	Field Field
	Value string
}

// DetectCorrection recognizes inputs that begin with an explicit field
// name followed by a value. Loose synonyms ("hospital", "doctora") do not
// count: they open ordinary answers. Keyword-only inputs are not
// corrections here; they are meaningful only inside the edit-selection
// dialog.
func DetectCorrection(text string) (Correction, bool) {
	trimmed := strings.TrimSpace(text)
	parts := strings.Fields(trimmed)
	if len(parts) < 2 {
		return Correction{}, false
	}
	field, ok := MatchCorrectionKeyword(parts[0])
	if !ok {
		return Correction{}, false
	}
	value := strings.TrimSpace(trimmed[len(parts[0]):])
	return Correction{Field: field, Value: value}, true
}

// ClassifyMode picks the extraction mode for input that is not an explicit
// correction: fill-missing once any slot is populated, otherwise new-case.
// Correction detection runs first at the engine level; this is the
// documented priority order.
func ClassifyMode(s *RecordState) ExtractMode {
	if s.HasAnySlot() {
		return ModeFillMissing
	}
	return ModeNewCase
}

// BuildExtractionRequest assembles the payload for the external extractor.
// For normalize_field it carries the single field name plus the known slots
// as context.
func BuildExtractionRequest(mode ExtractMode, text string, ref time.Time, s *RecordState, field Field) ExtractionRequest {
	req := ExtractionRequest{
		Text:          text,
		Mode:          mode,
		ReferenceDate: ref,
	}
	if mode == ModeNormalizeField {
		req.Field = field
	}
	if mode != ModeNewCase {
		req.Known = knownSlots(s)
	}
	return req
}

// knownSlots renders populated slots with the extractor's key vocabulary.
func knownSlots(s *RecordState) map[string]string {
	known := make(map[string]string)
	if s.DateTime != nil {
		known[keyDay] = strconv.Itoa(s.DateTime.Day())
		known[keyMonth] = strconv.Itoa(int(s.DateTime.Month()))
		known[keyYear] = strconv.Itoa(s.DateTime.Year())
		known[keyHour] = strconv.Itoa(s.DateTime.Hour())
		known[keyMinute] = strconv.Itoa(s.DateTime.Minute())
	} else {
		appendPartial(known, s.Partial)
	}
	if s.Location != "" {
		known[keyLocation] = s.Location
	}
	if s.Surgeon != "" {
		known[keySurgeon] = s.Surgeon
	}
	if s.Procedure != "" {
		known[keyProcedure] = s.Procedure
	}
	if s.Quantity > 0 {
		known[keyQuantity] = strconv.Itoa(s.Quantity)
	}
	if s.Anesthesiologist != "" {
		known[keyAnesthesiologist] = s.Anesthesiologist
	}
	return known
}

func appendPartial(known map[string]string, p PartialDateTime) {
	if p.Day != nil {
		known[keyDay] = strconv.Itoa(*p.Day)
	}
	if p.Month != nil {
		known[keyMonth] = strconv.Itoa(*p.Month)
	}
	if p.Year != nil {
		known[keyYear] = strconv.Itoa(*p.Year)
	}
	if p.Hour != nil {
		known[keyHour] = strconv.Itoa(*p.Hour)
	}
	if p.Minute != nil {
		known[keyMinute] = strconv.Itoa(*p.Minute)
	}
}
