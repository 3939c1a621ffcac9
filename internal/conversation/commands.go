package conversation

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Command is a reserved keyword recognized at any conversation state.
type Command int

const (
	CommandNone Command = iota
	CommandCancel
	CommandHelp
)

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldAccents removes diacritical marks ("mañana" -> "manana").
func foldAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeInput trims, lowercases and accent-folds text for matching.
func normalizeInput(s string) string {
	return foldAccents(strings.ToLower(strings.TrimSpace(s)))
}

// cancelWords restart or abandon the current booking.
var cancelWords = map[string]struct{}{
	"cancelar":  {},
	"cancela":   {},
	"cancel":    {},
	"nuevo":     {},
	"reiniciar": {},
	"resetear":  {},
	"reset":     {},
	"salir":     {},
	"empezar":   {},
}

// helpWords are matched with one edit of tolerance for typos.
var helpWords = []string{"ayuda", "help"}

// MatchCommand recognizes reserved keywords, case-insensitively and with
// accents folded. Help synonyms tolerate a single-character typo.
func MatchCommand(text string) Command {
	normalized := normalizeInput(text)
	if normalized == "" {
		return CommandNone
	}
	if normalized == "empezar de nuevo" {
		return CommandCancel
	}
	if _, ok := cancelWords[normalized]; ok {
		return CommandCancel
	}
	for _, w := range helpWords {
		if normalized == w || matchr.Levenshtein(normalized, w) == 1 {
			return CommandHelp
		}
	}
	return CommandNone
}

// correctionKeywords are the field names accepted at the start of a
// "campo valor" correction. Restricted to words that never begin an
// ordinary answer: "hospital" or "doctora" can open a venue or surgeon
// name given as the answer to a solicited field.
var correctionKeywords = map[string]Field{
	"lugar":         FieldLocation,
	"cirujano":      FieldSurgeon,
	"cirujana":      FieldSurgeon,
	"anestesiologo": FieldAnesthesiologist,
	"anestesiologa": FieldAnesthesiologist,
	"anestesista":   FieldAnesthesiologist,
	"cirugia":       FieldProcedure,
	"procedimiento": FieldProcedure,
	"cantidad":      FieldQuantity,
	"fecha":         FieldDateTime,
	"horario":       FieldDateTime,
}

// editSynonyms are additionally accepted inside the edit dialog, where the
// input can only name a field.
var editSynonyms = map[string]Field{
	"hospital":     FieldLocation,
	"clinica":      FieldLocation,
	"sanatorio":    FieldLocation,
	"doctor":       FieldSurgeon,
	"doctora":      FieldSurgeon,
	"operacion":    FieldProcedure,
	"intervencion": FieldProcedure,
	"dia":          FieldDateTime,
	"hora":         FieldDateTime,
}

// MatchCorrectionKeyword resolves the leading token of a correction.
func MatchCorrectionKeyword(token string) (Field, bool) {
	f, ok := correctionKeywords[normalizeInput(token)]
	return f, ok
}

// MatchFieldKeyword resolves a field name during edit selection, accepting
// loose synonyms on top of the explicit field names.
func MatchFieldKeyword(token string) (Field, bool) {
	normalized := normalizeInput(token)
	if f, ok := correctionKeywords[normalized]; ok {
		return f, true
	}
	f, ok := editSynonyms[normalized]
	return f, ok
}
