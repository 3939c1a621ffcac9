package conversation

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Validation errors shown to the user verbatim.
var (
	ErrQuantityRange = errors.New("la cantidad tiene que ser un número entre 1 y 100")
	ErrTextTooShort  = errors.New("necesito al menos dos caracteres para ese dato")
)

var (
	digitRE = regexp.MustCompile(`\d`)
	// quantityRE captures a whole digit run so "1000" range-checks as
	// 1000, not as its first three digits.
	quantityRE = regexp.MustCompile(`\d+`)
)

// spelledNumbers maps small spelled-out quantities to values.
var spelledNumbers = map[string]int{
	"un":     1,
	"uno":    1,
	"una":    1,
	"dos":    2,
	"tres":   3,
	"cuatro": 4,
	"cinco":  5,
	"seis":   6,
	"siete":  7,
	"ocho":   8,
	"nueve":  9,
	"diez":   10,
}

// noneTokens are valid empty answers for person fields.
var noneTokens = map[string]struct{}{
	"no":      {},
	"nadie":   {},
	"ninguno": {},
	"ninguna": {},
	"sin":     {},
}

// affirmativeTokens and negativeTokens back the yes/no classifier.
var affirmativeTokens = map[string]struct{}{
	"si": {}, "s": {}, "sip": {}, "dale": {}, "ok": {}, "oka": {},
	"bueno": {}, "confirmo": {}, "confirmar": {}, "confirmado": {},
	"yes": {}, "claro": {}, "perfecto": {}, "correcto": {},
}

var negativeTokens = map[string]struct{}{
	"no": {}, "n": {}, "nop": {}, "nope": {}, "negativo": {},
	"cambiar": {}, "corregir": {}, "editar": {}, "mal": {},
}

// denyList holds common non-medical words that never answer a free-text
// field by themselves. It backs the appropriateness check, not syntax.
var denyList = map[string]struct{}{
	"hola": {}, "chau": {}, "gracias": {}, "perro": {}, "gato": {},
	"verde": {}, "azul": {}, "rojo": {}, "casa": {}, "auto": {},
	"pelota": {}, "comida": {}, "lindo": {}, "feo": {}, "nada": {},
	"que": {}, "como": {}, "cuando": {}, "donde": {}, "porque": {},
}

// IsAppropriate classifies whether text plausibly answers the pending field,
// independent of whether it parses. Off-topic replies are rejected before a
// retry is wasted on parsing.
func IsAppropriate(p PendingField, text string) bool {
	normalized := normalizeInput(text)
	if normalized == "" {
		return false
	}

	switch p {
	case PendingDateTime:
		// Every parsable date or time carries a digit; bare punctuation
		// in ordinary prose ("ni idea.") does not read as a date.
		if digitRE.MatchString(normalized) || strings.Contains(normalized, "hs") {
			return true
		}
		_, isRelative := relativeOffsets[normalized]
		return isRelative || strings.HasPrefix(normalized, "pasado")
	case PendingQuantity:
		if digitRE.MatchString(normalized) {
			return true
		}
		for word := range spelledNumbers {
			if normalized == word || strings.HasPrefix(normalized, word+" ") {
				return true
			}
		}
		return false
	case PendingSelectCandidate:
		return digitRE.MatchString(normalized)
	case PendingAskAnesthesiologist:
		return isAffirmative(normalized) || isNegative(normalized)
	case PendingAnesthesiologist, PendingSurgeon:
		if IsNoneToken(normalized) {
			return true
		}
		return !isDenyListed(normalized)
	case PendingLocation, PendingProcedure:
		return !isDenyListed(normalized)
	default:
		return true
	}
}

// isDenyListed reports whether every word of the text is a common
// non-medical word.
func isDenyListed(normalized string) bool {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if _, ok := denyList[w]; !ok {
			return false
		}
	}
	return true
}

// IsNoneToken reports whether text is an explicit "nobody" answer.
func IsNoneToken(text string) bool {
	normalized := normalizeInput(text)
	if _, ok := noneTokens[normalized]; ok {
		return true
	}
	return normalized == "sin anestesiologo" || normalized == "sin anestesista"
}

func isAffirmative(normalized string) bool {
	_, ok := affirmativeTokens[normalized]
	return ok
}

func isNegative(normalized string) bool {
	_, ok := negativeTokens[normalized]
	return ok
}

// ParseYesNo classifies normalized text as an affirmative or negative
// answer. ok is false when the text is neither.
func ParseYesNo(text string) (yes bool, ok bool) {
	normalized := normalizeInput(text)
	if isAffirmative(normalized) {
		return true, true
	}
	if isNegative(normalized) {
		return false, true
	}
	return false, false
}

// ParseQuantity accepts digit sequences and small spelled-out numbers in the
// range 1-100. A leading count ("2 CERS") also parses.
func ParseQuantity(text string) (int, error) {
	normalized := normalizeInput(text)

	if m := quantityRE.FindString(normalized); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n < 1 || n > 100 {
			return 0, ErrQuantityRange
		}
		return n, nil
	}

	for word, n := range spelledNumbers {
		if normalized == word || strings.HasPrefix(normalized, word+" ") {
			return n, nil
		}
	}

	return 0, ErrQuantityRange
}

// ParseChoiceIndex parses a 1-based selection into a 0-based index.
func ParseChoiceIndex(text string, count int) (int, error) {
	normalized := normalizeInput(text)
	m := quantityRE.FindString(normalized)
	if m == "" {
		return 0, errors.New("conversation: no digit in choice")
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > count {
		return 0, errors.New("conversation: choice out of range")
	}
	return n - 1, nil
}

// ValidateFreeText enforces the syntactic minimum for name-like fields.
func ValidateFreeText(text string) error {
	if len(strings.TrimSpace(text)) < 2 {
		return ErrTextTooShort
	}
	return nil
}

// nameConnectors stay lowercase when capitalizing names and places.
var nameConnectors = map[string]struct{}{
	"de": {}, "del": {}, "la": {}, "las": {}, "los": {}, "el": {}, "y": {},
}

// NormalizeName capitalizes each word of a name or place, keeping Spanish
// connectors lowercase and all-caps acronyms (CERS, MLD) untouched. Pure
// formatting, applied after validation.
func NormalizeName(text string) string {
	words := strings.Fields(strings.TrimSpace(text))
	for i, w := range words {
		if len(w) <= 5 && w == strings.ToUpper(w) && !digitRE.MatchString(w) && len(w) > 1 {
			continue
		}
		lower := strings.ToLower(w)
		if _, ok := nameConnectors[lower]; ok && i > 0 {
			words[i] = lower
			continue
		}
		runes := []rune(lower)
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
