package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Canned messages and prompt builders. All user-visible text lives here so
// the engine stays free of formatting concerns.

const (
	msgGreeting = "¡Hola! Contame qué cirugía querés registrar. " +
		"Podés mandar todo junto, por ejemplo: \"2 CERS mañana 14hs Hospital Italiano Dr. García\"."

	msgCancelled = "Listo, cancelé el registro en curso. Cuando quieras empezamos uno nuevo."

	msgExtractorFailed = "No llegué a entenderte. Probá decirlo de otra forma, " +
		"o reenviá la descripción completa en un solo mensaje."

	msgRestartAfterRetries = "No estamos llegando a buen puerto con ese dato. " +
		"Reenviá la descripción completa de la cirugía en un solo mensaje y seguimos desde ahí. " +
		"Lo que ya cargamos queda guardado."

	msgConfirmNudge = "Respondeme \"sí\" para confirmar o \"no\" para corregir algo."

	msgNothingPending = "No hay ningún registro en curso para confirmar. " +
		"Contame la cirugía que querés registrar y arrancamos."

	msgDatePassed = "Esa fecha ya pasó. Decime una nueva fecha y hora para la cirugía."

	msgEditPrompt = "¿Qué campo querés corregir? Opciones: fecha, lugar, cirujano, cirugia, cantidad, anestesiologo. " +
		"Podés mandar el campo solo, o el campo seguido del valor nuevo (ej: \"cirujano Rodriguez\")."

	msgRecordSaved = "¡Registro confirmado y guardado! Gracias."

	msgSaveFailed = "Tuve un problema guardando el registro. Respondé \"sí\" de nuevo en un momento."
)

// fieldLabels are the display names used in summaries and errors.
var fieldLabels = map[Field]string{
	FieldDateTime:         "Fecha y hora",
	FieldLocation:         "Lugar",
	FieldSurgeon:          "Cirujano",
	FieldProcedure:        "Cirugía",
	FieldQuantity:         "Cantidad",
	FieldAnesthesiologist: "Anestesiólogo",
}

// askPrompts solicit each field.
var askPrompts = map[PendingField]string{
	PendingDateTime:            "¿Cuándo es la cirugía? (fecha y hora)",
	PendingLocation:            "¿En qué lugar se hace?",
	PendingSurgeon:             "¿Quién es el cirujano?",
	PendingProcedure:           "¿Qué cirugía es?",
	PendingQuantity:            "¿Cuántas son?",
	PendingAskAnesthesiologist: "¿Querés asignar un anestesiólogo?",
	PendingAnesthesiologist:    "¿Quién es el anestesiólogo? (o \"ninguno\")",
}

// helpTexts explain accepted formats per pending field, shown on the help
// command and as contextual help after a first retry exhaustion.
var helpTexts = map[PendingField]string{
	PendingDateTime: "Para la fecha y hora sirven formatos como \"08/08\", \"08/08/2026\", \"14:30\", " +
		"\"1430\", \"14hs\", \"mañana 14hs\" u \"hoy\".",
	PendingLocation:            "Decime el nombre del hospital, clínica o sanatorio (ej: \"Hospital Italiano\").",
	PendingSurgeon:             "Decime el apellido o nombre del cirujano (ej: \"Dr. García\").",
	PendingProcedure:           "Decime el tipo de cirugía (ej: \"CERS\", \"amígdalas\").",
	PendingQuantity:            "Decime cuántas cirugías son, con un número del 1 al 100.",
	PendingAskAnesthesiologist: "Respondeme \"sí\" o \"no\".",
	PendingAnesthesiologist:    "Decime el nombre (aunque sea parcial) o \"ninguno\" si no hay.",
	PendingSelectCandidate:     "Elegí una opción mandando el número de la lista.",
	PendingEditField:           "Mandá el nombre del campo a corregir: fecha, lugar, cirujano, cirugia, cantidad o anestesiologo.",
}

// inappropriatePrompts explain a semantic mismatch per field, distinct from
// a plain parse failure.
var inappropriatePrompts = map[PendingField]string{
	PendingDateTime:            "Eso no parece una fecha ni una hora.",
	PendingLocation:            "Eso no parece el nombre de un lugar.",
	PendingSurgeon:             "Eso no parece el nombre de un cirujano.",
	PendingProcedure:           "Eso no parece un tipo de cirugía.",
	PendingQuantity:            "Eso no parece una cantidad.",
	PendingAskAnesthesiologist: "No te entendí.",
	PendingAnesthesiologist:    "Eso no parece el nombre de un anestesiólogo.",
	PendingSelectCandidate:     "Necesito el número de una de las opciones de la lista.",
}

// askMessage builds the prompt for a pending field.
func askMessage(p PendingField) Reply {
	text, ok := askPrompts[p]
	if !ok {
		text = "Contame el dato que falta."
	}
	if p == PendingAskAnesthesiologist {
		return Reply{Text: text, Options: []string{"Sí", "No"}}
	}
	return Reply{Text: text}
}

// helpMessage builds state-aware contextual help.
func helpMessage(p PendingField) Reply {
	if text, ok := helpTexts[p]; ok {
		return Reply{Text: text}
	}
	return Reply{Text: msgGreeting}
}

// inappropriateMessage combines the mismatch explainer with the field prompt.
func inappropriateMessage(p PendingField) Reply {
	prefix, ok := inappropriatePrompts[p]
	if !ok {
		prefix = "No te entendí."
	}
	prompt := askPrompts[p]
	if prompt == "" {
		prompt = helpTexts[p]
	}
	return Reply{Text: prefix + " " + prompt}
}

// candidateListMessage renders a 1-based numbered choice list.
func candidateListMessage(partial string, names []string) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontré varios anestesiólogos para %q. ¿Cuál es?\n", partial)
	options := make([]string, 0, len(names))
	for i, name := range names {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		options = append(options, fmt.Sprintf("%d", i+1))
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Options: options}
}

// partialPrompt asks for the date/time components still missing.
func partialPrompt(p PartialDateTime) Reply {
	if !p.HasDate() {
		return Reply{Text: "Anoté la hora. ¿Qué día es la cirugía? (ej: \"08/08\" o \"mañana\")"}
	}
	return Reply{Text: "Anoté la fecha. ¿A qué hora es? (ej: \"14:30\" o \"14hs\")"}
}

// noMatchMessage notes that a name was accepted as free text.
func noMatchMessage(name string) Reply {
	return Reply{Text: fmt.Sprintf("No encontré a %q en la agenda, lo anoto igual tal cual me lo pasaste.", name)}
}

// summaryMessage renders the confirmation summary for a complete record.
func summaryMessage(s *RecordState) Reply {
	var b strings.Builder
	b.WriteString("Esto es lo que tengo:\n")
	if s.DateTime != nil {
		fmt.Fprintf(&b, "• %s: %s\n", fieldLabels[FieldDateTime], formatDateTime(*s.DateTime))
	}
	fmt.Fprintf(&b, "• %s: %s\n", fieldLabels[FieldLocation], s.Location)
	fmt.Fprintf(&b, "• %s: %s\n", fieldLabels[FieldSurgeon], s.Surgeon)
	fmt.Fprintf(&b, "• %s: %s\n", fieldLabels[FieldProcedure], s.Procedure)
	fmt.Fprintf(&b, "• %s: %d\n", fieldLabels[FieldQuantity], s.Quantity)
	anesthesiologist := s.Anesthesiologist
	if anesthesiologist == "" {
		anesthesiologist = "sin asignar"
	}
	fmt.Fprintf(&b, "• %s: %s\n", fieldLabels[FieldAnesthesiologist], anesthesiologist)
	b.WriteString("¿Confirmás?")
	return Reply{Text: b.String(), Options: []string{"Sí", "No"}}
}

// formatDateTime renders a timestamp the way users sent it: dd/mm/yyyy hh:mm.
func formatDateTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}
