package conversation

import (
	"fmt"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/internal/directory"
)

// Field identifies one structured slot of a surgery record.
type Field string

const (
	FieldDateTime         Field = "fecha"
	FieldLocation         Field = "lugar"
	FieldSurgeon          Field = "cirujano"
	FieldProcedure        Field = "cirugia"
	FieldQuantity         Field = "cantidad"
	FieldAnesthesiologist Field = "anestesiologo"
)

// fieldPriority is the fixed order in which missing fields are solicited.
var fieldPriority = []Field{
	FieldDateTime,
	FieldLocation,
	FieldSurgeon,
	FieldProcedure,
	FieldQuantity,
	FieldAnesthesiologist,
}

// PendingField is the slot (or sub-dialog) the engine is currently soliciting.
type PendingField string

const (
	PendingNone                PendingField = ""
	PendingDateTime            PendingField = "datetime"
	PendingLocation            PendingField = "location"
	PendingSurgeon             PendingField = "surgeon"
	PendingProcedure           PendingField = "procedure"
	PendingQuantity            PendingField = "quantity"
	PendingAskAnesthesiologist PendingField = "ask_anesthesiologist"
	PendingSelectCandidate     PendingField = "select_candidate"
	PendingAnesthesiologist    PendingField = "anesthesiologist"
	PendingEditField           PendingField = "awaiting_edit_field"
)

// pendingForField maps a slot to the pending state that solicits it.
func pendingForField(f Field) PendingField {
	switch f {
	case FieldDateTime:
		return PendingDateTime
	case FieldLocation:
		return PendingLocation
	case FieldSurgeon:
		return PendingSurgeon
	case FieldProcedure:
		return PendingProcedure
	case FieldQuantity:
		return PendingQuantity
	case FieldAnesthesiologist:
		return PendingAskAnesthesiologist
	default:
		return PendingNone
	}
}

// PartialDateTime holds independently captured date/time components before
// they are collapsed into one timestamp. A nil component is unknown.
type PartialDateTime struct {
	Day    *int `json:"dia,omitempty"`
	Month  *int `json:"mes,omitempty"`
	Year   *int `json:"anio,omitempty"`
	Hour   *int `json:"hora,omitempty"`
	Minute *int `json:"minuto,omitempty"`
}

// Empty reports whether no component has been captured.
func (p PartialDateTime) Empty() bool {
	return p.Day == nil && p.Month == nil && p.Year == nil && p.Hour == nil && p.Minute == nil
}

// HasDate reports whether both day and month are known.
func (p PartialDateTime) HasDate() bool {
	return p.Day != nil && p.Month != nil
}

// Complete reports whether the components can collapse into one timestamp:
// day, month and hour must all be known.
func (p PartialDateTime) Complete() bool {
	return p.Day != nil && p.Month != nil && p.Hour != nil
}

// Merge overlays the non-nil components of other onto p.
func (p PartialDateTime) Merge(other PartialDateTime) PartialDateTime {
	out := p
	if other.Day != nil {
		out.Day = other.Day
	}
	if other.Month != nil {
		out.Month = other.Month
	}
	if other.Year != nil {
		out.Year = other.Year
	}
	if other.Hour != nil {
		out.Hour = other.Hour
	}
	if other.Minute != nil {
		out.Minute = other.Minute
	}
	return out
}

// Collapse builds a timestamp from the components. Year defaults to the
// reference year and minute defaults to 0. Returns an error when the
// components do not form a real calendar date (e.g. 31/4).
func (p PartialDateTime) Collapse(ref time.Time) (time.Time, error) {
	if !p.Complete() {
		return time.Time{}, fmt.Errorf("conversation: incomplete date/time components")
	}
	year := ref.Year()
	if p.Year != nil {
		year = *p.Year
	}
	minute := 0
	if p.Minute != nil {
		minute = *p.Minute
	}
	t := time.Date(year, time.Month(*p.Month), *p.Day, *p.Hour, minute, 0, 0, ref.Location())
	if t.Day() != *p.Day || int(t.Month()) != *p.Month {
		return time.Time{}, fmt.Errorf("conversation: %02d/%02d is not a valid date", *p.Day, *p.Month)
	}
	return t, nil
}

// InputEvent is one raw user input recorded for idle-session detection.
type InputEvent struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// RecordState is the mutable model for one in-progress surgery booking.
type RecordState struct {
	ConversationID string `json:"conversation_id"`
	OrgID          string `json:"org_id"`

	DateTime         *time.Time      `json:"date_time,omitempty"`
	Partial          PartialDateTime `json:"partial,omitempty"`
	Location         string          `json:"location,omitempty"`
	Surgeon          string          `json:"surgeon,omitempty"`
	Procedure        string          `json:"procedure,omitempty"`
	Quantity         int             `json:"quantity,omitempty"`
	Anesthesiologist string          `json:"anesthesiologist,omitempty"`
	// AnesthesiologistDecided is true once the user assigned one or
	// explicitly declined. The slot blocks confirmation until then.
	AnesthesiologistDecided bool `json:"anesthesiologist_decided"`

	Pending             PendingField          `json:"pending"`
	EditTarget          Field                 `json:"edit_target,omitempty"`
	RetryCount          int                   `json:"retry_count"`
	GraceGranted        bool                  `json:"grace_granted"`
	ConfirmationPending bool                  `json:"confirmation_pending"`
	Candidates          []directory.Candidate `json:"candidates,omitempty"`

	InputHistory []InputEvent `json:"input_history,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewRecordState creates an empty state for a conversation identity.
func NewRecordState(conversationID, orgID string, now time.Time) *RecordState {
	return &RecordState{
		ConversationID: conversationID,
		OrgID:          orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordInput appends a raw input to the history and bumps UpdatedAt.
func (s *RecordState) RecordInput(text string, at time.Time) {
	s.InputHistory = append(s.InputHistory, InputEvent{Text: text, At: at})
	s.UpdatedAt = at
}

// SetPending switches the solicited field. Switching resets the retry
// counter and the grace flag; re-setting the same field does not.
func (s *RecordState) SetPending(p PendingField) {
	if s.Pending != p {
		s.RetryCount = 0
		s.GraceGranted = false
	}
	s.Pending = p
	if p != PendingNone {
		s.ConfirmationPending = false
	}
}

// HasAnySlot reports whether at least one slot has been populated.
func (s *RecordState) HasAnySlot() bool {
	return s.DateTime != nil || !s.Partial.Empty() || s.Location != "" ||
		s.Surgeon != "" || s.Procedure != "" || s.Quantity > 0 ||
		s.Anesthesiologist != "" || s.AnesthesiologistDecided
}

// fieldSet reports whether the slot for f holds a value. For the
// anesthesiologist the decision itself counts, assigned or declined.
func (s *RecordState) fieldSet(f Field) bool {
	switch f {
	case FieldDateTime:
		return s.DateTime != nil
	case FieldLocation:
		return s.Location != ""
	case FieldSurgeon:
		return s.Surgeon != ""
	case FieldProcedure:
		return s.Procedure != ""
	case FieldQuantity:
		return s.Quantity > 0
	case FieldAnesthesiologist:
		return s.AnesthesiologistDecided
	default:
		return false
	}
}

// MissingFields returns unfilled slots in solicitation priority order.
func (s *RecordState) MissingFields() []Field {
	var missing []Field
	for _, f := range fieldPriority {
		if !s.fieldSet(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Reset clears the booking while keeping the conversation identity and the
// input history.
func (s *RecordState) Reset() {
	s.DateTime = nil
	s.Partial = PartialDateTime{}
	s.Location = ""
	s.Surgeon = ""
	s.Procedure = ""
	s.Quantity = 0
	s.Anesthesiologist = ""
	s.AnesthesiologistDecided = false
	s.Pending = PendingNone
	s.EditTarget = ""
	s.RetryCount = 0
	s.GraceGranted = false
	s.ConfirmationPending = false
	s.Candidates = nil
}
