package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/internal/directory"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/observability/metrics"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/surgeries"
	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

// RecordSaver persists a confirmed booking.
type RecordSaver interface {
	Save(ctx context.Context, rec *surgeries.Record) error
}

// SnapshotStore persists in-progress states across restarts. Best effort:
// the in-memory session is authoritative, snapshot failures only log.
type SnapshotStore interface {
	Load(ctx context.Context, conversationID string) (*RecordState, error)
	Save(ctx context.Context, st *RecordState) error
	Delete(ctx context.Context, conversationID string) error
}

// defaultMaxRetries is the per-field failure cap before the engine offers
// contextual help and, on a further failure, drops back to free collection.
const defaultMaxRetries = 3

// Engine is the slot-filling conversation engine. One instance serves all
// conversations; per-conversation serialization lives in the SessionStore.
type Engine struct {
	sessions   *SessionStore
	extractor  EntityExtractor
	directory  directory.Searcher
	records    RecordSaver
	snapshots  SnapshotStore
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
	maxRetries int
	now        func() time.Time
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithDirectory wires the anesthesiologist directory for candidate lookup.
func WithDirectory(d directory.Searcher) EngineOption {
	return func(e *Engine) { e.directory = d }
}

// WithRecordSaver wires persistence for confirmed records.
func WithRecordSaver(r RecordSaver) EngineOption {
	return func(e *Engine) { e.records = r }
}

// WithSnapshotStore wires session recovery snapshots.
func WithSnapshotStore(s SnapshotStore) EngineOption {
	return func(e *Engine) { e.snapshots = s }
}

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxRetries overrides the per-field retry cap.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// NewEngine creates the engine. Sessions, extractor and logger are required.
func NewEngine(sessions *SessionStore, extractor EntityExtractor, logger *logging.Logger, opts ...EngineOption) *Engine {
	if sessions == nil {
		panic("conversation: sessions cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if logger == nil {
		panic("conversation: logger cannot be nil")
	}
	e := &Engine{
		sessions:   sessions,
		extractor:  extractor,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turnResult carries what a turn produced back out of the session lock.
type turnResult struct {
	replies   []Reply
	confirmed bool
}

// ProcessMessage applies one inbound message to its conversation's state and
// returns the replies to send. Turns for the same conversation are applied
// one at a time.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	if req.ConversationID == "" {
		return nil, errors.New("conversation: conversation_id is required")
	}

	var result turnResult
	err := e.sessions.Do(req.ConversationID, req.OrgID, func(st *RecordState, fresh bool) error {
		if fresh {
			e.restoreSnapshot(ctx, st)
		}
		result = e.handleTurn(ctx, st, req.Text)
		e.persistSnapshot(ctx, st, result.confirmed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		ConversationID: req.ConversationID,
		Replies:        result.replies,
		Confirmed:      result.confirmed,
		Timestamp:      e.now(),
	}, nil
}

// restoreSnapshot overlays a persisted state onto a fresh session entry.
func (e *Engine) restoreSnapshot(ctx context.Context, st *RecordState) {
	if e.snapshots == nil {
		return
	}
	saved, err := e.snapshots.Load(ctx, st.ConversationID)
	if err != nil {
		e.logger.Warn("failed to load session snapshot", "conversation_id", st.ConversationID, "error", err)
		return
	}
	if saved == nil {
		return
	}
	id, org, created := st.ConversationID, st.OrgID, st.CreatedAt
	*st = *saved
	st.ConversationID = id
	if st.OrgID == "" {
		st.OrgID = org
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = created
	}
}

// persistSnapshot writes the state after a turn, or clears it once the
// record is confirmed.
func (e *Engine) persistSnapshot(ctx context.Context, st *RecordState, confirmed bool) {
	if e.snapshots == nil {
		return
	}
	var err error
	if confirmed {
		err = e.snapshots.Delete(ctx, st.ConversationID)
	} else {
		err = e.snapshots.Save(ctx, st)
	}
	if err != nil {
		e.logger.Warn("failed to persist session snapshot", "conversation_id", st.ConversationID, "error", err)
	}
}

// handleTurn is the dispatch order for one message: commands first, then the
// confirmation and edit sub-dialogs, then explicit corrections, then the
// pending field, and finally the free-text extractor.
func (e *Engine) handleTurn(ctx context.Context, st *RecordState, text string) turnResult {
	now := e.now()
	text = strings.TrimSpace(text)
	st.RecordInput(text, now)

	// A summary must never coexist with a solicited field. If it does,
	// drop back to collection rather than guessing what the answer means.
	if st.ConfirmationPending && st.Pending != PendingNone {
		e.logger.Error("inconsistent state: confirmation pending with a solicited field",
			"conversation_id", st.ConversationID, "pending", string(st.Pending))
		st.ConfirmationPending = false
	}

	if text == "" {
		return e.turn(st, "empty", helpMessage(st.Pending))
	}

	switch MatchCommand(text) {
	case CommandCancel:
		st.Reset()
		return e.turn(st, "cancel", Reply{Text: msgCancelled})
	case CommandHelp:
		return e.turn(st, "help", helpMessage(st.Pending))
	}

	if st.ConfirmationPending {
		return e.handleConfirmation(ctx, st, text)
	}

	if st.Pending == PendingEditField {
		return e.handleEditSelection(ctx, st, text)
	}

	if c, ok := DetectCorrection(text); ok {
		return e.applyCorrection(ctx, st, c)
	}

	if st.Pending != PendingNone {
		return e.resolvePending(ctx, st, text)
	}

	// "sí" with nothing in progress is a no-op, so a retried confirmation
	// never books twice.
	if yes, ok := ParseYesNo(text); ok && yes && !st.HasAnySlot() {
		return e.turn(st, "noop", Reply{Text: msgNothingPending})
	}

	return e.extractTurn(ctx, st, text, ClassifyMode(st))
}

// turn finalizes a turn's replies and counts it.
func (e *Engine) turn(st *RecordState, outcome string, replies ...Reply) turnResult {
	e.metrics.ObserveTurn(string(st.Pending), outcome)
	return turnResult{replies: replies}
}

// handleConfirmation resolves the yes/no summary dialog.
func (e *Engine) handleConfirmation(ctx context.Context, st *RecordState, text string) turnResult {
	if yes, ok := ParseYesNo(text); ok {
		if yes {
			return e.confirmRecord(ctx, st)
		}
		st.ConfirmationPending = false
		st.SetPending(PendingEditField)
		return e.turn(st, "edit", Reply{Text: msgEditPrompt})
	}

	// A direct correction ("cirujano Rodriguez") skips the edit dialog.
	if c, ok := DetectCorrection(text); ok {
		return e.applyCorrection(ctx, st, c)
	}

	return e.turn(st, "nudge", Reply{Text: msgConfirmNudge})
}

// confirmRecord re-validates and persists a confirmed booking.
func (e *Engine) confirmRecord(ctx context.Context, st *RecordState) turnResult {
	now := e.now()

	// The date may have gone stale while the summary sat unanswered.
	if st.DateTime == nil || !st.DateTime.After(now) {
		st.DateTime = nil
		st.Partial = PartialDateTime{}
		st.ConfirmationPending = false
		st.SetPending(PendingDateTime)
		return e.turn(st, "date_passed", Reply{Text: msgDatePassed})
	}

	if e.records != nil {
		rec := &surgeries.Record{
			OrgID:            st.OrgID,
			ConversationID:   st.ConversationID,
			ScheduledAt:      *st.DateTime,
			Location:         st.Location,
			Surgeon:          st.Surgeon,
			Procedure:        st.Procedure,
			Quantity:         st.Quantity,
			Anesthesiologist: st.Anesthesiologist,
		}
		if err := e.records.Save(ctx, rec); err != nil {
			e.logger.Error("failed to save confirmed record",
				"conversation_id", st.ConversationID, "error", err)
			return e.turn(st, "save_failed", Reply{Text: msgSaveFailed})
		}
		e.logger.Info("surgery record confirmed",
			"conversation_id", st.ConversationID, "record_id", rec.ID,
			"scheduled_at", rec.ScheduledAt.Format(time.RFC3339))
	}

	e.metrics.ObserveRecordConfirmed()
	st.Reset()
	result := e.turn(st, "confirmed", Reply{Text: msgRecordSaved})
	result.confirmed = true
	return result
}

// handleEditSelection resolves the which-field-to-fix dialog. Unrecognized
// input re-prompts without spending a retry.
func (e *Engine) handleEditSelection(ctx context.Context, st *RecordState, text string) turnResult {
	if c, ok := DetectCorrection(text); ok {
		return e.applyCorrection(ctx, st, c)
	}

	if f, ok := MatchFieldKeyword(text); ok {
		st.EditTarget = f
		e.clearField(st, f)
		st.SetPending(editPendingFor(f))
		return e.turn(st, "edit_field", askMessage(st.Pending))
	}

	return e.turn(st, "edit_retry", Reply{Text: msgEditPrompt})
}

// editPendingFor maps an edit target to its solicitation state. Unlike
// first-time collection, editing the anesthesiologist skips the yes/no
// question and asks for the name directly.
func editPendingFor(f Field) PendingField {
	if f == FieldAnesthesiologist {
		return PendingAnesthesiologist
	}
	return pendingForField(f)
}

// clearField empties the slot so the replacement value starts clean.
func (e *Engine) clearField(st *RecordState, f Field) {
	switch f {
	case FieldDateTime:
		st.DateTime = nil
		st.Partial = PartialDateTime{}
	case FieldLocation:
		st.Location = ""
	case FieldSurgeon:
		st.Surgeon = ""
	case FieldProcedure:
		st.Procedure = ""
	case FieldQuantity:
		st.Quantity = 0
	case FieldAnesthesiologist:
		st.Anesthesiologist = ""
		st.AnesthesiologistDecided = false
		st.Candidates = nil
	}
}

// applyCorrection applies an explicit "fieldname value" instruction.
func (e *Engine) applyCorrection(ctx context.Context, st *RecordState, c Correction) turnResult {
	now := e.now()

	switch c.Field {
	case FieldDateTime:
		resolved, err := ResolveDateTime(c.Value, now, PartialDateTime{})
		if err != nil {
			return e.turn(st, "correction_invalid", Reply{Text: err.Error()})
		}
		st.DateTime = nil
		if resolved.Kind == ResolvedComplete {
			st.DateTime = &resolved.Value
			st.Partial = PartialDateTime{}
		} else {
			st.Partial = resolved.Partial
			st.EditTarget = ""
			st.SetPending(PendingDateTime)
			return e.turn(st, "correction_partial", partialPrompt(st.Partial))
		}
	case FieldQuantity:
		n, err := ParseQuantity(c.Value)
		if err != nil {
			return e.turn(st, "correction_invalid", Reply{Text: err.Error()})
		}
		st.Quantity = n
	case FieldAnesthesiologist:
		if err := ValidateFreeText(c.Value); err != nil {
			return e.turn(st, "correction_invalid", Reply{Text: err.Error()})
		}
		return e.assignAnesthesiologist(ctx, st, c.Value)
	default:
		if err := ValidateFreeText(c.Value); err != nil {
			return e.turn(st, "correction_invalid", Reply{Text: err.Error()})
		}
		value := e.normalizeValue(ctx, st, c.Field, c.Value)
		switch c.Field {
		case FieldLocation:
			st.Location = value
		case FieldSurgeon:
			st.Surgeon = value
		case FieldProcedure:
			st.Procedure = value
		}
	}

	return e.advance(st, "correction")
}

// resolvePending interprets the message as the answer to the solicited
// field.
func (e *Engine) resolvePending(ctx context.Context, st *RecordState, text string) turnResult {
	now := e.now()

	if !IsAppropriate(st.Pending, text) {
		return e.failPending(st, inappropriateMessage(st.Pending))
	}

	switch st.Pending {
	case PendingDateTime:
		resolved, err := ResolveDateTime(text, now, st.Partial)
		if err != nil {
			// Long answers ("mañana a las 14 en el Italiano") go to
			// the extractor instead of burning a retry on the grammar.
			if len(strings.Fields(text)) > 3 {
				return e.extractTurn(ctx, st, text, ModeFillMissing)
			}
			return e.failPending(st, Reply{Text: err.Error()})
		}
		if resolved.Kind == ResolvedPartial {
			st.Partial = resolved.Partial
			st.RetryCount = 0
			st.GraceGranted = false
			return e.turn(st, "partial", partialPrompt(st.Partial))
		}
		st.DateTime = &resolved.Value
		st.Partial = PartialDateTime{}
		return e.advance(st, "filled")

	case PendingLocation, PendingSurgeon, PendingProcedure:
		if err := ValidateFreeText(text); err != nil {
			return e.failPending(st, Reply{Text: err.Error()})
		}
		field := st.Pending
		value := e.normalizeValue(ctx, st, fieldForPending(field), text)
		switch field {
		case PendingLocation:
			st.Location = value
		case PendingSurgeon:
			st.Surgeon = value
		case PendingProcedure:
			st.Procedure = value
		}
		return e.advance(st, "filled")

	case PendingQuantity:
		n, err := ParseQuantity(text)
		if err != nil {
			return e.failPending(st, Reply{Text: err.Error()})
		}
		st.Quantity = n
		return e.advance(st, "filled")

	case PendingAskAnesthesiologist:
		yes, ok := ParseYesNo(text)
		if !ok {
			return e.failPending(st, inappropriateMessage(st.Pending))
		}
		if !yes {
			st.AnesthesiologistDecided = true
			return e.advance(st, "filled")
		}
		st.SetPending(PendingAnesthesiologist)
		return e.turn(st, "ask", askMessage(st.Pending))

	case PendingAnesthesiologist:
		if IsNoneToken(text) {
			st.Anesthesiologist = ""
			st.AnesthesiologistDecided = true
			return e.advance(st, "filled")
		}
		if err := ValidateFreeText(text); err != nil {
			return e.failPending(st, Reply{Text: err.Error()})
		}
		return e.assignAnesthesiologist(ctx, st, text)

	case PendingSelectCandidate:
		idx, err := ParseChoiceIndex(text, len(st.Candidates))
		if err != nil {
			return e.failPending(st, inappropriateMessage(st.Pending))
		}
		st.Anesthesiologist = st.Candidates[idx].Name
		st.AnesthesiologistDecided = true
		st.Candidates = nil
		return e.advance(st, "filled")
	}

	return e.turn(st, "unhandled", helpMessage(st.Pending))
}

// fieldForPending is the inverse of pendingForField for simple slots.
func fieldForPending(p PendingField) Field {
	switch p {
	case PendingDateTime:
		return FieldDateTime
	case PendingLocation:
		return FieldLocation
	case PendingSurgeon:
		return FieldSurgeon
	case PendingProcedure:
		return FieldProcedure
	case PendingQuantity:
		return FieldQuantity
	default:
		return FieldAnesthesiologist
	}
}

// failPending counts a failed attempt at the pending field. Hitting the cap
// first earns one grace attempt with contextual help; failing that, the
// engine drops back to free collection keeping whatever is already filled.
func (e *Engine) failPending(st *RecordState, reply Reply) turnResult {
	st.RetryCount++
	if st.RetryCount < e.maxRetries {
		return e.turn(st, "retry", reply)
	}

	if !st.GraceGranted {
		st.GraceGranted = true
		st.RetryCount = e.maxRetries - 1
		e.metrics.ObserveRetryExhaustion()
		return e.turn(st, "grace", helpMessage(st.Pending))
	}

	e.logger.Warn("retries exhausted, returning to free collection",
		"conversation_id", st.ConversationID, "pending", string(st.Pending))
	st.Candidates = nil
	st.SetPending(PendingNone)
	return e.turn(st, "exhausted", Reply{Text: msgRestartAfterRetries})
}

// assignAnesthesiologist matches a name against the directory and binds it,
// asks the user to pick among several hits, or keeps the raw name when the
// directory has no match.
func (e *Engine) assignAnesthesiologist(ctx context.Context, st *RecordState, name string) turnResult {
	if e.directory == nil {
		st.Anesthesiologist = NormalizeName(name)
		st.AnesthesiologistDecided = true
		return e.advance(st, "filled")
	}

	candidates, err := e.directory.SearchByPartialName(ctx, name, st.OrgID)
	if err != nil {
		e.logger.Warn("directory search failed, keeping raw name",
			"conversation_id", st.ConversationID, "error", err)
		candidates = nil
	}

	switch result := ResolveCandidates(candidates); result.Kind {
	case DisambiguationOne:
		st.Anesthesiologist = result.Match.Name
		st.AnesthesiologistDecided = true
		return e.advance(st, "filled")
	case DisambiguationMany:
		st.Candidates = result.Candidates
		st.SetPending(PendingSelectCandidate)
		names := make([]string, len(result.Candidates))
		for i, c := range result.Candidates {
			names[i] = c.Name
		}
		return e.turn(st, "disambiguate", candidateListMessage(name, names))
	default:
		normalized := NormalizeName(name)
		st.Anesthesiologist = normalized
		st.AnesthesiologistDecided = true
		result := e.advance(st, "filled")
		result.replies = append([]Reply{noMatchMessage(normalized)}, result.replies...)
		return result
	}
}

// extractTurn runs the entity extractor over free text and folds the result
// into the state. Extractor failures leave the state untouched.
func (e *Engine) extractTurn(ctx context.Context, st *RecordState, text string, mode ExtractMode) turnResult {
	now := e.now()
	req := BuildExtractionRequest(mode, text, now, st, "")

	start := time.Now()
	fields, err := e.extractor.Extract(ctx, req)
	if err != nil {
		e.metrics.ObserveExtractor(string(mode), "error", time.Since(start).Seconds())
		e.logger.Warn("extraction failed",
			"conversation_id", st.ConversationID, "mode", string(mode), "error", err)
		if st.Pending != PendingNone {
			return e.failPending(st, Reply{Text: msgExtractorFailed})
		}
		return e.turn(st, "extract_failed", Reply{Text: msgExtractorFailed})
	}
	e.metrics.ObserveExtractor(string(mode), "ok", time.Since(start).Seconds())

	if len(fields) == 0 {
		if !st.HasAnySlot() {
			return e.turn(st, "greeting", Reply{Text: msgGreeting})
		}
		if st.Pending != PendingNone {
			return e.failPending(st, Reply{Text: msgExtractorFailed})
		}
		return e.turn(st, "extract_empty", Reply{Text: msgExtractorFailed})
	}

	return e.applyExtraction(ctx, st, fields, mode)
}

// applyExtraction merges extractor output into the state. In fill-missing
// mode only unset slots are touched; explicit corrections are the way to
// override a filled slot.
func (e *Engine) applyExtraction(ctx context.Context, st *RecordState, fields map[string]string, mode ExtractMode) turnResult {
	fillOnly := mode == ModeFillMissing

	if st.DateTime == nil {
		st.Partial = st.Partial.Merge(partialFromFields(fields))
	}
	if v := fields[keyLocation]; v != "" && (!fillOnly || st.Location == "") {
		st.Location = NormalizeName(v)
	}
	if v := fields[keySurgeon]; v != "" && (!fillOnly || st.Surgeon == "") {
		st.Surgeon = NormalizeName(v)
	}
	if v := fields[keyProcedure]; v != "" && (!fillOnly || st.Procedure == "") {
		st.Procedure = NormalizeName(v)
	}
	if v := fields[keyQuantity]; v != "" && (!fillOnly || st.Quantity == 0) {
		if n, err := ParseQuantity(v); err == nil {
			st.Quantity = n
		}
	}
	if v := fields[keyAnesthesiologist]; v != "" && (!fillOnly || !st.AnesthesiologistDecided) {
		return e.assignAnesthesiologist(ctx, st, v)
	}

	return e.advance(st, "extracted")
}

// partialFromFields lifts numeric date/time keys into components.
func partialFromFields(fields map[string]string) PartialDateTime {
	var p PartialDateTime
	p.Day = intField(fields, keyDay, 1, 31)
	p.Month = intField(fields, keyMonth, 1, 12)
	p.Year = intField(fields, keyYear, 2000, 2100)
	p.Hour = intField(fields, keyHour, 0, 23)
	p.Minute = intField(fields, keyMinute, 0, 59)
	return p
}

func intField(fields map[string]string, key string, min, max int) *int {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min || n > max {
		return nil
	}
	return &n
}

// normalizeValue formats a name-like value, delegating long phrases to the
// extractor's normalize-field mode.
func (e *Engine) normalizeValue(ctx context.Context, st *RecordState, field Field, text string) string {
	if len(strings.Fields(text)) <= 4 {
		return NormalizeName(text)
	}

	req := BuildExtractionRequest(ModeNormalizeField, text, e.now(), st, field)
	start := time.Now()
	fields, err := e.extractor.Extract(ctx, req)
	if err != nil {
		e.metrics.ObserveExtractor(string(ModeNormalizeField), "error", time.Since(start).Seconds())
		return NormalizeName(text)
	}
	e.metrics.ObserveExtractor(string(ModeNormalizeField), "ok", time.Since(start).Seconds())

	if v := fields[string(field)]; v != "" {
		return NormalizeName(v)
	}
	return NormalizeName(text)
}

// advance collapses the date when possible, then either solicits the next
// missing field or presents the confirmation summary.
func (e *Engine) advance(st *RecordState, outcome string) turnResult {
	now := e.now()
	st.EditTarget = ""

	if st.DateTime == nil && st.Partial.Complete() {
		value, err := st.Partial.Collapse(now)
		if err != nil {
			st.Partial.Day = nil
			st.Partial.Month = nil
			st.SetPending(PendingDateTime)
			return e.turn(st, outcome, Reply{Text: ErrDateTimeFormat.Error()})
		}
		st.DateTime = &value
		st.Partial = PartialDateTime{}
	}

	missing := st.MissingFields()
	if len(missing) == 0 {
		st.SetPending(PendingNone)
		st.ConfirmationPending = true
		return e.turn(st, outcome, summaryMessage(st))
	}

	next := pendingForField(missing[0])
	st.SetPending(next)
	if next == PendingDateTime && !st.Partial.Empty() {
		return e.turn(st, outcome, partialPrompt(st.Partial))
	}
	return e.turn(st, outcome, askMessage(next))
}
