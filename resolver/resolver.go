package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
	"github.com/texxasrulez/calendar/scheduling"
)

// ErrNotFound is returned when the targeted instance cannot be located.
// The resolver performs no mutation in that case.
var ErrNotFound = errors.New("event instance not found")

// Resolver turns an edit request into the minimal set of record writes:
// at most one mutated master plus optionally one new series. It works on
// deep copies of its inputs and never mutates the caller's snapshot.
type Resolver struct {
	engine *recurrence.Engine
	logger *slog.Logger
	newUID func() string
}

// New creates a resolver. A nil engine or logger selects the defaults.
func New(engine *recurrence.Engine, logger *slog.Logger) *Resolver {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		engine: engine,
		logger: logger,
		newUID: uuid.NewString,
	}
}

// EditRequest carries one edit into the resolver.
type EditRequest struct {
	// Event is the submitted event data.
	Event event.Event
	// Old is the stored state of the targeted instance; may be the master
	// itself when the master is edited directly.
	Old *event.Event
	// Master is the top-level recurring event. Nil means Old is the master.
	Master *event.Event
	// Mode selects how the edit propagates across the series.
	Mode SaveMode
	// UserEmails are the current user's addresses, used to confirm the
	// caller is the organizer before attendee status is reset.
	UserEmails []string
	// Imported marks edits originating from an external import or iTip
	// merge. They are treated as already authoritative: no reschedule
	// inference, and client-supplied exceptions win over stored ones.
	Imported bool
}

// Outcome describes the writes a resolved edit requires.
type Outcome struct {
	// Master is the mutated master record, nil when no master write is
	// needed (savemode "new").
	Master *event.Event
	// NewSeries is a new independent record to insert ("new" and "future"
	// splits).
	NewSeries *event.Event
	// Reschedule reports whether the edit was scheduling-significant.
	Reschedule bool
	// Mode is the effective save-mode after degradations (e.g. "future"
	// on the first instance degrades to "all").
	Mode SaveMode
}

// Resolve applies the save-mode decision procedure to one edit.
func (r *Resolver) Resolve(req EditRequest) (*Outcome, error) {
	old := req.Old
	if old == nil || old.Start.IsZero() {
		return nil, fmt.Errorf("%w: cannot load instance to update", ErrNotFound)
	}

	master := req.Master
	if master == nil {
		master = old
	}

	edit := req.Event.Clone()
	mode := req.Mode

	recurringContext := old.IsRecurring() || old.RecurrenceID != "" || old.IsException
	if recurringContext {
		// this-and-future on the first instance equals "all"; a master
		// handed in directly carries no instance and means the same
		if mode == SaveModeFuture && !master.Start.IsZero() &&
			(old.Instance == "" || old.Instance == recurrence.InstanceID(master.Start, master.AllDay)) {
			mode = SaveModeAll
		}
		// single occurrences stored as exception can only be edited in place
		if !old.IsRecurring() && old.RecurrenceID == "" && old.IsException {
			mode = SaveModeCurrent
		}

		// stick to the master timezone for all occurrences
		if !master.AllDay || edit.AllDay {
			masterLoc := master.Start.Location()
			if edit.Start.Location().String() != masterLoc.String() {
				edit.Start = edit.Start.In(masterLoc)
				edit.End = edit.End.In(masterLoc)
			}
		}
	}

	reschedule := false
	if !req.Imported {
		detector := scheduling.NewDetector(req.UserEmails)
		detector.Logger = r.logger
		reschedule = detector.CheckScheduling(edit, old)
	}

	// increment sequence of plain events when scheduling is affected
	if reschedule && edit.Sequence == 0 && !recurringContext {
		edit.Sequence = old.Sequence + 1
	}

	// keep saved EXDATE entries not re-submitted by the client
	withExceptions := req.Imported || (edit.Recurrence != nil && len(edit.Recurrence.Exceptions) > 0)
	if old.Recurrence != nil && len(old.Recurrence.ExDates) > 0 &&
		edit.Recurrence != nil && edit.Recurrence.ExDates == nil {
		edit.Recurrence.ExDates = append([]time.Time(nil), old.Recurrence.ExDates...)
	}
	if !withExceptions && edit.Recurrence != nil && edit.Recurrence.Exceptions == nil &&
		old.Recurrence != nil && len(old.Recurrence.Exceptions) > 0 {
		edit.Recurrence.Exceptions = old.Recurrence.ExceptionList()
	}

	var (
		outcome *Outcome
		err     error
	)
	switch mode {
	case SaveModeNew:
		outcome = r.resolveNew(edit, master)
	case SaveModeCurrent:
		outcome = r.resolveCurrent(edit, old, master, reschedule)
	case SaveModeFuture:
		outcome, err = r.resolveFuture(edit, old, master, reschedule)
	default:
		outcome = r.resolveAll(edit, old, master, withExceptions)
	}
	if err != nil {
		return nil, err
	}

	outcome.Reschedule = reschedule
	outcome.Mode = mode

	if outcome.Master != nil && outcome.Master.IsRecurring() {
		for _, instance := range r.engine.InconsistentExceptions(outcome.Master) {
			r.logger.Warn("exception does not match any generated occurrence, keeping it",
				"uid", outcome.Master.UID,
				"instance", instance)
		}
	}

	return outcome, nil
}

// resolveNew detaches the edit entirely: fresh UID, no recurrence, no
// master mutation.
func (r *Resolver) resolveNew(edit *event.Event, master *event.Event) *Outcome {
	edit.UID = r.newUID()
	edit.ID = edit.UID
	edit.Recurrence = nil
	edit.RecurrenceID = ""
	edit.RecurrenceDate = time.Time{}
	edit.Instance = ""
	edit.ThisAndFuture = false
	edit.IsException = false
	if edit.Calendar == "" {
		edit.Calendar = master.Calendar
	}

	return &Outcome{NewSeries: edit}
}

// resolveCurrent attaches the edit to the master as a single-instance
// exception, or retargets a matching RDATE entry instead when only the
// date moved on an RDATE-born slot.
func (r *Resolver) resolveCurrent(edit, old, master *event.Event, reschedule bool) *Outcome {
	// an exception never re-declares a rule, nor keeps instance routing
	edit.Recurrence = nil
	edit.ThisAndFuture = false
	edit.IsException = true
	edit.RecurrenceID = master.UID

	if reschedule {
		edit.Sequence = maxInt(old.Sequence, master.Sequence) + 1
	} else if edit.Sequence == 0 {
		switch {
		case old.Sequence > 0:
			edit.Sequence = old.Sequence
		case master.Sequence > 0:
			edit.Sequence = master.Sequence
		default:
			edit.Sequence = 1
		}
	}

	out := master.Clone()
	if out.Recurrence == nil {
		out.Recurrence = &event.RecurrenceRule{}
	}

	if old.Instance != "" && len(out.Recurrence.Exceptions) > 0 {
		if r.updateRecurrenceExceptions(out, edit, old, SaveModeCurrent) {
			return &Outcome{Master: out}
		}
	}

	addException := true

	// a date change on an RDATE-born slot moves the RDATE entry instead
	// of hiding it behind an exception
	if len(out.Recurrence.RDates) > 0 && !sameDate(old.Start, edit.Start) {
		for j, rdate := range out.Recurrence.RDates {
			if sameDate(rdate, old.Start) {
				out.Recurrence.RDates[j] = edit.Start
				sort.Slice(out.Recurrence.RDates, func(a, b int) bool {
					return out.Recurrence.RDates[a].Before(out.Recurrence.RDates[b])
				})
				addException = false
				break
			}
		}
	}

	if addException {
		addExceptionRecord(out, edit, old)
	}

	return &Outcome{Master: out}
}

// resolveFuture splits the series at the edited instance: the master is
// truncated via UNTIL and a new independent series is created from the
// edit.
func (r *Resolver) resolveFuture(edit, old, master *event.Event, reschedule bool) (*Outcome, error) {
	// a slot already claimed by a this-and-future exception absorbs the
	// edit in place and cascades it onto later exceptions, no split needed
	if old.ThisAndFuture && master.Recurrence != nil && len(master.Recurrence.Exceptions) > 0 {
		out := master.Clone()
		if r.updateRecurrenceExceptions(out, edit, old, SaveModeFuture) {
			return &Outcome{Master: out}, nil
		}
	}

	series := edit
	series.UID = r.newUID()
	series.ID = series.UID
	series.RecurrenceID = ""
	series.RecurrenceDate = time.Time{}
	series.Instance = ""
	series.IsException = false
	series.ThisAndFuture = false
	if series.Calendar == "" {
		series.Calendar = master.Calendar
	}
	if series.Recurrence == nil && master.Recurrence != nil {
		series.Recurrence = master.Recurrence.Clone()
	}

	if series.Recurrence != nil {
		if reschedule {
			// a rescheduled split invalidates old per-instance overrides
			series.Recurrence.Exceptions = nil
		} else {
			series.Recurrence.Exceptions = filterExceptions(series.Recurrence.Exceptions,
				func(ex *event.Event) bool { return ex.Start.After(series.Start) })
			series.Recurrence.ExDates = filterDates(series.Recurrence.ExDates,
				func(d time.Time) bool { return d.After(series.Start) })
		}

		// compute remaining occurrences for the new series
		if series.Recurrence.Count > 0 {
			consumed, err := r.engine.CountConsumed(master, old.Start)
			if err != nil {
				return nil, fmt.Errorf("splitting series %s: %w", master.UID, err)
			}
			series.Recurrence.Count -= consumed
		}

		// remove stale fixed weekday/month filters when the date changed
		if !sameDate(old.Start, series.Start) {
			if series.Recurrence.HasFixedWeekday() {
				series.Recurrence.ByDay = nil
			}
			if old.Recurrence != nil && len(old.Recurrence.ByMonth) == 1 &&
				old.Recurrence.ByMonth[0] == int(old.Start.Month()) {
				series.Recurrence.ByMonth = nil
			}
		}
	}

	// truncate the master at the split point
	out := master.Clone()
	if out.Recurrence == nil {
		out.Recurrence = &event.RecurrenceRule{}
	}
	out.Recurrence.Until = old.Start.AddDate(0, 0, -1)
	out.Recurrence.Count = 0
	out.Recurrence.Exceptions = filterExceptions(out.Recurrence.Exceptions,
		func(ex *event.Event) bool { return ex.Start.Before(series.Start) })
	out.Recurrence.ExDates = filterDates(out.Recurrence.ExDates,
		func(d time.Time) bool { return d.Before(series.Start) })
	if reschedule {
		out.Recurrence.ExDates = nil
	}

	return &Outcome{Master: out, NewSeries: series}, nil
}

// resolveAll replaces the master wholesale, reconciling start/end with a
// shift heuristic and keeping stored exceptions aligned.
func (r *Resolver) resolveAll(edit, old, master *event.Event, withExceptions bool) *Outcome {
	out := edit
	out.ID = master.UID
	out.UID = master.UID
	out.RecurrenceID = ""
	out.IsException = false

	// use the start date from the master but be smart about time or
	// duration changes computed from an already-shifted occurrence
	oldStartDate := old.Start.Format("2006-01-02")
	oldStartTime := timeKey(old.Start, old.AllDay)
	oldDuration := durationKey(old)

	newStartDate := out.Start.Format("2006-01-02")
	newStartTime := timeKey(out.Start, out.AllDay)
	newDuration := durationKey(out)

	diff := oldStartDate != newStartDate || oldStartTime != newStartTime || oldDuration != newDuration
	dateShift := out.Start.Sub(old.Start)

	if diff && (oldStartDate == newStartDate || oldDuration == newDuration) {
		// shifted or resized
		duration := out.End.Sub(out.Start)
		out.Start = master.Start.Add(dateShift)
		out.End = out.Start.Add(duration)

		if oldStartDate != newStartDate && out.Recurrence != nil {
			if out.Recurrence.HasFixedWeekday() {
				out.Recurrence.ByDay = nil
			}
			if old.Recurrence != nil && len(old.Recurrence.ByMonth) == 1 &&
				old.Recurrence.ByMonth[0] == int(old.Start.Month()) {
				out.Recurrence.ByMonth = nil
			}
		}
	} else if newStartDate+newStartTime == oldStartDate+oldStartTime {
		// dates did not change at all, trust the master verbatim
		out.Start = master.Start
		out.End = master.End
	}

	// saving an instance in "all" mode keeps the master's exception state
	if old.RecurrenceID != "" {
		if out.Recurrence != nil && master.Recurrence != nil {
			out.Recurrence.Exceptions = master.Recurrence.ExceptionList()
			out.Recurrence.ExDates = append([]time.Time(nil), master.Recurrence.ExDates...)
		}
	} else if master.Instance != "" {
		out.Instance = master.Instance
		out.RecurrenceDate = master.RecurrenceDate
	}

	if out.Recurrence != nil && len(out.Recurrence.Exceptions) > 0 && !withExceptions {
		// forward attendee changes to exceptions
		added, removed := event.DiffAttendees(old.Attendees, out.Attendees)
		if len(added) > 0 || len(removed) > 0 {
			for i := range out.Recurrence.Exceptions {
				event.MergeAttendees(&out.Recurrence.Exceptions[i], added, removed)
			}
		}

		// a master-level date shift moves the whole recurrence chain, so
		// every exception must be retargeted to its shifted slot
		if oldStartDate != newStartDate || oldStartTime != newStartTime {
			layout := recurrence.InstanceIDLayout(out.AllDay)
			for i := range out.Recurrence.Exceptions {
				ex := &out.Recurrence.Exceptions[i]

				rid := ex.RecurrenceDate
				if rid.IsZero() && ex.Instance != "" {
					if parsed, _, err := recurrence.ParseInstanceID(ex.Instance, old.Start.Location()); err == nil {
						rid = parsed
					}
				}
				if rid.IsZero() {
					r.logger.Warn("cannot retarget exception without recurrence date",
						"uid", out.UID, "instance", ex.Instance)
					continue
				}

				rid = rid.Add(dateShift)
				ex.RecurrenceDate = rid
				ex.Instance = rid.Format(layout)
			}
		}
	}

	return &Outcome{Master: out}
}

// updateRecurrenceExceptions applies the edit to an already existing
// exception claiming the same slot, and for "future" mode cascades the
// edit's properties onto every exception at or after the slot. Returns
// whether an existing record absorbed the edit.
func (r *Resolver) updateRecurrenceExceptions(master, edit, old *event.Event, mode SaveMode) bool {
	saved := false

	var added []event.Attendee
	var removed []string
	if mode == SaveModeFuture {
		added, removed = event.DiffAttendees(old.Attendees, edit.Attendees)
	}

	for i := range master.Recurrence.Exceptions {
		ex := &master.Recurrence.Exceptions[i]

		if ex.Instance == old.Instance {
			// an existing exception can only be replaced when its
			// this-and-future mode matches the requested one
			if ex.ThisAndFuture == (mode == SaveModeFuture) {
				replacement := *edit.Clone()
				replacement.Instance = old.Instance
				replacement.ThisAndFuture = old.ThisAndFuture
				replacement.RecurrenceDate = old.RecurrenceDate
				master.Recurrence.Exceptions[i] = replacement
				saved = true
				continue
			}
		}

		if mode == SaveModeFuture && ex.Instance >= old.Instance {
			overlay := edit.Clone()
			overlay.Instance = old.Instance
			overlay.RecurrenceDate = old.RecurrenceDate
			MergeException(ex, overlay, "attendees")
			if len(added) > 0 || len(removed) > 0 {
				event.MergeAttendees(ex, added, removed)
			}
		}
	}

	return saved
}

// addExceptionRecord attaches the edit to the master's exception list,
// carrying forward the slot identity from the old instance state.
func addExceptionRecord(master *event.Event, edit, old *event.Event) {
	ex := *edit.Clone()
	if old != nil {
		ex.Instance = old.Instance
		if ex.RecurrenceDate.IsZero() {
			if !old.RecurrenceDate.IsZero() {
				ex.RecurrenceDate = old.RecurrenceDate
			} else {
				ex.RecurrenceDate = old.Start
			}
		}
	} else if ex.RecurrenceDate.IsZero() {
		ex.RecurrenceDate = ex.Start
	}
	if ex.Instance == "" {
		ex.Instance = recurrence.InstanceID(ex.RecurrenceDate, master.AllDay)
	}

	master.Recurrence.UpsertException(ex)
}

func filterExceptions(list []event.Event, keep func(*event.Event) bool) []event.Event {
	var out []event.Event
	for i := range list {
		if keep(&list[i]) {
			out = append(out, list[i])
		}
	}
	return out
}

func filterDates(list []time.Time, keep func(time.Time) bool) []time.Time {
	var out []time.Time
	for _, d := range list {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// timeKey reduces a start time to its comparison key; all-day events
// carry no significant time component.
func timeKey(t time.Time, allday bool) string {
	if allday {
		return ""
	}
	return t.Format("15:04")
}

// durationKey renders an event length the way it is compared: whole days
// for all-day events, seconds otherwise.
func durationKey(e *event.Event) string {
	if e.AllDay {
		days := int(e.End.Sub(e.Start).Hours() / 24)
		return fmt.Sprintf("P%dD", days)
	}
	return fmt.Sprintf("PT%dS", int(e.End.Sub(e.Start).Seconds()))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
