package resolver

import (
	"fmt"
	"time"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
)

// RemoveRequest carries a removal of an event or one of its occurrences.
type RemoveRequest struct {
	// Event is the stored state of the targeted instance.
	Event *event.Event
	// Master is the top-level recurring event. Nil means Event is the master.
	Master *event.Event
	// Mode selects the removal scope.
	Mode SaveMode
}

// RemoveOutcome describes the writes a resolved removal requires. Exactly
// one of Master/NewMaster/Delete is significant.
type RemoveOutcome struct {
	// Master is the mutated master record to persist.
	Master *event.Event
	// NewMaster replaces the master record entirely (a promoted
	// exception after the master itself was removed).
	NewMaster *event.Event
	// Delete requests removal of the whole series, master and exceptions
	// as one unit.
	Delete bool
	// Mode is the effective save-mode after degradations.
	Mode SaveMode
}

// Remove decides how a removal propagates across a series. A "current"
// removal converts the occurrence back to an EXDATE entry; "future"
// truncates the rule; "all" destroys the series atomically.
func (r *Resolver) Remove(req RemoveRequest) (*RemoveOutcome, error) {
	ev := req.Event
	if ev == nil || ev.Start.IsZero() {
		return nil, fmt.Errorf("%w: cannot load event to remove", ErrNotFound)
	}

	master := req.Master
	if master == nil {
		master = ev
	}

	mode := req.Mode
	// single occurrences stored as exception are removed in place
	if !ev.IsRecurring() && ev.RecurrenceID == "" && ev.IsException {
		mode = SaveModeCurrent
	}

	out := master.Clone()

	// removing an exception instance drops its override record first and
	// resets the slot to the original occurrence date
	target := ev
	if (ev.RecurrenceID != "" || ev.IsException) && out.Recurrence != nil {
		if idx, ok := out.Recurrence.FindException(ev.Instance).Get(); ok {
			removed := out.Recurrence.Exceptions[idx]
			out.Recurrence.RemoveException(ev.Instance)
			if !removed.RecurrenceDate.IsZero() {
				t := ev.Clone()
				t.Start = removed.RecurrenceDate
				target = t
			}
		}
	}

	switch mode {
	case SaveModeCurrent:
		if out.Recurrence == nil {
			out.Recurrence = &event.RecurrenceRule{}
		}

		// drop a matching RDATE entry, the slot came from there
		for j, rdate := range out.Recurrence.RDates {
			if sameDate(rdate, target.Start) {
				out.Recurrence.RDates = append(out.Recurrence.RDates[:j], out.Recurrence.RDates[j+1:]...)
				break
			}
		}

		out.Recurrence.ExDates = append(out.Recurrence.ExDates, target.Start)
		return &RemoveOutcome{Master: out, Mode: mode}, nil

	case SaveModeFuture:
		// removing from the first instance onwards removes everything
		if target.Instance == recurrence.InstanceID(master.Start, master.AllDay) {
			return &RemoveOutcome{Delete: true, Mode: SaveModeAll}, nil
		}
		if out.Recurrence == nil {
			out.Recurrence = &event.RecurrenceRule{}
		}

		out.Recurrence.Until = target.Start.AddDate(0, 0, -1)
		out.Recurrence.Count = 0

		// if all future instances are deleted, drop the rule entirely
		if sameDate(out.Recurrence.Until, master.Start) {
			out.Recurrence = nil
		} else {
			// trim the RDATE tail from the removed slot onwards
			for j, rdate := range out.Recurrence.RDates {
				if sameDate(rdate, target.Start) {
					out.Recurrence.RDates = out.Recurrence.RDates[:j]
					break
				}
			}
			out.Recurrence.Exceptions = filterExceptions(out.Recurrence.Exceptions,
				func(ex *event.Event) bool { return ex.Start.Before(target.Start) })
		}

		return &RemoveOutcome{Master: out, Mode: mode}, nil

	default:
		// removing a master that only consists of loose exceptions
		// promotes the first exception to the new master
		if !target.RecurrenceDate.IsZero() &&
			(out.Recurrence == nil || out.Recurrence.Empty()) &&
			out.Recurrence != nil && len(out.Recurrence.Exceptions) > 0 {
			promoted := out.Recurrence.Exceptions[0].Clone()
			rest := out.Recurrence.Exceptions[1:]
			if promoted.Recurrence == nil {
				promoted.Recurrence = &event.RecurrenceRule{}
			}
			promoted.Recurrence.Exceptions = append([]event.Event(nil), rest...)
			promoted.UID = master.UID
			promoted.ID = master.UID
			promoted.RecurrenceID = ""
			promoted.IsException = false
			return &RemoveOutcome{NewMaster: promoted, Mode: SaveModeAll}, nil
		}

		return &RemoveOutcome{Delete: true, Mode: SaveModeAll}, nil
	}
}

// ExdateFor returns the EXDATE entry that removing the given occurrence
// produces, date-only for all-day events.
func ExdateFor(occurrenceStart time.Time, allday bool) time.Time {
	if allday {
		y, m, d := occurrenceStart.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, occurrenceStart.Location())
	}
	return occurrenceStart
}
