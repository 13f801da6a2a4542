package resolver

import (
	"fmt"

	"github.com/texxasrulez/calendar/event"
)

// CascadeAttendees applies an attendee update (e.g. a participation
// status change) to the given instance and every later exception of the
// series. If the targeted slot has no this-and-future exception yet, one
// is created so the update sticks to later un-excepted slots too.
// Returns the mutated master.
func (r *Resolver) CascadeAttendees(master, instance *event.Event, updates []event.Attendee) (*event.Event, error) {
	if master == nil || master.Start.IsZero() {
		return nil, fmt.Errorf("%w: cannot load master to update attendees", ErrNotFound)
	}

	out := master.Clone()

	if out.Recurrence == nil || len(out.Recurrence.Exceptions) == 0 {
		// no exceptions to cascade over, the update only touches the master
		event.MergeAttendees(out, updates, nil)
		return out, nil
	}

	saved := false
	for i := range out.Recurrence.Exceptions {
		ex := &out.Recurrence.Exceptions[i]

		// merge the update onto this and all later slots
		if ex.Instance >= instance.Instance {
			event.MergeAttendees(ex, updates, nil)
		}
		if ex.Instance == instance.Instance && ex.ThisAndFuture {
			saved = true
		}
	}

	// pin the update to the slot with a this-and-future exception
	if !saved && instance.ID != out.ID {
		ex := *instance.Clone()
		ex.ThisAndFuture = true
		ex.IsException = true
		ex.Recurrence = nil
		event.MergeAttendees(&ex, updates, nil)
		out.Recurrence.UpsertException(ex)
	}

	return out, nil
}
