// Package scheduling decides whether an edit is scheduling-significant
// and therefore invalidates prior attendee responses.
package scheduling

import (
	"log/slog"
	"time"

	"github.com/texxasrulez/calendar/event"
)

// Property names considered significant for scheduling. Any difference in
// one of them between the stored and the submitted state makes the edit a
// reschedule.
var schedulingProperties = []string{"start", "end", "allday", "recurrence", "location", "cancelled"}

// Detector compares incoming edits against prior state. UserEmails holds
// the current user's known addresses (normalized), used to confirm the
// caller is the organizer before attendee status is touched.
type Detector struct {
	UserEmails []string
	Logger     *slog.Logger
}

// NewDetector creates a detector for the given user addresses.
func NewDetector(userEmails []string) *Detector {
	normalized := make([]string, len(userEmails))
	for i, e := range userEmails {
		normalized[i] = event.NormalizeEmail(e)
	}
	return &Detector{UserEmails: normalized, Logger: slog.Default()}
}

// IsReschedule reports whether the edit changes any scheduling-significant
// property relative to the stored state. Edits carrying an explicit
// sequence number are treated as already authoritative and never inferred
// as reschedules.
func (d *Detector) IsReschedule(edit, old *event.Event) bool {
	if edit.Sequence > 0 {
		return false
	}

	for _, prop := range schedulingProperties {
		if !d.propertyEqual(prop, edit, old) {
			return true
		}
	}
	return false
}

// CheckScheduling runs reschedule detection and, when the edit does
// reschedule and the caller is confirmed to be the organizer, resets the
// participation status of every regular attendee to NEEDS-ACTION with
// rsvp set. DELEGATED and NON-PARTICIPANT entries stay untouched.
func (d *Detector) CheckScheduling(edit, old *event.Event) bool {
	reschedule := d.IsReschedule(edit, old)

	if reschedule && len(edit.Attendees) > 0 {
		isOrganizer := false
		attendees := append([]event.Attendee(nil), edit.Attendees...)

		for i, a := range attendees {
			if a.Role == event.RoleOrganizer {
				if a.Email != "" && d.isUserEmail(a.Email) {
					isOrganizer = true
				}
			} else if a.Role != event.RoleNonParticipant && a.Status != event.StatusDelegated {
				attendees[i].Status = event.StatusNeedsAction
				attendees[i].RSVP = true
			}
		}

		if !isOrganizer && edit.Organizer != nil && d.isUserEmail(edit.Organizer.Email) {
			isOrganizer = true
		}

		// only the organizer may reset participation status
		if isOrganizer {
			edit.Attendees = attendees
			if d.Logger != nil {
				d.Logger.Debug("reschedule detected, attendee status reset",
					"uid", edit.UID,
					"attendees", len(attendees))
			}
		}
	}

	return reschedule
}

func (d *Detector) isUserEmail(email string) bool {
	key := event.NormalizeEmail(email)
	for _, e := range d.UserEmails {
		if e == key {
			return true
		}
	}
	return false
}

func (d *Detector) propertyEqual(prop string, edit, old *event.Event) bool {
	switch prop {
	case "start":
		return timesEqual(edit.Start, old.Start, edit.AllDay || old.AllDay)
	case "end":
		return timesEqual(edit.End, old.End, edit.AllDay || old.AllDay)
	case "allday":
		return edit.AllDay == old.AllDay
	case "location":
		return edit.Location == old.Location
	case "cancelled":
		return (edit.Status == event.StatusCancelled) == (old.Status == event.StatusCancelled)
	case "recurrence":
		return rulesEqual(old.Recurrence, edit.Recurrence)
	}
	return true
}

// timesEqual compares two timestamps, reduced to the calendar date when
// either side is an all-day event.
func timesEqual(a, b time.Time, dateOnly bool) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	if dateOnly {
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	}
	return a.Equal(b)
}

// rulesEqual compares the stored rule (a) against the submitted rule (b)
// for scheduling purposes. Exception lists never constitute a reschedule
// by themselves and are ignored. A pure shortening of the series (smaller
// new COUNT, or earlier new UNTIL, all else equal) is not a reschedule
// either, so the shrunk bound is relaxed out of the comparison.
func rulesEqual(a, b *event.RecurrenceRule) bool {
	if a.Empty() != b.Empty() {
		return false
	}
	if a.Empty() {
		return true
	}

	aCount, bCount := a.Count, b.Count
	aUntil, bUntil := a.Until, b.Until
	if aCount > 0 && bCount > 0 && bCount < aCount {
		aCount, bCount = 0, 0
	} else if !aUntil.IsZero() && !bUntil.IsZero() && bUntil.Before(aUntil) {
		aUntil, bUntil = time.Time{}, time.Time{}
	}

	if a.Frequency != b.Frequency ||
		normInterval(a.Interval) != normInterval(b.Interval) ||
		aCount != bCount ||
		!aUntil.Equal(bUntil) {
		return false
	}

	if !stringSlicesEqual(a.ByDay, b.ByDay) ||
		!intSlicesEqual(a.ByMonth, b.ByMonth) ||
		!intSlicesEqual(a.ByMonthDay, b.ByMonthDay) ||
		!intSlicesEqual(a.BySetPos, b.BySetPos) {
		return false
	}

	return timeSlicesEqual(a.ExDates, b.ExDates) && timeSlicesEqual(a.RDates, b.RDates)
}

// normInterval maps the implicit default interval to its explicit form.
func normInterval(i int) int {
	if i == 0 {
		return 1
	}
	return i
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func timeSlicesEqual(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
