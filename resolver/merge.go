package resolver

import (
	"time"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
)

// Properties that are never overwritten on an exception, regardless of
// what the overlay carries. Slot identity and series routing belong to
// the base record.
var forbiddenMergeProps = map[string]struct{}{
	"id":              {},
	"uid":             {},
	"recurrence":      {},
	"recurrence_date": {},
	"thisandfuture":   {},
	"organizer":       {},
}

// MergeException copies the overlay's properties onto the base exception.
// Forbidden and blacklisted properties are skipped, and zero-valued
// overlay fields are treated as not submitted rather than as clears, so a
// partial overlay never wipes the base; thisandfuture is only taken over
// when the overlay addresses the base's own slot. Start/end are never
// copied verbatim: the overlay's recurrence-date offset is applied
// instead so exception-specific date placement survives a bulk shift.
func MergeException(base *event.Event, overlay *event.Event, blacklist ...string) {
	blocked := func(prop string) bool {
		if _, ok := forbiddenMergeProps[prop]; ok {
			return true
		}
		for _, b := range blacklist {
			if b == prop {
				return true
			}
		}
		return false
	}

	if !blocked("calendar") && overlay.Calendar != "" {
		base.Calendar = overlay.Calendar
	}
	if !blocked("allday") {
		base.AllDay = overlay.AllDay
	}
	if !blocked("status") && overlay.Status != "" {
		base.Status = overlay.Status
	}
	if !blocked("sequence") && overlay.Sequence > 0 {
		base.Sequence = overlay.Sequence
	}
	if !blocked("title") && overlay.Title != "" {
		base.Title = overlay.Title
	}
	if !blocked("description") && overlay.Description != "" {
		base.Description = overlay.Description
	}
	if !blocked("location") && overlay.Location != "" {
		base.Location = overlay.Location
	}
	if !blocked("url") && overlay.URL != "" {
		base.URL = overlay.URL
	}
	if !blocked("categories") && overlay.Categories != nil {
		base.Categories = append([]string(nil), overlay.Categories...)
	}
	if !blocked("attendees") && overlay.Attendees != nil {
		base.Attendees = append([]event.Attendee(nil), overlay.Attendees...)
	}

	// a direct edit of this very slot may flip the this-and-future flag;
	// a cascading merge from another slot must not
	if overlay.Instance != "" && overlay.Instance == base.Instance {
		base.ThisAndFuture = overlay.ThisAndFuture
	}

	mergeExceptionDates(base, overlay)
}

// mergeExceptionDates reconciles the base's start/end with the overlay.
// The overlay's offset from its original occurrence time is applied to
// the base date unless both address the same calendar day, in which case
// the overlay's date wins directly. Time-of-day always comes from the
// overlay.
func mergeExceptionDates(base *event.Event, overlay *event.Event) {
	var offset time.Duration
	hasOffset := false
	if !overlay.Start.IsZero() && !overlay.RecurrenceDate.IsZero() {
		offset = overlay.Start.Sub(overlay.RecurrenceDate)
		hasOffset = true
	}

	sameDay := recurrence.SameInstanceDate(overlay.Instance, base.Instance)

	base.Start = mergeDate(base.Start, overlay.Start, sameDay, offset, hasOffset)
	base.End = mergeDate(base.End, overlay.End, sameDay, offset, hasOffset)
}

func mergeDate(base, value time.Time, sameDay bool, offset time.Duration, hasOffset bool) time.Time {
	if base.IsZero() || value.IsZero() {
		return base
	}

	if sameDay {
		y, m, d := value.Date()
		base = time.Date(y, m, d, base.Hour(), base.Minute(), base.Second(), 0, base.Location())
	} else if hasOffset {
		base = base.Add(offset)
	}

	// time of day from the overlay
	return time.Date(base.Year(), base.Month(), base.Day(),
		value.Hour(), value.Minute(), value.Second(), 0, base.Location())
}
