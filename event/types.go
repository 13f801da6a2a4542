// Package event defines the calendar event data model shared by the
// recurrence engine, the save-mode resolver and the storage layer.
package event

import (
	"fmt"
	"time"
)

// Status represents the scheduling status of an event.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCancelled Status = "CANCELLED"
)

// Event is a single calendar entity. A master event carries a non-nil
// Recurrence and an empty Instance; exception records carry the Instance
// identifier of the occurrence slot they override plus the original,
// unmodified occurrence time in RecurrenceDate.
type Event struct {
	// ID is the storage identifier. For masters it equals UID; recurring
	// instances are addressed as "<uid>-<instance>".
	ID  string
	UID string

	// Calendar is the owning calendar/collection identifier.
	Calendar string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Sequence is the RFC 5545 revision counter. Zero means the caller did
	// not provide one; an explicitly submitted sequence bypasses the
	// scheduling-change detection.
	Sequence int

	Status      Status
	Title       string
	Description string
	Location    string
	URL         string
	Categories  []string

	Organizer *Attendee
	Attendees []Attendee

	Recurrence *RecurrenceRule

	// RecurrenceID holds the master's UID when this record is a stored
	// instance or exception of a recurring event.
	RecurrenceID string

	// Instance is the canonical identifier of the occurrence slot this
	// record overrides. Empty on master events.
	Instance string

	// RecurrenceDate is the original occurrence time the exception
	// replaces, before any per-instance date change.
	RecurrenceDate time.Time

	// ThisAndFuture marks an exception that applies to its slot and every
	// later un-excepted slot.
	ThisAndFuture bool

	// IsException is set on records stored as per-instance overrides.
	IsException bool
}

// IsMaster reports whether the event is the top-level record of a
// recurring series.
func (e *Event) IsMaster() bool {
	return e.Recurrence != nil && !e.Recurrence.Empty() && e.Instance == "" && e.RecurrenceID == ""
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e *Event) IsRecurring() bool {
	return e.Recurrence != nil && !e.Recurrence.Empty()
}

// Duration returns the event length. For all-day events only whole days
// are significant.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Validate checks the basic event invariants.
func (e *Event) Validate() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("event %s: start and end are required", e.UID)
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("event %s: end precedes start", e.UID)
	}
	if e.Recurrence != nil {
		if err := e.Recurrence.Validate(); err != nil {
			return fmt.Errorf("event %s: %w", e.UID, err)
		}
	}
	return nil
}

// Clone returns a deep copy. The resolver works on copies so a failed
// resolution never leaves the caller's snapshot half-mutated.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	if e.Categories != nil {
		out.Categories = append([]string(nil), e.Categories...)
	}
	if e.Attendees != nil {
		out.Attendees = append([]Attendee(nil), e.Attendees...)
	}
	if e.Organizer != nil {
		org := *e.Organizer
		out.Organizer = &org
	}
	out.Recurrence = e.Recurrence.Clone()
	return &out
}
