package event

import (
	"strings"

	"github.com/samber/mo"
)

// Role is the participation role of an attendee.
type Role string

const (
	RoleOrganizer      Role = "ORGANIZER"
	RoleChair          Role = "CHAIR"
	RoleRequired       Role = "REQ-PARTICIPANT"
	RoleOptional       Role = "OPT-PARTICIPANT"
	RoleNonParticipant Role = "NON-PARTICIPANT"
)

// PartStat is the participation status of an attendee.
type PartStat string

const (
	StatusNeedsAction PartStat = "NEEDS-ACTION"
	StatusAccepted    PartStat = "ACCEPTED"
	StatusDeclined    PartStat = "DECLINED"
	StatusTentativeP  PartStat = "TENTATIVE"
	StatusDelegated   PartStat = "DELEGATED"
)

// Attendee is a participant entry. Attendee lists are keyed by normalized
// e-mail address; positional identity is never relied upon.
type Attendee struct {
	Email  string
	Name   string
	Role   Role
	Status PartStat
	RSVP   bool
}

// NormalizeEmail returns the canonical form used as the attendee key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindAttendee locates an attendee by e-mail address.
func FindAttendee(list []Attendee, email string) mo.Option[Attendee] {
	key := NormalizeEmail(email)
	for _, a := range list {
		if NormalizeEmail(a.Email) == key {
			return mo.Some(a)
		}
	}
	return mo.None[Attendee]()
}

// DiffAttendees computes the explicit set difference between an old and a
// new attendee list. Added entries are returned in full; removals are
// returned as normalized e-mail keys.
func DiffAttendees(old, current []Attendee) (added []Attendee, removed []string) {
	oldKeys := make(map[string]struct{}, len(old))
	for _, a := range old {
		oldKeys[NormalizeEmail(a.Email)] = struct{}{}
	}

	currentKeys := make(map[string]struct{}, len(current))
	for _, a := range current {
		key := NormalizeEmail(a.Email)
		currentKeys[key] = struct{}{}
		if _, ok := oldKeys[key]; !ok {
			added = append(added, a)
		}
	}

	for _, a := range old {
		if _, ok := currentKeys[NormalizeEmail(a.Email)]; !ok {
			removed = append(removed, NormalizeEmail(a.Email))
		}
	}

	return added, removed
}

// MergeAttendees applies attendee additions and removals onto the event's
// list. Existing entries with a matching e-mail are replaced in place,
// unknown additions are appended, and removals are dropped.
func MergeAttendees(e *Event, added []Attendee, removed []string) {
	removedKeys := make(map[string]struct{}, len(removed))
	for _, key := range removed {
		removedKeys[NormalizeEmail(key)] = struct{}{}
	}

	var result []Attendee
	for _, a := range e.Attendees {
		if _, gone := removedKeys[NormalizeEmail(a.Email)]; gone {
			continue
		}
		result = append(result, a)
	}

	for _, add := range added {
		key := NormalizeEmail(add.Email)
		replaced := false
		for i, a := range result {
			if NormalizeEmail(a.Email) == key {
				result[i] = add
				replaced = true
				break
			}
		}
		if !replaced {
			result = append(result, add)
		}
	}

	e.Attendees = result
}
