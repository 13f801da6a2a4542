// Package recurrence expands recurrence rules into concrete occurrences
// and defines the canonical instance identifier joining expanded slots to
// stored exception records.
package recurrence

import (
	"fmt"
	"time"
)

// Canonical instance identifier layouts. All-day instances are identified
// by calendar date only; timed instances carry the wall-clock time.
const (
	InstanceDateLayout     = "20060102"
	InstanceDateTimeLayout = "20060102T150405"
)

// InstanceID returns the canonical identifier of the occurrence slot at
// the given time. Two occurrences are the same instance iff their
// identifiers are equal.
func InstanceID(t time.Time, allday bool) string {
	if allday {
		return t.Format(InstanceDateLayout)
	}
	return t.Format(InstanceDateTimeLayout)
}

// InstanceIDLayout returns the identifier layout for the given all-day flag.
func InstanceIDLayout(allday bool) string {
	if allday {
		return InstanceDateLayout
	}
	return InstanceDateTimeLayout
}

// ParseInstanceID converts an instance identifier back to the occurrence
// time it denotes, interpreted in the given location.
func ParseInstanceID(id string, loc *time.Location) (t time.Time, allday bool, err error) {
	if loc == nil {
		loc = time.UTC
	}
	switch len(id) {
	case len(InstanceDateLayout):
		t, err = time.ParseInLocation(InstanceDateLayout, id, loc)
		return t, true, err
	case len(InstanceDateTimeLayout):
		t, err = time.ParseInLocation(InstanceDateTimeLayout, id, loc)
		return t, false, err
	}
	return time.Time{}, false, fmt.Errorf("invalid instance identifier %q", id)
}

// InstanceDate returns the date part of an instance identifier. Used when
// comparing whether two instances fall on the same calendar day.
func InstanceDate(id string) string {
	if len(id) < len(InstanceDateLayout) {
		return id
	}
	return id[:len(InstanceDateLayout)]
}

// SameInstanceDate reports whether two instance identifiers denote slots
// on the same calendar date.
func SameInstanceDate(a, b string) bool {
	return a != "" && b != "" && InstanceDate(a) == InstanceDate(b)
}
