package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Frequency is the base repetition unit of a recurrence rule.
type Frequency int

const (
	Yearly Frequency = iota
	Monthly
	Weekly
	Daily
	Hourly
)

func (f Frequency) String() string {
	switch f {
	case Yearly:
		return "YEARLY"
	case Monthly:
		return "MONTHLY"
	case Weekly:
		return "WEEKLY"
	case Daily:
		return "DAILY"
	case Hourly:
		return "HOURLY"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// ErrMalformedRule is returned when a recurrence rule violates its
// structural invariants, e.g. COUNT and UNTIL both set.
var ErrMalformedRule = errors.New("malformed recurrence rule")

// RecurrenceRule is the structured representation of a repeating pattern.
// COUNT and UNTIL are mutually exclusive; zero values mean "unset".
//
// Exceptions is the single owned list of per-instance overrides. Callers
// must not keep a second mutable alias to it; read-only views are obtained
// via ExceptionList.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int

	// Count bounds the series to a fixed number of occurrences (0 = unset).
	Count int
	// Until bounds the series to a last possible start date (zero = unset).
	Until time.Time

	// ByDay holds RFC 5545 weekday tokens, optionally with an ordinal
	// prefix ("MO", "2TU", "-1FR").
	ByDay      []string
	ByMonth    []int
	ByMonthDay []int
	BySetPos   []int

	// ExDates are occurrence start dates suppressed from expansion.
	ExDates []time.Time
	// RDates are explicitly added occurrence start dates.
	RDates []time.Time

	// Exceptions are full event records overriding single occurrence
	// slots, each tagged with Instance and RecurrenceDate.
	Exceptions []Event
}

// Empty reports whether the rule describes no repetition at all.
func (r *RecurrenceRule) Empty() bool {
	return r == nil || (r.Interval == 0 && r.Count == 0 && r.Until.IsZero() &&
		len(r.ByDay) == 0 && len(r.ByMonth) == 0 && len(r.ByMonthDay) == 0 &&
		len(r.RDates) == 0)
}

// Validate enforces the structural rule invariants at construction time
// rather than scattering runtime checks across call sites.
func (r *RecurrenceRule) Validate() error {
	if r == nil {
		return nil
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrMalformedRule)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: negative COUNT", ErrMalformedRule)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: negative INTERVAL", ErrMalformedRule)
	}
	return nil
}

// Clone returns a deep copy of the rule including its exception list.
func (r *RecurrenceRule) Clone() *RecurrenceRule {
	if r == nil {
		return nil
	}
	out := *r
	out.ByDay = append([]string(nil), r.ByDay...)
	out.ByMonth = append([]int(nil), r.ByMonth...)
	out.ByMonthDay = append([]int(nil), r.ByMonthDay...)
	out.BySetPos = append([]int(nil), r.BySetPos...)
	out.ExDates = append([]time.Time(nil), r.ExDates...)
	out.RDates = append([]time.Time(nil), r.RDates...)
	if r.Exceptions != nil {
		out.Exceptions = make([]Event, len(r.Exceptions))
		for i := range r.Exceptions {
			out.Exceptions[i] = *r.Exceptions[i].Clone()
		}
	}
	return &out
}

// ExceptionList returns a read-only snapshot of the exception records.
func (r *RecurrenceRule) ExceptionList() []Event {
	if r == nil || len(r.Exceptions) == 0 {
		return nil
	}
	out := make([]Event, len(r.Exceptions))
	copy(out, r.Exceptions)
	return out
}

// FindException returns the index of the exception claiming the given
// instance identifier.
func (r *RecurrenceRule) FindException(instance string) mo.Option[int] {
	if r == nil || instance == "" {
		return mo.None[int]()
	}
	for i := range r.Exceptions {
		if r.Exceptions[i].Instance == instance {
			return mo.Some(i)
		}
	}
	return mo.None[int]()
}

// UpsertException adds the given record to the exception list. A prior
// exception claiming the same instance is overwritten so at most one
// record per slot survives.
func (r *RecurrenceRule) UpsertException(ex Event) {
	for i := range r.Exceptions {
		if sameExceptionSlot(&r.Exceptions[i], &ex) {
			r.Exceptions[i] = ex
			return
		}
	}
	r.Exceptions = append(r.Exceptions, ex)
}

// RemoveException drops the exception claiming the given instance and
// reports whether one was found.
func (r *RecurrenceRule) RemoveException(instance string) bool {
	if r == nil {
		return false
	}
	for i := range r.Exceptions {
		if r.Exceptions[i].Instance == instance {
			r.Exceptions = append(r.Exceptions[:i], r.Exceptions[i+1:]...)
			return true
		}
	}
	return false
}

// sameExceptionSlot reports whether two records claim the same occurrence
// slot, either by instance identifier or by original occurrence date.
func sameExceptionSlot(a, b *Event) bool {
	if a.Instance != "" && b.Instance != "" {
		return a.Instance == b.Instance
	}
	if !a.RecurrenceDate.IsZero() && !b.RecurrenceDate.IsZero() {
		return a.RecurrenceDate.Equal(b.RecurrenceDate)
	}
	return false
}

// HasFixedWeekday reports whether ByDay pins the rule to exactly one plain
// weekday. Such filters become stale when the series start date moves to a
// different weekday and are cleared by the resolver.
func (r *RecurrenceRule) HasFixedWeekday() bool {
	return r != nil && len(r.ByDay) == 1 && len(r.ByDay[0]) == 2
}
