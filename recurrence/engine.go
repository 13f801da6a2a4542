package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/texxasrulez/calendar/event"
)

// Occurrence is a transient projection of one concrete slot of a series.
// Exception is nil for rule-generated slots and points at the overriding
// record otherwise. Occurrences have no lifecycle of their own.
type Occurrence struct {
	Start     time.Time
	End       time.Time
	Instance  string
	Exception *event.Event
}

// Window bounds an expansion request. A zero End means "no upper bound";
// the engine's hard caps still guarantee termination.
type Window struct {
	Start time.Time
	End   time.Time
}

// countCap bounds the occurrence walk used for COUNT renormalization.
// Hitting it is reported to the caller instead of silently truncating.
const countCap = 1000

// Engine expands recurrence rules into occurrence sequences. Expansion is
// a pure function of its inputs; the engine holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	opts ExpansionOptions
	now  func() time.Time
}

// NewEngine creates an engine with DefaultExpansionOptions.
func NewEngine() *Engine {
	return NewEngineWithOptions(DefaultExpansionOptions)
}

// NewEngineWithOptions creates an engine with explicit expansion limits.
func NewEngineWithOptions(opts ExpansionOptions) *Engine {
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = DefaultExpansionOptions.MaxOccurrences
	}
	if opts.MaxYears <= 0 {
		opts.MaxYears = DefaultExpansionOptions.MaxYears
	}
	return &Engine{opts: opts, now: time.Now}
}

// Expand returns the virtual occurrence sequence of the master within the
// window: rule-generated slots with EXDATE suppression and RDATE
// injection, and exception records surfacing in place of the slots they
// override. The sequence is strictly increasing by start time and
// identical across repeated invocations with the same inputs.
func (e *Engine) Expand(master *event.Event, w Window) ([]Occurrence, error) {
	it, err := e.Iterate(master, w)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	for {
		occ, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, occ)
	}
	return out, nil
}

// Materialize returns the rule-generated occurrences (exception slots
// skipped entirely) plus the exception records as a separate list, the
// form persistence code needs to write one row per slot.
func (e *Engine) Materialize(master *event.Event, w Window) ([]Occurrence, []event.Event, error) {
	it, err := e.Iterate(master, w)
	if err != nil {
		return nil, nil, err
	}
	it.skipExceptions = true

	var out []Occurrence
	for {
		occ, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, occ)
	}

	var exceptions []event.Event
	if master.Recurrence != nil {
		exceptions = master.Recurrence.ExceptionList()
	}
	return out, exceptions, nil
}

// CountConsumed counts the occurrences the master's rule generates
// strictly before the given split time, used to renormalize COUNT when a
// series is split. An exception never moves its slot's position in the
// sequence, so the walk runs over the raw rule slots with exception
// replacement disabled. The walk is capped; hitting the cap is an error
// rather than a silently wrong count.
func (e *Engine) CountConsumed(master *event.Event, split time.Time) (int, error) {
	bare := master
	if master.Recurrence != nil && len(master.Recurrence.Exceptions) > 0 {
		bare = master.Clone()
		bare.Recurrence.Exceptions = nil
	}

	it, err := e.Iterate(bare, Window{})
	if err != nil {
		return 0, err
	}
	it.maxGenerated = countCap

	count := 0
	for {
		occ, ok := it.Next()
		if !ok {
			break
		}
		if !occ.Start.Before(split) {
			return count, nil
		}
		count++
	}
	if it.capped {
		return count, fmt.Errorf("occurrence count cap (%d) reached before %s", countCap, split.Format(time.RFC3339))
	}
	return count, nil
}

// InconsistentExceptions returns the instance identifiers of exceptions
// whose recurrence date corresponds to no generated or RDATE slot. Such
// records are still honored during expansion so user data is never lost;
// callers are expected to surface them.
func (e *Engine) InconsistentExceptions(master *event.Event) []string {
	rule := master.Recurrence
	if rule == nil || len(rule.Exceptions) == 0 {
		return nil
	}

	// expand without exception replacement so the original slots show
	bare := master.Clone()
	bare.Recurrence.Exceptions = nil
	bare.Recurrence.ExDates = nil

	var latest time.Time
	for i := range rule.Exceptions {
		if rule.Exceptions[i].RecurrenceDate.After(latest) {
			latest = rule.Exceptions[i].RecurrenceDate
		}
	}

	occs, err := e.Expand(bare, Window{End: latest.AddDate(0, 0, 1)})
	if err != nil {
		return nil
	}

	slots := make(map[string]struct{}, len(occs))
	for _, occ := range occs {
		slots[occ.Instance] = struct{}{}
	}

	var bad []string
	for i := range rule.Exceptions {
		ex := &rule.Exceptions[i]
		id := ex.Instance
		if id == "" {
			id = InstanceID(ex.RecurrenceDate, master.AllDay)
		}
		if _, ok := slots[id]; !ok {
			bad = append(bad, id)
		}
	}
	return bad
}

// Iterator walks the occurrence sequence lazily. Obtain one via
// Engine.Iterate; it is single-use and not safe for concurrent use.
type Iterator struct {
	master   *event.Event
	window   Window
	allday   bool
	duration time.Duration

	next    rrule.Next
	rdates  []time.Time
	rdi     int
	pending *time.Time

	exdates    []time.Time
	exceptions map[string]*event.Event

	skipExceptions bool
	generated      int
	maxGenerated   int
	yearCap        int
	unbounded      bool
	capped         bool
	done           bool
}

// Iterate prepares a lazy walk over the master's occurrences within the
// window. Re-invoking with the same arguments yields the same sequence.
func (e *Engine) Iterate(master *event.Event, w Window) (*Iterator, error) {
	rule := master.Recurrence
	if rule == nil {
		return nil, fmt.Errorf("%w: event %s has no recurrence rule", event.ErrMalformedRule, master.UID)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	ropt, err := toROption(rule, master.Start)
	if err != nil {
		return nil, err
	}
	rr, err := rrule.NewRRule(*ropt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrMalformedRule, err)
	}

	it := &Iterator{
		master:       master,
		window:       w,
		allday:       master.AllDay,
		duration:     master.Duration(),
		next:         rr.Iterator(),
		exdates:      rule.ExDates,
		maxGenerated: e.opts.MaxOccurrences,
		yearCap:      e.now().Year() + e.opts.MaxYears,
		unbounded:    rule.Count == 0 && rule.Until.IsZero(),
	}

	it.rdates = append([]time.Time(nil), rule.RDates...)
	sort.Slice(it.rdates, func(i, j int) bool { return it.rdates[i].Before(it.rdates[j]) })

	if len(rule.Exceptions) > 0 {
		it.exceptions = make(map[string]*event.Event, len(rule.Exceptions))
		for i := range rule.Exceptions {
			ex := &rule.Exceptions[i]
			id := ex.Instance
			if id == "" {
				id = InstanceID(ex.RecurrenceDate, master.AllDay)
			}
			it.exceptions[InstanceDate(id)] = ex
		}
	}

	return it, nil
}

// Next yields the next occurrence. The second return is false once the
// window, the rule bound or a hard cap ends the sequence.
func (it *Iterator) Next() (Occurrence, bool) {
	for !it.done {
		start, ok := it.nextCandidate()
		if !ok {
			it.done = true
			break
		}

		// hard caps guarantee termination for pathological rules
		it.generated++
		if it.generated > it.maxGenerated {
			it.capped = true
			it.done = true
			break
		}
		if it.unbounded && start.Year() > it.yearCap {
			it.done = true
			break
		}

		if !it.window.End.IsZero() && start.After(it.window.End) {
			it.done = true
			break
		}
		if start.Before(it.window.Start) {
			continue
		}
		if isExcluded(start, it.exdates, it.allday) {
			continue
		}

		id := InstanceID(start, it.allday)
		if ex, overridden := it.exceptions[InstanceDate(id)]; overridden {
			if it.skipExceptions {
				continue
			}
			return Occurrence{Start: ex.Start, End: ex.End, Instance: id, Exception: ex}, true
		}

		return Occurrence{Start: start, End: start.Add(it.duration), Instance: id}, true
	}
	return Occurrence{}, false
}

// nextCandidate merges the rule-generated stream with the sorted RDATE
// list, keeping the combined sequence strictly increasing.
func (it *Iterator) nextCandidate() (time.Time, bool) {
	if it.pending == nil {
		if t, ok := it.next(); ok {
			it.pending = &t
		}
	}

	var rdate *time.Time
	if it.rdi < len(it.rdates) {
		rdate = &it.rdates[it.rdi]
	}

	switch {
	case it.pending == nil && rdate == nil:
		return time.Time{}, false
	case it.pending == nil:
		it.rdi++
		return *rdate, true
	case rdate == nil:
		t := *it.pending
		it.pending = nil
		return t, true
	case rdate.Before(*it.pending):
		it.rdi++
		return *rdate, true
	case rdate.Equal(*it.pending):
		// same slot from both streams, emit once
		it.rdi++
		fallthrough
	default:
		t := *it.pending
		it.pending = nil
		return t, true
	}
}

// isExcluded checks a candidate against the EXDATE list. All-day series
// match on the calendar date; timed series match exactly, with a
// defensive date-only match for EXDATEs stored as midnight.
func isExcluded(t time.Time, exdates []time.Time, allday bool) bool {
	for _, ex := range exdates {
		if allday {
			if sameDate(t, ex) {
				return true
			}
			continue
		}
		if t.Equal(ex) {
			return true
		}
		if ex.Hour() == 0 && ex.Minute() == 0 && ex.Second() == 0 && sameDate(t, ex) {
			return true
		}
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// toROption maps the structured rule onto rrule-go's option struct.
func toROption(r *event.RecurrenceRule, dtstart time.Time) (*rrule.ROption, error) {
	opt := &rrule.ROption{
		Dtstart:    dtstart,
		Interval:   r.Interval,
		Count:      r.Count,
		Until:      r.Until,
		Bymonth:    r.ByMonth,
		Bymonthday: r.ByMonthDay,
		Bysetpos:   r.BySetPos,
	}

	switch r.Frequency {
	case event.Yearly:
		opt.Freq = rrule.YEARLY
	case event.Monthly:
		opt.Freq = rrule.MONTHLY
	case event.Weekly:
		opt.Freq = rrule.WEEKLY
	case event.Daily:
		opt.Freq = rrule.DAILY
	case event.Hourly:
		opt.Freq = rrule.HOURLY
	default:
		return nil, fmt.Errorf("%w: unsupported frequency %v", event.ErrMalformedRule, r.Frequency)
	}

	for _, day := range r.ByDay {
		wd, err := parseWeekday(day)
		if err != nil {
			return nil, err
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}

	return opt, nil
}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO, "TU": rrule.TU, "WE": rrule.WE, "TH": rrule.TH,
	"FR": rrule.FR, "SA": rrule.SA, "SU": rrule.SU,
}

// parseWeekday converts an RFC 5545 BYDAY token ("MO", "2TU", "-1FR")
// into an rrule weekday, keeping the ordinal prefix.
func parseWeekday(token string) (rrule.Weekday, error) {
	if len(token) < 2 {
		return rrule.MO, fmt.Errorf("%w: bad BYDAY token %q", event.ErrMalformedRule, token)
	}
	day, ok := weekdays[token[len(token)-2:]]
	if !ok {
		return rrule.MO, fmt.Errorf("%w: bad BYDAY token %q", event.ErrMalformedRule, token)
	}
	if len(token) == 2 {
		return day, nil
	}
	n, err := strconv.Atoi(token[:len(token)-2])
	if err != nil {
		return rrule.MO, fmt.Errorf("%w: bad BYDAY ordinal in %q", event.ErrMalformedRule, token)
	}
	return day.Nth(n), nil
}
