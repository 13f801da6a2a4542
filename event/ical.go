package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// iCalendar property and parameter names not covered by go-ical constants.
const (
	propRecurrenceID = "RECURRENCE-ID"
	propRange        = "RANGE"
	paramRole        = "ROLE"
	paramPartStat    = "PARTSTAT"
	paramRSVP        = "RSVP"
	paramCN          = "CN"
	paramValue       = "VALUE"
)

const (
	icalDateLayout     = "20060102"
	icalDateTimeLayout = "20060102T150405"
)

// ToComponent renders the event as a VEVENT component. The recurrence
// rule's exception records are not rendered here; each exception is its
// own VEVENT with a RECURRENCE-ID, produced by a separate call.
func (e *Event) ToComponent() *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, e.UID)

	if e.Title != "" {
		comp.Props.SetText(ical.PropSummary, e.Title)
	}
	if e.Description != "" {
		comp.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		comp.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Status != "" {
		comp.Props.SetText(ical.PropStatus, string(e.Status))
	}
	if len(e.Categories) > 0 {
		comp.Props.SetText(ical.PropCategories, strings.Join(e.Categories, ","))
	}
	if e.Sequence > 0 {
		comp.Props.SetText(ical.PropSequence, strconv.Itoa(e.Sequence))
	}

	setDateProp(comp, ical.PropDateTimeStart, e.Start, e.AllDay)
	setDateProp(comp, ical.PropDateTimeEnd, e.End, e.AllDay)

	if e.Organizer != nil {
		org := &ical.Prop{
			Name:   ical.PropOrganizer,
			Value:  "mailto:" + e.Organizer.Email,
			Params: ical.Params{},
		}
		if e.Organizer.Name != "" {
			org.Params[paramCN] = []string{e.Organizer.Name}
		}
		comp.Props.Add(org)
	}

	for _, a := range e.Attendees {
		prop := &ical.Prop{
			Name:   ical.PropAttendee,
			Value:  "mailto:" + a.Email,
			Params: ical.Params{},
		}
		if a.Name != "" {
			prop.Params[paramCN] = []string{a.Name}
		}
		if a.Role != "" {
			prop.Params[paramRole] = []string{string(a.Role)}
		}
		if a.Status != "" {
			prop.Params[paramPartStat] = []string{string(a.Status)}
		}
		if a.RSVP {
			prop.Params[paramRSVP] = []string{"TRUE"}
		}
		comp.Props.Add(prop)
	}

	if e.Recurrence != nil && !e.Recurrence.Empty() {
		comp.Props.SetText(ical.PropRecurrenceRule, EncodeRRule(e.Recurrence))

		if len(e.Recurrence.RDates) > 0 {
			comp.Props.SetText(ical.PropRecurrenceDates, encodeDateList(e.Recurrence.RDates, e.AllDay))
		}
		if len(e.Recurrence.ExDates) > 0 {
			comp.Props.SetText(ical.PropExceptionDates, encodeDateList(e.Recurrence.ExDates, e.AllDay))
		}
	}

	if !e.RecurrenceDate.IsZero() {
		rid := &ical.Prop{
			Name:   propRecurrenceID,
			Value:  formatDateValue(e.RecurrenceDate, e.AllDay),
			Params: ical.Params{},
		}
		if e.AllDay {
			rid.Params[paramValue] = []string{"DATE"}
		}
		if e.ThisAndFuture {
			rid.Params[propRange] = []string{"THISANDFUTURE"}
		}
		comp.Props.Add(rid)
	}

	return comp
}

// FromComponent builds an Event from a VEVENT component. Only properties
// the engine cares about are mapped; unknown properties are ignored.
func FromComponent(comp *ical.Component) (*Event, error) {
	if comp.Name != ical.CompEvent {
		return nil, fmt.Errorf("unexpected component %q", comp.Name)
	}

	e := &Event{}

	if p := comp.Props.Get(ical.PropUID); p != nil {
		e.UID = p.Value
		e.ID = p.Value
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		e.Title = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		e.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		e.Location = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		e.Status = Status(strings.ToUpper(p.Value))
	}
	if p := comp.Props.Get(ical.PropCategories); p != nil && p.Value != "" {
		e.Categories = strings.Split(p.Value, ",")
	}
	if p := comp.Props.Get(ical.PropSequence); p != nil {
		if n, err := strconv.Atoi(p.Value); err == nil {
			e.Sequence = n
		}
	}

	if p := comp.Props.Get(ical.PropDateTimeStart); p != nil {
		t, allday, err := parseDateValue(p)
		if err != nil {
			return nil, fmt.Errorf("invalid DTSTART: %w", err)
		}
		e.Start = t
		e.AllDay = allday
	}
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		t, _, err := parseDateValue(p)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
		e.End = t
	} else if e.AllDay {
		e.End = e.Start.AddDate(0, 0, 1)
	} else {
		e.End = e.Start
	}

	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		org := attendeeFromProp(p)
		org.Role = RoleOrganizer
		e.Organizer = &org
	}
	for _, p := range comp.Props[ical.PropAttendee] {
		e.Attendees = append(e.Attendees, attendeeFromProp(&p))
	}

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil && p.Value != "" {
		rule, err := ParseRRule(p.Value)
		if err != nil {
			return nil, err
		}
		e.Recurrence = rule
	}
	if p := comp.Props.Get(ical.PropRecurrenceDates); p != nil && p.Value != "" {
		if e.Recurrence == nil {
			e.Recurrence = &RecurrenceRule{}
		}
		e.Recurrence.RDates = parseDateList(p.Value, p.Params)
	}
	if p := comp.Props.Get(ical.PropExceptionDates); p != nil && p.Value != "" {
		if e.Recurrence == nil {
			e.Recurrence = &RecurrenceRule{}
		}
		e.Recurrence.ExDates = parseDateList(p.Value, p.Params)
	}

	if p := comp.Props.Get(propRecurrenceID); p != nil && p.Value != "" {
		t, _, err := parseDateValue(p)
		if err != nil {
			return nil, fmt.Errorf("invalid RECURRENCE-ID: %w", err)
		}
		e.RecurrenceDate = t
		e.IsException = true
		if rng := p.Params[propRange]; len(rng) > 0 && strings.EqualFold(rng[0], "THISANDFUTURE") {
			e.ThisAndFuture = true
		}
	}

	return e, nil
}

// EncodeRRule renders the structured rule as an RFC 5545 RRULE value.
func EncodeRRule(r *RecurrenceRule) string {
	parts := []string{"FREQ=" + r.Frequency.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(icalDateTimeLayout)+"Z")
	}
	if len(r.ByDay) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(r.ByDay, ","))
	}
	if len(r.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.ByMonth))
	}
	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}
	if len(r.BySetPos) > 0 {
		parts = append(parts, "BYSETPOS="+joinInts(r.BySetPos))
	}
	return strings.Join(parts, ";")
}

// ParseRRule parses an RFC 5545 RRULE value into a structured rule. The
// result is validated, so COUNT+UNTIL input surfaces ErrMalformedRule.
func ParseRRule(value string) (*RecurrenceRule, error) {
	rule := &RecurrenceRule{}
	for _, part := range strings.Split(value, ";") {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad RRULE part %q", ErrMalformedRule, part)
		}
		var err error
		switch strings.ToUpper(key) {
		case "FREQ":
			switch strings.ToUpper(val) {
			case "YEARLY":
				rule.Frequency = Yearly
			case "MONTHLY":
				rule.Frequency = Monthly
			case "WEEKLY":
				rule.Frequency = Weekly
			case "DAILY":
				rule.Frequency = Daily
			case "HOURLY":
				rule.Frequency = Hourly
			default:
				return nil, fmt.Errorf("%w: unsupported FREQ %q", ErrMalformedRule, val)
			}
		case "INTERVAL":
			rule.Interval, err = strconv.Atoi(val)
		case "COUNT":
			rule.Count, err = strconv.Atoi(val)
		case "UNTIL":
			rule.Until, err = parseDateString(val)
		case "BYDAY":
			rule.ByDay = strings.Split(strings.ToUpper(val), ",")
		case "BYMONTH":
			rule.ByMonth, err = splitInts(val)
		case "BYMONTHDAY":
			rule.ByMonthDay, err = splitInts(val)
		case "BYSETPOS":
			rule.BySetPos, err = splitInts(val)
		default:
			// WKST and friends are irrelevant to this engine
		}
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s value %q", ErrMalformedRule, key, val)
		}
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

func setDateProp(comp *ical.Component, name string, t time.Time, allday bool) {
	prop := &ical.Prop{
		Name:   name,
		Value:  formatDateValue(t, allday),
		Params: ical.Params{},
	}
	if allday {
		prop.Params[paramValue] = []string{"DATE"}
	}
	comp.Props.Set(prop)
}

func formatDateValue(t time.Time, allday bool) string {
	if allday {
		return t.Format(icalDateLayout)
	}
	return t.UTC().Format(icalDateTimeLayout) + "Z"
}

func parseDateValue(p *ical.Prop) (t time.Time, allday bool, err error) {
	if vals := p.Params[paramValue]; len(vals) > 0 && strings.EqualFold(vals[0], "DATE") {
		t, err = time.Parse(icalDateLayout, p.Value)
		return t, true, err
	}
	t, err = parseDateString(p.Value)
	return t, false, err
}

func parseDateString(value string) (time.Time, error) {
	for _, layout := range []string{icalDateTimeLayout + "Z", icalDateTimeLayout, icalDateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", value)
}

func parseDateList(value string, params map[string][]string) []time.Time {
	var out []time.Time
	dateOnly := false
	if vals := params[paramValue]; len(vals) > 0 && strings.EqualFold(vals[0], "DATE") {
		dateOnly = true
	}
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		var t time.Time
		var err error
		if dateOnly {
			t, err = time.Parse(icalDateLayout, s)
		} else {
			t, err = parseDateString(s)
		}
		if err == nil {
			out = append(out, t)
		}
	}
	return out
}

func encodeDateList(dates []time.Time, allday bool) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = formatDateValue(d, allday)
	}
	return strings.Join(parts, ",")
}

func attendeeFromProp(p *ical.Prop) Attendee {
	a := Attendee{
		Email: strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:"),
	}
	if cn := p.Params[paramCN]; len(cn) > 0 {
		a.Name = cn[0]
	}
	if role := p.Params[paramRole]; len(role) > 0 {
		a.Role = Role(strings.ToUpper(role[0]))
	}
	if ps := p.Params[paramPartStat]; len(ps) > 0 {
		a.Status = PartStat(strings.ToUpper(ps[0]))
	}
	if rsvp := p.Params[paramRSVP]; len(rsvp) > 0 {
		a.RSVP = strings.EqualFold(rsvp[0], "TRUE")
	}
	return a
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(value string) ([]int, error) {
	var out []int
	for _, s := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
