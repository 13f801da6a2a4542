package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRRule(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    *RecurrenceRule
		wantErr bool
	}{
		{
			name:  "daily with count",
			value: "FREQ=DAILY;COUNT=5",
			want:  &RecurrenceRule{Frequency: Daily, Count: 5},
		},
		{
			name:  "weekly with byday and interval",
			value: "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE,FR",
			want:  &RecurrenceRule{Frequency: Weekly, Interval: 2, ByDay: []string{"MO", "WE", "FR"}},
		},
		{
			name:  "monthly nth weekday",
			value: "FREQ=MONTHLY;BYDAY=2TU",
			want:  &RecurrenceRule{Frequency: Monthly, ByDay: []string{"2TU"}},
		},
		{
			name:  "until utc",
			value: "FREQ=DAILY;UNTIL=20240601T000000Z",
			want:  &RecurrenceRule{Frequency: Daily, Until: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			name:  "lowercase keys and unknown parts ignored",
			value: "freq=yearly;WKST=MO;BYMONTH=3,6",
			want:  &RecurrenceRule{Frequency: Yearly, ByMonth: []int{3, 6}},
		},
		{
			name:    "count and until both",
			value:   "FREQ=DAILY;COUNT=3;UNTIL=20240601T000000Z",
			wantErr: true,
		},
		{
			name:    "unsupported freq",
			value:   "FREQ=SECONDLY",
			wantErr: true,
		},
		{
			name:    "bad count",
			value:   "FREQ=DAILY;COUNT=abc",
			wantErr: true,
		},
		{
			name:    "missing equals",
			value:   "FREQ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRRule(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRRule(t *testing.T) {
	tests := []struct {
		name string
		rule *RecurrenceRule
		want string
	}{
		{
			name: "daily count",
			rule: &RecurrenceRule{Frequency: Daily, Count: 5},
			want: "FREQ=DAILY;COUNT=5",
		},
		{
			name: "weekly interval byday",
			rule: &RecurrenceRule{Frequency: Weekly, Interval: 2, ByDay: []string{"MO", "FR"}},
			want: "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,FR",
		},
		{
			name: "until rendered in utc",
			rule: &RecurrenceRule{Frequency: Monthly, Until: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ByMonthDay: []int{15}},
			want: "FREQ=MONTHLY;UNTIL=20240601T000000Z;BYMONTHDAY=15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeRRule(tt.rule))
		})
	}
}

func TestEncodeRRuleRoundTrip(t *testing.T) {
	rule := &RecurrenceRule{
		Frequency: Weekly,
		Interval:  2,
		Count:     10,
		ByDay:     []string{"MO", "TH"},
	}

	parsed, err := ParseRRule(EncodeRRule(rule))
	require.NoError(t, err)
	assert.Equal(t, rule, parsed)
}

func TestComponentRoundTrip(t *testing.T) {
	ev := &Event{
		UID:         "round-trip-1",
		Start:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Sequence:    2,
		Status:      StatusConfirmed,
		Title:       "Weekly sync",
		Description: "Agenda in the wiki",
		Location:    "Room 4",
		Categories:  []string{"work", "team"},
		Organizer:   &Attendee{Email: "org@example.com", Name: "The Organizer"},
		Attendees: []Attendee{
			{Email: "alice@example.com", Name: "Alice", Role: RoleRequired, Status: StatusAccepted, RSVP: true},
			{Email: "bob@example.com", Role: RoleOptional, Status: StatusNeedsAction},
		},
		Recurrence: &RecurrenceRule{
			Frequency: Weekly,
			Count:     10,
			ByDay:     []string{"MO"},
			ExDates:   []time.Time{time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
			RDates:    []time.Time{time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)},
		},
	}

	got, err := FromComponent(ev.ToComponent())
	require.NoError(t, err)

	assert.Equal(t, ev.UID, got.UID)
	assert.Equal(t, ev.UID, got.ID)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.Description, got.Description)
	assert.Equal(t, ev.Location, got.Location)
	assert.Equal(t, ev.Status, got.Status)
	assert.Equal(t, ev.Sequence, got.Sequence)
	assert.Equal(t, ev.Categories, got.Categories)
	assert.True(t, got.Start.Equal(ev.Start))
	assert.True(t, got.End.Equal(ev.End))
	assert.False(t, got.AllDay)

	require.NotNil(t, got.Organizer)
	assert.Equal(t, "org@example.com", got.Organizer.Email)
	assert.Equal(t, RoleOrganizer, got.Organizer.Role)
	assert.Equal(t, ev.Attendees, got.Attendees)

	require.NotNil(t, got.Recurrence)
	assert.Equal(t, Weekly, got.Recurrence.Frequency)
	assert.Equal(t, 10, got.Recurrence.Count)
	assert.Equal(t, []string{"MO"}, got.Recurrence.ByDay)
	require.Len(t, got.Recurrence.ExDates, 1)
	assert.True(t, got.Recurrence.ExDates[0].Equal(ev.Recurrence.ExDates[0]))
	require.Len(t, got.Recurrence.RDates, 1)
	assert.True(t, got.Recurrence.RDates[0].Equal(ev.Recurrence.RDates[0]))
}

func TestComponentExceptionRoundTrip(t *testing.T) {
	ex := &Event{
		UID:            "series-1",
		Start:          time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC),
		Title:          "Moved occurrence",
		RecurrenceDate: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		ThisAndFuture:  true,
	}

	got, err := FromComponent(ex.ToComponent())
	require.NoError(t, err)

	assert.True(t, got.RecurrenceDate.Equal(ex.RecurrenceDate))
	assert.True(t, got.ThisAndFuture)
	assert.True(t, got.IsException)
}

func TestComponentAllDay(t *testing.T) {
	ev := &Event{
		UID:    "allday-1",
		Start:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		AllDay: true,
		Title:  "Company holiday",
	}

	got, err := FromComponent(ev.ToComponent())
	require.NoError(t, err)

	assert.True(t, got.AllDay)
	assert.Equal(t, "2024-03-15", got.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-03-16", got.End.Format("2006-01-02"))
}

func TestFromComponentRejectsNonEvent(t *testing.T) {
	comp := (&Event{UID: "x"}).ToComponent()
	comp.Name = "VTODO"

	_, err := FromComponent(comp)
	assert.Error(t, err)
}
