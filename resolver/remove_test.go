package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
)

func TestRemoveNotFound(t *testing.T) {
	r := newTestResolver()

	_, err := r.Remove(RemoveRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveCurrentAddsExdate(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()
	target := instanceOf(master, 2)

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeCurrent})
	require.NoError(t, err)

	assert.False(t, outcome.Delete)
	assert.Equal(t, SaveModeCurrent, outcome.Mode)

	out := outcome.Master
	require.NotNil(t, out)
	require.Len(t, out.Recurrence.ExDates, 1)
	assert.True(t, out.Recurrence.ExDates[0].Equal(target.Start))

	// the suppressed slot no longer expands
	occs, err := recurrence.NewEngine().Expand(out, recurrence.Window{})
	require.NoError(t, err)
	assert.Len(t, occs, 4)
}

func TestRemoveCurrentDropsExceptionRecord(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()
	master.Recurrence.Exceptions = []event.Event{{
		UID:            master.UID,
		Title:          "Moved",
		Start:          time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC),
		Instance:       "20240103T090000",
		RecurrenceDate: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		IsException:    true,
	}}

	target := master.Recurrence.Exceptions[0].Clone()
	target.RecurrenceID = master.UID

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeCurrent})
	require.NoError(t, err)

	out := outcome.Master
	assert.Empty(t, out.Recurrence.Exceptions)

	// the EXDATE points at the original occurrence date, not the moved one
	require.Len(t, out.Recurrence.ExDates, 1)
	assert.True(t, out.Recurrence.ExDates[0].Equal(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)))
}

func TestRemoveCurrentDropsRdateSlot(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()
	master.Recurrence.RDates = []time.Time{time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)}

	target := master.Clone()
	target.Recurrence = nil
	target.Start = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	target.End = target.Start.Add(time.Hour)
	target.Instance = "20240110T150000"
	target.RecurrenceDate = target.Start
	target.RecurrenceID = master.UID

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeCurrent})
	require.NoError(t, err)

	assert.Empty(t, outcome.Master.Recurrence.RDates)
}

func TestRemoveFutureTruncatesRule(t *testing.T) {
	r := newTestResolver()

	master := &event.Event{
		ID:    "weekly-1",
		UID:   "weekly-1",
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Recurrence: &event.RecurrenceRule{
			Frequency: event.Weekly,
			Count:     10,
			RDates: []time.Time{
				time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 22, 18, 0, 0, 0, time.UTC),
			},
			Exceptions: []event.Event{
				{
					Instance:       "20240108T090000",
					RecurrenceDate: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
					Start:          time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
					End:            time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
				},
				{
					Instance:       "20240129T090000",
					RecurrenceDate: time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC),
					Start:          time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC),
					End:            time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC),
				},
			},
		},
	}

	target := master.Clone()
	target.Recurrence = nil
	target.Start = time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	target.End = target.Start.Add(time.Hour)
	target.Instance = "20240122T090000"
	target.RecurrenceDate = target.Start
	target.RecurrenceID = master.UID

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeFuture})
	require.NoError(t, err)

	out := outcome.Master
	require.NotNil(t, out)
	assert.Equal(t, 0, out.Recurrence.Count)
	assert.True(t, out.Recurrence.Until.Equal(time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC)))

	// RDATE tail from the removed slot onwards is trimmed
	require.Len(t, out.Recurrence.RDates, 1)
	assert.True(t, out.Recurrence.RDates[0].Equal(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)))

	// only exceptions before the split survive
	require.Len(t, out.Recurrence.Exceptions, 1)
	assert.Equal(t, "20240108T090000", out.Recurrence.Exceptions[0].Instance)
}

func TestRemoveFutureOnFirstInstanceDeletesSeries(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()
	target := instanceOf(master, 0)

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeFuture})
	require.NoError(t, err)

	assert.True(t, outcome.Delete)
	assert.Equal(t, SaveModeAll, outcome.Mode)
}

func TestRemoveFutureDropsRuleWhenNothingRemains(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()
	master.Recurrence.Count = 2
	target := instanceOf(master, 1)

	outcome, err := r.Remove(RemoveRequest{Event: target, Master: master, Mode: SaveModeFuture})
	require.NoError(t, err)

	// truncating at the second occurrence leaves a single event
	assert.Nil(t, outcome.Master.Recurrence)
	assert.False(t, outcome.Delete)
}

func TestRemoveAllDeletesSeries(t *testing.T) {
	r := newTestResolver()
	master := newDailyMaster()

	outcome, err := r.Remove(RemoveRequest{Event: master, Mode: SaveModeAll})
	require.NoError(t, err)

	assert.True(t, outcome.Delete)
	assert.Nil(t, outcome.Master)
	assert.Nil(t, outcome.NewMaster)
}

func TestRemoveAllPromotesFirstException(t *testing.T) {
	r := newTestResolver()

	ex1 := event.Event{
		UID:            "loose-1",
		Title:          "First leftover",
		Start:          time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Instance:       "20240102T090000",
		RecurrenceDate: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		RecurrenceID:   "loose-1",
		IsException:    true,
	}
	ex2 := event.Event{
		UID:            "loose-1",
		Title:          "Second leftover",
		Start:          time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		Instance:       "20240103T090000",
		RecurrenceDate: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		RecurrenceID:   "loose-1",
		IsException:    true,
	}

	// a master whose rule is gone but which still owns loose exceptions
	master := &event.Event{
		ID:             "loose-1",
		UID:            "loose-1",
		Title:          "Former series",
		Start:          time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RecurrenceDate: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Recurrence:     &event.RecurrenceRule{Exceptions: []event.Event{ex1, ex2}},
	}

	outcome, err := r.Remove(RemoveRequest{Event: master, Mode: SaveModeAll})
	require.NoError(t, err)

	assert.False(t, outcome.Delete)
	promoted := outcome.NewMaster
	require.NotNil(t, promoted)
	assert.Equal(t, "First leftover", promoted.Title)
	assert.Equal(t, "loose-1", promoted.UID)
	assert.Equal(t, "loose-1", promoted.ID)
	assert.Empty(t, promoted.RecurrenceID)
	assert.False(t, promoted.IsException)

	require.Len(t, promoted.Recurrence.Exceptions, 1)
	assert.Equal(t, "Second leftover", promoted.Recurrence.Exceptions[0].Title)
}

func TestRemoveSingleStoredExceptionInPlace(t *testing.T) {
	r := newTestResolver()

	// a single occurrence stored as exception degrades to "current"
	ev := &event.Event{
		UID:         "single-1",
		Start:       time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		IsException: true,
	}

	outcome, err := r.Remove(RemoveRequest{Event: ev, Mode: SaveModeAll})
	require.NoError(t, err)

	assert.Equal(t, SaveModeCurrent, outcome.Mode)
	require.NotNil(t, outcome.Master)
	require.Len(t, outcome.Master.Recurrence.ExDates, 1)
	assert.True(t, outcome.Master.Recurrence.ExDates[0].Equal(ev.Start))
}

func TestExdateFor(t *testing.T) {
	ts := time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC)

	assert.True(t, ExdateFor(ts, false).Equal(ts))
	assert.True(t, ExdateFor(ts, true).Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
}
