// memory based implementation for testing purposes
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/texxasrulez/calendar/event"
	"github.com/texxasrulez/calendar/recurrence"
	"github.com/texxasrulez/calendar/storage"
)

// Store implements storage.Repository using in-memory maps. Masters own
// their exception lists; instance lookups are resolved by expanding the
// master on demand.
type Store struct {
	mu     sync.RWMutex
	events map[string]*event.Event // key: uid

	engine *recurrence.Engine
	cache  *recurrence.Cache
}

// New creates a new in-memory repository. The cache is optional; when
// present it is invalidated on every successful write.
func New(engine *recurrence.Engine, cache *recurrence.Cache) *Store {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	return &Store{
		events: make(map[string]*event.Event),
		engine: engine,
		cache:  cache,
	}
}

// splitID separates "<uid>-<instance>" identifiers. The instance part is
// recognized by its canonical layout length.
func splitID(id string) (uid, instance string) {
	if i := strings.LastIndex(id, "-"); i > 0 {
		tail := id[i+1:]
		if len(tail) == len(recurrence.InstanceDateLayout) || len(tail) == len(recurrence.InstanceDateTimeLayout) {
			if _, _, err := recurrence.ParseInstanceID(tail, nil); err == nil {
				return id[:i], tail
			}
		}
	}
	return id, ""
}

func (s *Store) Get(_ context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, instance := splitID(id)

	master, ok := s.events[uid]
	if !ok {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: fmt.Sprintf("event %s not found", uid)}
	}
	if instance == "" {
		return master.Clone(), nil
	}

	return s.resolveInstance(master, instance)
}

// resolveInstance returns the stored exception for the slot, or a
// synthesized occurrence record when the slot is rule-generated.
func (s *Store) resolveInstance(master *event.Event, instance string) (*event.Event, error) {
	if master.Recurrence != nil {
		if idx, ok := master.Recurrence.FindException(instance).Get(); ok {
			ex := master.Recurrence.Exceptions[idx].Clone()
			ex.ID = master.UID + "-" + instance
			ex.UID = master.UID
			ex.RecurrenceID = master.UID
			return ex, nil
		}
	}

	occs, err := s.expand(master, recurrence.Window{})
	if err != nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "expansion failed", Err: err}
	}
	for _, occ := range occs {
		if occ.Instance == instance {
			ev := master.Clone()
			ev.ID = master.UID + "-" + instance
			ev.Start = occ.Start
			ev.End = occ.End
			ev.Recurrence = nil
			ev.RecurrenceID = master.UID
			ev.Instance = instance
			ev.RecurrenceDate = occ.Start
			return ev, nil
		}
	}

	return nil, &storage.Error{Type: storage.ErrNotFound, Message: fmt.Sprintf("instance %s of %s not found", instance, master.UID)}
}

func (s *Store) Put(_ context.Context, ev *event.Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid event", Err: err}
	}
	if ev.UID == "" {
		return "", &storage.Error{Type: storage.ErrInvalidInput, Message: "event has no uid"}
	}

	s.mu.Lock()
	s.events[ev.UID] = ev.Clone()
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate(ev.UID)
	}

	return ev.UID, nil
}

func (s *Store) Delete(_ context.Context, uid string, scope storage.DeleteScope) error {
	s.mu.Lock()
	_, ok := s.events[uid]
	if ok && scope == storage.DeleteSeries {
		// master and exceptions are one unit
		delete(s.events, uid)
	}
	s.mu.Unlock()

	if !ok {
		return &storage.Error{Type: storage.ErrNotFound, Message: fmt.Sprintf("event %s not found", uid)}
	}

	if s.cache != nil {
		s.cache.Invalidate(uid)
	}

	return nil
}

func (s *Store) ListExceptions(_ context.Context, masterUID string, instance string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	master, ok := s.events[masterUID]
	if !ok {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: fmt.Sprintf("event %s not found", masterUID)}
	}
	if master.Recurrence == nil {
		return nil, nil
	}

	out := master.Recurrence.ExceptionList()
	if instance != "" {
		out = filterByInstance(out, instance)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Instance != out[j].Instance {
			return out[i].Instance < out[j].Instance
		}
		return out[i].Start.Before(out[j].Start)
	})

	return out, nil
}

func (s *Store) MaterializeOccurrences(_ context.Context, masterUID string, w recurrence.Window) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	master, ok := s.events[masterUID]
	if !ok {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: fmt.Sprintf("event %s not found", masterUID)}
	}
	if !master.IsRecurring() {
		return []event.Event{*master.Clone()}, nil
	}

	occs, err := s.expand(master, w)
	if err != nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "expansion failed", Err: err}
	}

	out := make([]event.Event, 0, len(occs))
	for _, occ := range occs {
		var ev *event.Event
		if occ.Exception != nil {
			ev = occ.Exception.Clone()
		} else {
			ev = master.Clone()
			ev.Start = occ.Start
			ev.End = occ.End
			ev.Recurrence = nil
			ev.RecurrenceDate = occ.Start
		}
		ev.ID = master.UID + "-" + occ.Instance
		ev.UID = master.UID
		ev.RecurrenceID = master.UID
		ev.Instance = occ.Instance
		out = append(out, *ev)
	}

	return out, nil
}

func (s *Store) expand(master *event.Event, w recurrence.Window) ([]recurrence.Occurrence, error) {
	if s.cache != nil {
		if occs, ok := s.cache.Get(master, w); ok {
			return occs, nil
		}
	}

	occs, err := s.engine.Expand(master, w)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(master, w, occs)
	}

	return occs, nil
}

func filterByInstance(list []event.Event, instance string) []event.Event {
	var out []event.Event
	for _, ex := range list {
		if ex.Instance == instance {
			out = append(out, ex)
		}
	}
	return out
}
