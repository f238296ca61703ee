// Package store owns the authoritative mapping of game code to record. All
// durable writes flow through here, and every record entering or leaving the
// store passes through game.Normalize.
package store

import (
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/cluekeeper/cluekeeper/internal/game"
)

// Store is the single writer of durable game state. Sync clients never touch
// the backend directly.
//
// Update cycles are not serialized across concurrent callers: two
// read-modify-write races resolve as last-write-wins over the whole record.
// This is a documented limitation, not a bug to fix here.
type Store struct {
	mu       sync.RWMutex
	games    map[string]game.Record
	backend  Backend
	clock    clockwork.Clock
	onChange func(snapshot []game.Record)
}

// Open loads the backend's current document and normalizes every record in
// it, so a hand-edited or stale file cannot introduce malformed state.
func Open(backend Backend, clock clockwork.Clock) (*Store, error) {
	loaded, err := backend.Load()
	if err != nil {
		return nil, err
	}

	s := &Store{
		games:   make(map[string]game.Record, len(loaded)),
		backend: backend,
		clock:   clock,
	}
	for code, rec := range loaded {
		code = strings.ToUpper(code)
		s.games[code] = game.Normalize(rec, code, clock.Now())
	}
	return s, nil
}

// OnChange registers the broadcast hook, invoked with a full snapshot after
// every successful put. Must be set before the store is shared.
func (s *Store) OnChange(fn func(snapshot []game.Record)) {
	s.onChange = fn
}

// Get returns the current record for code, or false if absent. The returned
// record shares no containers with stored state.
func (s *Store) Get(code string) (game.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.games[strings.ToUpper(code)]
	if !ok {
		return game.Record{}, false
	}
	return game.Normalize(rec, "", s.clock.Now()), true
}

// Put normalizes and stores the record under code, preserving the prior
// record's creation time when the incoming one omits it. The durable write
// must succeed before the in-memory map or any subscriber sees the change.
func (s *Store) Put(code string, rec game.Record) (game.Record, error) {
	code = strings.ToUpper(code)

	s.mu.Lock()
	if prior, ok := s.games[code]; ok && rec.CreatedAt == 0 {
		rec.CreatedAt = prior.CreatedAt
	}
	normalized := game.Normalize(rec, code, s.clock.Now())

	next := make(map[string]game.Record, len(s.games)+1)
	for k, v := range s.games {
		next[k] = v
	}
	next[code] = normalized

	if err := s.backend.Save(next); err != nil {
		s.mu.Unlock()
		return game.Record{}, err
	}
	s.games = next
	snapshot := s.listLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	// Re-normalize so the caller's copy shares no containers with the map.
	return game.Normalize(normalized, "", s.clock.Now()), nil
}

// List returns every record, newest first, ties broken by code.
func (s *Store) List() []game.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []game.Record {
	out := make([]game.Record, 0, len(s.games))
	for _, rec := range s.games {
		out = append(out, game.Normalize(rec, "", s.clock.Now()))
	}
	game.SortByNewest(out)
	return out
}

// Update applies transform to the current record and persists the result.
// Returns false when code does not exist; update never creates a record.
// A transform error aborts with no mutation applied.
func (s *Store) Update(code string, transform func(*game.Record) error) (game.Record, bool, error) {
	current, ok := s.Get(code)
	if !ok {
		return game.Record{}, false, nil
	}

	if err := transform(&current); err != nil {
		return game.Record{}, true, err
	}

	saved, err := s.Put(code, current)
	if err != nil {
		return game.Record{}, true, err
	}
	return saved, true, nil
}

// Ensure returns the record for code, creating and persisting an empty
// default when absent.
func (s *Store) Ensure(code string) (game.Record, error) {
	if rec, ok := s.Get(code); ok {
		return rec, nil
	}
	return s.Put(code, game.Record{Code: code})
}
