package cache

import (
	"strings"
	"sync"
)

// Key identifies a cached query as an ordered list of segments, e.g.
// {"notes", "<patientID>"}. A shorter key is a prefix of every key it
// leads, so {"notes"} addresses the note lists of all patients at once.
type Key []string

// NoteListKey addresses the cached note list of one patient
func NoteListKey(patientID string) Key {
	return Key{"notes", patientID}
}

// PatientListKey addresses the cached patient list
func PatientListKey() Key {
	return Key{"patients"}
}

func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether k starts with the given prefix segments
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

type entry struct {
	key   Key
	value any
	gen   uint64
}

// Store is a query cache with prefix snapshots and staleness marking.
// Values are treated as immutable once stored: writers replace entries with
// fresh values rather than mutating in place, which is what makes snapshot
// restore an exact rollback.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64
}

// NewStore returns an empty cache
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached value for the key, if any. A stale entry is still
// returned; callers wanting server truth check Fresh first.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key.String()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Fresh reports whether the entry exists and postdates the last invalidation
// of its key
func (s *Store) Fresh(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key.String()]
	return ok && e.gen == s.gens[key.String()]
}

// Set stores a value for the key, marking it fresh
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := key.String()
	s.entries[ks] = entry{key: key, value: value, gen: s.gens[ks]}
}

// Delete removes the entry for the key
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// Invalidate marks every entry under the prefix stale. The entries stay
// readable until the next Set replaces them with server truth.
func (s *Store) Invalidate(prefix Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ks, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			s.gens[ks]++
		}
	}
}

// Keys returns the keys of all entries under the prefix
func (s *Store) Keys(prefix Key) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []Key
	for _, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Snapshot captures every entry under the prefix for a later rollback
type Snapshot struct {
	prefix  Key
	entries map[string]entry
}

// Snapshot records the current state of all entries under the prefix. It is
// the checkpoint taken before an optimistic write; at most one is held per
// in-flight mutation and it is discarded once the mutation settles.
func (s *Store) Snapshot(prefix Key) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		prefix:  prefix,
		entries: make(map[string]entry),
	}
	for ks, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			snap.entries[ks] = e
		}
	}
	return snap
}

// Restore puts the snapshotted prefix back exactly as captured: entries
// written since are removed, replaced values are reinstated. Unconditional,
// never partial.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ks, e := range s.entries {
		if e.key.HasPrefix(snap.prefix) {
			if _, kept := snap.entries[ks]; !kept {
				delete(s.entries, ks)
			}
		}
	}
	for ks, e := range snap.entries {
		s.entries[ks] = e
	}
}
