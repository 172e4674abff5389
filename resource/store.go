package resource

import "sync"

type entry struct {
	value any
	name  string
	kind  Kind
	valid bool
}

// store is a slot table with handle reuse.
type store struct {
	mu       sync.RWMutex
	entries  []entry
	freeList []Handle
}

func newStore() *store {
	return &store{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

func (s *store) create(kind Kind, name string, value any) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{kind: kind, name: name, value: value, valid: true}
	if n := len(s.freeList); n > 0 {
		h := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.entries[h-1] = e
		return h
	}
	s.entries = append(s.entries, e)
	return Handle(len(s.entries))
}

func (s *store) get(h Handle) (entry, bool) {
	if h == 0 {
		return entry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(h) > len(s.entries) {
		return entry{}, false
	}
	e := s.entries[h-1]
	return e, e.valid
}

func (s *store) drop(h Handle) (entry, bool) {
	if h == 0 {
		return entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h) > len(s.entries) || !s.entries[h-1].valid {
		return entry{}, false
	}
	e := s.entries[h-1]
	s.entries[h-1] = entry{}
	s.freeList = append(s.freeList, h)
	return e, true
}

func (s *store) each(fn func(Handle, entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.entries {
		if e.valid && !fn(Handle(i+1), e) {
			return
		}
	}
}

func (s *store) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) - len(s.freeList)
}
