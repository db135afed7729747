package history

import (
	"container/list"
	"sync"
)

// LRUStore keeps the most recent entries in memory and delegates to a
// backing Store for persistence and misses.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // front is most recent; values are *Entry
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache holding at most cap entries in front
// of back. A cap below 1 is raised to 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save caches the entry and writes it through to the backing store.
func (s *LRUStore) Save(entry *Entry) error {
	s.put(entry)
	return s.back.Save(entry)
}

// Load serves from memory when possible; on a miss the entry is loaded
// from the backing store and cached.
func (s *LRUStore) Load(runID string) (*Entry, error) {
	s.mu.Lock()
	if el, ok := s.items[runID]; ok {
		s.order.MoveToFront(el)
		entry := el.Value.(*Entry)
		s.mu.Unlock()
		return entry, nil
	}
	s.mu.Unlock()

	entry, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}
	s.put(entry)
	return entry, nil
}

// List returns the backing store's entries when it is a Lister, and the
// cached entries otherwise. Either way the newest entry comes first.
func (s *LRUStore) List() ([]*Entry, error) {
	if l, ok := s.back.(Lister); ok {
		return l.List()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*Entry, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(*Entry))
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Len returns the number of cached entries.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *LRUStore) put(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[entry.ID]; ok {
		el.Value = entry
		s.order.MoveToFront(el)
		return
	}
	s.items[entry.ID] = s.order.PushFront(entry)
	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Entry).ID)
	}
}
