package reconcile

import (
	"sync"
)

// Order is the natural position of newly inserted records.
type Order int

const (
	// NewestFirst prepends new records, as in a feed.
	NewestFirst Order = iota
	// OldestFirst appends new records, as in a comment thread.
	OldestFirst
)

// Store is the ordered, screen-local list of records. It is owned by a single
// screen; Close marks the screen as torn down.
type Store[P Payload[P]] struct {
	mu       sync.Mutex
	order    Order
	records  []Record[P]
	deleting map[string]struct{}
	closed   bool
	subs     map[int]func([]Record[P])
	nextSub  int
}

// NewStore creates an empty store.
func NewStore[P Payload[P]](order Order) *Store[P] {
	return &Store[P]{
		order:    order,
		deleting: make(map[string]struct{}),
		subs:     make(map[int]func([]Record[P])),
	}
}

// Insert places rec at its natural position.
func (s *Store[P]) Insert(rec Record[P]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.indexOf(rec.ID) >= 0 {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	if s.order == NewestFirst {
		s.records = append([]Record[P]{rec}, s.records...)
	} else {
		s.records = append(s.records, rec)
	}
	return s.commit()
}

// InsertAt places rec at index, clamped to the current bounds.
func (s *Store[P]) InsertAt(index int, rec Record[P]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.indexOf(rec.ID) >= 0 {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.records) {
		index = len(s.records)
	}
	s.records = append(s.records, Record[P]{})
	copy(s.records[index+1:], s.records[index:])
	s.records[index] = rec
	return s.commit()
}

// ReplaceByID swaps the record with the given id for rec. When rec carries a
// different id that is already present, the entry for id is dropped and the
// existing one is overwritten, so a confirmation never produces a duplicate.
// A missing id returns ErrNotFound and changes nothing.
func (s *Store[P]) ReplaceByID(id string, rec Record[P]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if rec.ID != id {
		if other := s.indexOf(rec.ID); other >= 0 {
			s.records[other] = rec
			s.records = append(s.records[:idx], s.records[idx+1:]...)
			return s.commit()
		}
	}
	s.records[idx] = rec
	return s.commit()
}

// RemoveByID removes the record and reports where it was.
func (s *Store[P]) RemoveByID(id string) (Record[P], int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Record[P]{}, -1, ErrStoreClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return Record[P]{}, -1, ErrNotFound
	}
	rec := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	return rec, idx, s.commit()
}

// Get returns a copy of the record with the given id.
func (s *Store[P]) Get(id string) (Record[P], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Record[P]{}, false
	}
	return s.records[idx].clone(), true
}

// Records returns a snapshot of the list in display order.
func (s *Store[P]) Records() []Record[P] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len reports the number of records.
func (s *Store[P]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Refresh replaces the list with authoritative records from the gateway.
// Pending records keep their optimistic value, records whose deletion is in
// flight are not resurrected, and pending creations stay at the head (or
// tail) of the list.
func (s *Store[P]) Refresh(authoritative []Record[P]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}

	pending := make(map[string]Record[P])
	for _, rec := range s.records {
		if rec.Status == StatusPending {
			pending[rec.ID] = rec
		}
	}

	next := make([]Record[P], 0, len(authoritative)+len(pending))
	seen := make(map[string]struct{}, len(authoritative))
	for _, rec := range authoritative {
		if _, gone := s.deleting[rec.ID]; gone {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		if p, ok := pending[rec.ID]; ok {
			next = append(next, p)
			continue
		}
		rec.Status = StatusConfirmed
		next = append(next, rec)
	}

	var unsent []Record[P]
	for _, rec := range s.records {
		if rec.Status != StatusPending {
			continue
		}
		if _, ok := seen[rec.ID]; !ok {
			unsent = append(unsent, rec)
		}
	}
	if s.order == NewestFirst {
		next = append(unsent, next...)
	} else {
		next = append(next, unsent...)
	}

	s.records = next
	return s.commit()
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes the subscription.
func (s *Store[P]) Subscribe(fn func([]Record[P])) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close tears the store down. Later writes fail with ErrStoreClosed.
func (s *Store[P]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]func([]Record[P]))
}

// Closed reports whether Close was called.
func (s *Store[P]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// beginUpdate swaps in the pending value rec for id and returns the record it
// replaced. The pending check and the swap happen under one lock.
func (s *Store[P]) beginUpdate(id string, rec Record[P]) (Record[P], error) {
	s.mu.Lock()
	idx, err := s.settledIndex(id)
	if err != nil {
		s.mu.Unlock()
		return Record[P]{}, err
	}
	prev := s.records[idx]
	s.records[idx] = rec
	return prev, s.commit()
}

// beginDelete removes id and marks its deletion in flight, so a Refresh
// arriving before the gateway answers cannot bring it back.
func (s *Store[P]) beginDelete(id string) (Record[P], int, error) {
	s.mu.Lock()
	idx, err := s.settledIndex(id)
	if err != nil {
		s.mu.Unlock()
		return Record[P]{}, -1, err
	}
	rec := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.deleting[id] = struct{}{}
	return rec, idx, s.commit()
}

// settledIndex locates id for a new mutation. Callers hold the lock.
func (s *Store[P]) settledIndex(id string) (int, error) {
	if s.closed {
		return -1, ErrStoreClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return -1, ErrNotFound
	}
	if s.records[idx].Status == StatusPending {
		return -1, errInProgress
	}
	return idx, nil
}

func (s *Store[P]) clearDeleting(id string) {
	s.mu.Lock()
	delete(s.deleting, id)
	s.mu.Unlock()
}

func (s *Store[P]) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store[P]) snapshot() []Record[P] {
	out := make([]Record[P], len(s.records))
	for i, rec := range s.records {
		out[i] = rec.clone()
	}
	return out
}

// commit releases the lock taken by the caller and notifies subscribers.
func (s *Store[P]) commit() error {
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshot()
	subs := make([]func([]Record[P]), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
	return nil
}
