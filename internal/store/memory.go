package store

import (
	"context"
	"sync"
	"time"
)

// memoryCardStore is the in-process CardStore, used for development and
// tests. Same conditional-write semantics as the Redis backend.
type memoryCardStore struct {
	mu    sync.Mutex
	sets  map[string]*DaySet
	quota map[string]int
	clock func() time.Time
}

func NewMemoryCardStore() CardStore {
	return &memoryCardStore{
		sets:  make(map[string]*DaySet),
		quota: make(map[string]int),
		clock: time.Now,
	}
}

func (s *memoryCardStore) GetDaySet(_ context.Context, identity, date string) (*DaySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[daySetKey(identity, date)]
	if !ok {
		return nil, nil
	}
	return copySet(set), nil
}

func (s *memoryCardStore) CreateDaySet(_ context.Context, set *DaySet) (*DaySet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := daySetKey(set.Identity, set.Date)
	if existing, ok := s.sets[key]; ok {
		return copySet(existing), false, nil
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = s.clock()
	}
	s.sets[key] = copySet(set)
	return set, true, nil
}

func (s *memoryCardStore) DeleteDaySet(_ context.Context, identity, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, daySetKey(identity, date))
	return nil
}

func (s *memoryCardStore) UpdateCardQuestion(_ context.Context, identity, date, cardID, question string, highlights []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[daySetKey(identity, date)]
	if !ok {
		return nil
	}
	for i := range set.Cards {
		if set.Cards[i].ID == cardID {
			set.Cards[i].Question = question
			set.Cards[i].Highlights = highlights
			return nil
		}
	}
	return nil
}

func (s *memoryCardStore) ReserveDemoQuota(_ context.Context, deviceHash, date string, ceiling int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := demoQuotaKey(deviceHash, date)
	s.quota[key]++
	return s.quota[key] <= ceiling, nil
}

func (s *memoryCardStore) RefundDemoQuota(_ context.Context, deviceHash, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := demoQuotaKey(deviceHash, date)
	if s.quota[key] > 0 {
		s.quota[key]--
	}
	return nil
}

func copySet(set *DaySet) *DaySet {
	out := *set
	out.Cards = make([]FlashCard, len(set.Cards))
	copy(out.Cards, set.Cards)
	return &out
}
