package results

import (
	"sync"
	"time"

	"streamstat/internal/model"
)

// Store keeps the latest StatResult per key for the read API. Bounded: when
// the tracked key count exceeds the limit, the least recently updated entity
// is dropped.
type Store struct {
	mu        sync.RWMutex
	byEntity  map[string]map[string]model.StatResult
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byEntity:  make(map[string]map[string]model.StatResult),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Update(entityID, metric string, res model.StatResult) {
	if entityID == "" || metric == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byEntity[entityID]
	if !ok {
		m = make(map[string]model.StatResult)
		s.byEntity[entityID] = m
	}
	m[metric] = res
	s.updatedAt[entityID] = time.Now().UTC()
	if len(s.byEntity) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(entityID string) (map[string]model.StatResult, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byEntity[entityID]
	if !ok {
		return nil, time.Time{}, false
	}
	out := make(map[string]model.StatResult, len(m))
	for metric, res := range m {
		out[metric] = res
	}
	return out, s.updatedAt[entityID], true
}

func (s *Store) GetAll() map[string]map[string]model.StatResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]model.StatResult, len(s.byEntity))
	for entityID, m := range s.byEntity {
		inner := make(map[string]model.StatResult, len(m))
		for metric, res := range m {
			inner[metric] = res
		}
		out[entityID] = inner
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestEntity string
	var oldest time.Time
	for entity, ts := range s.updatedAt {
		if oldestEntity == "" || ts.Before(oldest) {
			oldestEntity = entity
			oldest = ts
		}
	}
	if oldestEntity != "" {
		delete(s.byEntity, oldestEntity)
		delete(s.updatedAt, oldestEntity)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEntity = make(map[string]map[string]model.StatResult)
	s.updatedAt = make(map[string]time.Time)
}
