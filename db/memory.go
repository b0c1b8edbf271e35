package db

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tripy/apperr"
	"tripy/models"
)

// MemoryStore keeps trips in process memory. Values are deep-copied in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string][]byte
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string][]byte), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, tripID string) (models.Trip, error) {
	s.mu.RLock()
	raw, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		return models.Trip{}, apperr.Newf(apperr.TripNotFound, "trip %s not found", tripID)
	}
	var trip models.Trip
	if err := json.Unmarshal(raw, &trip); err != nil {
		return models.Trip{}, err
	}
	return trip, nil
}

func (s *MemoryStore) Create(_ context.Context, trip *models.Trip) error {
	now := s.now().UTC()
	trip.Version = 1
	trip.CreatedAt = now
	trip.UpdatedAt = now
	raw, err := json.Marshal(trip)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[trip.ID]; exists {
		return apperr.Newf(apperr.Internal, "trip %s already exists", trip.ID)
	}
	s.trips[trip.ID] = raw
	return nil
}

func (s *MemoryStore) UpdateIfVersion(_ context.Context, tripID string, version int64, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.trips[tripID]
	if !ok {
		return apperr.Newf(apperr.TripNotFound, "trip %s not found", tripID)
	}
	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return err
	}
	if stored.Version != version {
		return apperr.Newf(apperr.EditConflict, "trip %s changed since version %d", tripID, version)
	}

	next := *trip
	next.ID = tripID
	next.Version = version + 1
	next.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	s.trips[tripID] = data
	*trip = next
	return nil
}
