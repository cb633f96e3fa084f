// Package memory provides in-memory implementations of the request store and
// equipment item registry with the same compare-and-swap semantics as the
// Postgres repositories. It backs the test suite and standalone mode, where
// the server runs without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"labstore-backend/internal/models"
)

// RequestStore keeps each aggregate as a JSON snapshot so checked-out copies
// never alias stored state; a failed save leaves the stored aggregate
// untouched, mirroring the JSONB row in Postgres.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string][]byte
	versions map[string]int64
}

func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (s *RequestStore) Create(_ context.Context, req *models.LabRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	s.requests[req.ID] = data
	s.versions[req.ID] = req.Version
	return nil
}

func (s *RequestStore) Load(_ context.Context, id string) (*models.LabRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.requests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	req := &models.LabRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	req.Version = s.versions[id]
	return req, nil
}

func (s *RequestStore) Save(_ context.Context, req *models.LabRequest, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; !ok {
		return models.ErrNotFound
	}
	if s.versions[req.ID] != expectedVersion {
		return models.ErrVersionConflict
	}

	snapshot := *req
	snapshot.Version = expectedVersion + 1
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return err
	}
	s.requests[req.ID] = data
	s.versions[req.ID] = expectedVersion + 1
	return nil
}

func (s *RequestStore) List(_ context.Context, status, labID string) ([]models.LabRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requests []models.LabRequest
	for id, data := range s.requests {
		var req models.LabRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		req.Version = s.versions[id]
		if status != "" && req.Status != status {
			continue
		}
		if labID != "" && req.LabID != labID {
			continue
		}
		requests = append(requests, req)
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

// ItemRegistry is the in-memory item custody ledger. One mutex serializes
// all state transitions, which is the strongest possible form of the
// per-item compare-and-set the contract requires.
type ItemRegistry struct {
	mu    sync.Mutex
	items map[string]*models.EquipmentItem
}

func NewItemRegistry() *ItemRegistry {
	return &ItemRegistry{items: make(map[string]*models.EquipmentItem)}
}

func (r *ItemRegistry) Register(_ context.Context, item *models.EquipmentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ItemID]; ok {
		return fmt.Errorf("item %s is already registered", item.ItemID)
	}
	item.State = models.ItemAvailable
	item.RegisteredAt = time.Now().UTC()
	stored := *item
	r.items[item.ItemID] = &stored
	return nil
}

func (r *ItemRegistry) Get(_ context.Context, itemID string) (*models.EquipmentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return nil, models.ErrUnknownItem
	}
	copied := *item
	return &copied, nil
}

func (r *ItemRegistry) Reserve(_ context.Context, itemID, requestID, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return models.ErrUnknownItem
	}
	if item.State != models.ItemAvailable {
		return models.ErrAlreadyAllocated
	}

	now := time.Now().UTC()
	item.State = models.ItemAllocated
	item.HolderRequestID = &requestID
	item.HolderExperimentID = &experimentID
	item.AllocatedAt = &now
	return nil
}

func (r *ItemRegistry) Release(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok || item.State != models.ItemAllocated {
		return models.ErrNotAllocated
	}

	now := time.Now().UTC()
	item.State = models.ItemAvailable
	item.HolderRequestID = nil
	item.HolderExperimentID = nil
	item.ReturnedAt = &now
	return nil
}

func (r *ItemRegistry) Retire(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return models.ErrUnknownItem
	}
	if item.State != models.ItemAvailable {
		return fmt.Errorf("cannot retire item %s in state %s: %w", itemID, item.State, models.ErrInvalidState)
	}

	now := time.Now().UTC()
	item.State = models.ItemRetired
	item.RetiredAt = &now
	return nil
}

func (r *ItemRegistry) List(_ context.Context, state string) ([]models.EquipmentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []models.EquipmentItem
	for _, item := range r.items {
		if state != "" && item.State != state {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}
