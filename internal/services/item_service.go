package services

import (
	"context"
	"errors"

	"labstore-backend/internal/models"
)

// ItemCatalog extends the registry's reserve/release contract with the
// registration and lifecycle operations the store staff use. Item state is
// mutated only through these operations, never written directly.
type ItemCatalog interface {
	ItemRegistry
	Register(ctx context.Context, item *models.EquipmentItem) error
	Retire(ctx context.Context, itemID string) error
	List(ctx context.Context, state string) ([]models.EquipmentItem, error)
}

// ItemService manages the equipment item registry: pre-registration of
// scanned tags, returns, and retirement.
type ItemService struct {
	Registry ItemCatalog
}

func NewItemService(registry ItemCatalog) *ItemService {
	return &ItemService{Registry: registry}
}

// RegisterItem pre-registers a scanned tag as an available physical unit.
// Items must exist in the registry before they can be reserved.
func (s *ItemService) RegisterItem(ctx context.Context, req *models.RegisterItemRequest) (*models.EquipmentItem, error) {
	if req.ItemID == "" {
		return nil, errors.New("item_id is required")
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}

	item := &models.EquipmentItem{
		ItemID:  req.ItemID,
		Name:    req.Name,
		Variant: req.Variant,
		State:   models.ItemAvailable,
	}
	if err := s.Registry.Register(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem retrieves one registry entry.
func (s *ItemService) GetItem(ctx context.Context, itemID string) (*models.EquipmentItem, error) {
	return s.Registry.Get(ctx, itemID)
}

// ListItems lists registry entries, optionally filtered by state.
func (s *ItemService) ListItems(ctx context.Context, state string) ([]models.EquipmentItem, error) {
	return s.Registry.List(ctx, state)
}

// ReleaseItem records a physical return: allocated → available.
func (s *ItemService) ReleaseItem(ctx context.Context, itemID string) error {
	return s.Registry.Release(ctx, itemID)
}

// RetireItem removes an available unit from circulation. Terminal.
func (s *ItemService) RetireItem(ctx context.Context, itemID string) error {
	return s.Registry.Retire(ctx, itemID)
}
