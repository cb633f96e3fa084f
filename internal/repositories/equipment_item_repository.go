package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstore-backend/internal/metrics"
	"labstore-backend/internal/models"
)

// EquipmentItemRepository is the registry of unique physical equipment units.
// Reserve and Release are the only writers of custody state; both are single
// guarded UPDATEs so two concurrent reserves of one item can never both
// succeed.
type EquipmentItemRepository struct {
	DB *pgxpool.Pool
}

func NewEquipmentItemRepository(db *pgxpool.Pool) *EquipmentItemRepository {
	return &EquipmentItemRepository{DB: db}
}

// Register inserts a new available item. Item IDs are externally supplied
// scanned tags and must be globally unique.
func (r *EquipmentItemRepository) Register(ctx context.Context, item *models.EquipmentItem) error {
	query := `
		INSERT INTO equipment_items (item_id, name, variant, state)
		VALUES ($1, $2, $3, 'available')
		ON CONFLICT (item_id) DO NOTHING
		RETURNING registered_at
	`
	err := r.DB.QueryRow(ctx, query, item.ItemID, item.Name, item.Variant).Scan(&item.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("item %s is already registered", item.ItemID)
	}
	if err != nil {
		return err
	}
	item.State = models.ItemAvailable
	return nil
}

// Get retrieves one registry entry.
func (r *EquipmentItemRepository) Get(ctx context.Context, itemID string) (*models.EquipmentItem, error) {
	query := `
		SELECT item_id, name, variant, state, holder_request_id, holder_experiment_id,
		       registered_at, allocated_at, returned_at, retired_at
		FROM equipment_items
		WHERE item_id = $1
	`
	item := &models.EquipmentItem{}
	err := r.DB.QueryRow(ctx, query, itemID).Scan(
		&item.ItemID, &item.Name, &item.Variant, &item.State,
		&item.HolderRequestID, &item.HolderExperimentID,
		&item.RegisteredAt, &item.AllocatedAt, &item.ReturnedAt, &item.RetiredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUnknownItem
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Reserve atomically transitions an item from available to allocated,
// recording the holder. The WHERE clause is the compare-and-set: of any
// number of concurrent reserves for one item, exactly one updates a row.
func (r *EquipmentItemRepository) Reserve(ctx context.Context, itemID, requestID, experimentID string) error {
	query := `
		UPDATE equipment_items
		SET state = 'allocated', holder_request_id = $2, holder_experiment_id = $3,
		    allocated_at = CURRENT_TIMESTAMP
		WHERE item_id = $1 AND state = 'available'
	`
	tag, err := r.DB.Exec(ctx, query, itemID, requestID, experimentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish an unregistered tag from one held elsewhere.
		var state string
		err := r.DB.QueryRow(ctx, `SELECT state FROM equipment_items WHERE item_id = $1`, itemID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrUnknownItem
		}
		if err != nil {
			return err
		}
		return models.ErrAlreadyAllocated
	}

	metrics.ItemsReservedTotal.Inc()
	return nil
}

// Release transitions allocated → available on physical return, clearing the
// holder and stamping returned_at.
func (r *EquipmentItemRepository) Release(ctx context.Context, itemID string) error {
	query := `
		UPDATE equipment_items
		SET state = 'available', holder_request_id = NULL, holder_experiment_id = NULL,
		    returned_at = CURRENT_TIMESTAMP
		WHERE item_id = $1 AND state = 'allocated'
	`
	tag, err := r.DB.Exec(ctx, query, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotAllocated
	}
	return nil
}

// Retire removes an available unit from circulation. Allocated items must be
// returned first.
func (r *EquipmentItemRepository) Retire(ctx context.Context, itemID string) error {
	query := `
		UPDATE equipment_items
		SET state = 'retired', retired_at = CURRENT_TIMESTAMP
		WHERE item_id = $1 AND state = 'available'
	`
	tag, err := r.DB.Exec(ctx, query, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var state string
		err := r.DB.QueryRow(ctx, `SELECT state FROM equipment_items WHERE item_id = $1`, itemID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrUnknownItem
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("cannot retire item %s in state %s: %w", itemID, state, models.ErrInvalidState)
	}
	return nil
}

// List returns registry entries, optionally filtered by state.
func (r *EquipmentItemRepository) List(ctx context.Context, state string) ([]models.EquipmentItem, error) {
	query := `
		SELECT item_id, name, variant, state, holder_request_id, holder_experiment_id,
		       registered_at, allocated_at, returned_at, retired_at
		FROM equipment_items
	`
	args := []interface{}{}
	if state != "" {
		query += " WHERE state = $1"
		args = append(args, state)
	}
	query += " ORDER BY registered_at DESC"

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.EquipmentItem
	for rows.Next() {
		var item models.EquipmentItem
		if err := rows.Scan(
			&item.ItemID, &item.Name, &item.Variant, &item.State,
			&item.HolderRequestID, &item.HolderExperimentID,
			&item.RegisteredAt, &item.AllocatedAt, &item.ReturnedAt, &item.RetiredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
