package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstore-backend/internal/cache"
	"labstore-backend/internal/models"
)

// RequestRepository persists each LabRequest as one JSONB aggregate row.
// The version column is the optimistic-concurrency target: Save is a single
// compare-and-swap UPDATE, which is what lets the allocation engine run from
// many concurrent callers without a global lock.
type RequestRepository struct {
	DB *pgxpool.Pool
}

func NewRequestRepository(db *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{DB: db}
}

// Create inserts a new aggregate at version 1.
func (r *RequestRepository) Create(ctx context.Context, req *models.LabRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request aggregate: %w", err)
	}

	query := `
		INSERT INTO lab_requests (id, lab_id, requested_by, status, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.DB.Exec(ctx, query,
		req.ID, req.LabID, req.RequestedBy, req.Status, req.Version, data, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

// Load checks out the aggregate together with its current version. Reads
// always hit the database: the engine's retry loop must never see a stale
// cached copy. Response caching happens at the handler layer.
func (r *RequestRepository) Load(ctx context.Context, id string) (*models.LabRequest, error) {
	query := `SELECT data, version FROM lab_requests WHERE id = $1`

	var data []byte
	var version int64
	err := r.DB.QueryRow(ctx, query, id).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	req := &models.LabRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to decode request aggregate: %w", err)
	}
	// The column is authoritative; the JSON copy may lag behind.
	req.Version = version

	return req, nil
}

// Save writes the aggregate back if and only if the stored version still
// matches expectedVersion. Zero rows updated means another writer won the
// race and the caller must reload and retry.
func (r *RequestRepository) Save(ctx context.Context, req *models.LabRequest, expectedVersion int64) error {
	snapshot := *req
	snapshot.Version = expectedVersion + 1
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode request aggregate: %w", err)
	}

	query := `
		UPDATE lab_requests
		SET data = $2, status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5
	`
	tag, err := r.DB.Exec(ctx, query, req.ID, data, req.Status, req.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}

	cache.InvalidateRequest(ctx, req.ID)
	return nil
}

// List returns aggregates, newest first, optionally filtered by status and lab.
func (r *RequestRepository) List(ctx context.Context, status, labID string) ([]models.LabRequest, error) {
	query := `SELECT data, version FROM lab_requests WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if labID != "" {
		args = append(args, labID)
		query += fmt.Sprintf(" AND lab_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.LabRequest
	for rows.Next() {
		var data []byte
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, err
		}
		var req models.LabRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to decode request aggregate: %w", err)
		}
		req.Version = version
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
