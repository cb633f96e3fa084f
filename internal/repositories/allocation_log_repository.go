package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"labstore-backend/internal/models"
)

// AllocationLogRepository stores the append-only audit trail of allocation
// and lifecycle actions. Log writes are best-effort: handlers record them
// after the fact and a failed insert never fails the operation itself.
type AllocationLogRepository struct {
	DB *pgxpool.Pool
}

func NewAllocationLogRepository(db *pgxpool.Pool) *AllocationLogRepository {
	return &AllocationLogRepository{DB: db}
}

func (r *AllocationLogRepository) Create(ctx context.Context, entry *models.AllocationLog) error {
	query := `
		INSERT INTO allocation_logs (user_id, action_type, request_id, item_id, description, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	return r.DB.QueryRow(ctx, query,
		entry.UserID, entry.ActionType, entry.RequestID, entry.ItemID, entry.Description, entry.IPAddress,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListByRequest returns the audit trail for one request, newest first.
func (r *AllocationLogRepository) ListByRequest(ctx context.Context, requestID string) ([]models.AllocationLog, error) {
	query := `
		SELECT id, user_id, action_type, request_id, item_id, description, ip_address, created_at
		FROM allocation_logs
		WHERE request_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.DB.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AllocationLog
	for rows.Next() {
		var e models.AllocationLog
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.ActionType, &e.RequestID, &e.ItemID, &e.Description, &e.IPAddress, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
