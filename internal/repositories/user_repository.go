package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"labstore-backend/internal/models"
)

type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, lab_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.DB.QueryRow(ctx, query,
		u.Name, u.Email, u.PasswordHash, u.Role, u.LabID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) Get(ctx context.Context, id int) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, lab_id, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u := &models.User{}
	err := r.DB.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.LabID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, lab_id, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	u := &models.User{}
	err := r.DB.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.LabID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, lab_id, is_active, created_at, updated_at
		FROM users
		ORDER BY id
	`
	rows, err := r.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(
			&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.LabID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	if u.PasswordHash != "" {
		query := `
			UPDATE users
			SET name = $2, email = $3, password_hash = $4, role = $5, lab_id = $6, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`
		_, err := r.DB.Exec(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.LabID)
		return err
	}

	query := `
		UPDATE users
		SET name = $2, email = $3, role = $4, lab_id = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.DB.Exec(ctx, query, u.ID, u.Name, u.Email, u.Role, u.LabID)
	return err
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// SetActive toggles account suspension without touching other fields.
func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id, active)
	return err
}
