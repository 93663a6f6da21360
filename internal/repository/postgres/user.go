package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, name, role, standing FROM users WHERE id = $1`
	logger.DatabaseCall("SELECT", "users", "id", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Standing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) FindOwnerOf(ctx context.Context, itemID int32) (*int32, error) {
	var owner sql.NullInt32
	logger.DatabaseCall("SELECT", "items", "id", itemID)
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM items WHERE id = $1`, itemID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !owner.Valid {
		return nil, nil
	}
	return &owner.Int32, nil
}

func (r *userRepository) UpdateStanding(ctx context.Context, userID int32, standing domain.Standing) error {
	query := `UPDATE users SET standing=$1, updated_at=NOW() WHERE id=$2`
	logger.DatabaseCall("UPDATE", "users", "id", userID, "standing", standing)
	result, err := r.db.ExecContext(ctx, query, standing, userID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "table", "users")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "table", "users")
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
