package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository"
)

type itemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) repository.ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) GetByID(ctx context.Context, id int32) (*domain.Item, error) {
	query := `SELECT id, owner_id, name, daily_rate, available FROM items WHERE id = $1`
	logger.DatabaseCall("SELECT", "items", "id", id)
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *itemRepository) ListByOwner(ctx context.Context, ownerID int32) ([]domain.Item, error) {
	query := `SELECT id, owner_id, name, daily_rate, available FROM items WHERE owner_id = $1 ORDER BY id`
	logger.DatabaseCall("SELECT", "items", "ownerID", ownerID)
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItem(row rowScanner) (*domain.Item, error) {
	item := &domain.Item{}
	var owner sql.NullInt32
	if err := row.Scan(&item.ID, &owner, &item.Name, &item.DailyRate, &item.Available); err != nil {
		return nil, err
	}
	if owner.Valid {
		item.OwnerID = &owner.Int32
	}
	return item, nil
}
