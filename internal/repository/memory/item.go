package memory

import (
	"context"
	"sort"
	"sync"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/repository"
)

type ItemRepository struct {
	mu    sync.RWMutex
	items map[int32]domain.Item
}

func NewItemRepository() *ItemRepository {
	return &ItemRepository{items: make(map[int32]domain.Item)}
}

// Put inserts or replaces an item.
func (r *ItemRepository) Put(item domain.Item) {
	r.mu.Lock()
	r.items[item.ID] = item
	r.mu.Unlock()
}

func (r *ItemRepository) GetByID(ctx context.Context, id int32) (*domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (r *ItemRepository) ListByOwner(ctx context.Context, ownerID int32) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Item
	for _, item := range r.items {
		if item.IsOwnedBy(ownerID) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
