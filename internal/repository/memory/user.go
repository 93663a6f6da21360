package memory

import (
	"context"
	"sync"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[int32]domain.User
	items *ItemRepository
}

func NewUserRepository(items *ItemRepository) *UserRepository {
	return &UserRepository{users: make(map[int32]domain.User), items: items}
}

// Put inserts or replaces a user.
func (r *UserRepository) Put(u domain.User) {
	if u.Standing == "" {
		u.Standing = domain.StandingActive
	}
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
}

func (r *UserRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) FindOwnerOf(ctx context.Context, itemID int32) (*int32, error) {
	item, err := r.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return item.OwnerID, nil
}

func (r *UserRepository) UpdateStanding(ctx context.Context, userID int32, standing domain.Standing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Standing = standing
	r.users[userID] = u
	return nil
}
