package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/repository"
)

// ReservationRepository keeps reservations in maps guarded by a RWMutex and
// maintains the by-item, by-renter and by-owner indexes. Values are cloned on
// the way in and out.
type ReservationRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*domain.Reservation
	byItem   map[int32][]uuid.UUID
	byRenter map[int32][]uuid.UUID
	byOwner  map[int32][]uuid.UUID
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		byID:     make(map[uuid.UUID]*domain.Reservation),
		byItem:   make(map[int32][]uuid.UUID),
		byRenter: make(map[int32][]uuid.UUID),
		byOwner:  make(map[int32][]uuid.UUID),
	}
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	res.Version = 1
	r.byID[res.ID] = res.Clone()
	r.byItem[res.ItemID] = append(r.byItem[res.ItemID], res.ID)
	r.byRenter[res.RenterID] = append(r.byRenter[res.RenterID], res.ID)
	r.byOwner[res.OwnerID] = append(r.byOwner[res.OwnerID], res.ID)
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return res.Clone(), nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[res.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != res.Version {
		return repository.ErrVersionConflict
	}
	res.Version++
	r.byID[res.ID] = res.Clone()
	return nil
}

func (r *ReservationRepository) ListByItem(ctx context.Context, itemID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, func() []uuid.UUID { return r.byItem[itemID] }, statuses)
}

func (r *ReservationRepository) ListByRenter(ctx context.Context, renterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, func() []uuid.UUID { return r.byRenter[renterID] }, statuses)
}

func (r *ReservationRepository) ListByOwner(ctx context.Context, ownerID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, func() []uuid.UUID { return r.byOwner[ownerID] }, statuses)
}

func (r *ReservationRepository) ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, func() []uuid.UUID {
		ids := make([]uuid.UUID, 0, len(r.byID))
		for id := range r.byID {
			ids = append(ids, id)
		}
		return ids
	}, []domain.ReservationStatus{status})
}

// list must be handed a closure so the index is read under the lock.
func (r *ReservationRepository) list(ctx context.Context, ids func() []uuid.UUID, statuses []domain.ReservationStatus) ([]domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Reservation
	for _, id := range ids() {
		res := r.byID[id]
		if res == nil || !statusIn(res.Status, statuses) {
			continue
		}
		out = append(out, *res.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func statusIn(s domain.ReservationStatus, statuses []domain.ReservationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
