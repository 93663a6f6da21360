package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"rentshare-backend/internal/domain"
)

var (
	// ErrNotFound is returned by every repository when the keyed record is absent.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by Update when the stored version moved on.
	ErrVersionConflict = errors.New("record was modified concurrently")
	// ErrOverlap is returned when the store itself refuses a blocking overlap.
	ErrOverlap = errors.New("reservation overlaps a blocking reservation")
)

// UserRepository is the identity collaborator.
type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	// FindOwnerOf returns the owner of an item, or nil when the item has no owner reference.
	FindOwnerOf(ctx context.Context, itemID int32) (*int32, error)
	UpdateStanding(ctx context.Context, userID int32, standing domain.Standing) error
}

// ItemRepository is the catalog collaborator.
type ItemRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Item, error)
	ListByOwner(ctx context.Context, ownerID int32) ([]domain.Item, error)
}

// ReservationRepository stores reservations. Records are never deleted.
// List methods return every status when statuses is empty.
type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	// Update persists r if its Version still matches the stored one and
	// increments r.Version on success.
	Update(ctx context.Context, r *domain.Reservation) error
	ListByItem(ctx context.Context, itemID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListByRenter(ctx context.Context, renterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListByOwner(ctx context.Context, ownerID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error)
}
