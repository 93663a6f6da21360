package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"rentshare-backend/internal/domain"
)

type ReservationService interface {
	Request(ctx context.Context, renterID, itemID int32, start, end time.Time) (*domain.Reservation, error)
	Approve(ctx context.Context, reservationID uuid.UUID, ownerID int32, method domain.FulfillmentMethod, pickupLocation string) (*domain.Reservation, error)
	Reject(ctx context.Context, reservationID uuid.UUID, ownerID int32, reason string) (*domain.Reservation, error)
	Pay(ctx context.Context, reservationID uuid.UUID, renterID int32) (*domain.Reservation, error)
	Cancel(ctx context.Context, reservationID uuid.UUID, callerID int32) (*domain.Reservation, error)
	MarkCompleted(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error)
	// AdminCancel cancels on behalf of an administrative action against
	// sanctionedUserID. It skips caller authorization and the start guard and
	// notifies the other party with CANCELLED_BY_ADMIN.
	AdminCancel(ctx context.Context, reservationID uuid.UUID, sanctionedUserID int32, reason string) (*domain.Reservation, error)

	Get(ctx context.Context, callerID int32, reservationID uuid.UUID) (*domain.Reservation, error)
	ListForItem(ctx context.Context, callerID, itemID int32) ([]domain.Reservation, error)
	ListByRenter(ctx context.Context, renterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListByOwner(ctx context.Context, ownerID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
}

type ConflictChecker interface {
	// HasBlockingOverlap reports whether an APPROVED or PAID reservation on
	// itemID intersects [start, end]. Callers must hold the item lock.
	HasBlockingOverlap(ctx context.Context, itemID int32, start, end time.Time, exclude ...uuid.UUID) (bool, error)
}

type StandingService interface {
	// ApplyStandingChange is safe to repeat. Applying the current sanction
	// again skips the account notification but cancels any reservation an
	// earlier call failed to cancel. A non-empty Failed comes back with an
	// UNAVAILABLE error.
	ApplyStandingChange(ctx context.Context, userID int32, newStanding domain.Standing) (*StandingChangeResult, error)
}

// Notifier delivers booking events to users. Delivery is best-effort: the
// engine logs and counts failures but never fails a transition because of one.
type Notifier interface {
	Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error
}

type CodeGenerator interface {
	Generate() (string, error)
}
