package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository"
)

type conflictChecker struct {
	reservations repository.ReservationRepository
}

func NewConflictChecker(reservations repository.ReservationRepository) ConflictChecker {
	return &conflictChecker{reservations: reservations}
}

func (c *conflictChecker) HasBlockingOverlap(ctx context.Context, itemID int32, start, end time.Time, exclude ...uuid.UUID) (bool, error) {
	blocking, err := c.reservations.ListByItem(ctx, itemID, domain.BlockingStatuses...)
	if err != nil {
		return false, err
	}
	for i := range blocking {
		if containsID(exclude, blocking[i].ID) {
			continue
		}
		if blocking[i].Overlaps(start, end) {
			logger.Debug("Blocking overlap found", "itemID", itemID, "reservationID", blocking[i].ID, "status", blocking[i].Status)
			return true, nil
		}
	}
	return false, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
