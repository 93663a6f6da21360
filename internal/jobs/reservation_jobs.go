package jobs

import (
	"context"

	"rentshare-backend/internal/domain"
	pkgerrors "rentshare-backend/internal/errors"
	"rentshare-backend/internal/logger"
)

// CompleteElapsedReservations marks PAID reservations as COMPLETED once their end has passed
func (jr *JobRunner) CompleteElapsedReservations() {
	jr.runWithRecovery("CompleteElapsedReservations", func() {
		completed, failed := jr.completeElapsed(context.Background())
		logger.Info("Completed elapsed reservations", "completed", completed, "failed", failed)
	})
}

func (jr *JobRunner) completeElapsed(ctx context.Context) (completed, failed int) {
	paid, err := jr.reservations.ListByStatus(ctx, domain.ReservationStatusPaid)
	if err != nil {
		logger.Error("Failed to list paid reservations", "error", err)
		return 0, 0
	}

	now := jr.clock.Now()
	for _, r := range paid {
		if !r.End.Before(now) {
			continue
		}
		if _, err := jr.engine.MarkCompleted(ctx, r.ID); err != nil {
			// Cancelled between the listing and the transition.
			if pkgerrors.IsInvalidState(err) {
				continue
			}
			logger.Error("Failed to complete reservation", "reservation_id", r.ID, "error", err)
			failed++
			continue
		}
		logger.Debug("Completed reservation", "reservation_id", r.ID, "item_id", r.ItemID, "end", r.End)
		completed++
	}
	return completed, failed
}
