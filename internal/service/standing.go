package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"rentshare-backend/internal/domain"
	pkgerrors "rentshare-backend/internal/errors"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/metrics"
	"rentshare-backend/internal/repository"
)

type StandingChangeResult struct {
	UserID   int32
	Previous domain.Standing
	Current  domain.Standing
	// Changed is false when the user already had the requested standing.
	Changed   bool
	Cancelled []uuid.UUID
	// Failed holds reservations the cascade could not cancel.
	Failed map[uuid.UUID]error
}

type standingService struct {
	users        repository.UserRepository
	items        repository.ItemRepository
	reservations repository.ReservationRepository
	engine       ReservationService
	notifier     Notifier
	metrics      *metrics.Metrics
}

func NewStandingService(
	users repository.UserRepository,
	items repository.ItemRepository,
	reservations repository.ReservationRepository,
	engine ReservationService,
	notifier Notifier,
	m *metrics.Metrics,
) StandingService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &standingService{
		users:        users,
		items:        items,
		reservations: reservations,
		engine:       engine,
		notifier:     notifier,
		metrics:      m,
	}
}

var standingEvents = map[domain.Standing]domain.EventType{
	domain.StandingActive:    domain.EventAccountReactivated,
	domain.StandingSuspended: domain.EventAccountSuspended,
	domain.StandingBanned:    domain.EventAccountBanned,
}

func (s *standingService) ApplyStandingChange(ctx context.Context, userID int32, newStanding domain.Standing) (result *StandingChangeResult, err error) {
	logger.EnterMethod("standingService.ApplyStandingChange", "userID", userID, "standing", newStanding)
	defer func() { exitMethod("standingService.ApplyStandingChange", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if !newStanding.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidArgument, "unknown standing %q", newStanding)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	result = &StandingChangeResult{
		UserID:   userID,
		Previous: user.Standing,
		Current:  newStanding,
		Failed:   map[uuid.UUID]error{},
	}
	if user.Standing == newStanding {
		logger.Info("Standing unchanged", "userID", userID, "standing", newStanding)
	} else {
		logger.DatabaseCall("update_standing", "users", "userID", userID, "standing", newStanding)
		if err := s.users.UpdateStanding(ctx, userID, newStanding); err != nil {
			return nil, storeError(err, "failed to update standing")
		}
		result.Changed = true
		s.notifyStanding(ctx, userID, user.Standing, newStanding)
	}

	// A repeated sanction re-runs the cascade over whatever is still active.
	if !newStanding.IsSanctioned() {
		return result, nil
	}

	active, err := s.activeReservations(ctx, userID)
	if err != nil {
		return result, err
	}
	reason := fmt.Sprintf("account %s", newStanding)
	for _, id := range active {
		_, err := s.engine.AdminCancel(ctx, id, userID, reason)
		switch {
		case err == nil:
			result.Cancelled = append(result.Cancelled, id)
			s.metrics.RecordCascadeCancellation(nil)
		case errors.Is(err, pkgerrors.ErrAlreadyCancelled) || pkgerrors.IsInvalidState(err):
			// Reached a terminal state after enumeration.
		default:
			logger.Error("Cascade cancellation failed", "userID", userID, "reservationID", id, "error", err)
			result.Failed[id] = err
			s.metrics.RecordCascadeCancellation(err)
		}
	}
	logger.Info("Standing cascade finished", "userID", userID, "standing", newStanding,
		"cancelled", len(result.Cancelled), "failed", len(result.Failed))
	if len(result.Failed) > 0 {
		return result, pkgerrors.Newf(pkgerrors.KindUnavailable,
			"%d reservations could not be cancelled; retry the standing change", len(result.Failed))
	}
	return result, nil
}

func (s *standingService) notifyStanding(ctx context.Context, userID int32, previous, current domain.Standing) {
	if s.notifier == nil {
		return
	}
	event := standingEvents[current]
	payload := map[string]string{"previous": string(previous), "standing": string(current)}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), userID, event, payload); err != nil {
		logger.Warn("Failed to send standing notification", "userID", userID, "event", event, "error", err)
		s.metrics.RecordNotificationFailure(string(event))
	}
}

// activeReservations collects the non-terminal reservations on the user's
// items and those the user rents, without duplicates.
func (s *standingService) activeReservations(ctx context.Context, userID int32) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	collect := func(list []domain.Reservation) {
		for _, r := range list {
			if !seen[r.ID] {
				seen[r.ID] = true
				ids = append(ids, r.ID)
			}
		}
	}

	items, err := s.items.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeError(err, "failed to list owned items")
	}
	for _, item := range items {
		if item.OwnerID == nil {
			logger.Warn("Skipping item without owner", "itemID", item.ID)
			continue
		}
		list, err := s.reservations.ListByItem(ctx, item.ID, domain.ActiveStatuses...)
		if err != nil {
			return nil, storeError(err, "failed to list item reservations")
		}
		collect(list)
	}

	rented, err := s.reservations.ListByRenter(ctx, userID, domain.ActiveStatuses...)
	if err != nil {
		return nil, storeError(err, "failed to list rentals")
	}
	collect(rented)
	return ids, nil
}
