package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rentshare-backend/internal/clock"
	"rentshare-backend/internal/domain"
	pkgerrors "rentshare-backend/internal/errors"
	"rentshare-backend/internal/lock"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/metrics"
	"rentshare-backend/internal/repository"
	"rentshare-backend/internal/utils"
)

const tracerName = "rentshare-backend/internal/service"

const (
	opRequest       = "request"
	opApprove       = "approve"
	opReject        = "reject"
	opPay           = "pay"
	opCancel        = "cancel"
	opAdminCancel   = "admin_cancel"
	opMarkCompleted = "mark_completed"
)

type approvalInput struct {
	Method         domain.FulfillmentMethod `validate:"required,oneof=PICKUP SHIPPING"`
	PickupLocation string                   `validate:"required_if=Method PICKUP,max=255"`
}

type reservationService struct {
	reservations repository.ReservationRepository
	items        repository.ItemRepository
	users        repository.UserRepository
	conflicts    ConflictChecker
	locker       lock.ItemLocker
	notifier     Notifier
	codeGen      CodeGenerator
	clock        clock.Clock
	metrics      *metrics.Metrics
	validate     *validator.Validate
	tracer       trace.Tracer
}

func NewReservationService(
	reservations repository.ReservationRepository,
	items repository.ItemRepository,
	users repository.UserRepository,
	locker lock.ItemLocker,
	notifier Notifier,
	codeGen CodeGenerator,
	clk clock.Clock,
	m *metrics.Metrics,
) ReservationService {
	if codeGen == nil {
		codeGen = NewCodeGenerator(nil)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &reservationService{
		reservations: reservations,
		items:        items,
		users:        users,
		conflicts:    NewConflictChecker(reservations),
		locker:       locker,
		notifier:     notifier,
		codeGen:      codeGen,
		clock:        clk,
		metrics:      m,
		validate:     validator.New(),
		tracer:       otel.Tracer(tracerName),
	}
}

func (s *reservationService) Request(ctx context.Context, renterID, itemID int32, start, end time.Time) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opRequest,
		attribute.Int("renter.id", int(renterID)),
		attribute.Int("item.id", int(itemID)))
	defer func() { finish(err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, pkgerrors.Wrap(pkgerrors.KindInvalidArgument, pkgerrors.ErrInvalidRange, "end must be after start")
	}
	now := s.clock.Now()
	if start.Before(now) {
		return nil, pkgerrors.Wrap(pkgerrors.KindInvalidArgument, pkgerrors.ErrInvalidRange, "start must not be in the past")
	}

	renter, err := s.users.GetByID(ctx, renterID)
	if err != nil {
		return nil, storeError(err, "renter not found")
	}
	if renter.Standing != domain.StandingActive {
		return nil, pkgerrors.Newf(pkgerrors.KindForbidden, "renter account is %s", renter.Standing)
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "item not found")
	}
	if !item.Available || item.OwnerID == nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrItemNotBookable, "item is not bookable")
	}
	ownerID := *item.OwnerID
	if ownerID == renterID {
		return nil, pkgerrors.New(pkgerrors.KindInvalidArgument, "owners cannot book their own items")
	}
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "failed to load item owner")
	}
	if owner == nil || owner.Standing.IsSanctioned() {
		return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrItemNotBookable, "item owner cannot accept bookings")
	}

	price, err := utils.CalculateTotalPrice(item.DailyRate, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindInvalidArgument, err, "failed to price reservation")
	}

	res = &domain.Reservation{
		ID:         uuid.New(),
		RenterID:   renterID,
		ItemID:     itemID,
		OwnerID:    ownerID,
		Start:      start,
		End:        end,
		DailyRate:  item.DailyRate,
		TotalPrice: price,
		Status:     domain.ReservationStatusPendingApproval,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.createLocked(ctx, res); err != nil {
		return nil, err
	}

	s.notify(ctx, ownerID, domain.EventNewBooking, reservationPayload(res))
	return res.Clone(), nil
}

func (s *reservationService) Approve(ctx context.Context, reservationID uuid.UUID, ownerID int32, method domain.FulfillmentMethod, pickupLocation string) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opApprove,
		attribute.String("reservation.id", reservationID.String()),
		attribute.Int("owner.id", int(ownerID)),
		attribute.String("fulfillment.method", string(method)))
	defer func() { finish(err) }()

	input := approvalInput{Method: method, PickupLocation: strings.TrimSpace(pickupLocation)}

	res, err = s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		if !item.IsOwnedBy(ownerID) {
			return pkgerrors.New(pkgerrors.KindForbidden, "only the item owner can approve")
		}
		if r.Status != domain.ReservationStatusPendingApproval {
			return invalidState(r.Status, domain.ReservationStatusApproved)
		}
		if err := s.validate.Struct(input); err != nil {
			return pkgerrors.Wrap(pkgerrors.KindInvalidArgument, err, "invalid fulfillment details")
		}
		overlap, err := s.conflicts.HasBlockingOverlap(ctx, r.ItemID, r.Start, r.End, r.ID)
		if err != nil {
			return storeError(err, "conflict check failed")
		}
		if overlap {
			s.metrics.RecordConflict()
			return pkgerrors.New(pkgerrors.KindConflict, "item is already booked for an overlapping period")
		}

		now := s.clock.Now()
		r.Status = domain.ReservationStatusApproved
		r.FulfillmentMethod = input.Method
		r.PickupLocation = nil
		if input.Method == domain.FulfillmentPickup {
			r.PickupLocation = &input.PickupLocation
		}
		r.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := reservationPayload(res)
	payload["fulfillment_method"] = string(res.FulfillmentMethod)
	if res.PickupLocation != nil {
		payload["pickup_location"] = *res.PickupLocation
	}
	s.notify(ctx, res.RenterID, domain.EventApproved, payload)
	return res, nil
}

func (s *reservationService) Reject(ctx context.Context, reservationID uuid.UUID, ownerID int32, reason string) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opReject,
		attribute.String("reservation.id", reservationID.String()),
		attribute.Int("owner.id", int(ownerID)))
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	res, err = s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		if !item.IsOwnedBy(ownerID) {
			return pkgerrors.New(pkgerrors.KindForbidden, "only the item owner can reject")
		}
		if r.Status != domain.ReservationStatusPendingApproval {
			return invalidState(r.Status, domain.ReservationStatusRejected)
		}
		r.Status = domain.ReservationStatusRejected
		if reason != "" {
			r.RejectionReason = &reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := reservationPayload(res)
	if res.RejectionReason != nil {
		payload["reason"] = *res.RejectionReason
	}
	s.notify(ctx, res.RenterID, domain.EventRejected, payload)
	return res, nil
}

func (s *reservationService) Pay(ctx context.Context, reservationID uuid.UUID, renterID int32) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opPay,
		attribute.String("reservation.id", reservationID.String()),
		attribute.Int("renter.id", int(renterID)))
	defer func() { finish(err) }()

	res, err = s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		if r.RenterID != renterID {
			return pkgerrors.New(pkgerrors.KindForbidden, "only the renter can pay")
		}
		if r.Status != domain.ReservationStatusApproved {
			return invalidState(r.Status, domain.ReservationStatusPaid)
		}
		if r.FulfillmentMethod == domain.FulfillmentShipping {
			code, err := s.codeGen.Generate()
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.KindInternal, err, "failed to generate fulfillment code")
			}
			r.FulfillmentCode = &code
		}
		now := s.clock.Now()
		r.Status = domain.ReservationStatusPaid
		r.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := reservationPayload(res)
	payload["total_price"] = res.TotalPrice.StringFixed(utils.PriceScale)
	s.notifyOwner(ctx, res, domain.EventPaymentReceived, payload)
	return res, nil
}

func (s *reservationService) Cancel(ctx context.Context, reservationID uuid.UUID, callerID int32) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opCancel,
		attribute.String("reservation.id", reservationID.String()),
		attribute.Int("caller.id", int(callerID)))
	defer func() { finish(err) }()

	var actor domain.CancelActor
	res, err = s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		switch {
		case r.RenterID == callerID:
			actor = domain.CancelActorRenter
		case item.IsOwnedBy(callerID):
			caller, err := s.users.GetByID(ctx, callerID)
			if err != nil {
				return storeError(err, "caller not found")
			}
			if caller.Role != domain.UserRoleOwner {
				return pkgerrors.New(pkgerrors.KindForbidden, "caller does not have the owner role")
			}
			actor = domain.CancelActorOwner
		default:
			return pkgerrors.New(pkgerrors.KindForbidden, "caller is neither the renter nor the item owner")
		}
		if err := checkCancellable(r); err != nil {
			return err
		}
		if !s.clock.Now().Before(r.Start) {
			return pkgerrors.Wrap(pkgerrors.KindInvalidState, pkgerrors.ErrReservationStarted, "reservation can no longer be cancelled")
		}
		s.applyCancel(r, actor, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if actor == domain.CancelActorRenter {
		s.notifyOwner(ctx, res, domain.EventCancelledByRenter, reservationPayload(res))
	} else {
		s.notify(ctx, res.RenterID, domain.EventCancelledByOwner, reservationPayload(res))
	}
	return res, nil
}

func (s *reservationService) AdminCancel(ctx context.Context, reservationID uuid.UUID, sanctionedUserID int32, reason string) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opAdminCancel,
		attribute.String("reservation.id", reservationID.String()),
		attribute.Int("sanctioned_user.id", int(sanctionedUserID)))
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	res, err = s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		if err := checkCancellable(r); err != nil {
			return err
		}
		var why *string
		if reason != "" {
			why = &reason
		}
		s.applyCancel(r, domain.CancelActorAdmin, why)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := reservationPayload(res)
	if res.CancellationReason != nil {
		payload["reason"] = *res.CancellationReason
	}
	if res.RenterID == sanctionedUserID {
		s.notifyOwner(ctx, res, domain.EventCancelledByAdmin, payload)
	} else {
		s.notify(ctx, res.RenterID, domain.EventCancelledByAdmin, payload)
	}
	return res, nil
}

func (s *reservationService) MarkCompleted(ctx context.Context, reservationID uuid.UUID) (res *domain.Reservation, err error) {
	ctx, finish := s.begin(ctx, opMarkCompleted, attribute.String("reservation.id", reservationID.String()))
	defer func() { finish(err) }()

	return s.transition(ctx, reservationID, func(r *domain.Reservation, item *domain.Item) error {
		if r.Status != domain.ReservationStatusPaid {
			return invalidState(r.Status, domain.ReservationStatusCompleted)
		}
		now := s.clock.Now()
		r.Status = domain.ReservationStatusCompleted
		r.CompletedAt = &now
		return nil
	})
}

func (s *reservationService) Get(ctx context.Context, callerID int32, reservationID uuid.UUID) (res *domain.Reservation, err error) {
	logger.EnterMethod("reservationService.Get", "callerID", callerID, "reservationID", reservationID)
	defer func() { exitMethod("reservationService.Get", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	res, err = s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, storeError(err, "reservation not found")
	}
	if res.RenterID == callerID {
		return res, nil
	}
	item, err := s.loadItem(ctx, res.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsOwnedBy(callerID) {
		return nil, pkgerrors.New(pkgerrors.KindForbidden, "caller is not a party to this reservation")
	}
	return res, nil
}

func (s *reservationService) ListForItem(ctx context.Context, callerID, itemID int32) (list []domain.Reservation, err error) {
	logger.EnterMethod("reservationService.ListForItem", "callerID", callerID, "itemID", itemID)
	defer func() { exitMethod("reservationService.ListForItem", err) }()

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "item not found")
	}
	all, err := s.reservations.ListByItem(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "failed to list reservations")
	}
	if item.IsOwnedBy(callerID) {
		return all, nil
	}

	var own []domain.Reservation
	for _, r := range all {
		if r.RenterID == callerID {
			own = append(own, r)
		}
	}
	if len(own) == 0 {
		return nil, pkgerrors.New(pkgerrors.KindForbidden, "caller has no reservations on this item")
	}
	return own, nil
}

func (s *reservationService) ListByRenter(ctx context.Context, renterID int32, statuses ...domain.ReservationStatus) (list []domain.Reservation, err error) {
	logger.EnterMethod("reservationService.ListByRenter", "renterID", renterID, "statuses", statuses)
	defer func() { exitMethod("reservationService.ListByRenter", err) }()

	if err := checkStatuses(statuses); err != nil {
		return nil, err
	}
	list, err = s.reservations.ListByRenter(ctx, renterID, statuses...)
	if err != nil {
		return nil, storeError(err, "failed to list reservations")
	}
	return list, nil
}

func (s *reservationService) ListByOwner(ctx context.Context, ownerID int32, statuses ...domain.ReservationStatus) (list []domain.Reservation, err error) {
	logger.EnterMethod("reservationService.ListByOwner", "ownerID", ownerID, "statuses", statuses)
	defer func() { exitMethod("reservationService.ListByOwner", err) }()

	if err := checkStatuses(statuses); err != nil {
		return nil, err
	}
	list, err = s.reservations.ListByOwner(ctx, ownerID, statuses...)
	if err != nil {
		return nil, storeError(err, "failed to list reservations")
	}
	return list, nil
}

// createLocked runs the overlap check and the insert as one unit under the item lock.
func (s *reservationService) createLocked(ctx context.Context, res *domain.Reservation) error {
	unlock, err := s.lockItem(ctx, res.ItemID)
	if err != nil {
		return err
	}
	defer unlock()

	overlap, err := s.conflicts.HasBlockingOverlap(ctx, res.ItemID, res.Start, res.End)
	if err != nil {
		return storeError(err, "conflict check failed")
	}
	if overlap {
		s.metrics.RecordConflict()
		return pkgerrors.New(pkgerrors.KindConflict, "item is already booked for an overlapping period")
	}

	logger.DatabaseCall("create", "reservations", "itemID", res.ItemID, "renterID", res.RenterID)
	if err := s.reservations.Create(ctx, res); err != nil {
		return storeError(err, "failed to create reservation")
	}
	return nil
}

// transition loads the reservation, takes its item lock, reloads it and lets
// apply validate and mutate the fresh copy. Nothing is written when apply fails.
func (s *reservationService) transition(ctx context.Context, reservationID uuid.UUID, apply func(r *domain.Reservation, item *domain.Item) error) (*domain.Reservation, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	current, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, storeError(err, "reservation not found")
	}

	unlock, err := s.lockItem(ctx, current.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, storeError(err, "reservation not found")
	}
	item, err := s.loadItem(ctx, r.ItemID)
	if err != nil {
		return nil, err
	}
	if err := apply(r, item); err != nil {
		return nil, err
	}

	r.UpdatedAt = s.clock.Now()
	logger.DatabaseCall("update", "reservations", "id", r.ID, "status", r.Status, "version", r.Version)
	if err := s.reservations.Update(ctx, r); err != nil {
		return nil, storeError(err, "failed to update reservation")
	}
	return r.Clone(), nil
}

// loadItem returns nil when the catalog no longer knows the item; ownership
// checks then fail closed.
func (s *reservationService) loadItem(ctx context.Context, itemID int32) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to load item")
	}
	return item, nil
}

func (s *reservationService) lockItem(ctx context.Context, itemID int32) (func(), error) {
	started := time.Now()
	unlock, err := s.locker.Lock(ctx, itemID)
	s.metrics.RecordLockWait(time.Since(started))
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.KindUnavailable, err, "failed to lock item")
		}
		return nil, err
	}
	return unlock, nil
}

func (s *reservationService) applyCancel(r *domain.Reservation, actor domain.CancelActor, reason *string) {
	now := s.clock.Now()
	r.Status = domain.ReservationStatusCancelled
	r.CancelledBy = actor
	r.CancellationReason = reason
	r.CancelledAt = &now
}

// notifyOwner resolves the current owner through the identity collaborator.
func (s *reservationService) notifyOwner(ctx context.Context, r *domain.Reservation, event domain.EventType, payload map[string]string) {
	ownerID, err := s.users.FindOwnerOf(ctx, r.ItemID)
	if err != nil || ownerID == nil {
		logger.Warn("Skipping owner notification", "reservationID", r.ID, "itemID", r.ItemID, "event", event, "error", err)
		s.metrics.RecordNotificationFailure(string(event))
		return
	}
	s.notify(ctx, *ownerID, event, payload)
}

// notify runs after the transition committed, so caller cancellation no longer applies.
func (s *reservationService) notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), userID, event, payload); err != nil {
		logger.Warn("Failed to send notification", "userID", userID, "event", event, "error", err)
		s.metrics.RecordNotificationFailure(string(event))
	}
}

func (s *reservationService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	method := "reservationService." + op
	ctx, span := s.tracer.Start(ctx, method, trace.WithAttributes(attrs...))
	logger.EnterMethod(method)
	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			kind := pkgerrors.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			s.metrics.RecordTransitionError(op, string(kind))
			logger.ExitMethodWithError(method, err)
			return
		}
		s.metrics.RecordTransition(op)
		logger.ExitMethod(method)
	}
}

func exitMethod(method string, err error) {
	if err != nil {
		logger.ExitMethodWithError(method, err)
		return
	}
	logger.ExitMethod(method)
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnavailable, err, "request cancelled")
	}
	return nil
}

func checkCancellable(r *domain.Reservation) error {
	if r.Status == domain.ReservationStatusCancelled {
		return pkgerrors.Wrap(pkgerrors.KindNotFound, pkgerrors.ErrAlreadyCancelled, "no active reservation")
	}
	if !r.Status.CanTransitionTo(domain.ReservationStatusCancelled) {
		return invalidState(r.Status, domain.ReservationStatusCancelled)
	}
	return nil
}

func checkStatuses(statuses []domain.ReservationStatus) error {
	for _, st := range statuses {
		if !st.IsValid() {
			return pkgerrors.Newf(pkgerrors.KindInvalidArgument, "unknown reservation status %q", st)
		}
	}
	return nil
}

func invalidState(from, to domain.ReservationStatus) error {
	return pkgerrors.Newf(pkgerrors.KindInvalidState, "cannot move reservation from %s to %s", from, to)
}

// storeError maps repository failures onto error kinds. Anything the store
// cannot classify is treated as transient.
func storeError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, repository.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.KindNotFound, err, msg)
	case errors.Is(err, repository.ErrOverlap):
		return pkgerrors.Wrap(pkgerrors.KindConflict, err, "item is already booked for the requested period")
	default:
		return pkgerrors.Wrap(pkgerrors.KindUnavailable, err, msg)
	}
}

func reservationPayload(r *domain.Reservation) map[string]string {
	return map[string]string{
		"reservation_id": r.ID.String(),
		"item_id":        strconv.FormatInt(int64(r.ItemID), 10),
		"renter_id":      strconv.FormatInt(int64(r.RenterID), 10),
		"start":          r.Start.Format(time.RFC3339),
		"end":            r.End.Format(time.RFC3339),
		"status":         string(r.Status),
	}
}
