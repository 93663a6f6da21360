package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentshare-backend/internal/domain"
	pkgerrors "rentshare-backend/internal/errors"
	"rentshare-backend/internal/lock"
	"rentshare-backend/internal/metrics"
	"rentshare-backend/internal/service"
)

func TestReservationService_Request(t *testing.T) {
	ctx := context.Background()

	t.Run("Prices whole days", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 3*day)
		assert.Equal(t, "100.00", res.TotalPrice.StringFixed(2))
		assert.Equal(t, domain.ReservationStatusPendingApproval, res.Status)
		assert.Equal(t, ownerID, res.OwnerID)
		assert.Equal(t, int32(1), res.Version)
		assert.NotEqual(t, uuid.Nil, res.ID)
		assert.Equal(t, 1, f.notifier.count(ownerID, domain.EventNewBooking))
	})

	t.Run("Charges at least one day", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, day+2*time.Hour)
		assert.Equal(t, "50.00", res.TotalPrice.StringFixed(2))
	})

	t.Run("Start may equal now", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, 0, day)
		assert.Equal(t, baseTime, res.Start)
	})

	t.Run("Invalid range", func(t *testing.T) {
		f := newFixture(t)
		cases := map[string][2]time.Time{
			"end before start": {baseTime.Add(3 * day), baseTime.Add(day)},
			"empty range":      {baseTime.Add(day), baseTime.Add(day)},
			"start in past":    {baseTime.Add(-time.Hour), baseTime.Add(day)},
		}
		for name, r := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := f.svc.Request(ctx, renterID, itemID, r[0], r[1])
				assert.True(t, pkgerrors.IsInvalidArgument(err))
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidRange)
			})
		}
		assert.Equal(t, 0, f.notifier.countEvent(domain.EventNewBooking))
	})

	t.Run("Unknown renter or item", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Request(ctx, 999, itemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsNotFound(err))

		_, err = f.svc.Request(ctx, renterID, 999, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("Item not bookable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Request(ctx, renterID, hiddenItemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsUnavailable(err))
		assert.ErrorIs(t, err, pkgerrors.ErrItemNotBookable)
	})

	t.Run("Owner suspended", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Users.UpdateStanding(ctx, strangerID, domain.StandingSuspended))
		_, err := f.svc.Request(ctx, renterID, strangerItemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.ErrorIs(t, err, pkgerrors.ErrItemNotBookable)
	})

	t.Run("Self booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Request(ctx, ownerID, itemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsInvalidArgument(err))
	})

	t.Run("Sanctioned renter", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Users.UpdateStanding(ctx, renterID, domain.StandingBanned))
		_, err := f.svc.Request(ctx, renterID, itemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsForbidden(err))
	})

	t.Run("Pending does not block", func(t *testing.T) {
		f := newFixture(t)
		f.request(t, renterID, itemID, day, 3*day)
		f.request(t, otherRenterID, itemID, 2*day, 4*day)
	})

	t.Run("Touching an approved window conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.approved(t, renterID, itemID, day, 3*day, domain.FulfillmentShipping)

		_, err := f.svc.Request(ctx, otherRenterID, itemID, baseTime.Add(3*day), baseTime.Add(4*day))
		assert.True(t, pkgerrors.IsConflict(err))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Conflicts))

		f.request(t, otherRenterID, itemID, 3*day+time.Minute, 4*day)
		f.request(t, otherRenterID, cheapItemID, day, 3*day)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.svc.Request(cctx, renterID, itemID, baseTime.Add(day), baseTime.Add(2*day))
		assert.True(t, pkgerrors.IsUnavailable(err))
	})
}

func TestReservationService_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.request(t, renterID, cheapItemID, day, 3*day)
	assert.Equal(t, "60.00", first.TotalPrice.StringFixed(2))

	// Overlapping while the first is only pending.
	second := f.request(t, otherRenterID, cheapItemID, 2*day, 4*day)

	approved, err := f.svc.Approve(ctx, first.ID, ownerID, domain.FulfillmentShipping, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, 1, f.notifier.count(renterID, domain.EventApproved))

	_, err = f.svc.Request(ctx, otherRenterID, cheapItemID, baseTime.Add(2*day), baseTime.Add(4*day))
	assert.True(t, pkgerrors.IsConflict(err))

	_, err = f.svc.Approve(ctx, second.ID, ownerID, domain.FulfillmentPickup, "Shop A")
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Equal(t, domain.ReservationStatusPendingApproval, f.stored(t, second.ID).Status)

	paid, err := f.svc.Pay(ctx, first.ID, renterID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPaid, paid.Status)
	assert.Equal(t, "60.00", paid.TotalPrice.StringFixed(2))
	require.NotNil(t, paid.FulfillmentCode)
	assert.Regexp(t, codePattern, *paid.FulfillmentCode)
	assert.Nil(t, paid.PickupLocation)
	assert.NotNil(t, paid.PaidAt)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, ownerID, domain.EventPaymentReceived, mock.MatchedBy(func(p map[string]string) bool {
		return p["reservation_id"] == first.ID.String() && p["total_price"] == "60.00"
	}))

	stored := f.stored(t, first.ID)
	assert.Equal(t, int32(3), stored.Version)
	assert.Equal(t, *paid.FulfillmentCode, *stored.FulfillmentCode)
}

func TestReservationService_NoDoubleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const renters = 12

	for i := 0; i < renters; i++ {
		f.store.Users.Put(domain.User{ID: 100 + int32(i), Role: domain.UserRoleRenter})
	}

	ids := make([]uuid.UUID, renters)
	errs := make([]error, renters)
	var wg sync.WaitGroup
	for i := 0; i < renters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := baseTime.Add(day + time.Duration(i)*time.Hour)
			res, err := f.svc.Request(ctx, 100+int32(i), itemID, start, start.Add(2*day))
			errs[i] = err
			if err == nil {
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	results := make([]error, renters)
	for i := 0; i < renters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Approve(ctx, ids[i], ownerID, domain.FulfillmentShipping, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	blocking, err := f.store.Reservations.ListByItem(ctx, itemID, domain.BlockingStatuses...)
	require.NoError(t, err)
	for i := range blocking {
		for j := i + 1; j < len(blocking); j++ {
			assert.False(t, blocking[i].Overlaps(blocking[j].Start, blocking[j].End))
		}
	}
}

func TestReservationService_ConcurrentRequestsAcrossItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approved(t, renterID, itemID, day, 2*day, domain.FulfillmentShipping)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Request(ctx, otherRenterID, itemID, baseTime.Add(day), baseTime.Add(2*day))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Request(ctx, otherRenterID, cheapItemID, baseTime.Add(day), baseTime.Add(2*day))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	conflicts, created := 0, 0
	for err := range errs {
		if err == nil {
			created++
		} else if pkgerrors.IsConflict(err) {
			conflicts++
		}
	}
	assert.Equal(t, 10, conflicts)
	assert.Equal(t, 10, created)
}

func TestReservationService_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pending := f.request(t, renterID, itemID, day, 2*day)

	_, err := f.svc.Approve(ctx, pending.ID, strangerID, domain.FulfillmentShipping, "")
	assert.True(t, pkgerrors.IsForbidden(err))
	_, err = f.svc.Approve(ctx, pending.ID, renterID, domain.FulfillmentShipping, "")
	assert.True(t, pkgerrors.IsForbidden(err))
	_, err = f.svc.Reject(ctx, pending.ID, strangerID, "no")
	assert.True(t, pkgerrors.IsForbidden(err))

	approved, err := f.svc.Approve(ctx, pending.ID, ownerID, domain.FulfillmentShipping, "")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, approved.ID, otherRenterID)
	assert.True(t, pkgerrors.IsForbidden(err))
	_, err = f.svc.Pay(ctx, approved.ID, ownerID)
	assert.True(t, pkgerrors.IsForbidden(err))

	_, err = f.svc.Cancel(ctx, approved.ID, strangerID)
	assert.True(t, pkgerrors.IsForbidden(err))
	_, err = f.svc.Cancel(ctx, approved.ID, otherRenterID)
	assert.True(t, pkgerrors.IsForbidden(err))

	assert.Equal(t, domain.ReservationStatusApproved, f.stored(t, approved.ID).Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TransitionErrors.WithLabelValues("pay", "FORBIDDEN")))

	t.Run("Owner without owner role", func(t *testing.T) {
		f.store.Users.Put(domain.User{ID: ownerID, Role: domain.UserRoleRenter})
		_, err := f.svc.Cancel(ctx, approved.ID, ownerID)
		assert.True(t, pkgerrors.IsForbidden(err))
	})
}

func TestReservationService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("Pickup keeps location", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		res, err := f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentPickup, "  Shop A ")
		require.NoError(t, err)
		require.NotNil(t, res.PickupLocation)
		assert.Equal(t, "Shop A", *res.PickupLocation)
		f.notifier.AssertCalled(t, "Notify", mock.Anything, renterID, domain.EventApproved, mock.MatchedBy(func(p map[string]string) bool {
			return p["pickup_location"] == "Shop A" && p["fulfillment_method"] == "PICKUP"
		}))
	})

	t.Run("Shipping drops location", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		res, err := f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentShipping, "Shop A")
		require.NoError(t, err)
		assert.Nil(t, res.PickupLocation)
		assert.Equal(t, domain.FulfillmentShipping, res.FulfillmentMethod)
	})

	t.Run("Invalid fulfillment", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)

		_, err := f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentPickup, "   ")
		assert.True(t, pkgerrors.IsInvalidArgument(err))
		_, err = f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentMethod("DRONE"), "")
		assert.True(t, pkgerrors.IsInvalidArgument(err))
		_, err = f.svc.Approve(ctx, res.ID, ownerID, "", "")
		assert.True(t, pkgerrors.IsInvalidArgument(err))

		assert.Equal(t, domain.ReservationStatusPendingApproval, f.stored(t, res.ID).Status)
	})

	t.Run("Not pending", func(t *testing.T) {
		f := newFixture(t)
		res := f.approved(t, renterID, itemID, day, 2*day, domain.FulfillmentShipping)
		_, err := f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentShipping, "")
		assert.True(t, pkgerrors.IsInvalidState(err))
	})

	t.Run("Unknown reservation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Approve(ctx, uuid.New(), ownerID, domain.FulfillmentShipping, "")
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestReservationService_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.request(t, renterID, itemID, day, 2*day)
	rejected, err := f.svc.Reject(ctx, res.ID, ownerID, " dates taken ")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "dates taken", *rejected.RejectionReason)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, renterID, domain.EventRejected, mock.MatchedBy(func(p map[string]string) bool {
		return p["reason"] == "dates taken"
	}))

	noReason := f.request(t, otherRenterID, itemID, day, 2*day)
	noReason, err = f.svc.Reject(ctx, noReason.ID, ownerID, "")
	require.NoError(t, err)
	assert.Nil(t, noReason.RejectionReason)

	_, err = f.svc.Reject(ctx, res.ID, ownerID, "")
	assert.True(t, pkgerrors.IsInvalidState(err))
}

func TestReservationService_Pay(t *testing.T) {
	ctx := context.Background()

	t.Run("Pickup has no code", func(t *testing.T) {
		f := newFixture(t)
		res := f.approved(t, renterID, itemID, day, 2*day, domain.FulfillmentPickup)
		res, err := f.svc.Pay(ctx, res.ID, renterID)
		require.NoError(t, err)
		assert.Nil(t, res.FulfillmentCode)
		require.NotNil(t, res.PickupLocation)
		assert.Equal(t, "Shop A", *res.PickupLocation)
	})

	t.Run("Injected code generator", func(t *testing.T) {
		f := newFixture(t)
		svc := service.NewReservationService(f.store.Reservations, f.store.Items, f.store.Users, lock.NewKeyedLocker(time.Second), f.notifier, staticCode("ABCD1234"), f.clock, nil)
		res := f.approved(t, renterID, itemID, day, 2*day, domain.FulfillmentShipping)
		res, err := svc.Pay(ctx, res.ID, renterID)
		require.NoError(t, err)
		assert.Equal(t, "ABCD1234", *res.FulfillmentCode)
	})

	t.Run("Not approved", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		_, err := f.svc.Pay(ctx, res.ID, renterID)
		assert.True(t, pkgerrors.IsInvalidState(err))

		res, err = f.svc.Reject(ctx, res.ID, ownerID, "")
		require.NoError(t, err)
		_, err = f.svc.Pay(ctx, res.ID, renterID)
		assert.True(t, pkgerrors.IsInvalidState(err))
	})
}

func TestReservationService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("Renter cancels pending", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		res, err := f.svc.Cancel(ctx, res.ID, renterID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCancelled, res.Status)
		assert.Equal(t, domain.CancelActorRenter, res.CancelledBy)
		assert.NotNil(t, res.CancelledAt)
		assert.Equal(t, 1, f.notifier.count(ownerID, domain.EventCancelledByRenter))
		assert.Equal(t, 0, f.notifier.count(renterID, domain.EventCancelledByRenter))
	})

	t.Run("Owner cancels paid", func(t *testing.T) {
		f := newFixture(t)
		res := f.paid(t, renterID, itemID, day, 2*day)
		res, err := f.svc.Cancel(ctx, res.ID, ownerID)
		require.NoError(t, err)
		assert.Equal(t, domain.CancelActorOwner, res.CancelledBy)
		assert.Equal(t, 1, f.notifier.count(renterID, domain.EventCancelledByOwner))
		assert.Equal(t, 0, f.notifier.countEvent(domain.EventCancelledByRenter))

		// Cancelling frees the window.
		f.approved(t, otherRenterID, itemID, day, 2*day, domain.FulfillmentShipping)
	})

	t.Run("Already cancelled reads as not found", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		_, err := f.svc.Cancel(ctx, res.ID, renterID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, res.ID, renterID)
		assert.True(t, pkgerrors.IsNotFound(err))
		assert.ErrorIs(t, err, pkgerrors.ErrAlreadyCancelled)
	})

	t.Run("Start has passed", func(t *testing.T) {
		f := newFixture(t)
		res := f.approved(t, renterID, itemID, day, 3*day, domain.FulfillmentShipping)
		f.clock.Advance(day)

		_, err := f.svc.Cancel(ctx, res.ID, renterID)
		assert.True(t, pkgerrors.IsInvalidState(err))
		assert.ErrorIs(t, err, pkgerrors.ErrReservationStarted)
		_, err = f.svc.Cancel(ctx, res.ID, ownerID)
		assert.ErrorIs(t, err, pkgerrors.ErrReservationStarted)
		assert.Equal(t, domain.ReservationStatusApproved, f.stored(t, res.ID).Status)
	})

	t.Run("Rejected", func(t *testing.T) {
		f := newFixture(t)
		res := f.request(t, renterID, itemID, day, 2*day)
		_, err := f.svc.Reject(ctx, res.ID, ownerID, "")
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, res.ID, renterID)
		assert.True(t, pkgerrors.IsInvalidState(err))
	})
}

func TestReservationService_TerminalStates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	completed := f.paid(t, renterID, itemID, day, 2*day)
	completed, err := f.svc.MarkCompleted(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.NotNil(t, completed.FulfillmentCode)

	rejected := f.request(t, otherRenterID, cheapItemID, day, 2*day)
	_, err = f.svc.Reject(ctx, rejected.ID, ownerID, "")
	require.NoError(t, err)

	cancelled := f.request(t, otherRenterID, itemID, 5*day, 6*day)
	_, err = f.svc.Cancel(ctx, cancelled.ID, otherRenterID)
	require.NoError(t, err)

	for _, res := range []*domain.Reservation{completed, rejected, cancelled} {
		renter, id := res.RenterID, res.ID
		attempts := map[string]func() error{
			"approve": func() error {
				_, err := f.svc.Approve(ctx, id, ownerID, domain.FulfillmentShipping, "")
				return err
			},
			"reject": func() error { _, err := f.svc.Reject(ctx, id, ownerID, ""); return err },
			"pay":    func() error { _, err := f.svc.Pay(ctx, id, renter); return err },
			"cancel": func() error { _, err := f.svc.Cancel(ctx, id, renter); return err },
			"admin":  func() error { _, err := f.svc.AdminCancel(ctx, id, renter, ""); return err },
			"done":   func() error { _, err := f.svc.MarkCompleted(ctx, id); return err },
		}
		before := f.stored(t, id)
		for name, attempt := range attempts {
			err := attempt()
			require.Error(t, err, name)
			assert.True(t, pkgerrors.IsInvalidState(err) || pkgerrors.IsNotFound(err), "%s on %s: %v", name, before.Status, err)
		}
		assert.Equal(t, before, f.stored(t, id))
	}
}

func TestReservationService_AdminCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.paid(t, renterID, itemID, day, 3*day)
	f.clock.Advance(2 * day)

	res, err := f.svc.AdminCancel(ctx, res.ID, ownerID, "account SUSPENDED")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, res.Status)
	assert.Equal(t, domain.CancelActorAdmin, res.CancelledBy)
	require.NotNil(t, res.CancellationReason)
	assert.Equal(t, "account SUSPENDED", *res.CancellationReason)
	assert.Equal(t, 1, f.notifier.count(renterID, domain.EventCancelledByAdmin))
	assert.Equal(t, 0, f.notifier.count(ownerID, domain.EventCancelledByAdmin))

	other := f.request(t, otherRenterID, cheapItemID, 3*day, 4*day)
	_, err = f.svc.AdminCancel(ctx, other.ID, otherRenterID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count(ownerID, domain.EventCancelledByAdmin))
}

func TestReservationService_NotificationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.reset()
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := f.svc.Request(ctx, renterID, itemID, baseTime.Add(day), baseTime.Add(2*day))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, res.ID, ownerID, domain.FulfillmentShipping, "")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationFailures.WithLabelValues("NEW_BOOKING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationFailures.WithLabelValues("APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("approve")))
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(ctx context.Context, itemID int32) (func(), error) {
	return nil, l.err
}

func TestReservationService_LockFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pending := f.request(t, renterID, itemID, day, 2*day)

	timeout := pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrLockTimeout, "deadline exceeded")
	svc := service.NewReservationService(f.store.Reservations, f.store.Items, f.store.Users, failingLocker{err: timeout}, f.notifier, nil, f.clock, metrics.New(prometheus.NewRegistry()))

	_, err := svc.Request(ctx, otherRenterID, itemID, baseTime.Add(day), baseTime.Add(2*day))
	assert.True(t, pkgerrors.IsUnavailable(err))
	assert.ErrorIs(t, err, pkgerrors.ErrLockTimeout)
	assert.False(t, pkgerrors.IsConflict(err))

	_, err = svc.Approve(ctx, pending.ID, ownerID, domain.FulfillmentShipping, "")
	assert.ErrorIs(t, err, pkgerrors.ErrLockTimeout)

	plain := service.NewReservationService(f.store.Reservations, f.store.Items, f.store.Users, failingLocker{err: errors.New("redis: connection refused")}, f.notifier, nil, f.clock, nil)
	_, err = plain.Cancel(ctx, pending.ID, renterID)
	assert.True(t, pkgerrors.IsUnavailable(err))
	assert.Equal(t, domain.ReservationStatusPendingApproval, f.stored(t, pending.ID).Status)
}

func TestReservationService_ReadSide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine := f.request(t, renterID, itemID, day, 2*day)
	theirs := f.request(t, otherRenterID, itemID, 3*day, 4*day)
	f.request(t, renterID, strangerItemID, day, 2*day)

	t.Run("Get", func(t *testing.T) {
		got, err := f.svc.Get(ctx, renterID, mine.ID)
		require.NoError(t, err)
		assert.Equal(t, mine.ID, got.ID)

		_, err = f.svc.Get(ctx, ownerID, mine.ID)
		assert.NoError(t, err)

		_, err = f.svc.Get(ctx, strangerID, mine.ID)
		assert.True(t, pkgerrors.IsForbidden(err))
		_, err = f.svc.Get(ctx, otherRenterID, mine.ID)
		assert.True(t, pkgerrors.IsForbidden(err))

		_, err = f.svc.Get(ctx, renterID, uuid.New())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("ListForItem", func(t *testing.T) {
		all, err := f.svc.ListForItem(ctx, ownerID, itemID)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		own, err := f.svc.ListForItem(ctx, otherRenterID, itemID)
		require.NoError(t, err)
		require.Len(t, own, 1)
		assert.Equal(t, theirs.ID, own[0].ID)

		_, err = f.svc.ListForItem(ctx, strangerID, itemID)
		assert.True(t, pkgerrors.IsForbidden(err))

		_, err = f.svc.ListForItem(ctx, ownerID, 999)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("ListByRenter and ListByOwner", func(t *testing.T) {
		list, err := f.svc.ListByRenter(ctx, renterID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = f.svc.ListByOwner(ctx, ownerID, domain.ReservationStatusPendingApproval)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = f.svc.ListByOwner(ctx, ownerID, domain.ReservationStatusPaid)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = f.svc.ListByRenter(ctx, renterID, domain.ReservationStatus("LOST"))
		assert.True(t, pkgerrors.IsInvalidArgument(err))
	})
}
