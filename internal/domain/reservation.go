package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPendingApproval ReservationStatus = "PENDING_APPROVAL"
	ReservationStatusApproved        ReservationStatus = "APPROVED"
	ReservationStatusRejected        ReservationStatus = "REJECTED"
	ReservationStatusPaid            ReservationStatus = "PAID"
	ReservationStatusCompleted       ReservationStatus = "COMPLETED"
	ReservationStatusCancelled       ReservationStatus = "CANCELLED"
)

// validTransitions is the reservation state machine. Anything not listed is refused.
var validTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPendingApproval: {ReservationStatusApproved, ReservationStatusRejected, ReservationStatusCancelled},
	ReservationStatusApproved:        {ReservationStatusPaid, ReservationStatusCancelled},
	ReservationStatusPaid:            {ReservationStatusCompleted, ReservationStatusCancelled},
	ReservationStatusRejected:        {},
	ReservationStatusCompleted:       {},
	ReservationStatusCancelled:       {},
}

// BlockingStatuses are the statuses that occupy an item's calendar.
var BlockingStatuses = []ReservationStatus{ReservationStatusApproved, ReservationStatusPaid}

// ActiveStatuses are the non-terminal statuses.
var ActiveStatuses = []ReservationStatus{ReservationStatusPendingApproval, ReservationStatusApproved, ReservationStatusPaid}

func (s ReservationStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return !ok || len(allowed) == 0
}

func (s ReservationStatus) IsBlocking() bool {
	return s == ReservationStatusApproved || s == ReservationStatusPaid
}

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	status := ReservationStatus(s)
	return status, status.IsValid()
}

type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "PICKUP"
	FulfillmentShipping FulfillmentMethod = "SHIPPING"
)

func (m FulfillmentMethod) IsValid() bool {
	return m == FulfillmentPickup || m == FulfillmentShipping
}

// CancelActor records on whose behalf a reservation was cancelled.
type CancelActor string

const (
	CancelActorRenter CancelActor = "RENTER"
	CancelActorOwner  CancelActor = "OWNER"
	CancelActorAdmin  CancelActor = "ADMIN"
)

type Reservation struct {
	ID       uuid.UUID `json:"id"`
	RenterID int32     `json:"renter_id"`
	ItemID   int32     `json:"item_id"`
	// OwnerID is the item owner captured at request time. It only backs the
	// by-owner listing; authorization always asks the catalog.
	OwnerID    int32             `json:"owner_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	DailyRate  decimal.Decimal   `json:"daily_rate"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	Status     ReservationStatus `json:"status"`

	FulfillmentMethod FulfillmentMethod `json:"fulfillment_method,omitempty"`
	FulfillmentCode   *string           `json:"fulfillment_code,omitempty"`
	PickupLocation    *string           `json:"pickup_location,omitempty"`
	RejectionReason   *string           `json:"rejection_reason,omitempty"`

	CancelledBy        CancelActor `json:"cancelled_by,omitempty"`
	CancellationReason *string     `json:"cancellation_reason,omitempty"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Version is bumped by the store on every successful update.
	Version int32 `json:"version"`
}

// Overlaps reports whether the reservation window intersects [start, end]
// using closed-interval semantics.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return Overlaps(r.Start, r.End, start, end)
}

// Overlaps reports whether [s1,e1] and [s2,e2] intersect. Touching endpoints count.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return !s1.After(e2) && !s2.After(e1)
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	c.FulfillmentCode = cloneString(r.FulfillmentCode)
	c.PickupLocation = cloneString(r.PickupLocation)
	c.RejectionReason = cloneString(r.RejectionReason)
	c.CancellationReason = cloneString(r.CancellationReason)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.PaidAt = cloneTime(r.PaidAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
