package domain

type EventType string

const (
	EventNewBooking         EventType = "NEW_BOOKING"
	EventCancelledByRenter  EventType = "CANCELLED_BY_RENTER"
	EventCancelledByOwner   EventType = "CANCELLED_BY_OWNER"
	EventCancelledByAdmin   EventType = "CANCELLED_BY_ADMIN"
	EventApproved           EventType = "APPROVED"
	EventRejected           EventType = "REJECTED"
	EventPaymentReceived    EventType = "PAYMENT_RECEIVED"
	EventAccountSuspended   EventType = "ACCOUNT_SUSPENDED"
	EventAccountBanned      EventType = "ACCOUNT_BANNED"
	EventAccountReactivated EventType = "ACCOUNT_REACTIVATED"
)

// Notification is the envelope handed to notifier backends.
type Notification struct {
	UserID  int32             `json:"user_id"`
	Event   EventType         `json:"event"`
	Payload map[string]string `json:"payload,omitempty"`
	SentAt  string            `json:"sent_at"`
}
