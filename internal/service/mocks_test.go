package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentshare-backend/internal/clock"
	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/lock"
	"rentshare-backend/internal/metrics"
	"rentshare-backend/internal/repository/memory"
	"rentshare-backend/internal/service"
)

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error {
	args := m.Called(ctx, userID, event, payload)
	return args.Error(0)
}

// acceptAll registers a catch-all expectation.
func (m *MockNotifier) acceptAll() *MockNotifier {
	m.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return m
}

func (m *MockNotifier) reset() {
	m.ExpectedCalls = nil
	m.Calls = nil
}

func (m *MockNotifier) count(userID int32, event domain.EventType) int {
	n := 0
	for _, call := range m.Calls {
		if call.Arguments.Get(1) == userID && call.Arguments.Get(2) == event {
			n++
		}
	}
	return n
}

func (m *MockNotifier) countEvent(event domain.EventType) int {
	n := 0
	for _, call := range m.Calls {
		if call.Arguments.Get(2) == event {
			n++
		}
	}
	return n
}

type staticCode string

func (c staticCode) Generate() (string, error) { return string(c), nil }

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	day = 24 * time.Hour

	ownerID       int32 = 1
	renterID      int32 = 2
	otherRenterID int32 = 3
	strangerID    int32 = 4

	itemID         int32 = 10
	cheapItemID    int32 = 11
	strangerItemID int32 = 20
	hiddenItemID   int32 = 30
)

type fixture struct {
	store    *memory.Store
	clock    *clock.Mock
	notifier *MockNotifier
	metrics  *metrics.Metrics
	svc      service.ReservationService
	standing service.StandingService
}

func int32Ptr(v int32) *int32 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.Users.Put(domain.User{ID: ownerID, Name: "Olivia", Role: domain.UserRoleOwner})
	store.Users.Put(domain.User{ID: renterID, Name: "Rafael", Role: domain.UserRoleRenter})
	store.Users.Put(domain.User{ID: otherRenterID, Name: "Rita", Role: domain.UserRoleRenter})
	store.Users.Put(domain.User{ID: strangerID, Name: "Sam", Role: domain.UserRoleOwner})

	store.Items.Put(domain.Item{ID: itemID, OwnerID: int32Ptr(ownerID), Name: "Camera", DailyRate: decimal.NewFromInt(50), Available: true})
	store.Items.Put(domain.Item{ID: cheapItemID, OwnerID: int32Ptr(ownerID), Name: "Tent", DailyRate: decimal.NewFromInt(30), Available: true})
	store.Items.Put(domain.Item{ID: strangerItemID, OwnerID: int32Ptr(strangerID), Name: "Kayak", DailyRate: decimal.NewFromInt(40), Available: true})
	store.Items.Put(domain.Item{ID: hiddenItemID, OwnerID: int32Ptr(ownerID), Name: "Drone", DailyRate: decimal.NewFromInt(90), Available: false})

	n := new(MockNotifier).acceptAll()
	m := metrics.New(prometheus.NewRegistry())
	clk := clock.NewMock(baseTime)
	svc := service.NewReservationService(store.Reservations, store.Items, store.Users, lock.NewKeyedLocker(5*time.Second), n, service.NewCodeGenerator(nil), clk, m)
	standing := service.NewStandingService(store.Users, store.Items, store.Reservations, svc, n, m)
	return &fixture{store: store, clock: clk, notifier: n, metrics: m, svc: svc, standing: standing}
}

func (f *fixture) request(t *testing.T, renter, item int32, from, to time.Duration) *domain.Reservation {
	t.Helper()
	res, err := f.svc.Request(context.Background(), renter, item, baseTime.Add(from), baseTime.Add(to))
	require.NoError(t, err)
	return res
}

func (f *fixture) approved(t *testing.T, renter, item int32, from, to time.Duration, method domain.FulfillmentMethod) *domain.Reservation {
	t.Helper()
	res := f.request(t, renter, item, from, to)
	location := ""
	if method == domain.FulfillmentPickup {
		location = "Shop A"
	}
	res, err := f.svc.Approve(context.Background(), res.ID, ownerOf(item), method, location)
	require.NoError(t, err)
	return res
}

func (f *fixture) paid(t *testing.T, renter, item int32, from, to time.Duration) *domain.Reservation {
	t.Helper()
	res := f.approved(t, renter, item, from, to, domain.FulfillmentShipping)
	res, err := f.svc.Pay(context.Background(), res.ID, renter)
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *domain.Reservation {
	t.Helper()
	res, err := f.store.Reservations.GetByID(context.Background(), id)
	require.NoError(t, err)
	return res
}

func ownerOf(item int32) int32 {
	if item == strangerItemID {
		return strangerID
	}
	return ownerID
}
