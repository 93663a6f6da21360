// Package memory holds in-process implementations of the repositories. The
// reservation store is the reference implementation of the storage contract;
// the user and item stores stand in for the identity and catalog services in
// tests and local runs.
package memory

import "rentshare-backend/internal/repository"

type Store struct {
	repository.UserRepository
	repository.ItemRepository
	repository.ReservationRepository

	Users        *UserRepository
	Items        *ItemRepository
	Reservations *ReservationRepository
}

func NewStore() *Store {
	items := NewItemRepository()
	users := NewUserRepository(items)
	reservations := NewReservationRepository()
	return &Store{
		UserRepository:        users,
		ItemRepository:        items,
		ReservationRepository: reservations,
		Users:                 users,
		Items:                 items,
		Reservations:          reservations,
	}
}
