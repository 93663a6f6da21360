package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository"
)

// exclusionViolation is raised by reservations_no_overlap.
const exclusionViolation = "23P01"

const reservationColumns = `id, renter_id, item_id, owner_id, start_at, end_at, daily_rate, total_price, status,
	fulfillment_method, fulfillment_code, pickup_location, rejection_reason, cancelled_by, cancellation_reason,
	approved_at, paid_at, cancelled_at, completed_at, created_at, updated_at, version`

type reservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	query := `INSERT INTO reservations (` + reservationColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1)`
	logger.DatabaseCall("INSERT", "reservations", "id", res.ID, "itemID", res.ItemID)
	result, err := r.db.ExecContext(ctx, query,
		res.ID, res.RenterID, res.ItemID, res.OwnerID, res.Start, res.End, res.DailyRate, res.TotalPrice, res.Status,
		nullString(string(res.FulfillmentMethod)), res.FulfillmentCode, res.PickupLocation, res.RejectionReason,
		nullString(string(res.CancelledBy)), res.CancellationReason,
		res.ApprovedAt, res.PaidAt, res.CancelledAt, res.CompletedAt, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		err = translate(err)
		logger.DatabaseResult("INSERT", 0, err, "table", "reservations")
		return err
	}
	rows, _ := result.RowsAffected()
	logger.DatabaseResult("INSERT", rows, nil, "table", "reservations")
	res.Version = 1
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	logger.DatabaseCall("SELECT", "reservations", "id", id)
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	query := `UPDATE reservations SET status=$1, fulfillment_method=$2, fulfillment_code=$3, pickup_location=$4,
	          rejection_reason=$5, cancelled_by=$6, cancellation_reason=$7, approved_at=$8, paid_at=$9,
	          cancelled_at=$10, completed_at=$11, updated_at=$12, version=version+1
	          WHERE id=$13 AND version=$14`
	logger.DatabaseCall("UPDATE", "reservations", "id", res.ID, "status", res.Status, "version", res.Version)
	result, err := r.db.ExecContext(ctx, query,
		res.Status, nullString(string(res.FulfillmentMethod)), res.FulfillmentCode, res.PickupLocation,
		res.RejectionReason, nullString(string(res.CancelledBy)), res.CancellationReason, res.ApprovedAt, res.PaidAt,
		res.CancelledAt, res.CompletedAt, res.UpdatedAt,
		res.ID, res.Version)
	if err != nil {
		err = translate(err)
		logger.DatabaseResult("UPDATE", 0, err, "table", "reservations")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "table", "reservations")
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reservations WHERE id = $1)`, res.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}
	res.Version++
	return nil
}

func (r *reservationRepository) ListByItem(ctx context.Context, itemID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "item_id", itemID, statuses)
}

func (r *reservationRepository) ListByRenter(ctx context.Context, renterID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "renter_id", renterID, statuses)
}

func (r *reservationRepository) ListByOwner(ctx context.Context, ownerID int32, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "owner_id", ownerID, statuses)
}

func (r *reservationRepository) ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = $1 ORDER BY start_at, created_at`
	logger.DatabaseCall("SELECT", "reservations", "status", status)
	return r.query(ctx, query, status)
}

// list filters on a fixed column name; column never comes from callers.
func (r *reservationRepository) list(ctx context.Context, column string, id int32, statuses []domain.ReservationStatus) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + column + ` = $1`
	args := []interface{}{id}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY start_at, created_at`
	logger.DatabaseCall("SELECT", "reservations", column, id, "statuses", statuses)
	return r.query(ctx, query, args...)
}

func (r *reservationRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var method, cancelledBy sql.NullString
	err := row.Scan(&res.ID, &res.RenterID, &res.ItemID, &res.OwnerID, &res.Start, &res.End, &res.DailyRate, &res.TotalPrice, &res.Status,
		&method, &res.FulfillmentCode, &res.PickupLocation, &res.RejectionReason, &cancelledBy, &res.CancellationReason,
		&res.ApprovedAt, &res.PaidAt, &res.CancelledAt, &res.CompletedAt, &res.CreatedAt, &res.UpdatedAt, &res.Version)
	if err != nil {
		return nil, err
	}
	res.FulfillmentMethod = domain.FulfillmentMethod(method.String)
	res.CancelledBy = domain.CancelActor(cancelledBy.String)
	return res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == exclusionViolation {
		return fmt.Errorf("%w: %s", repository.ErrOverlap, pqErr.Message)
	}
	return err
}
