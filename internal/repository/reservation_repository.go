package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// ReservationRepo is the only writer of the reservations table.  Create
// and Apply run in a single transaction that locks the booked entity row
// (SELECT ... FOR UPDATE) and re-checks availability before writing, so
// concurrent requests against the same event or place cannot overbook.
// Timestamps are stored in UTC.
type ReservationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, now: time.Now}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const reservationColumns = `id, user_id, event_id, place_id, quantity, visit_date, total_price, status, created_at, updated_at`

// Create inserts res after re-checking availability under a lock on the
// target row.  On success the generated ID and timestamps are copied
// back into res.  On any failure nothing is persisted.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin create", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.checkTargetTx(ctx, tx, res, 0); err != nil {
		return err
	}

	now := r.now().UTC()
	const q = `INSERT INTO reservations (user_id, event_id, place_id, quantity, visit_date, total_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.UserID, nullID(res.Target.EventID()), nullID(res.Target.PlaceID()),
		res.Quantity, res.VisitDate.UTC(), res.TotalPrice.StringFixed(2), string(res.Status), now, now,
	)
	if err != nil {
		return persistErr("insert reservation", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return persistErr("insert reservation", err)
	}

	// Query back the full row to populate defaults.
	saved, err := getTx(ctx, tx, uint64(id), false)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit create", err)
	}
	committed = true
	*res = *saved
	return nil
}

// Apply loads the reservation under a row lock, lets mutate change it and
// persists the result.  The target and the total price cannot be changed
// by mutate.  A quantity increase or a moved visit date on a live
// reservation is re-checked against availability, excluding the
// reservation itself.  When mutate changes nothing no write happens and
// updated_at is left alone.  Errors returned by mutate abort the
// transaction and are returned unchanged.
func (r *ReservationRepo) Apply(ctx context.Context, id uint64, mutate func(*model.Reservation) error) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("begin update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := getTx(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	before := *cur
	if err := mutate(cur); err != nil {
		return nil, err
	}
	cur.Target = before.Target
	cur.TotalPrice = before.TotalPrice

	changed := cur.Status != before.Status || cur.Quantity != before.Quantity || !cur.VisitDate.Equal(before.VisitDate)
	if !changed {
		if err := tx.Commit(); err != nil {
			return nil, persistErr("commit update", err)
		}
		committed = true
		return &before, nil
	}

	grows := cur.Quantity > before.Quantity || !cur.VisitDate.Equal(before.VisitDate)
	if cur.Status != model.StatusCancelled && grows {
		if err := r.checkTargetTx(ctx, tx, cur, cur.ID); err != nil {
			return nil, err
		}
	}

	const q = `UPDATE reservations SET status = ?, quantity = ?, visit_date = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, string(cur.Status), cur.Quantity, cur.VisitDate.UTC(), r.now().UTC(), id); err != nil {
		return nil, persistErr("update reservation", err)
	}
	saved, err := getTx(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr("commit update", err)
	}
	committed = true
	return saved, nil
}

// Update applies a field patch through Apply.
func (r *ReservationRepo) Update(ctx context.Context, id uint64, patch model.ReservationPatch) (*model.Reservation, error) {
	return r.Apply(ctx, id, func(res *model.Reservation) error {
		patch.ApplyTo(res)
		return nil
	})
}

// GetByID returns a reservation or a *model.NotFoundError.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return getTx(ctx, r.db, id, false)
}

// Delete removes a reservation regardless of its state.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete reservation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("delete reservation", err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: "reservation", ID: id}
	}
	return nil
}

// List returns the reservations matching every set filter field, newest
// first.  The date range applies to visit_date unless the filter selects
// created_at.  A zero limit returns everything.
func (r *ReservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	where := []string{}
	args := []any{}

	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.PlaceID != nil {
		where = append(where, "place_id = ?")
		args = append(args, *f.PlaceID)
	}
	if f.EventID != nil {
		where = append(where, "event_id = ?")
		args = append(args, *f.EventID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	dateCol := "visit_date"
	if f.DateField == model.DateFieldCreated {
		dateCol = "created_at"
	}
	if f.FromDate != nil {
		where = append(where, dateCol+" >= ?")
		args = append(args, f.FromDate.UTC())
	}
	if f.ToDate != nil {
		where = append(where, dateCol+" <= ?")
		args = append(args, f.ToDate.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + cond + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("list reservations", err)
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, persistErr("scan reservation", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list reservations", err)
	}
	return out, nil
}

// BookedQuantity sums the quantity of non-cancelled reservations of an
// event.
func (r *ReservationRepo) BookedQuantity(ctx context.Context, eventID uint64) (int, error) {
	n, err := bookedQuantity(ctx, r.db, eventID, 0)
	if err != nil {
		return 0, persistErr("count event bookings", err)
	}
	return n, nil
}

// PlaceBookingsOn counts non-cancelled reservations of a place on the UTC
// calendar day of day.
func (r *ReservationRepo) PlaceBookingsOn(ctx context.Context, placeID uint64, day time.Time) (int, error) {
	n, err := placeBookingsOn(ctx, r.db, placeID, day, 0)
	if err != nil {
		return 0, persistErr("count place bookings", err)
	}
	return n, nil
}

// checkTargetTx locks the target entity row and verifies that res fits.
// excludeID leaves an existing reservation out of the counts.
func (r *ReservationRepo) checkTargetTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, excludeID uint64) error {
	t := res.Target
	switch t.Kind {
	case model.KindEvent:
		var capacity int
		err := tx.QueryRowContext(ctx, `SELECT capacity FROM events WHERE id = ? FOR UPDATE`, t.ID).Scan(&capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return &model.NotFoundError{Entity: "event", ID: t.ID}
		}
		if err != nil {
			return persistErr("lock event", err)
		}
		booked, err := bookedQuantity(ctx, tx, t.ID, excludeID)
		if err != nil {
			return persistErr("count event bookings", err)
		}
		if !model.EventHasRoom(capacity, booked, res.Quantity) {
			return &model.AvailabilityError{Reason: model.ReasonNotEnoughTickets}
		}
		return nil
	case model.KindPlace:
		var placeID uint64
		err := tx.QueryRowContext(ctx, `SELECT id FROM places WHERE id = ? FOR UPDATE`, t.ID).Scan(&placeID)
		if errors.Is(err, sql.ErrNoRows) {
			return &model.NotFoundError{Entity: "place", ID: t.ID}
		}
		if err != nil {
			return persistErr("lock place", err)
		}
		n, err := placeBookingsOn(ctx, tx, t.ID, res.VisitDate, excludeID)
		if err != nil {
			return persistErr("count place bookings", err)
		}
		if !model.PlaceDayFree(n) {
			return &model.AvailabilityError{Reason: model.ReasonPlaceNotAvailable}
		}
		return nil
	default:
		return model.NewValidationError("target", "unknown booking target")
	}
}

func bookedQuantity(ctx context.Context, q queryer, eventID, excludeID uint64) (int, error) {
	const sel = `SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE event_id = ? AND status <> 'cancelled' AND id <> ?`
	var n int
	err := q.QueryRowContext(ctx, sel, eventID, excludeID).Scan(&n)
	return n, err
}

func placeBookingsOn(ctx context.Context, q queryer, placeID uint64, day time.Time, excludeID uint64) (int, error) {
	start, end := model.DayBounds(day)
	const sel = `SELECT COUNT(*) FROM reservations
		WHERE place_id = ? AND status <> 'cancelled' AND visit_date >= ? AND visit_date < ? AND id <> ?`
	var n int
	err := q.QueryRowContext(ctx, sel, placeID, start, end, excludeID).Scan(&n)
	return n, err
}

// getTx loads one reservation, optionally locking the row.
func getTx(ctx context.Context, q queryer, id uint64, forUpdate bool) (*model.Reservation, error) {
	sel := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if forUpdate {
		sel += ` FOR UPDATE`
	}
	res, err := scanReservation(q.QueryRowContext(ctx, sel, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "reservation", ID: id}
	}
	if err != nil {
		return nil, persistErr("get reservation", err)
	}
	return res, nil
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res     model.Reservation
		eventID sql.NullInt64
		placeID sql.NullInt64
		status  string
	)
	if err := s.Scan(
		&res.ID, &res.UserID, &eventID, &placeID, &res.Quantity,
		&res.VisitDate, &res.TotalPrice, &status, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	switch {
	case eventID.Valid && !placeID.Valid:
		res.Target = model.EventTarget(uint64(eventID.Int64))
	case placeID.Valid && !eventID.Valid:
		res.Target = model.PlaceTarget(uint64(placeID.Int64))
	default:
		return nil, fmt.Errorf("reservation %d: exactly one of event_id and place_id must be set", res.ID)
	}
	st, ok := model.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("reservation %d: unknown status %q", res.ID, status)
	}
	res.Status = st
	res.VisitDate = res.VisitDate.UTC()
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return &res, nil
}

func nullID(id *uint64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}
