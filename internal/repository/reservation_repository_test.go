package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

var (
	fixedNow  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	visitDay  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	selectOne = regexp.QuoteMeta(`SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`)
)

func newMockRepo(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewReservationRepo(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func reservationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "event_id", "place_id", "quantity", "visit_date",
		"total_price", "status", "created_at", "updated_at",
	})
}

func TestCreate_EventInsertsUnderLock(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity FROM events WHERE id = ? FOR UPDATE`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity), 0) FROM reservations`)).
		WithArgs(1, 0).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reservations`)).
		WithArgs(7, 1, nil, 2, visitDay, "25.00", "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(selectOne).
		WithArgs(42).
		WillReturnRows(reservationRows().AddRow(42, 7, 1, nil, 2, visitDay, "25.00", "pending", fixedNow, fixedNow))
	mock.ExpectCommit()

	res := &model.Reservation{
		UserID:     7,
		Target:     model.EventTarget(1),
		Quantity:   2,
		VisitDate:  visitDay,
		TotalPrice: decimal.RequireFromString("25"),
		Status:     model.StatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), res))
	assert.Equal(t, uint64(42), res.ID)
	assert.Equal(t, "25.00", res.TotalPrice.StringFixed(2))
	assert.Equal(t, fixedNow, res.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EventFullRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity FROM events WHERE id = ? FOR UPDATE`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity), 0) FROM reservations`)).
		WithArgs(1, 0).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(9))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Reservation{
		UserID: 7, Target: model.EventTarget(1), Quantity: 2, VisitDate: visitDay, Status: model.StatusPending,
	})
	var aerr *model.AvailabilityError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, model.ReasonNotEnoughTickets, aerr.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_PlaceDayTakenRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM places WHERE id = ? FOR UPDATE`)).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM reservations`)).
		WithArgs(9, visitDay, visitDay.AddDate(0, 0, 1), 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Reservation{
		UserID: 7, Target: model.PlaceTarget(9), Quantity: 2, VisitDate: visitDay.Add(10 * time.Hour), Status: model.StatusPending,
	})
	var aerr *model.AvailabilityError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, model.ReasonPlaceNotAvailable, aerr.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_MissingEntity(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM places WHERE id = ? FOR UPDATE`)).
		WithArgs(5).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Reservation{
		UserID: 7, Target: model.PlaceTarget(5), Quantity: 1, VisitDate: visitDay, Status: model.StatusPending,
	})
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "place", nf.Entity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DeadlockIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity FROM events WHERE id = ? FOR UPDATE`)).
		WithArgs(1).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Reservation{
		UserID: 7, Target: model.EventTarget(1), Quantity: 1, VisitDate: visitDay, Status: model.StatusPending,
	})
	var perr *model.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_PersistsStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	later := fixedNow

	mock.ExpectBegin()
	mock.ExpectQuery(selectOne + ` FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(reservationRows().AddRow(5, 7, 1, nil, 2, visitDay, "25.00", "pending", fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reservations SET status = ?, quantity = ?, visit_date = ?, updated_at = ? WHERE id = ?`)).
		WithArgs("confirmed", 2, visitDay, later, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectOne).
		WithArgs(5).
		WillReturnRows(reservationRows().AddRow(5, 7, 1, nil, 2, visitDay, "25.00", "confirmed", fixedNow.Add(-time.Hour), later))
	mock.ExpectCommit()

	got, err := repo.Apply(context.Background(), 5, func(r *model.Reservation) error {
		r.Status = model.StatusConfirmed
		r.TotalPrice = decimal.Zero
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "25.00", got.TotalPrice.StringFixed(2))
	assert.Equal(t, later, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_QuantityGrowthIsRechecked(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectOne + ` FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(reservationRows().AddRow(5, 7, 1, nil, 2, visitDay, "25.00", "pending", fixedNow, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity FROM events WHERE id = ? FOR UPDATE`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity), 0) FROM reservations`)).
		WithArgs(1, 5).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(7))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 5, model.ReservationPatch{Quantity: func() *int { n := 4; return &n }()})
	var aerr *model.AvailabilityError
	require.ErrorAs(t, err, &aerr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_NoChangeSkipsWrite(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectOne + ` FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(reservationRows().AddRow(5, 7, nil, 9, 1, visitDay, "10.00", "pending", fixedNow, fixedNow))
	mock.ExpectCommit()

	got, err := repo.Apply(context.Background(), 5, func(*model.Reservation) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, model.PlaceTarget(9), got.Target)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_MutateErrorRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := &model.TransitionError{From: model.StatusCancelled, To: "confirmed"}

	mock.ExpectBegin()
	mock.ExpectQuery(selectOne + ` FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(reservationRows().AddRow(5, 7, 1, nil, 1, visitDay, "12.50", "cancelled", fixedNow, fixedNow))
	mock.ExpectRollback()

	_, err := repo.Apply(context.Background(), 5, func(*model.Reservation) error { return boom })
	assert.Same(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(selectOne).WithArgs(3).WillReturnRows(reservationRows())

	_, err := repo.GetByID(context.Background(), 3)
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "reservation", nf.Entity)
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reservations WHERE id = ?`)).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reservations WHERE id = ?`)).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reservations WHERE id = ?`)).WithArgs(5).WillReturnError(errors.New("connection refused"))

	require.NoError(t, repo.Delete(context.Background(), 3))
	var nf *model.NotFoundError
	assert.ErrorAs(t, repo.Delete(context.Background(), 4), &nf)
	var perr *model.PersistenceError
	assert.ErrorAs(t, repo.Delete(context.Background(), 5), &perr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_BuildsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	user := uint64(7)
	status := model.StatusConfirmed
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM reservations WHERE user_id = ? AND status = ? AND created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)).
		WithArgs(7, "confirmed", from, 20, 40).
		WillReturnRows(reservationRows().
			AddRow(2, 7, nil, 9, 2, visitDay, "20.00", "confirmed", fixedNow, fixedNow).
			AddRow(1, 7, 1, nil, 3, visitDay, "37.50", "confirmed", fixedNow, fixedNow))

	list, err := repo.List(context.Background(), model.ReservationFilter{
		UserID: &user, Status: &status, FromDate: &from, DateField: model.DateFieldCreated, Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.PlaceTarget(9), list[0].Target)
	assert.Equal(t, model.EventTarget(1), list[1].Target)
	assert.Equal(t, "37.50", list[1].TotalPrice.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_NoFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reservations WHERE 1=1 ORDER BY created_at DESC, id DESC`)).
		WillReturnRows(reservationRows())

	list, err := repo.List(context.Background(), model.ReservationFilter{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestBookedQuantity(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity), 0) FROM reservations`)).
		WithArgs(1, 0).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(6))

	n, err := repo.BookedQuantity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
