package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// EntityRepo reads the bookable places and events.  The reservation core
// never writes these tables.
type EntityRepo struct {
	db *sql.DB
}

// NewEntityRepo returns a new EntityRepo bound to the given database.
func NewEntityRepo(db *sql.DB) *EntityRepo { return &EntityRepo{db: db} }

// GetEventByID returns an event or a *model.NotFoundError.
func (r *EntityRepo) GetEventByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, title, capacity, ticket_price, starts_at FROM events WHERE id = ?`
	var (
		ev       model.Event
		price    decimal.NullDecimal
		startsAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&ev.ID, &ev.Title, &ev.Capacity, &price, &startsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "event", ID: id}
	}
	if err != nil {
		return nil, persistErr("get event", err)
	}
	if price.Valid {
		p := price.Decimal
		ev.TicketPrice = &p
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		ev.StartsAt = &t
	}
	return &ev, nil
}

// GetPlaceByID returns a place or a *model.NotFoundError.  The fee table
// and location are returned as stored.
func (r *EntityRepo) GetPlaceByID(ctx context.Context, id uint64) (*model.Place, error) {
	const q = `SELECT id, name, entrance_fee, location FROM places WHERE id = ?`
	var (
		p        model.Place
		fee      sql.NullString
		location sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Name, &fee, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "place", ID: id}
	}
	if err != nil {
		return nil, persistErr("get place", err)
	}
	p.EntranceFee = strings.TrimSpace(fee.String)
	p.Location = strings.TrimSpace(location.String)
	return &p, nil
}
