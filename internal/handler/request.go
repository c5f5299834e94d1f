package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

const dateOnly = "2006-01-02"

// Date accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.  Plain
// dates are midnight UTC.
type Date struct {
	time.Time
	DateOnly bool
}

// ParseDate parses s as RFC 3339 or YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date{Time: t.UTC()}, nil
	}
	if t, err := time.ParseInLocation(dateOnly, s, time.UTC); err == nil {
		return Date{Time: t, DateOnly: true}, nil
	}
	return Date{}, fmt.Errorf("invalid date %q, use RFC 3339 or YYYY-MM-DD", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// timePtr returns nil for a nil Date.
func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// createReservationRequest is the POST /reservations body.
type createReservationRequest struct {
	UserID          uint64  `json:"userId"`
	EventID         *uint64 `json:"eventId" validate:"omitempty,gt=0"`
	PlaceID         *uint64 `json:"placeId" validate:"omitempty,gt=0"`
	NumberOfTickets *int    `json:"numberOfTickets" validate:"omitempty,min=1"`
	Status          string  `json:"status"`
	VisitDate       *Date   `json:"visitDate"`
}

func (r createReservationRequest) input() model.CreateReservationInput {
	return model.CreateReservationInput{
		UserID:    r.UserID,
		EventID:   r.EventID,
		PlaceID:   r.PlaceID,
		Quantity:  r.NumberOfTickets,
		Status:    r.Status,
		VisitDate: r.VisitDate.timePtr(),
	}
}

// updateReservationRequest is the PUT /reservations/:id body.  eventId
// and placeId are decoded only to reject attempts to move a reservation.
type updateReservationRequest struct {
	Status          *string `json:"status"`
	NumberOfTickets *int    `json:"numberOfTickets" validate:"omitempty,min=1"`
	VisitDate       *Date   `json:"visitDate"`
	EventID         *uint64 `json:"eventId"`
	PlaceID         *uint64 `json:"placeId"`
}

func (r updateReservationRequest) input() (model.UpdateReservationInput, error) {
	if r.EventID != nil || r.PlaceID != nil {
		return model.UpdateReservationInput{}, model.NewValidationError("target", "eventId and placeId cannot be changed")
	}
	return model.UpdateReservationInput{
		Status:    r.Status,
		Quantity:  r.NumberOfTickets,
		VisitDate: r.VisitDate.timePtr(),
	}, nil
}

// reservationResponse is the JSON shape of a reservation.
type reservationResponse struct {
	ID              uint64      `json:"id"`
	UserID          uint64      `json:"userId"`
	EventID         *uint64     `json:"eventId"`
	PlaceID         *uint64     `json:"placeId"`
	NumberOfTickets int         `json:"numberOfTickets"`
	VisitDate       time.Time   `json:"visitDate"`
	TotalPrice      json.Number `json:"totalPrice"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func toResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		EventID:         r.Target.EventID(),
		PlaceID:         r.Target.PlaceID(),
		NumberOfTickets: r.Quantity,
		VisitDate:       r.VisitDate,
		TotalPrice:      json.Number(r.TotalPrice.StringFixed(2)),
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// parseID reads a positive :id path parameter.
func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, model.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// queryParser collects query parameter problems into one ValidationError.
type queryParser struct {
	c    echo.Context
	verr model.ValidationError
}

func (p *queryParser) uintParam(name string) *uint64 {
	s := strings.TrimSpace(p.c.QueryParam(name))
	if s == "" {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		p.verr.Add(name, "must be a positive integer")
		return nil
	}
	return &n
}

func (p *queryParser) intParam(name string, def int) int {
	s := strings.TrimSpace(p.c.QueryParam(name))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.verr.Add(name, "must be an integer")
		return def
	}
	return n
}

// dateParam parses a date parameter.  With endOfDay a plain date covers the
// whole day.
func (p *queryParser) dateParam(name string, endOfDay bool) *time.Time {
	s := strings.TrimSpace(p.c.QueryParam(name))
	if s == "" {
		return nil
	}
	d, err := ParseDate(s)
	if err != nil {
		p.verr.Add(name, "must be RFC 3339 or YYYY-MM-DD")
		return nil
	}
	t := d.Time
	if endOfDay && d.DateOnly {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

func (p *queryParser) err() error {
	if len(p.verr.Fields) == 0 {
		return nil
	}
	return &p.verr
}
