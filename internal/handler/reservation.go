package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-reservation/internal/middleware"
	"github.com/iliyamo/tourism-reservation/internal/model"
)

// ReservationService is the part of service.ReservationService the HTTP
// layer calls.
type ReservationService interface {
	Create(ctx context.Context, in model.CreateReservationInput) (*model.Reservation, error)
	Update(ctx context.Context, id uint64, in model.UpdateReservationInput) (*model.Reservation, error)
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
	CheckAvailability(ctx context.Context, kind model.TargetKind, entityID uint64, date *time.Time, quantity int) (bool, error)
}

// ReservationHandler serves the /reservations resource.
type ReservationHandler struct {
	svc ReservationService
	log *zap.Logger
}

// NewReservationHandler constructs a handler.  svc must be non-nil.
func NewReservationHandler(svc ReservationService, log *zap.Logger) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationHandler{svc: svc, log: log}
}

// List handles GET /reservations.  Filters are combined with AND;
// fromDate/toDate apply to visitDate unless dateField=createdAt.  A plain
// toDate date includes the whole day.
func (h *ReservationHandler) List(c echo.Context) error {
	p := &queryParser{c: c}
	f := model.ReservationFilter{
		UserID:    p.uintParam("userId"),
		PlaceID:   p.uintParam("placeId"),
		EventID:   p.uintParam("eventId"),
		FromDate:  p.dateParam("fromDate", false),
		ToDate:    p.dateParam("toDate", true),
		DateField: model.DateField(strings.TrimSpace(c.QueryParam("dateField"))),
		Limit:     p.intParam("limit", 0),
		Offset:    p.intParam("offset", 0),
	}
	if s := strings.TrimSpace(c.QueryParam("status")); s != "" {
		st, ok := model.ParseStatus(s)
		if !ok {
			p.verr.Add("status", "must be one of pending, confirmed, cancelled, completed")
		} else {
			f.Status = &st
		}
	}
	if err := p.err(); err != nil {
		return writeError(c, h.log, err)
	}

	list, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]reservationResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toResponse(r))
}

// Create handles POST /reservations.  When bearer auth is on and the
// body carries no userId, the token subject is used.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, h.log, err)
	}
	if req.UserID == 0 {
		if uid, ok := middleware.UserID(c); ok {
			req.UserID = uid
		}
	}

	r, err := h.svc.Create(c.Request().Context(), req.input())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toResponse(r))
}

// Update handles PUT /reservations/:id.  A status of "rappler" sends the
// reminder email and leaves the reservation unchanged.
func (h *ReservationHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}
	var req updateReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, h.log, err)
	}
	in, err := req.input()
	if err != nil {
		return writeError(c, h.log, err)
	}

	r, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toResponse(r))
}

// Delete handles DELETE /reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CheckAvailability handles GET /reservations/check/availability.
// numberOfTickets defaults to 1; date is required for places.
func (h *ReservationHandler) CheckAvailability(c echo.Context) error {
	p := &queryParser{c: c}
	kind, ok := model.ParseTargetKind(c.QueryParam("entityType"))
	if !ok {
		p.verr.Add("entityType", "must be event or place")
	}
	entityID := p.uintParam("entityId")
	if entityID == nil {
		p.verr.Add("entityId", "must be a positive integer")
	}
	date := p.dateParam("date", false)
	qty := p.intParam("numberOfTickets", 1)
	if err := p.err(); err != nil {
		return writeError(c, h.log, err)
	}

	available, err := h.svc.CheckAvailability(c.Request().Context(), kind, *entityID, date, qty)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"available": available})
}
