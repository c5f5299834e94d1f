package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity is a bookable Place or Event.  The reservation core only reads
// pricing and capacity attributes from it.
type Entity interface {
	Target() BookingTarget
}

// Event mirrors the events table.
//
// Fields:
//
//	ID          – events.id
//	Title       – events.title
//	Capacity    – maximum bookable quantity across non-cancelled reservations
//	TicketPrice – events.ticket_price (nullable; absent means free)
//	StartsAt    – events.starts_at (nullable)
type Event struct {
	ID          uint64
	Title       string
	Capacity    int
	TicketPrice *decimal.Decimal
	StartsAt    *time.Time
}

// Target implements Entity.
func (e *Event) Target() BookingTarget { return EventTarget(e.ID) }

// Place mirrors the places table.  EntranceFee and Location hold
// serialized JSON and are parsed on demand; a broken value means the
// feature is absent.
type Place struct {
	ID          uint64
	Name        string
	EntranceFee string // places.entrance_fee, e.g. {"adult": 10, "child": 5}
	Location    string // places.location, e.g. {"lat": 36.8, "lng": 10.1}
}

// Target implements Entity.
func (p *Place) Target() BookingTarget { return PlaceTarget(p.ID) }

// User is the subset of a user record the reservation core needs.
type User struct {
	ID    uint64
	Email string
	Name  string
}
