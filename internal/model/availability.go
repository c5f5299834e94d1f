package model

import "time"

// EventHasRoom reports whether quantity more tickets fit in an event of
// the given capacity once booked tickets are accounted for.
func EventHasRoom(capacity, booked, quantity int) bool {
	return capacity-booked >= quantity
}

// PlaceDayFree reports whether a place can take a booking on a day that
// already holds existing non-cancelled reservations.  Places are booked
// exclusively per calendar day.
func PlaceDayFree(existing int) bool {
	return existing == 0
}

// DayBounds returns the half-open UTC interval [start, end) of the
// calendar day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
