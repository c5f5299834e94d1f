package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/tourism-reservation/internal/model"
	"github.com/iliyamo/tourism-reservation/internal/notify"
)

// memStore is an in-memory ReservationStore.  With recheck set it repeats
// the availability rule inside Create and Apply the way the MySQL store
// does; without it the locker is the only guard.
type memStore struct {
	mu       sync.Mutex
	rows     map[uint64]model.Reservation
	nextID   uint64
	entities *memEntities
	recheck  bool
	failNext error
	now      time.Time
}

func newMemStore(entities *memEntities) *memStore {
	return &memStore{
		rows:     map[uint64]model.Reservation{},
		entities: entities,
		recheck:  true,
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) bookedLocked(eventID, exclude uint64) int {
	n := 0
	for id, r := range s.rows {
		if id == exclude || r.Status == model.StatusCancelled {
			continue
		}
		if r.Target == model.EventTarget(eventID) {
			n += r.Quantity
		}
	}
	return n
}

func (s *memStore) placeDayLocked(placeID uint64, day time.Time, exclude uint64) int {
	start, end := model.DayBounds(day)
	n := 0
	for id, r := range s.rows {
		if id == exclude || r.Status == model.StatusCancelled {
			continue
		}
		if r.Target == model.PlaceTarget(placeID) && !r.VisitDate.Before(start) && r.VisitDate.Before(end) {
			n++
		}
	}
	return n
}

func (s *memStore) checkLocked(r *model.Reservation, exclude uint64) error {
	switch r.Target.Kind {
	case model.KindEvent:
		ev, ok := s.entities.events[r.Target.ID]
		if !ok {
			return &model.NotFoundError{Entity: "event", ID: r.Target.ID}
		}
		if !model.EventHasRoom(ev.Capacity, s.bookedLocked(ev.ID, exclude), r.Quantity) {
			return &model.AvailabilityError{Reason: model.ReasonNotEnoughTickets}
		}
	case model.KindPlace:
		if _, ok := s.entities.places[r.Target.ID]; !ok {
			return &model.NotFoundError{Entity: "place", ID: r.Target.ID}
		}
		if !model.PlaceDayFree(s.placeDayLocked(r.Target.ID, r.VisitDate, exclude)) {
			return &model.AvailabilityError{Reason: model.ReasonPlaceNotAvailable}
		}
	}
	return nil
}

func (s *memStore) BookedQuantity(_ context.Context, eventID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookedLocked(eventID, 0), nil
}

func (s *memStore) PlaceBookingsOn(_ context.Context, placeID uint64, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeDayLocked(placeID, day, 0), nil
}

func (s *memStore) Create(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if s.recheck {
		if err := s.checkLocked(r, 0); err != nil {
			return err
		}
	}
	s.nextID++
	r.ID = s.nextID
	r.CreatedAt = s.now
	r.UpdatedAt = s.now
	s.rows[r.ID] = *r
	return nil
}

func (s *memStore) Apply(_ context.Context, id uint64, mutate func(*model.Reservation) error) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "reservation", ID: id}
	}
	before := cur
	if err := mutate(&cur); err != nil {
		return nil, err
	}
	if cur == before {
		return &before, nil
	}
	if s.recheck && cur.Status != model.StatusCancelled && (cur.Quantity > before.Quantity || !cur.VisitDate.Equal(before.VisitDate)) {
		if err := s.checkLocked(&cur, id); err != nil {
			return nil, err
		}
	}
	cur.UpdatedAt = s.now.Add(time.Minute)
	s.rows[id] = cur
	return &cur, nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "reservation", ID: id}
	}
	return &r, nil
}

func (s *memStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return &model.NotFoundError{Entity: "reservation", ID: id}
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) List(_ context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range s.rows {
		if f.UserID != nil && r.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type memEntities struct {
	events map[uint64]*model.Event
	places map[uint64]*model.Place
}

func newMemEntities() *memEntities {
	return &memEntities{events: map[uint64]*model.Event{}, places: map[uint64]*model.Place{}}
}

func (m *memEntities) GetEventByID(_ context.Context, id uint64) (*model.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "event", ID: id}
	}
	return ev, nil
}

func (m *memEntities) GetPlaceByID(_ context.Context, id uint64) (*model.Place, error) {
	p, ok := m.places[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "place", ID: id}
	}
	return p, nil
}

type memUsers map[uint64]*model.User

func (m memUsers) FindUserByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "user", ID: id}
	}
	return u, nil
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendEmail(ctx context.Context, email notify.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
