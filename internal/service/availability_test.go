package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

func TestAvailabilityChecker(t *testing.T) {
	entities := newMemEntities()
	entities.events[1] = &model.Event{ID: 1, Capacity: 5}
	entities.places[9] = &model.Place{ID: 9}
	store := newMemStore(entities)
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(context.Background(), &model.Reservation{
		Target: model.EventTarget(1), Quantity: 3, Status: model.StatusPending,
	}))
	require.NoError(t, store.Create(context.Background(), &model.Reservation{
		Target: model.EventTarget(1), Quantity: 2, Status: model.StatusCancelled,
	}))
	require.NoError(t, store.Create(context.Background(), &model.Reservation{
		Target: model.PlaceTarget(9), Quantity: 1, VisitDate: day, Status: model.StatusPending,
	}))

	checker := NewAvailabilityChecker(entities, store)
	ctx := context.Background()
	nextDay := day.AddDate(0, 0, 1)

	ok, err := checker.Check(ctx, model.KindEvent, 1, nil, 2)
	require.NoError(t, err)
	assert.True(t, ok, "cancelled reservations do not hold capacity")

	ok, err = checker.Check(ctx, model.KindEvent, 1, nil, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.Check(ctx, model.KindEvent, 404, nil, 1)
	require.NoError(t, err)
	assert.False(t, ok, "missing event is unavailable")

	ok, err = checker.Check(ctx, model.KindPlace, 9, &day, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.Check(ctx, model.KindPlace, 9, &nextDay, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	var verr *model.ValidationError
	_, err = checker.Check(ctx, model.KindPlace, 9, nil, 1)
	assert.ErrorAs(t, err, &verr)
	_, err = checker.Check(ctx, model.KindEvent, 1, nil, 0)
	assert.ErrorAs(t, err, &verr)
	_, err = checker.Check(ctx, model.TargetKind("museum"), 1, nil, 1)
	assert.ErrorAs(t, err, &verr)
}
