// README: DB-backed ride store tests (CAS commit, logs, concurrent accept).
package ride

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/logging"
	"twende/internal/modules/geo"
	"twende/internal/modules/user"
	"twende/internal/testdb"
	"twende/internal/types"
)

func TestStoreCommitCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	store := NewStore(db)
	testdb.SeedUsers(t, db, "c1", "d1")

	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &Ride{
		ID:            types.NewID(),
		CustomerID:    "c1",
		Origin:        &types.Point{Lat: -1.2864, Lng: 36.8172},
		State:         StateNew,
		PaymentMethod: PaymentMpesa,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	actor := types.ID("c1")
	require.NoError(t, store.Create(ctx, r, &Log{RideID: r.ID, State: StateNew, UserID: &actor, CreatedAt: now}))

	next := *r
	next.DriverID = driverID("d1")
	next.State = StateRequested
	next.Distance = &geo.Distance{Distance: "0.1 km", Duration: "-", Meters: 150}
	fare := types.NewMoney(15000)
	next.Fare = &fare
	err := store.Commit(ctx, Change{
		Ride:            &next,
		ExpectedState:   StateNew,
		ExpectedVersion: 0,
		Commands:        []Command{{DriverID: "d1", DriverState: user.StateRequested}},
		Logs:            []Log{{RideID: r.ID, State: StateRequested, UserID: &actor, Location: &types.Point{Lat: 1, Lng: 2}, CreatedAt: now.Add(time.Second)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, next.Version)

	stale := *r
	stale.State = StateCanceled
	err = store.Commit(ctx, Change{Ride: &stale, ExpectedState: StateNew, ExpectedVersion: 0})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRequested, got.State)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, types.ID("d1"), *got.DriverID)
	assert.Equal(t, 150, got.Distance.Meters)
	assert.Equal(t, int64(15000), got.Fare.Amount)
	assert.Nil(t, got.LiveFare)
	assert.Nil(t, got.Destination)

	var driverState string
	require.NoError(t, db.QueryRow(ctx, `SELECT state FROM users WHERE id = 'd1'`).Scan(&driverState))
	assert.Equal(t, string(user.StateRequested), driverState)

	logs, err := store.Logs(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, StateNew, logs[0].State)
	assert.Equal(t, StateRequested, logs[1].State)
	assert.Equal(t, types.Point{Lat: 1, Lng: 2}, *logs[1].Location)

	latest, err := store.Latest(ctx, "d1", true)
	require.NoError(t, err)
	assert.Equal(t, r.ID, latest.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAcceptDB(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	ids := []string{"c1"}
	for i := 1; i <= 8; i++ {
		ids = append(ids, fmt.Sprintf("d%d", i))
	}
	testdb.SeedUsers(t, db, ids...)

	svc := NewService(Deps{
		Store: NewStore(db),
		Users: user.NewStore(db),
		Log:   logging.Discard(),
	})
	r, err := svc.Create(ctx, CreateCommand{CustomerID: "c1", DriverID: driverID("d1"), Origin: &types.Point{Lat: -1.29, Lng: 36.82}})
	require.NoError(t, err)
	require.Equal(t, StateRequested, r.State)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			_, err := svc.Transition(ctx, TransitionCommand{RideID: r.ID, Event: EventAccept, ActorID: did})
			errs <- err
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
}
