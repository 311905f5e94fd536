package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/modules/ride"
	"twende/internal/testdb"
)

func TestStoreRideMessageDedupe(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedUsers(t, db, "c1")
	ctx := context.Background()
	_, err := db.Exec(ctx, `INSERT INTO rides (id, customer_id, state) VALUES ('r1', 'c1', 'canceled')`)
	require.NoError(t, err)
	store := NewStore(db)

	msg := func(title string) *Message {
		return &Message{Kind: KindRide, RideID: "r1", RideState: ride.StateCanceled, ReceiverID: "c1",
			Title: title, Body: "Your ride was canceled", Sound: DefaultSound, NotifyHelpdesk: true, CreatedAt: time.Now()}
	}
	first := msg("Ride canceled")
	require.NoError(t, store.Create(ctx, first))
	assert.ErrorIs(t, store.Create(ctx, msg("Ride canceled")), ErrDuplicate)
	require.NoError(t, store.Create(ctx, msg("")))
	require.NoError(t, store.Create(ctx, msg("")))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkSent(ctx, first, at))

	got, err := store.ForReceiver(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, m := range got {
		assert.Equal(t, KindRide, m.Kind)
		assert.True(t, m.NotifyHelpdesk)
	}
}

func TestStoreSystemAndBulkMessages(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedUsers(t, db, "c1", "d1")
	ctx := context.Background()
	store := NewStore(db)

	b := &Bulk{Subject: "Holiday tariff", Message: "Fares change", Receivers: 2, CreatedAt: time.Now()}
	require.NoError(t, store.CreateBulk(ctx, b))
	require.NotZero(t, b.ID)

	m := &Message{Kind: KindSystem, BulkID: &b.ID, ReceiverID: "d1", Title: "Holiday tariff", Body: "Fares change", CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, m))
	require.NoError(t, store.MarkSent(ctx, m, time.Now()))
	require.NoError(t, store.MarkBulkSent(ctx, b.ID, time.Now()))

	got, err := store.ForReceiver(ctx, "d1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, KindSystem, got[0].Kind)
	assert.Equal(t, "Holiday tariff", got[0].Title)
	require.NotNil(t, got[0].BulkID)
	assert.Equal(t, b.ID, *got[0].BulkID)
	assert.NotNil(t, got[0].SentAt)
	assert.Empty(t, got[0].RideID)

	none, err := store.ForReceiver(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
