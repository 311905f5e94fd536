package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/logging"
	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/types"
)

// memStore mirrors the partial unique index: only titled ride messages are
// deduplicated.
type memStore struct {
	msgs     []Message
	sent     map[int64]time.Time
	bulks    []Bulk
	bulkSent map[int64]time.Time
}

func (m *memStore) Create(_ context.Context, msg *Message) error {
	if msg.Kind == KindRide && msg.Title != "" {
		for _, existing := range m.msgs {
			if existing.Kind == KindRide && existing.Title != "" && existing.RideID == msg.RideID &&
				existing.RideState == msg.RideState && existing.ReceiverID == msg.ReceiverID {
				return ErrDuplicate
			}
		}
	}
	msg.ID = int64(len(m.msgs) + 1)
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memStore) MarkSent(_ context.Context, msg *Message, at time.Time) error {
	if m.sent == nil {
		m.sent = map[int64]time.Time{}
	}
	m.sent[msg.ID] = at
	return nil
}

func (m *memStore) CreateBulk(_ context.Context, b *Bulk) error {
	b.ID = int64(len(m.bulks) + 1)
	m.bulks = append(m.bulks, *b)
	return nil
}

func (m *memStore) MarkBulkSent(_ context.Context, id int64, at time.Time) error {
	if m.bulkSent == nil {
		m.bulkSent = map[int64]time.Time{}
	}
	m.bulkSent[id] = at
	return nil
}

func (m *memStore) ForReceiver(_ context.Context, receiverID types.ID, limit int) ([]Message, error) {
	var out []Message
	for _, msg := range m.msgs {
		if msg.ReceiverID == receiverID && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

type userMap map[types.ID]*user.User

func (m userMap) Get(_ context.Context, id types.ID) (*user.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type fakeSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "projects/twende/messages/1", nil
}

func newNotifyService() (*Service, *memStore, *fakeSender) {
	store := &memStore{}
	sender := &fakeSender{}
	users := userMap{
		"c1": {ID: "c1", Username: "wanjiku", PushToken: "tok-c1"},
		"d1": {ID: "d1", Username: "kamau", FirstName: "Kamau", IsDriver: true, PushToken: "tok-d1"},
		"d2": {ID: "d2", Username: "njoroge", IsDriver: true},
	}
	return NewService(store, users, NewFCMPusher(sender), logging.Discard()), store, sender
}

func testRide(state ride.State, driver types.ID) *ride.Ride {
	fare := types.NewMoney(15000)
	r := &ride.Ride{ID: "r1", CustomerID: "c1", State: state, OriginText: "Kenyatta Avenue", Fare: &fare}
	if driver != "" {
		r.DriverID = &driver
	}
	return r
}

func TestRideStateChangedSendsOncePerState(t *testing.T) {
	svc, store, sender := newNotifyService()
	ctx := context.Background()

	require.NoError(t, svc.RideStateChanged(ctx, testRide(ride.StateAccepted, "d1"), ride.StateRequested))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "tok-c1", sender.sent[0].Token)
	assert.Equal(t, "Kamau accepted your ride", sender.sent[0].Notification.Body)
	assert.Equal(t, "r1", sender.sent[0].Data["ride_id"])
	assert.Contains(t, store.sent, int64(1))

	require.NoError(t, svc.RideStateChanged(ctx, testRide(ride.StateAccepted, "d1"), ride.StateRequested))
	assert.Len(t, sender.sent, 1, "duplicate message is skipped")
	assert.Len(t, store.msgs, 1)
}

func TestRideStateChangedRecipients(t *testing.T) {
	tests := []struct {
		state ride.State
		want  []types.ID
	}{
		{ride.StateRequested, []types.ID{"d1"}},
		{ride.StateDropoff, []types.ID{"c1"}},
		{ride.StateRating, []types.ID{"c1", "d1"}},
		{ride.StateCanceled, []types.ID{"c1", "d1"}},
		{ride.StateFinalized, []types.ID{"d1"}},
		{ride.StateSelecting, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			svc, store, _ := newNotifyService()
			require.NoError(t, svc.RideStateChanged(context.Background(), testRide(tt.state, "d1"), ride.StateNew))
			var got []types.ID
			for _, m := range store.msgs {
				got = append(got, m.ReceiverID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDropoffMessageCarriesFare(t *testing.T) {
	svc, store, _ := newNotifyService()
	require.NoError(t, svc.RideStateChanged(context.Background(), testRide(ride.StateDropoff, "d1"), ride.StateDriving))
	require.Len(t, store.msgs, 1)
	assert.Equal(t, "Trip fare KES 150.00", store.msgs[0].Body)
}

func TestReceiverWithoutDeviceIsStoredUnsent(t *testing.T) {
	svc, store, sender := newNotifyService()
	require.NoError(t, svc.RideStateChanged(context.Background(), testRide(ride.StateRequested, "d2"), ride.StateNew))
	assert.Empty(t, sender.sent)
	require.Len(t, store.msgs, 1)
	assert.Empty(t, store.sent)
}

func TestPushFailureIsReturned(t *testing.T) {
	svc, store, sender := newNotifyService()
	sender.err = errors.New("registration-token-not-registered")

	err := svc.RideStateChanged(context.Background(), testRide(ride.StateDriving, "d1"), ride.StateAccepted)
	assert.Error(t, err)
	assert.Len(t, store.msgs, 1)
	assert.Empty(t, store.sent)
}

func TestCancelAndDeclineFlagHelpdesk(t *testing.T) {
	svc, store, sender := newNotifyService()
	ctx := context.Background()

	require.NoError(t, svc.RideStateChanged(ctx, testRide(ride.StateCanceled, "d1"), ride.StateAccepted))
	require.Len(t, store.msgs, 2)
	assert.True(t, store.msgs[0].NotifyHelpdesk, "customer message")
	assert.False(t, store.msgs[1].NotifyHelpdesk, "driver message")
	assert.Equal(t, "true", sender.sent[0].Data["notify_helpdesk"])
	assert.NotContains(t, sender.sent[1].Data, "notify_helpdesk")

	svc, store, _ = newNotifyService()
	require.NoError(t, svc.RideStateChanged(ctx, testRide(ride.StateDeclined, "d1"), ride.StateRequested))
	require.Len(t, store.msgs, 1)
	assert.True(t, store.msgs[0].NotifyHelpdesk)

	svc, store, _ = newNotifyService()
	require.NoError(t, svc.RideStateChanged(ctx, testRide(ride.StateAccepted, "d1"), ride.StateRequested))
	require.Len(t, store.msgs, 1)
	assert.False(t, store.msgs[0].NotifyHelpdesk)
}

func TestUntitledRideMessagesMayRepeat(t *testing.T) {
	svc, store, _ := newNotifyService()
	ctx := context.Background()
	untitled := func() *Message {
		return &Message{RideID: "r1", RideState: ride.StateDriving, ReceiverID: "c1", Body: "Traffic on Uhuru Highway"}
	}

	require.NoError(t, svc.Send(ctx, untitled()))
	require.NoError(t, svc.Send(ctx, untitled()))
	assert.Len(t, store.msgs, 2)
	assert.Equal(t, KindRide, store.msgs[0].Kind)

	titled := &Message{RideID: "r1", RideState: ride.StateDriving, ReceiverID: "c1", Title: "Trip started"}
	require.NoError(t, svc.Send(ctx, titled))
	again := *titled
	again.ID = 0
	assert.ErrorIs(t, svc.Send(ctx, &again), ErrDuplicate)
}

func TestSendSystem(t *testing.T) {
	svc, store, sender := newNotifyService()
	ctx := context.Background()

	m, err := svc.SendSystem(ctx, SystemCommand{ReceiverID: "d1", Subject: " App update ", Message: "Please update Twende Driver"})
	require.NoError(t, err)
	assert.Equal(t, KindSystem, m.Kind)
	assert.Equal(t, "App update", m.Title)
	require.NotNil(t, m.SentAt)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "tok-d1", sender.sent[0].Token)
	assert.Equal(t, "system", sender.sent[0].Data["type"])
	assert.NotContains(t, sender.sent[0].Data, "ride_id")
	assert.Contains(t, store.sent, m.ID)

	// No device: stored, not sent.
	m, err = svc.SendSystem(ctx, SystemCommand{ReceiverID: "d2", Subject: "Hi", Message: "Welcome"})
	require.NoError(t, err)
	assert.Nil(t, m.SentAt)
	assert.Len(t, store.msgs, 2)

	// Push failure: stored, not sent, no error.
	sender.err = errors.New("unavailable")
	m, err = svc.SendSystem(ctx, SystemCommand{ReceiverID: "c1", Subject: "Hi", Message: "Welcome"})
	require.NoError(t, err)
	assert.Nil(t, m.SentAt)
}

func TestSendSystemRejectsBadInput(t *testing.T) {
	svc, store, _ := newNotifyService()
	ctx := context.Background()
	long := strings.Repeat("x", maxTextLen+1)

	tests := []struct {
		name string
		cmd  SystemCommand
		want error
	}{
		{"blank subject", SystemCommand{ReceiverID: "c1", Subject: " ", Message: "m"}, ErrBadRequest},
		{"blank message", SystemCommand{ReceiverID: "c1", Subject: "s"}, ErrBadRequest},
		{"long subject", SystemCommand{ReceiverID: "c1", Subject: long, Message: "m"}, ErrBadRequest},
		{"long message", SystemCommand{ReceiverID: "c1", Subject: "s", Message: long}, ErrBadRequest},
		{"unknown receiver", SystemCommand{ReceiverID: "ghost", Subject: "s", Message: "m"}, user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendSystem(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, store.msgs)
}

func TestSendBulk(t *testing.T) {
	svc, store, sender := newNotifyService()
	ctx := context.Background()

	res, err := svc.SendBulk(ctx, BulkCommand{
		ReceiverIDs: []types.ID{"c1", "d1", "c1", "d2", "ghost", ""},
		Subject:     "Holiday tariff",
		Message:     "Fares change on 1 December",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []types.ID{"d2", "ghost"}, res.Failed)
	assert.Equal(t, 4, res.Bulk.Receivers)
	require.NotNil(t, res.Bulk.SentAt)
	assert.Contains(t, store.bulkSent, res.Bulk.ID)

	require.Len(t, store.msgs, 3, "one stored message per known receiver")
	for _, m := range store.msgs {
		assert.Equal(t, KindSystem, m.Kind)
		require.NotNil(t, m.BulkID)
		assert.Equal(t, res.Bulk.ID, *m.BulkID)
	}
	assert.Len(t, sender.sent, 2)

	_, err = svc.SendBulk(ctx, BulkCommand{ReceiverIDs: []types.ID{""}, Subject: "s", Message: "m"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestFCMPusherRequiresToken(t *testing.T) {
	_, err := NewFCMPusher(&fakeSender{}).Push(context.Background(), "", &Message{RideID: "r1"})
	assert.ErrorIs(t, err, ErrNoDevice)
}
