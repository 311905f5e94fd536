package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/logging"
)

var standard = Rate{BaseFare: 10000, PerKm: 5000, MinimumFare: 15000, Currency: "KES"}

func TestRateFare(t *testing.T) {
	tests := []struct {
		name   string
		meters int
		want   int64
	}{
		{"zero distance hits minimum", 0, 15000},
		{"negative treated as zero", -50, 15000},
		{"short trip hits minimum", 500, 15000},
		{"exactly minimum", 1000, 15000},
		{"rounded up to whole shilling", 1001, 15100},
		{"150m route", 150, 15000},
		{"5.2km", 5200, 36000},
		{"12.345km", 12345, 71800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := standard.Fare(tt.meters)
			assert.Equal(t, tt.want, got.Amount)
			assert.Equal(t, "KES", got.Currency)
		})
	}
}

func TestRateFareMonotonic(t *testing.T) {
	prev := standard.Fare(0).Amount
	for m := 0; m <= 50000; m += 37 {
		got := standard.Fare(m).Amount
		if got < prev {
			t.Fatalf("fare decreased at %dm: %d < %d", m, got, prev)
		}
		prev = got
	}
}

type fakeRates struct {
	rate Rate
	err  error
	set  []Rate
}

func (f *fakeRates) GetRate(context.Context, string) (Rate, error) { return f.rate, f.err }
func (f *fakeRates) UpsertRate(_ context.Context, r Rate) error {
	f.set = append(f.set, r)
	return nil
}

func TestServiceRateFallback(t *testing.T) {
	ctx := context.Background()

	svc := NewService(nil, standard, logging.Discard())
	assert.Equal(t, int64(5000), svc.Rate(ctx).PerKm)

	svc = NewService(&fakeRates{err: ErrNotFound}, standard, logging.Discard())
	assert.Equal(t, int64(15000), svc.Fare(ctx, 0).Amount)

	svc = NewService(&fakeRates{err: errors.New("db down")}, standard, logging.Discard())
	assert.Equal(t, DefaultRateName, svc.Rate(ctx).Name)

	override := Rate{Name: DefaultRateName, BaseFare: 0, PerKm: 10000, MinimumFare: 0, Currency: "KES"}
	svc = NewService(&fakeRates{rate: override}, standard, logging.Discard())
	assert.Equal(t, int64(20000), svc.Fare(ctx, 2000).Amount)
}

func TestServiceSetRate(t *testing.T) {
	store := &fakeRates{}
	svc := NewService(store, standard, logging.Discard())

	_, err := svc.SetRate(context.Background(), Rate{PerKm: -1, Currency: "KES"})
	assert.ErrorIs(t, err, ErrBadRequest)

	r, err := svc.SetRate(context.Background(), Rate{BaseFare: 5000, PerKm: 6000, Currency: "KES"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRateName, r.Name)
	require.Len(t, store.set, 1)
}
