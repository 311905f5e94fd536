package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoneyString(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{Money{Amount: 15000, Currency: "KES"}, "KES 150.00"},
		{Money{Amount: 105}, "KES 1.05"},
		{Money{Amount: 0, Currency: "USD"}, "USD 0.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.String())
	}
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: -1.2921, Lng: 36.8219}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
