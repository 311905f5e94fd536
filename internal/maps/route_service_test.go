package maps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"twende/internal/types"
)

func TestLatLngFormatting(t *testing.T) {
	assert.Equal(t, "-1.292100,36.821900", latLng(types.Point{Lat: -1.2921, Lng: 36.8219}))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 min", humanDuration(20*time.Second))
	assert.Equal(t, "12 mins", humanDuration(11*time.Minute+40*time.Second))
}
