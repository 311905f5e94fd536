// README: Client error report; append-only, optionally tied to a ride.
package errorlog

import (
	"time"

	"twende/internal/types"
)

type Entry struct {
	ID        int64     `json:"id"`
	RideID    *types.ID `json:"ride_id,omitempty"`
	UserID    *types.ID `json:"user_id,omitempty"`
	Token     string    `json:"token,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
