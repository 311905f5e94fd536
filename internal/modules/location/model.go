// README: Append-only location sample owned by a user.
package location

import (
	"time"

	"twende/internal/types"
)

type Sample struct {
	ID        int64       `json:"id"`
	UserID    types.ID    `json:"user_id"`
	Position  types.Point `json:"position"`
	CreatedAt time.Time   `json:"created_at"`
}
