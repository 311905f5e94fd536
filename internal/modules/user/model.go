// README: User/driver account and the driver availability states.
package user

import (
	"time"

	"twende/internal/types"
)

type State string

const (
	StateAvailable     State = "available"
	StateRequested     State = "requested"
	StateDriving       State = "driving"
	StateUnavailable   State = "unavailable"
	StateNotResponding State = "not-responding"
)

func (s State) Valid() bool {
	switch s {
	case StateAvailable, StateRequested, StateDriving, StateUnavailable, StateNotResponding:
		return true
	}
	return false
}

type User struct {
	ID            types.ID     `json:"id"`
	Username      string       `json:"username"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Phone         string       `json:"phone"`
	IsDriver      bool         `json:"is_driver"`
	State         State        `json:"state"`
	Position      *types.Point `json:"position,omitempty"`
	PushToken     string       `json:"-"`
	LicenseNumber string       `json:"license_number,omitempty"`
	LastPing      *time.Time   `json:"last_ping,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (u *User) DisplayName() string {
	if u.FirstName == "" {
		return u.Username
	}
	return u.FirstName
}
