// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"twende/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const userColumns = `id, username, first_name, last_name, phone, is_driver, state,
	pos_lat, pos_lng, push_token, license_number, last_ping, created_at`

func (s *Store) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, first_name, last_name, phone, is_driver, state, push_token, license_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(u.ID), u.Username, u.FirstName, u.LastName, u.Phone, u.IsDriver,
		string(u.State), u.PushToken, u.LicenseNumber, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetMany returns the users that exist among ids, in no particular order.
func (s *Store) GetMany(ctx context.Context, ids []types.ID) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProfile(ctx context.Context, u *User) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, phone = $4, push_token = $5, license_number = $6
		WHERE id = $1`,
		string(u.ID), u.FirstName, u.LastName, u.Phone, u.PushToken, u.LicenseNumber,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET pos_lat = $2, pos_lng = $3, last_ping = $4 WHERE id = $1`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetState(ctx context.Context, id types.ID, state State) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET state = $2 WHERE id = $1`, string(id), string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Rating averages the grades a user received: drivers are graded by customers
// (customer_rating), customers by drivers (driver_rating). Zero means unrated.
func (s *Store) Rating(ctx context.Context, id types.ID, isDriver bool) (float64, error) {
	q := `SELECT AVG(driver_rating) FROM rides WHERE customer_id = $1 AND driver_rating > 0`
	if isDriver {
		q = `SELECT AVG(customer_rating) FROM rides WHERE driver_id = $1 AND customer_rating > 0`
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRow(ctx, q, string(id)).Scan(&avg); err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var lat, lng sql.NullFloat64
	var lastPing sql.NullTime
	err := row.Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.IsDriver, &u.State,
		&lat, &lng, &u.PushToken, &u.LicenseNumber, &lastPing, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		u.Position = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if lastPing.Valid {
		t := lastPing.Time
		u.LastPing = &t
	}
	return &u, nil
}
