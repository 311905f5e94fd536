// README: Error log store backed by PostgreSQL; rows are never updated or deleted.
package errorlog

import (
	"context"
	"errors"
	"strings"

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

func (s *Store) Append(ctx context.Context, e *Entry) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO error_logs (ride_id, user_id, token, level, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		nullableID(e.RideID), nullableID(e.UserID), e.Token, e.Level, e.Message, e.Data, e.CreatedAt,
	).Scan(&e.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		if strings.Contains(pgErr.ConstraintName, "user_id") {
			return ErrUnknownUser
		}
		return ErrUnknownRide
	}
	return err
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, user_id, token, level, message, data, created_at
		FROM error_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var rideID, userID *string
		if err := rows.Scan(&e.ID, &rideID, &userID, &e.Token, &e.Level, &e.Message, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RideID = toID(rideID)
		e.UserID = toID(userID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableID(id *types.ID) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := string(*id)
	return &v
}

func toID(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
