// README: Location log store backed by PostgreSQL; rows are never updated or deleted.
package location

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"twende/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, smp *Sample) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO location_logs (user_id, lat, lng, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(smp.UserID), smp.Position.Lat, smp.Position.Lng, smp.CreatedAt,
	).Scan(&smp.ID)
}

// Between returns samples with start <= created_at < end, oldest first.
func (s *Store) Between(ctx context.Context, userID types.ID, start, end time.Time) ([]Sample, error) {
	return s.query(ctx, `
		SELECT id, user_id, lat, lng, created_at
		FROM location_logs
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC, id ASC`,
		string(userID), start, end,
	)
}

// Recent returns the newest samples first.
func (s *Store) Recent(ctx context.Context, userID types.ID, limit int) ([]Sample, error) {
	return s.query(ctx, `
		SELECT id, user_id, lat, lng, created_at
		FROM location_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		string(userID), limit,
	)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Sample, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.UserID, &smp.Position.Lat, &smp.Position.Lng, &smp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}
