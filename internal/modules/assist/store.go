// README: Postgres-backed monthly allowance for assistant requests.
package assist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"twende/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Use atomically takes one request from the user's allowance for period,
// refilling to quota first when the stored period is older. It returns the
// remaining count, or ErrQuotaExceeded when nothing is left.
func (s *Store) Use(ctx context.Context, userID types.ID, period string, quota int) (int, error) {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO assist_quota (user_id, remaining, period, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, quota, period, time.Now().UTC()); err != nil {
		return 0, err
	}

	var remaining int
	err := s.db.QueryRow(ctx, `
		UPDATE assist_quota SET
			remaining = CASE WHEN period < $2 THEN $3 - 1 ELSE remaining - 1 END,
			period = $2,
			updated_at = $4
		WHERE user_id = $1 AND (period < $2 OR remaining > 0)
		RETURNING remaining
	`, userID, period, quota, time.Now().UTC()).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrQuotaExceeded
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
