// README: Ride, system, and bulk message store backed by PostgreSQL.
package notify

import (
	"context"
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

// Create inserts m into the table for its kind. A titled ride message for a
// ride, state and receiver already stored yields ErrDuplicate.
func (s *Store) Create(ctx context.Context, m *Message) error {
	if m.Kind == KindSystem {
		return s.db.QueryRow(ctx, `
			INSERT INTO system_messages (bulk_id, subject, message, receiver_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			m.BulkID, m.Title, m.Body, string(m.ReceiverID), m.CreatedAt,
		).Scan(&m.ID)
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO ride_messages (ride_id, ride_state, title, message, receiver_id, sound, notify_helpdesk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		string(m.RideID), string(m.RideState), m.Title, m.Body, string(m.ReceiverID), m.Sound, m.NotifyHelpdesk, m.CreatedAt,
	).Scan(&m.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (s *Store) MarkSent(ctx context.Context, m *Message, at time.Time) error {
	table := "ride_messages"
	if m.Kind == KindSystem {
		table = "system_messages"
	}
	_, err := s.db.Exec(ctx, `UPDATE `+table+` SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, m.ID, at)
	return err
}

func (s *Store) CreateBulk(ctx context.Context, b *Bulk) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO bulk_messages (subject, message, receivers, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		b.Subject, b.Message, b.Receivers, b.CreatedAt,
	).Scan(&b.ID)
}

func (s *Store) MarkBulkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE bulk_messages SET sent_at = $2 WHERE id = $1`, id, at)
	return err
}

// ForReceiver lists the newest ride and system messages addressed to a user.
func (s *Store) ForReceiver(ctx context.Context, receiverID types.ID, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, 'ride' AS kind, ride_id, ride_state, NULL::BIGINT AS bulk_id, title, message,
			receiver_id, sound, notify_helpdesk, sent_at, created_at
		FROM ride_messages
		WHERE receiver_id = $1
		UNION ALL
		SELECT id, 'system', '', '', bulk_id, subject, message,
			receiver_id, 'default', FALSE, sent_at, created_at
		FROM system_messages
		WHERE receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, string(receiverID), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.Kind, &m.RideID, &m.RideState, &m.BulkID, &m.Title, &m.Body,
			&m.ReceiverID, &m.Sound, &m.NotifyHelpdesk, &m.SentAt, &m.CreatedAt)
		return m, err
	})
}
