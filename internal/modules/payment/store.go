// README: Payment store backed by PostgreSQL; initiation claims are compare-and-swap.
package payment

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

const paymentColumns = `id, ride_id, phone, amount, currency, status, remote_id,
	transaction_id, mpesa_code, claimed_at, created_at, updated_at`

// GetOrCreate inserts seed unless the ride already has a payment, and returns
// the stored row. created reports whether seed was inserted.
func (s *Store) GetOrCreate(ctx context.Context, seed *Payment) (*Payment, bool, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `
		INSERT INTO payments (id, ride_id, phone, amount, currency, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7)
		ON CONFLICT (ride_id) DO NOTHING
		RETURNING `+paymentColumns,
		string(seed.ID), string(seed.RideID), seed.Phone, seed.Amount.Amount, seed.Amount.Currency, seed.Status, seed.CreatedAt,
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	p, err = s.GetByRide(ctx, seed.RideID)
	return p, false, err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Payment, error) {
	return s.getWhere(ctx, "id = $1", string(id))
}

func (s *Store) GetByRide(ctx context.Context, rideID types.ID) (*Payment, error) {
	return s.getWhere(ctx, "ride_id = $1", string(rideID))
}

func (s *Store) GetByRemoteID(ctx context.Context, remoteID string) (*Payment, error) {
	return s.getWhere(ctx, "remote_id = $1", remoteID)
}

func (s *Store) getWhere(ctx context.Context, where string, arg any) (*Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// Claim marks p as initiating with its token. It fails when a remote id is
// already set or another claim younger than ttl is live.
func (s *Store) Claim(ctx context.Context, p *Payment, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, phone = $4, amount = $5, currency = $6,
		    claimed_at = $7, updated_at = $7
		WHERE id = $1
		  AND (remote_id IS NULL OR remote_id = '')
		  AND (status <> $2 OR claimed_at IS NULL OR claimed_at < $8)`,
		string(p.ID), StatusInitiating, p.TransactionID, p.Phone, p.Amount.Amount, p.Amount.Currency,
		now, now.Add(-ttl),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Update(ctx context.Context, p *Payment) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, remote_id = $3, mpesa_code = $4, claimed_at = $5, updated_at = $6
		WHERE id = $1`,
		string(p.ID), p.Status, nullable(p.RemoteID), p.MpesaCode, p.ClaimedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendResponse(ctx context.Context, r *Response) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO payment_responses (payment_id, operation, status_code, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(r.PaymentID), r.Operation, r.StatusCode, r.Body, r.CreatedAt,
	).Scan(&r.ID)
}

func (s *Store) Responses(ctx context.Context, paymentID types.ID) ([]Response, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, payment_id, operation, status_code, body, created_at
		FROM payment_responses
		WHERE payment_id = $1
		ORDER BY id ASC`, string(paymentID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Response, error) {
		var r Response
		err := row.Scan(&r.ID, &r.PaymentID, &r.Operation, &r.StatusCode, &r.Body, &r.CreatedAt)
		return r, err
	})
}

func (s *Store) AppendWebhookLog(ctx context.Context, l *WebhookLog) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO payment_response_logs (request, response, truncated, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		l.Request, l.Response, l.Truncated, l.CreatedAt,
	).Scan(&l.ID)
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var remoteID *string
	err := row.Scan(
		&p.ID, &p.RideID, &p.Phone, &p.Amount.Amount, &p.Amount.Currency, &p.Status, &remoteID,
		&p.TransactionID, &p.MpesaCode, &p.ClaimedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if remoteID != nil {
		p.RemoteID = *remoteID
	}
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
