// README: Ride store backed by PostgreSQL; writes are compare-and-swap on (state, version).
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"twende/internal/modules/geo"
	"twende/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Change is one ride write plus the rows that must commit with it.
type Change struct {
	Ride            *Ride
	ExpectedState   State
	ExpectedVersion int
	Commands        []Command
	Logs            []Log
	Rating          *Rating
}

const rideColumns = `id, customer_id, driver_id,
	origin_lat, origin_lng, destination_lat, destination_lng, origin_text, destination_text,
	state, version, payment_method, customer_rating, driver_rating,
	fare_amount, live_fare_amount, currency,
	driver_distance, distance, live_distance, created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Ride, l *Log) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	oLat, oLng := splitPoint(r.Origin)
	dLat, dLng := splitPoint(r.Destination)
	fare, liveFare, cur := splitMoney(r.Fare, r.LiveFare)
	_, err = tx.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		string(r.ID), string(r.CustomerID), idOrNil(r.DriverID),
		oLat, oLng, dLat, dLng, r.OriginText, r.DestinationText,
		string(r.State), r.Version, string(r.PaymentMethod), r.CustomerRating, r.DriverRating,
		fare, liveFare, cur,
		r.DriverDistance, r.Distance, r.LiveDistance, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if l != nil {
		if err := insertLog(ctx, tx, l); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// Commit writes c.Ride only if the row still has the expected state and
// version. Driver commands, log rows and the rating go in the same transaction.
func (s *Store) Commit(ctx context.Context, c Change) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r := c.Ride
	oLat, oLng := splitPoint(r.Origin)
	dLat, dLng := splitPoint(r.Destination)
	fare, liveFare, cur := splitMoney(r.Fare, r.LiveFare)
	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET driver_id = $4,
		    origin_lat = $5, origin_lng = $6, destination_lat = $7, destination_lng = $8,
		    origin_text = $9, destination_text = $10,
		    state = $11, version = version + 1, payment_method = $12,
		    customer_rating = $13, driver_rating = $14,
		    fare_amount = $15, live_fare_amount = $16, currency = $17,
		    driver_distance = $18, distance = $19, live_distance = $20,
		    updated_at = $21
		WHERE id = $1 AND state = $2 AND version = $3`,
		string(r.ID), string(c.ExpectedState), c.ExpectedVersion,
		idOrNil(r.DriverID),
		oLat, oLng, dLat, dLng,
		r.OriginText, r.DestinationText,
		string(r.State), string(r.PaymentMethod),
		r.CustomerRating, r.DriverRating,
		fare, liveFare, cur,
		r.DriverDistance, r.Distance, r.LiveDistance,
		r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	for _, cmd := range c.Commands {
		if _, err := tx.Exec(ctx, `UPDATE users SET state = $2 WHERE id = $1 AND is_driver`,
			string(cmd.DriverID), string(cmd.DriverState)); err != nil {
			return err
		}
	}
	for i := range c.Logs {
		if err := insertLog(ctx, tx, &c.Logs[i]); err != nil {
			return err
		}
	}
	if c.Rating != nil {
		if err := tx.QueryRow(ctx, `
			INSERT INTO ratings (ride_id, rater_id, grade, comments, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			string(c.Rating.RideID), string(c.Rating.RaterID), c.Rating.Grade, c.Rating.Comments, c.Rating.CreatedAt,
		).Scan(&c.Rating.ID); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.Version = c.ExpectedVersion + 1
	return nil
}

// Logs returns the ride's state history, oldest first.
func (s *Store) Logs(ctx context.Context, rideID types.ID) ([]Log, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, state, user_id, lat, lng, created_at
		FROM ride_logs
		WHERE ride_id = $1
		ORDER BY created_at ASC, id ASC`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		var userID *string
		var lat, lng *float64
		if err := rows.Scan(&l.ID, &l.RideID, &l.State, &userID, &lat, &lng, &l.CreatedAt); err != nil {
			return nil, err
		}
		if userID != nil {
			id := types.ID(*userID)
			l.UserID = &id
		}
		l.Location = joinPoint(lat, lng)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Latest returns the user's most recently created ride.
func (s *Store) Latest(ctx context.Context, userID types.ID, asDriver bool) (*Ride, error) {
	col := "customer_id"
	if asDriver {
		col = "driver_id"
	}
	r, err := scanRide(s.db.QueryRow(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE `+col+` = $1
		ORDER BY created_at DESC
		LIMIT 1`, string(userID),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) Recent(ctx context.Context, userID types.ID, asDriver bool, limit int) ([]*Ride, error) {
	col := "customer_id"
	if asDriver {
		col = "driver_id"
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE `+col+` = $1 AND state = $2
		ORDER BY created_at DESC
		LIMIT $3`, string(userID), string(StateFinalized), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertLog(ctx context.Context, tx pgx.Tx, l *Log) error {
	lat, lng := splitPoint(l.Location)
	return tx.QueryRow(ctx, `
		INSERT INTO ride_logs (ride_id, state, user_id, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(l.RideID), string(l.State), idOrNil(l.UserID), lat, lng, l.CreatedAt,
	).Scan(&l.ID)
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	var oLat, oLng, dLat, dLng *float64
	var fare, liveFare *int64
	var cur string
	var driverDistance, distance, liveDistance *geo.Distance
	err := row.Scan(
		&r.ID, &r.CustomerID, &driverID,
		&oLat, &oLng, &dLat, &dLng, &r.OriginText, &r.DestinationText,
		&r.State, &r.Version, &r.PaymentMethod, &r.CustomerRating, &r.DriverRating,
		&fare, &liveFare, &cur,
		&driverDistance, &distance, &liveDistance, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		id := types.ID(*driverID)
		r.DriverID = &id
	}
	r.Origin = joinPoint(oLat, oLng)
	r.Destination = joinPoint(dLat, dLng)
	if fare != nil {
		r.Fare = &types.Money{Amount: *fare, Currency: cur}
	}
	if liveFare != nil {
		r.LiveFare = &types.Money{Amount: *liveFare, Currency: cur}
	}
	r.DriverDistance = driverDistance
	r.Distance = distance
	r.LiveDistance = liveDistance
	return &r, nil
}

func splitPoint(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func joinPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func splitMoney(fare, liveFare *types.Money) (*int64, *int64, string) {
	cur := types.DefaultCurrency
	var f, lf *int64
	if fare != nil {
		v := fare.Amount
		f = &v
		if fare.Currency != "" {
			cur = fare.Currency
		}
	}
	if liveFare != nil {
		v := liveFare.Amount
		lf = &v
	}
	return f, lf, cur
}

func idOrNil(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
