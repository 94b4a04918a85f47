package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/peekop/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveOrder(o *models.Order) error {
	var dropLat, dropLng sql.NullFloat64
	if o.Dropoff != nil {
		dropLat = sql.NullFloat64{Float64: o.Dropoff.Lat, Valid: true}
		dropLng = sql.NullFloat64{Float64: o.Dropoff.Lng, Valid: true}
	}
	_, err := p.db.Exec(`INSERT INTO orders(id, kind, mode, state, requester_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, note, urgency, passenger_count, special_requests, direct_provider_id, created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.Kind, o.Mode, o.State, o.RequesterID, o.Pickup.Lat, o.Pickup.Lng, dropLat, dropLng, o.Note, o.Urgency, o.PassengerCount, o.SpecialRequests, o.DirectProvider, o.CreatedAt)
	return err
}

func (p *PostgresStore) UpdateOrder(o *models.Order) error {
	var providerID sql.NullInt64
	if o.Assigned != nil {
		providerID = sql.NullInt64{Int64: o.Assigned.ID, Valid: true}
	}
	var completedAt sql.NullTime
	if o.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *o.CompletedAt, Valid: true}
	}
	_, err := p.db.Exec(`UPDATE orders SET state=$1, assigned_provider_id=$2, final_fare=$3, completed_at=$4, updated_at=$5 WHERE id=$6`,
		o.State, providerID, o.FinalFare, completedAt, time.Now(), o.ID)
	return err
}

func (p *PostgresStore) SaveOffer(of *models.Offer) error {
	_, err := p.db.Exec(`INSERT INTO offers(id, order_id, provider_id, provider_name, provider_photo, provider_rating, amount, eta_minutes, note, created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		of.ID, of.OrderID, of.Provider.ID, of.Provider.Name, of.Provider.Photo, of.Provider.Rating, of.Amount, of.ETAMinutes, of.Note, of.CreatedAt)
	return err
}
