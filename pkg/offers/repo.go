package offers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentmarket/pkg/models"
)

var (
	ErrOfferNotFound = fmt.Errorf("offer %w", models.ErrNotFound)
	// ErrStatusChanged is returned when the stored status no longer matches the expected one.
	ErrStatusChanged = errors.New("offer status was changed by another request")
)

type OfferRepository interface {
	CreateOffer(ctx context.Context, o models.Offer) (models.Offer, error)
	GetOfferByID(ctx context.Context, id string) (models.Offer, error)
	GetLatestOfferForRequest(ctx context.Context, requestID string) (models.Offer, error)
	ListOffersForUser(ctx context.Context, userID string) ([]models.Offer, error)
	UpdateStatus(ctx context.Context, id string, from, to models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error)
}

type postgresOfferRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOfferRepository(pool *pgxpool.Pool) OfferRepository {
	return &postgresOfferRepository{pool: pool}
}

const offerColumns = `o.id::text, o.rental_request_id::text, o.landlord_id::text, o.tenant_id::text,
       o.rent_amount, o.deposit_amount, o.lease_duration, o.available_from,
       o.property_address, o.property_type, o.property_size, o.rooms, o.description,
       o.status, o.preferred_payment_gateway, o.created_at, o.updated_at,
       l.name, l.email, l.phone, l.address, l.signature,
       t.name, t.email, t.phone, t.address, t.signature`

const offerFrom = `FROM offers o
       JOIN users l ON l.id = o.landlord_id
       JOIN users t ON t.id = o.tenant_id`

func scanOffer(row pgx.Row) (models.Offer, error) {
	var (
		o       models.Offer
		status  string
		gateway *string
		l, t    models.Party
	)
	err := row.Scan(&o.ID, &o.RentalRequestID, &o.LandlordID, &o.TenantID,
		&o.RentAmount, &o.DepositAmount, &o.LeaseDuration, &o.AvailableFrom,
		&o.PropertyAddress, &o.PropertyType, &o.PropertySize, &o.Rooms, &o.Description,
		&status, &gateway, &o.CreatedAt, &o.UpdatedAt,
		&l.Name, &l.Email, &l.Phone, &l.Address, &l.Signature,
		&t.Name, &t.Email, &t.Phone, &t.Address, &t.Signature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Offer{}, ErrOfferNotFound
		}
		return models.Offer{}, err
	}

	o.Status = models.OfferStatus(status)
	if gateway != nil {
		g := models.PaymentGateway(*gateway)
		o.PreferredPaymentGateway = &g
	}
	l.ID, t.ID = o.LandlordID, o.TenantID
	o.Landlord, o.Tenant = &l, &t
	return o, nil
}

func (r *postgresOfferRepository) CreateOffer(ctx context.Context, o models.Offer) (models.Offer, error) {
	query := `INSERT INTO offers (id, rental_request_id, landlord_id, tenant_id, rent_amount, deposit_amount,
                                  lease_duration, available_from, property_address, property_type,
                                  property_size, rooms, description, status)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'PENDING')`

	if _, err := r.pool.Exec(ctx, query, o.ID, o.RentalRequestID, o.LandlordID, o.TenantID, o.RentAmount,
		o.DepositAmount, o.LeaseDuration, o.AvailableFrom, o.PropertyAddress, o.PropertyType,
		o.PropertySize, o.Rooms, o.Description); err != nil {
		return models.Offer{}, err
	}
	return r.GetOfferByID(ctx, o.ID)
}

func (r *postgresOfferRepository) GetOfferByID(ctx context.Context, id string) (models.Offer, error) {
	return scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` `+offerFrom+` WHERE o.id = $1`, id))
}

// GetLatestOfferForRequest prefers the offer that progressed furthest, then the newest.
func (r *postgresOfferRepository) GetLatestOfferForRequest(ctx context.Context, requestID string) (models.Offer, error) {
	query := `SELECT ` + offerColumns + ` ` + offerFrom + `
              WHERE o.rental_request_id = $1
              ORDER BY CASE o.status WHEN 'PAID' THEN 0 WHEN 'ACCEPTED' THEN 1 WHEN 'PENDING' THEN 2 ELSE 3 END,
                       o.updated_at DESC
              LIMIT 1`
	return scanOffer(r.pool.QueryRow(ctx, query, requestID))
}

func (r *postgresOfferRepository) ListOffersForUser(ctx context.Context, userID string) ([]models.Offer, error) {
	query := `SELECT ` + offerColumns + ` ` + offerFrom + `
              WHERE o.tenant_id = $1 OR o.landlord_id = $1
              ORDER BY o.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		// Signatures are only needed for contract rendering.
		o.Landlord.Signature, o.Tenant.Signature = "", ""
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *postgresOfferRepository) UpdateStatus(ctx context.Context, id string, from, to models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error) {
	var gw *string
	if gateway != nil {
		s := string(*gateway)
		gw = &s
	}

	query := `UPDATE offers
              SET status = $3,
                  preferred_payment_gateway = COALESCE($4, preferred_payment_gateway),
                  updated_at = NOW()
              WHERE id = $1 AND status = $2`

	cmd, err := r.pool.Exec(ctx, query, id, string(from), string(to), gw)
	if err != nil {
		return models.Offer{}, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetOfferByID(ctx, id); err != nil {
			return models.Offer{}, err
		}
		return models.Offer{}, ErrStatusChanged
	}
	return r.GetOfferByID(ctx, id)
}
