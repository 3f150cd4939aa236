package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentmarket/pkg/models"
)

var (
	ErrContractNotFound = fmt.Errorf("contract %w", models.ErrNotFound)
	ErrAlreadySigned    = errors.New("contract is already signed")
)

type ContractRepository interface {
	// CreateContract inserts the contract unless the offer already has one and
	// returns whichever row is stored.
	CreateContract(ctx context.Context, c models.Contract) (models.Contract, error)
	GetContractByID(ctx context.Context, id string) (models.Contract, error)
	GetContractByOffer(ctx context.Context, offerID string) (models.Contract, error)
	GetContractByRequest(ctx context.Context, requestID string) (models.Contract, error)
	MarkSigned(ctx context.Context, id string, at time.Time) (models.Contract, error)
}

type postgresContractRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresContractRepository(pool *pgxpool.Pool) ContractRepository {
	return &postgresContractRepository{pool: pool}
}

const contractColumns = `id::text, contract_number, offer_id::text, rental_request_id::text, generated_at, signed_at, pdf_url`

func scanContract(row pgx.Row) (models.Contract, error) {
	var c models.Contract
	if err := row.Scan(&c.ID, &c.ContractNumber, &c.OfferID, &c.RentalRequestID, &c.GeneratedAt, &c.SignedAt, &c.PDFURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contract{}, ErrContractNotFound
		}
		return models.Contract{}, err
	}
	return c, nil
}

func (r *postgresContractRepository) CreateContract(ctx context.Context, c models.Contract) (models.Contract, error) {
	query := `INSERT INTO contracts (id, contract_number, offer_id, rental_request_id, generated_at, pdf_url)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (offer_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, c.ID, c.ContractNumber, c.OfferID, c.RentalRequestID, c.GeneratedAt, c.PDFURL); err != nil {
		return models.Contract{}, err
	}
	return r.GetContractByOffer(ctx, c.OfferID)
}

func (r *postgresContractRepository) GetContractByID(ctx context.Context, id string) (models.Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
}

func (r *postgresContractRepository) GetContractByOffer(ctx context.Context, offerID string) (models.Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE offer_id = $1`, offerID))
}

func (r *postgresContractRepository) GetContractByRequest(ctx context.Context, requestID string) (models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE rental_request_id = $1 ORDER BY generated_at DESC LIMIT 1`
	return scanContract(r.pool.QueryRow(ctx, query, requestID))
}

func (r *postgresContractRepository) MarkSigned(ctx context.Context, id string, at time.Time) (models.Contract, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE contracts SET signed_at = $2 WHERE id = $1 AND signed_at IS NULL`, id, at)
	if err != nil {
		return models.Contract{}, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetContractByID(ctx, id); err != nil {
			return models.Contract{}, err
		}
		return models.Contract{}, ErrAlreadySigned
	}
	return r.GetContractByID(ctx, id)
}
