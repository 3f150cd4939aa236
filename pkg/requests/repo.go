package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentmarket/pkg/models"
)

var ErrRequestNotFound = fmt.Errorf("rental request %w", models.ErrNotFound)

type RequestRepository interface {
	CreateRequest(ctx context.Context, input models.RentalRequest) (models.RentalRequest, error)
	GetRequestByID(ctx context.Context, id string) (models.RentalRequest, error)
	ListRequestsByTenant(ctx context.Context, tenantID string) ([]models.RentalRequest, error)
	ListOpenRequests(ctx context.Context, city string, limit, offset int) ([]models.RentalRequest, int64, error)
	CloseRequest(ctx context.Context, id string) error
}

type postgresRequestRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &postgresRequestRepository{pool: pool}
}

const requestColumns = `id::text, tenant_id::text, city, budget, move_in_date, description, is_active, created_at`

func scanRequest(row pgx.Row) (models.RentalRequest, error) {
	var r models.RentalRequest
	if err := row.Scan(&r.ID, &r.TenantID, &r.City, &r.Budget, &r.MoveInDate, &r.Description, &r.IsActive, &r.CreatedAt); err != nil {
		return models.RentalRequest{}, err
	}
	return r, nil
}

func (r *postgresRequestRepository) CreateRequest(ctx context.Context, input models.RentalRequest) (models.RentalRequest, error) {
	query := `INSERT INTO rental_requests (id, tenant_id, city, budget, move_in_date, description, is_active, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
              RETURNING ` + requestColumns

	return scanRequest(r.pool.QueryRow(ctx, query, input.ID, input.TenantID, input.City, input.Budget, input.MoveInDate, input.Description))
}

func (r *postgresRequestRepository) GetRequestByID(ctx context.Context, id string) (models.RentalRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM rental_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RentalRequest{}, ErrRequestNotFound
	}
	return req, err
}

func (r *postgresRequestRepository) ListRequestsByTenant(ctx context.Context, tenantID string) ([]models.RentalRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM rental_requests WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.RentalRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

func (r *postgresRequestRepository) ListOpenRequests(ctx context.Context, city string, limit, offset int) ([]models.RentalRequest, int64, error) {
	query := `SELECT ` + requestColumns + `
              FROM rental_requests
              WHERE is_active = TRUE AND ($1 = '' OR LOWER(city) = LOWER($1))
              ORDER BY created_at DESC
              LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, city, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]models.RentalRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	countRow := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rental_requests WHERE is_active = TRUE AND ($1 = '' OR LOWER(city) = LOWER($1))`, city)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *postgresRequestRepository) CloseRequest(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE rental_requests SET is_active = FALSE WHERE id = $1 AND is_active = TRUE", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}
