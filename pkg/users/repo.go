package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentmarket/pkg/models"
)

var ErrUserNotFound = fmt.Errorf("user %w", models.ErrNotFound)

type UserRepository interface {
	CreateUser(ctx context.Context, u models.User, passwordHash string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (string, string, error)
	GetSignature(ctx context.Context, id string) (string, error)
	UpdateSignature(ctx context.Context, id, signature string) error
}

type postgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) UserRepository {
	return &postgresUserRepository{pool: pool}
}

const userColumns = `id::text, name, email, role, phone, address, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Phone, &u.Address, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func (r *postgresUserRepository) CreateUser(ctx context.Context, u models.User, passwordHash string) (models.User, error) {
	query := `INSERT INTO users (id, name, email, role, password_hash, phone, address, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
              RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, u.ID, u.Name, u.Email, string(u.Role), passwordHash, u.Phone, u.Address))
}

func (r *postgresUserRepository) GetUserByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *postgresUserRepository) GetUserAuthByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := r.pool.QueryRow(ctx, `SELECT id::text, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}
	return id, hash, nil
}

func (r *postgresUserRepository) GetSignature(ctx context.Context, id string) (string, error) {
	var signature string
	err := r.pool.QueryRow(ctx, `SELECT signature FROM users WHERE id = $1`, id).Scan(&signature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return signature, nil
}

func (r *postgresUserRepository) UpdateSignature(ctx context.Context, id, signature string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET signature = $2 WHERE id = $1`, id, signature)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
