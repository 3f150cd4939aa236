package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// SetupTestPool connects to DATABASE_URL_FOR_TEST and applies the schema,
// skipping the test when the variable is unset.
func SetupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping repository tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, db.ApplySchema(ctx, pool))

	t.Cleanup(pool.Close)
	return pool
}

// CreateTestUser inserts a user with the given role and returns its ID.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool, role string) string {
	t.Helper()

	suffix := nextSuffix()
	id := uuid.NewString()
	name := fmt.Sprintf("test-user-%d", suffix)
	email := fmt.Sprintf("%s-%d@example.com", name, time.Now().UnixNano())

	_, err := pool.Exec(context.Background(),
		"INSERT INTO users (id, name, email, role, password_hash) VALUES ($1, $2, $3, $4, $5)",
		id, name, email, role, "hash")
	require.NoError(t, err)
	return id
}

// CreateTestRequest inserts an active rental request for the tenant and returns its ID.
func CreateTestRequest(t *testing.T, pool *pgxpool.Pool, tenantID string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		"INSERT INTO rental_requests (id, tenant_id, city, budget, move_in_date) VALUES ($1, $2, 'Krakow', 3000, CURRENT_DATE)",
		id, tenantID)
	require.NoError(t, err)
	return id
}

// CreateTestOffer inserts an offer in the given status and returns its ID.
func CreateTestOffer(t *testing.T, pool *pgxpool.Pool, requestID, landlordID, tenantID, status string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO offers (id, rental_request_id, landlord_id, tenant_id, rent_amount, lease_duration, available_from, property_address, status)
         VALUES ($1, $2, $3, $4, 2800, 12, CURRENT_DATE, $5, $6)`,
		id, requestID, landlordID, tenantID, fmt.Sprintf("Test street %d", nextSuffix()), status)
	require.NoError(t, err)
	return id
}
