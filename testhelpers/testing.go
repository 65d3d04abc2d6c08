//go:build integration

package testhelpers

import (
	"context"
	"testing"
	"time"

	"goodnoodle/internal/models"
	"goodnoodle/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB holds a migrated database running in a throwaway container.
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func()
}

// SetupTestDB starts postgres, applies the schema and returns a pool connected to it.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("goodnoodle_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	pool, err := database.NewPool(ctx, dsn, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() {
			pool.Close()
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("Failed to terminate postgres container: %v", err)
			}
		},
	}
}

// SetupTestTenant returns a fresh team scope so tests never share rows.
func SetupTestTenant(t *testing.T) models.TenantScope {
	t.Helper()
	return models.TeamScope("T" + uuid.NewString()[:10])
}

// CreateTestUser inserts a user directly and returns it.
func CreateTestUser(t *testing.T, db *TestDB, tenantID, slackUserID string) *models.User {
	t.Helper()

	user := &models.User{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SlackUserID: slackUserID,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO users (id, tenant_id, slack_user_id, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.TenantID, user.SlackUserID, user.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}
