package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
	"github.com/solarvest/platform/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema rolls back every migration and applies them again.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ms, err := repository.LoadMigrations(migrations.FS)
	if err != nil {
		return err
	}
	repo := repository.NewWithPool(pool)
	if _, err := repo.MigrateDown(ctx, ms, len(ms), DiscardLogger()); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if _, err := repo.MigrateUp(ctx, ms, DiscardLogger()); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// NewTestRepository connects to TEST_DATABASE_URL, serializes with other DB
// tests and resets the schema. Skips when the variable is unset.
func NewTestRepository(t *testing.T) (context.Context, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := RequireEnv(t, "TEST_DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, repository.NewWithPool(pool)
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// NewTestUser creates an active user with sensible defaults.
func NewTestUser(t testing.TB, tenantID string, role model.Role) *model.User {
	t.Helper()
	now := time.Now().UTC()
	id := UniqueID("usr")
	return &model.User{
		ID:           id,
		TenantID:     tenantID,
		Email:        id + "@example.com",
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, tenantID, userID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:            UniqueID("key"),
		TenantID:      tenantID,
		UserID:        userID,
		KeyHash:       UniqueID("hash"),
		KeyPrefix:     "a1b2c3",
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierStandard,
		Name:          "Test Key",
		CreatedAt:     now,
	}
}

// NewTestInvestor creates an active, KYC-verified investor.
func NewTestInvestor(t testing.TB, tenantID string) *model.Investor {
	t.Helper()
	now := time.Now().UTC()
	id := UniqueID("inv")
	return &model.Investor{
		ID:          id,
		TenantID:    tenantID,
		FirstName:   "Ada",
		LastName:    "Investor",
		Email:       id + "@example.com",
		Type:        model.InvestorIndividual,
		Status:      model.InvestorActive,
		KYCStatus:   model.KYCVerified,
		RiskProfile: model.RiskModerate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
