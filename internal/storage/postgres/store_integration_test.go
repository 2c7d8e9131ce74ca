package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// TestStoreIntegration exercises migrations, seeding and queries against a live database.
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_POSTGRES_INTEGRATION") != "true" {
		t.Skip("set RUN_POSTGRES_INTEGRATION=true to run this integration test")
	}
	for _, path := range []string{".env", "../.env", "../../.env", "../../../.env"} {
		_ = godotenv.Overload(path)
	}
	dbURL := os.Getenv("DATABASE_URL")
	require.NotEmpty(t, dbURL, "DATABASE_URL is required")

	ctx := context.Background()
	store, err := NewStore(ctx, dbURL)
	require.NoError(t, err)
	defer store.Close()

	// seeding twice must be harmless
	require.NoError(t, store.seedRoles(ctx, models.DefaultRoles()))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	byName := map[string]models.Role{}
	for _, role := range roles {
		byName[role.Name] = role
	}
	for name, perms := range models.RoleTable {
		role, ok := byName[name]
		require.True(t, ok, "role %s missing", name)
		assert.Subset(t, role.Permissions, perms)
	}

	require.NoError(t, store.RecordAuthEvent(ctx, models.AuthEvent{
		Type:       models.EventLoginFailed,
		Email:      "integration@example.com",
		Category:   "invalid_credentials",
		OccurredAt: time.Now().UTC(),
	}))
}
