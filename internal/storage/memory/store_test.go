package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

func TestListRolesReturnsDefaultTable(t *testing.T) {
	store := NewStore()
	roles, err := store.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, len(models.RoleTable))
	for _, role := range roles {
		assert.ElementsMatch(t, models.RoleTable[role.Name], role.Permissions)
		assert.NotEmpty(t, role.Description)
	}

	roles[0].Permissions[0] = "TAMPERED"
	again, _ := store.ListRoles(context.Background())
	assert.NotEqual(t, "TAMPERED", again[0].Permissions[0])
}

func TestRecordAuthEventIsBounded(t *testing.T) {
	store := NewStore()
	for i := 0; i < maxEvents+5; i++ {
		require.NoError(t, store.RecordAuthEvent(context.Background(), models.AuthEvent{
			Type:       models.EventLoginFailed,
			Email:      fmt.Sprintf("user%d@example.com", i),
			OccurredAt: time.Now(),
		}))
	}
	events := store.Events()
	require.Len(t, events, maxEvents)
	assert.Equal(t, "user5@example.com", events[0].Email)
}
