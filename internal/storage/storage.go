package storage

import (
	"context"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// RoleCatalog lists the roles shown to operators.
type RoleCatalog interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
}

// AuditLog records authentication events.
type AuditLog interface {
	RecordAuthEvent(ctx context.Context, event models.AuthEvent) error
}

// Store is the persistence surface the gateway needs.
type Store interface {
	RoleCatalog
	AuditLog
	Close()
}
