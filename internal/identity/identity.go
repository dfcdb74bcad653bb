// Package identity resolves tenant users for role-targeted actions.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Well-known roles used by action targeting.
const (
	RoleAdmin    = "ADMIN"
	RoleSales    = "SALES"
	RoleFinance  = "FINANCE"
	RoleOps      = "OPS"
	RoleOperator = "OPERATOR"
)

// User is a tenant member.
type User struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Email    string
	Name     string
	Role     string
	IsActive bool
}

// Resolver finds users by role. Absence of a role holder is a not-found
// error, never a silent no-op.
type Resolver interface {
	FindActiveUserByRole(ctx context.Context, tenantID uuid.UUID, role string) (*User, error)
}
