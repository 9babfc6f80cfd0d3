package account

import (
	"github.com/google/uuid"
)

// Roles known to the points economy.
const (
	RoleEmployee     = "employee"
	RoleSupervisor   = "supervisor"
	RoleCompanyAdmin = "company_admin"
	RoleAdmin        = "admin"
	RoleSuperAdmin   = "super_admin"
)

// AdminRoles receive company-wide redemption notices.
var AdminRoles = []string{RoleAdmin, RoleCompanyAdmin}

// Account is a point-bearing user within a company.
// CompanyID is nil for platform-level super admins.
type Account struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CompanyID *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	Name      string     `db:"name" json:"name"`
	Role      string     `db:"role" json:"role"`
	Balance   int64      `db:"points_balance" json:"balance"`
}

// HasCompany reports whether the account belongs to a company.
func (a *Account) HasCompany() bool {
	return a.CompanyID != nil && *a.CompanyID != uuid.Nil
}

// InCompany reports whether the account belongs to companyID.
func (a *Account) InCompany(companyID uuid.UUID) bool {
	return a.HasCompany() && *a.CompanyID == companyID
}
