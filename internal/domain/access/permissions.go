package access

import (
	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/account"
)

// Permission represents a points-economy permission
type Permission string

const (
	PermGrantPoints         Permission = "points.grant"
	PermCompliment          Permission = "points.compliment"
	PermRedeem              Permission = "points.redeem"
	PermCompanyTransactions Permission = "transactions.company"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[string][]Permission{
	account.RoleSuperAdmin: {
		PermGrantPoints, PermCompanyTransactions,
	},
	account.RoleAdmin: {
		PermGrantPoints, PermCompliment, PermRedeem, PermCompanyTransactions,
	},
	account.RoleCompanyAdmin: {
		PermGrantPoints, PermCompliment, PermRedeem, PermCompanyTransactions,
	},
	account.RoleSupervisor: {
		PermGrantPoints, PermCompliment, PermRedeem,
	},
	account.RoleEmployee: {
		PermCompliment, PermRedeem,
	},
}

// HasPermission checks if role carries perm
func HasPermission(role string, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// CanActOnCompany reports whether an actor may touch data of target's company.
// Super admins act across companies; everyone else only within their own.
func CanActOnCompany(role string, actorCompany uuid.UUID, target *account.Account) bool {
	if role == account.RoleSuperAdmin {
		return true
	}
	return actorCompany != uuid.Nil && target.InCompany(actorCompany)
}
