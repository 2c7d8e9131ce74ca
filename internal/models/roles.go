package models

import "sort"

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleCompliance = "COMPLIANCE_OFFICER"
	RoleFinance    = "FINANCE_OFFICER"
	RoleSupport    = "SUPPORT_AGENT"
	RoleViewer     = "VIEWER"
)

const (
	PermViewUsers          = "VIEW_USERS"
	PermManageUsers        = "MANAGE_USERS"
	PermViewCustomers      = "VIEW_CUSTOMERS"
	PermViewTransactions   = "VIEW_TRANSACTIONS"
	PermReverseTransaction = "REVERSE_TRANSACTION"
	PermViewMerchants      = "VIEW_MERCHANTS"
	PermManageMerchants    = "MANAGE_MERCHANTS"
	PermViewKYC            = "VIEW_KYC"
	PermApproveKYC         = "APPROVE_KYC"
	PermViewCards          = "VIEW_CARDS"
	PermManageCards        = "MANAGE_CARDS"
	PermViewAnalytics      = "VIEW_ANALYTICS"
	PermViewSystemLogs     = "VIEW_SYSTEM_LOGS"
	PermViewRoles          = "VIEW_ROLES"
	PermCreateRole         = "CREATE_ROLE"
	PermUpdateRole         = "UPDATE_ROLE"
	PermDeleteRole         = "DELETE_ROLE"
	PermAssignPermissions  = "ASSIGN_PERMISSIONS"
	PermUpdateSettings     = "UPDATE_SETTINGS"
	PermSystemConfigure    = "SYSTEM_CONFIGURE"
)

// Role is a catalogue entry shown to operators.
type Role struct {
	Name        string   `json:"role"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// AllPermissions lists every permission known to the admin console.
var AllPermissions = []string{
	PermViewUsers, PermManageUsers, PermViewCustomers,
	PermViewTransactions, PermReverseTransaction,
	PermViewMerchants, PermManageMerchants,
	PermViewKYC, PermApproveKYC,
	PermViewCards, PermManageCards,
	PermViewAnalytics, PermViewSystemLogs,
	PermViewRoles, PermCreateRole, PermUpdateRole, PermDeleteRole, PermAssignPermissions,
	PermUpdateSettings, PermSystemConfigure,
}

// RoleTable is the default role to permission mapping. Authorization decisions
// use the permission list carried by the session, never this table.
var RoleTable = map[string][]string{
	RoleSuperAdmin: AllPermissions,
	RoleAdmin: {
		PermViewUsers, PermManageUsers, PermViewCustomers,
		PermViewTransactions, PermReverseTransaction,
		PermViewMerchants, PermManageMerchants,
		PermViewKYC, PermApproveKYC,
		PermViewCards, PermManageCards,
		PermViewAnalytics, PermViewSystemLogs,
		PermViewRoles, PermUpdateSettings,
	},
	RoleCompliance: {PermViewCustomers, PermViewTransactions, PermViewKYC, PermApproveKYC, PermViewSystemLogs},
	RoleFinance:    {PermViewTransactions, PermReverseTransaction, PermViewMerchants, PermViewAnalytics},
	RoleSupport:    {PermViewUsers, PermViewCustomers, PermViewTransactions, PermViewCards},
	RoleViewer:     {PermViewTransactions, PermViewMerchants, PermViewAnalytics},
}

var roleDescriptions = map[string]string{
	RoleSuperAdmin: "Full platform access",
	RoleAdmin:      "Back-office administrator",
	RoleCompliance: "KYC and compliance review",
	RoleFinance:    "Settlement and reversals",
	RoleSupport:    "Customer support",
	RoleViewer:     "Read-only access",
}

// DefaultRoles returns the role table as catalogue entries sorted by name.
func DefaultRoles() []Role {
	roles := make([]Role, 0, len(RoleTable))
	for name, perms := range RoleTable {
		cp := make([]string, len(perms))
		copy(cp, perms)
		roles = append(roles, Role{Name: name, Description: roleDescriptions[name], Permissions: cp})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}
