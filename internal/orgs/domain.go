package orgs

import "time"

// Role is the organisational role attached to a membership. Posting
// workflows check the caller's role against a fixed allowed set per document
// kind; there is no finer-grained permission mapping.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOpsManager Role = "ops_manager"
	RoleWarehouse  Role = "warehouse"
	RoleAccounting Role = "accounting"
	RoleViewer     Role = "viewer"
)

// Valid reports whether the role is one of the known organisational roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOpsManager, RoleWarehouse, RoleAccounting, RoleViewer:
		return true
	}
	return false
}

// Organization is the tenant boundary. Every document, counter and balance
// is scoped under one organization id; the posting core never mutates it.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Member links a user to an organization with a single role.
type Member struct {
	OrgID     string
	UserID    int64
	Role      Role
	CreatedAt time.Time
}

// ReadRoles is the role set allowed to read documents and balances.
var ReadRoles = []Role{RoleAdmin, RoleOpsManager, RoleWarehouse, RoleAccounting, RoleViewer}
