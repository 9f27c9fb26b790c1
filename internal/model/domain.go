package model

type Role string

const (
	RoleViewer   Role = "VIEWER"
	RoleOperator Role = "OPERATOR"
)

// Principal is the authenticated caller of the operational API.
type Principal struct {
	Subject string
	Role    Role
}

func (p Principal) CanRead() bool {
	return p.Role == RoleViewer || p.Role == RoleOperator
}

// CanOperate allows destructive maintenance such as detection retention.
func (p Principal) CanOperate() bool {
	return p.Role == RoleOperator
}
