package httpapi

import "kiosco/backend/internal/domain"

type Action string

const (
	ActionShiftOperate Action = "shift:operate"
	// ActionShiftAnyOperator lets the caller open or inspect shifts of other operators.
	ActionShiftAnyOperator Action = "shift:any-operator"
	ActionShiftRead        Action = "shift:read"
	ActionCashWrite        Action = "cash:write"
	ActionCashRead         Action = "cash:read"
	ActionSaleWrite        Action = "sale:write"
	ActionSaleRead         Action = "sale:read"
	ActionCatalogRead      Action = "catalog:read"
	ActionCatalogWrite     Action = "catalog:write"
	ActionConfigRead       Action = "config:read"
	ActionConfigWrite      Action = "config:write"
	ActionUserManage       Action = "user:manage"
	ActionAuditRead        Action = "audit:read"
)

// AuthorizationPolicy decides whether an authenticated actor may perform an action.
type AuthorizationPolicy interface {
	Allow(actor domain.Actor, action Action) bool
}

// RolePolicy grants actions per role. Roles listed in Unrestricted may do anything.
type RolePolicy struct {
	Unrestricted []string
	Grants       map[string][]Action
}

func DefaultRolePolicy() RolePolicy {
	return RolePolicy{
		Unrestricted: []string{domain.RoleAdmin},
		Grants: map[string][]Action{
			domain.RoleSeller: {
				ActionShiftOperate,
				ActionShiftRead,
				ActionCashWrite,
				ActionCashRead,
				ActionSaleWrite,
				ActionSaleRead,
				ActionCatalogRead,
				ActionConfigRead,
			},
		},
	}
}

func (p RolePolicy) Allow(actor domain.Actor, action Action) bool {
	for _, role := range p.Unrestricted {
		if actor.Role == role {
			return true
		}
	}
	for _, granted := range p.Grants[actor.Role] {
		if granted == action {
			return true
		}
	}
	return false
}
