package policy

import "saturuang/internal/collab/model"

// RoleCeiling is the highest level a role can hold on any document.
func RoleCeiling(role model.Role) model.Level {
	switch role {
	case model.RoleHost:
		return model.LevelManage
	case model.RoleEditor:
		return model.LevelEdit
	default:
		return model.LevelView
	}
}

// EffectiveLevel combines a role with an optional per-path ACL entry. The
// ACL replaces what the role would inherit but never exceeds its ceiling.
func EffectiveLevel(role model.Role, acl *model.Level) model.Level {
	if role == model.RoleHost {
		return model.LevelManage
	}
	ceiling := RoleCeiling(role)
	inherited := ceiling
	if acl != nil {
		inherited = *acl
	}
	return min(inherited, ceiling)
}
