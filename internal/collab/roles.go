package collab

import (
	"go.uber.org/zap"

	"saturuang/internal/collab/model"
)

// HostID returns the claimed host, or "" while the room has none.
func (r *Room) HostID() string {
	v, _ := r.doc.Map(MetaMap).Get(keyHostID)
	return model.String(v)
}

func (r *Room) IsHost() bool {
	host := r.HostID()
	return host != "" && host == r.self.UserID
}

// RoleOf derives a user's role. Host status comes only from the meta
// record; a stale "host" entry in the roles map reads as viewer.
func (r *Room) RoleOf(userID string) model.Role {
	if userID == "" {
		return model.RoleViewer
	}
	if userID == r.HostID() {
		return model.RoleHost
	}
	v, _ := r.doc.Map(RolesMap).Get(userID)
	role, ok := model.ParseRole(model.String(v))
	if !ok || role == model.RoleHost {
		return model.RoleViewer
	}
	return role
}

func (r *Room) MyRole() model.Role {
	return r.RoleOf(r.self.UserID)
}

// Roles returns every explicitly assigned role with the host folded in.
func (r *Room) Roles() map[string]model.Role {
	out := make(map[string]model.Role)
	for _, id := range r.doc.Map(RolesMap).Keys() {
		out[id] = r.RoleOf(id)
	}
	if host := r.HostID(); host != "" {
		out[host] = model.RoleHost
	}
	return out
}

// ClaimHostIfAbsent makes the local user host when nobody is. Two clients
// claiming in the same merge window both succeed locally and converge on
// whichever write the document orders last.
func (r *Room) ClaimHostIfAbsent() bool {
	claimed := false
	r.doc.Transact(func() {
		if r.HostID() != "" {
			return
		}
		r.doc.Map(MetaMap).Set(keyHostID, r.self.UserID)
		r.doc.Map(RolesMap).Set(r.self.UserID, string(model.RoleHost))
		claimed = true
	})
	if claimed {
		r.log.Info("claimed host", zap.String("user", r.self.UserID))
	}
	return claimed
}

// SetMemberRole assigns editor or viewer to another participant. Host
// status cannot be granted, and neither the host nor the caller can be
// changed this way.
func (r *Room) SetMemberRole(userID string, role model.Role) bool {
	if !r.requireHost("set-member-role") {
		return false
	}
	parsed, ok := model.ParseRole(string(role))
	if !ok || parsed == model.RoleHost {
		return false
	}
	if userID == "" || userID == r.self.UserID || userID == r.HostID() {
		return false
	}
	r.doc.Map(RolesMap).Set(userID, string(parsed))
	return true
}
