package collab

import (
	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
)

func (r *Room) aclEntry(path string) map[string]any {
	v, _ := r.doc.Map(DocPermsMap).Get(policy.NormalizePath(path))
	entry, _ := v.(map[string]any)
	return entry
}

// DocPermissions lists the explicit grants on path. Unparseable levels are
// skipped.
func (r *Room) DocPermissions(path string) map[string]model.Level {
	out := make(map[string]model.Level)
	for userID, v := range r.aclEntry(path) {
		if l, ok := model.ParseLevel(model.String(v)); ok {
			out[userID] = l
		}
	}
	return out
}

// ACL returns the explicit grant for userID on path, if any.
func (r *Room) ACL(path, userID string) (model.Level, bool) {
	v, ok := r.aclEntry(path)[userID]
	if !ok {
		return model.LevelNone, false
	}
	return model.ParseLevel(model.String(v))
}

// EffectiveLevel is userID's permission on path from role and ACL alone.
func (r *Room) EffectiveLevel(path, userID string) model.Level {
	role := r.RoleOf(userID)
	if role == model.RoleHost {
		return model.LevelManage
	}
	if l, ok := r.ACL(path, userID); ok {
		return policy.EffectiveLevel(role, &l)
	}
	return policy.EffectiveLevel(role, nil)
}

// CanViewAs requires the path to be visible to userID before looking at
// its permission level.
func (r *Room) CanViewAs(path, userID string) bool {
	return r.PathAccessFor(path, userID).OK && r.EffectiveLevel(path, userID) >= model.LevelView
}

func (r *Room) CanEditAs(path, userID string) bool {
	return r.PathAccessFor(path, userID).OK && r.EffectiveLevel(path, userID) >= model.LevelEdit
}

func (r *Room) CanView(path string) bool { return r.CanViewAs(path, r.self.UserID) }
func (r *Room) CanEdit(path string) bool { return r.CanEditAs(path, r.self.UserID) }

// SetDocPermission records an explicit level for userID on path.
func (r *Room) SetDocPermission(path, userID string, level model.Level) bool {
	if !r.requireHost("set-doc-permission") {
		return false
	}
	if path == "" || userID == "" || level < model.LevelNone || level > model.LevelManage {
		return false
	}
	r.writeACL(path, userID, level)
	return true
}

// ClearDocPermission returns userID to inheriting from their role.
func (r *Room) ClearDocPermission(path, userID string) bool {
	if !r.requireHost("clear-doc-permission") {
		return false
	}
	key := policy.NormalizePath(path)
	perms := r.doc.Map(DocPermsMap)
	r.doc.Transact(func() {
		entry := copyEntry(r.aclEntry(key))
		if _, ok := entry[userID]; !ok {
			return
		}
		delete(entry, userID)
		if len(entry) == 0 {
			perms.Delete(key)
			return
		}
		perms.Set(key, entry)
	})
	return true
}

// writeACL rewrites the per-path entry as a whole; concurrent grants on
// the same path resolve last writer wins.
func (r *Room) writeACL(path, userID string, level model.Level) {
	key := policy.NormalizePath(path)
	r.doc.Transact(func() {
		entry := copyEntry(r.aclEntry(key))
		entry[userID] = level.String()
		r.doc.Map(DocPermsMap).Set(key, entry)
	})
}

func copyEntry(entry map[string]any) map[string]any {
	out := make(map[string]any, len(entry)+1)
	for k, v := range entry {
		out[k] = v
	}
	return out
}
