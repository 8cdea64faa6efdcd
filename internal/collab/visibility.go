package collab

import (
	"strings"

	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
	"saturuang/internal/crdt"
)

func stringList(a *crdt.Array) []string {
	values := a.ToArray()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Visibility reads the host's sharing configuration.
func (r *Room) Visibility() model.VisibilityPolicy {
	v, _ := r.doc.Map(VisibilityMap).Get(keyShareTreeEnabled)
	return model.VisibilityPolicy{
		ShareTreeEnabled: model.Bool(v),
		ShareRoots:       stringList(r.doc.Array(VisibilityRootsArray)),
		HidePatterns:     stringList(r.doc.Array(VisibilityHideArray)),
		ExcludePatterns:  stringList(r.doc.Array(VisibilityExclArray)),
	}
}

// PathAccess checks path for the local user.
func (r *Room) PathAccess(path string) model.PathAccess {
	return policy.PathAccess(r.Visibility(), path, !r.IsHost())
}

// PathAccessFor checks path for any participant.
func (r *Room) PathAccessFor(path, userID string) model.PathAccess {
	host := r.HostID()
	return policy.PathAccess(r.Visibility(), path, host == "" || userID != host)
}

// FilterVisible keeps the entries of a directory listing the local user
// may see.
func (r *Room) FilterVisible(paths []string) []string {
	return policy.FilterVisible(r.Visibility(), paths, !r.IsHost())
}

func (r *Room) SetShareTreeEnabled(enabled bool) bool {
	if !r.requireHost("set-share-tree") {
		return false
	}
	r.doc.Map(VisibilityMap).Set(keyShareTreeEnabled, enabled)
	return true
}

// SetShareRoots replaces the include list. An empty list shares the whole
// tree.
func (r *Room) SetShareRoots(roots []string) bool {
	if !r.requireHost("set-share-roots") {
		return false
	}
	clean := make([]string, 0, len(roots))
	for _, root := range roots {
		if strings.TrimSpace(root) != "" {
			clean = append(clean, policy.NormalizePath(strings.TrimSpace(root)))
		}
	}
	r.replaceList(r.doc.Array(VisibilityRootsArray), clean)
	return true
}

func (r *Room) SetHidePatterns(patterns []string) bool {
	if !r.requireHost("set-hide-patterns") {
		return false
	}
	r.replaceList(r.doc.Array(VisibilityHideArray), trimAll(patterns))
	return true
}

func (r *Room) SetExcludePatterns(patterns []string) bool {
	if !r.requireHost("set-exclude-patterns") {
		return false
	}
	r.replaceList(r.doc.Array(VisibilityExclArray), trimAll(patterns))
	return true
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Room) replaceList(a *crdt.Array, values []string) {
	r.doc.Transact(func() {
		a.Delete(0, a.Len())
		if len(values) == 0 {
			return
		}
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = v
		}
		a.Push(items...)
	})
}
