package collab

import (
	"sort"
	"strings"

	"saturuang/internal/collab/model"
)

// Members joins presence with the roles map. Present users are online;
// users known only from roles are listed offline. The host comes first,
// then everyone by name.
func (r *Room) Members() []model.Member {
	states := r.aw.States()
	conns := make([]uint64, 0, len(states))
	for id := range states {
		conns = append(conns, id)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i] < conns[j] })

	seen := make(map[string]bool)
	var out []model.Member
	for _, conn := range conns {
		ident, ok := model.ParseIdentity(states[conn][PresenceUserField])
		if !ok || seen[ident.UserID] {
			continue
		}
		seen[ident.UserID] = true
		ident = ResolveIdentity(ident)
		out = append(out, model.Member{
			UserID: ident.UserID,
			Name:   ident.Name,
			Color:  ident.Color,
			Role:   r.RoleOf(ident.UserID),
			Online: true,
		})
	}

	for userID := range r.Roles() {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		ident := ResolveIdentity(model.Identity{UserID: userID})
		out = append(out, model.Member{
			UserID: userID,
			Name:   ident.Name,
			Color:  ident.Color,
			Role:   r.RoleOf(userID),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].Role == model.RoleHost, out[j].Role == model.RoleHost
		if hi != hj {
			return hi
		}
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
