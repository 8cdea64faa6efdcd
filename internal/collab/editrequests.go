package collab

import (
	"sort"

	"go.uber.org/zap"

	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
)

// EditRequests returns the pending requests oldest first. Malformed
// entries are skipped.
func (r *Room) EditRequests() []model.EditRequest {
	values := r.doc.Array(EditRequestsArray).ToArray()
	out := make([]model.EditRequest, 0, len(values))
	for _, v := range values {
		if req, ok := model.ParseEditRequest(v); ok {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// RequestEdit asks the host for edit access to path. It does nothing when
// the local user can already edit it or has the same request pending.
func (r *Room) RequestEdit(path string) bool {
	if path == "" {
		return false
	}
	key := policy.NormalizePath(path)
	if r.EffectiveLevel(key, r.self.UserID) >= model.LevelEdit {
		return false
	}
	queued := false
	r.doc.Transact(func() {
		for _, req := range r.EditRequests() {
			if req.Path == key && req.RequestedBy.UserID == r.self.UserID {
				return
			}
		}
		req := model.EditRequest{
			ID:          newID(),
			Path:        key,
			RequestedBy: model.Requester{UserID: r.self.UserID, Name: r.self.Name},
			CreatedAt:   r.timestamp(),
		}
		r.doc.Array(EditRequestsArray).Push(req.Record())
		queued = true
	})
	return queued
}

// ResolveEditRequest removes the request. Approving also grants edit on
// the path and lifts a viewer to editor, since a viewer's role caps every
// grant at view.
//
// The promotion is room-wide: the editor role applies to every path
// whose ACL does not say otherwise, not only the requested one. Hosts
// that want a single-file grant should pin other paths with
// SetDocPermission, or demote with SetMemberRole afterwards.
func (r *Room) ResolveEditRequest(id string, approve bool) bool {
	if !r.requireHost("resolve-edit-request") {
		return false
	}
	var target model.EditRequest
	found := false
	for _, req := range r.EditRequests() {
		if req.ID == id {
			target, found = req, true
			break
		}
	}
	if !found {
		return false
	}

	r.doc.Transact(func() {
		r.doc.Array(EditRequestsArray).DeleteFunc(func(v any) bool {
			req, ok := model.ParseEditRequest(v)
			return ok && req.ID == id
		})
		if !approve {
			return
		}
		requester := target.RequestedBy.UserID
		r.writeACL(target.Path, requester, model.LevelEdit)
		if r.RoleOf(requester) == model.RoleViewer {
			r.doc.Map(RolesMap).Set(requester, string(model.RoleEditor))
		}
	})
	r.log.Debug("resolved edit request",
		zap.String("id", id), zap.String("path", target.Path), zap.Bool("approved", approve))
	return true
}
