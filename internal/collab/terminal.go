package collab

import (
	"sort"

	"go.uber.org/zap"

	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
)

// TerminalPolicy reads the shared terminal's policy.
func (r *Room) TerminalPolicy() model.TerminalPolicy {
	m := r.doc.Map(TerminalPolicyMap).ToMap()
	return model.TerminalPolicy{
		Shared:           model.Bool(m[keyShared]),
		AllowGuestInput:  model.Bool(m[keyAllowGuestInput]),
		ControllerUserID: model.String(m[keyController]),
	}
}

func (r *Room) TerminalState() model.TerminalState {
	return r.TerminalPolicy().State()
}

func (r *Room) writeTerminalPolicy(shared, allowInput bool, controller string) {
	var c any
	if controller != "" {
		c = controller
	}
	r.doc.Transact(func() {
		m := r.doc.Map(TerminalPolicyMap)
		m.Set(keyShared, shared)
		m.Set(keyAllowGuestInput, allowInput)
		m.Set(keyController, c)
	})
}

// SetTerminalShared toggles output mirroring. Unsharing also withdraws
// guest input, so sharing again starts read-only.
func (r *Room) SetTerminalShared(shared bool) bool {
	if !r.requireHost("set-terminal-shared") {
		return false
	}
	if shared {
		r.doc.Map(TerminalPolicyMap).Set(keyShared, true)
		return true
	}
	r.writeTerminalPolicy(false, false, "")
	return true
}

// SetTerminalInput sets who may type while the terminal is shared.
// controller is a user id, model.AnyGuest or "" for host only.
func (r *Room) SetTerminalInput(allowGuestInput bool, controller string) bool {
	if !r.requireHost("set-terminal-input") {
		return false
	}
	if !r.TerminalPolicy().Shared {
		return false
	}
	if !allowGuestInput {
		controller = ""
	}
	r.writeTerminalPolicy(true, allowGuestInput, controller)
	return true
}

// TerminalRequests returns pending control requests oldest first.
func (r *Room) TerminalRequests() []model.TerminalRequest {
	values := r.doc.Array(TerminalRequestArray).ToArray()
	out := make([]model.TerminalRequest, 0, len(values))
	for _, v := range values {
		if req, ok := model.ParseTerminalRequest(v); ok {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// RequestTerminalControl queues a request for input rights. The host
// always controls its own process and never queues.
func (r *Room) RequestTerminalControl() bool {
	if r.IsHost() {
		return false
	}
	queued := false
	r.doc.Transact(func() {
		for _, req := range r.TerminalRequests() {
			if req.UserID == r.self.UserID {
				return
			}
		}
		req := model.TerminalRequest{ID: newID(), UserID: r.self.UserID, Name: r.self.Name, CreatedAt: r.timestamp()}
		r.doc.Array(TerminalRequestArray).Push(req.Record())
		queued = true
	})
	return queued
}

// GrantNextTerminalRequest hands control to the oldest requester.
func (r *Room) GrantNextTerminalRequest() bool {
	if !r.requireHost("grant-next-terminal-request") {
		return false
	}
	reqs := r.TerminalRequests()
	if len(reqs) == 0 {
		return false
	}
	r.grantTerminal(reqs[0].UserID)
	return true
}

// GrantTerminalRequest hands control to userID and drops their pending
// requests. A request is not required.
func (r *Room) GrantTerminalRequest(userID string) bool {
	if !r.requireHost("grant-terminal-request") {
		return false
	}
	if userID == "" || userID == r.self.UserID {
		return false
	}
	r.grantTerminal(userID)
	return true
}

func (r *Room) grantTerminal(userID string) {
	r.doc.Transact(func() {
		r.doc.Array(TerminalRequestArray).DeleteFunc(func(v any) bool {
			req, ok := model.ParseTerminalRequest(v)
			return ok && req.UserID == userID
		})
		r.writeTerminalPolicy(true, true, userID)
	})
	r.log.Info("granted terminal control", zap.String("controller", userID))
}

// DenyTerminalRequest drops one request and leaves the policy alone.
func (r *Room) DenyTerminalRequest(id string) bool {
	if !r.requireHost("deny-terminal-request") {
		return false
	}
	removed := r.doc.Array(TerminalRequestArray).DeleteFunc(func(v any) bool {
		req, ok := model.ParseTerminalRequest(v)
		return ok && req.ID == id
	})
	return removed > 0
}

// RevokeTerminalControl returns a shared terminal to read-only.
func (r *Room) RevokeTerminalControl() bool {
	if !r.requireHost("revoke-terminal-control") {
		return false
	}
	r.writeTerminalPolicy(r.TerminalPolicy().Shared, false, "")
	return true
}

// CanSendTerminalInput reports whether the local user's keystrokes would
// currently be accepted by the host.
func (r *Room) CanSendTerminalInput() bool {
	return policy.AcceptsInput(r.TerminalPolicy(), r.HostID(), r.self.UserID)
}

// SendTerminalInput queues keystrokes for the host's process. It refuses
// when the current policy would not accept them.
func (r *Room) SendTerminalInput(data string) bool {
	if data == "" || !r.CanSendTerminalInput() {
		return false
	}
	rec := model.InputRecord{ID: newID(), UserID: r.self.UserID, Data: data, CreatedAt: r.timestamp()}
	r.doc.Array(TerminalInputArray).Push(rec.Record())
	return true
}

// DrainTerminalInput empties the input queue and returns, in queue order,
// only the entries the current policy accepts. Everything else, malformed
// entries included, is dropped unexecuted.
func (r *Room) DrainTerminalInput() []model.InputRecord {
	if !r.requireHost("drain-terminal-input") {
		return nil
	}
	pol := r.TerminalPolicy()
	host := r.HostID()

	var queued []model.InputRecord
	r.doc.Array(TerminalInputArray).DeleteFunc(func(v any) bool {
		if rec, ok := model.ParseInputRecord(v); ok {
			queued = append(queued, rec)
		}
		return true
	})
	accepted := policy.FilterInput(pol, host, queued)
	if dropped := len(queued) - len(accepted); dropped > 0 {
		r.log.Debug("dropped terminal input", zap.Int("count", dropped))
	}
	return accepted
}
