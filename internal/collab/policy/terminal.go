package policy

import "saturuang/internal/collab/model"

// AcceptsInput reports whether keystrokes from userID may reach the host's
// process under pol. The host's own input never goes through the queue.
func AcceptsInput(pol model.TerminalPolicy, hostID, userID string) bool {
	if userID == "" || userID == hostID {
		return false
	}
	if !pol.Shared || !pol.AllowGuestInput {
		return false
	}
	switch pol.ControllerUserID {
	case "":
		return false
	case model.AnyGuest:
		return true
	default:
		return pol.ControllerUserID == userID
	}
}

// FilterInput returns the records AcceptsInput lets through, in order.
func FilterInput(pol model.TerminalPolicy, hostID string, records []model.InputRecord) []model.InputRecord {
	out := make([]model.InputRecord, 0, len(records))
	for _, r := range records {
		if AcceptsInput(pol, hostID, r.UserID) {
			out = append(out, r)
		}
	}
	return out
}
