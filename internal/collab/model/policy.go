package model

// VisibilityPolicy is the host's file-tree sharing configuration.
type VisibilityPolicy struct {
	ShareTreeEnabled bool     `json:"shareTreeEnabled"`
	ShareRoots       []string `json:"shareRoots"`
	HidePatterns     []string `json:"hidePatterns"`
	ExcludePatterns  []string `json:"excludePatterns"`
}

// AnyGuest as a controller lets every non-host participant type.
const AnyGuest = "*"

// TerminalPolicy is who may see and drive the host's terminal.
// An empty ControllerUserID means only the host types.
type TerminalPolicy struct {
	Shared           bool   `json:"shared"`
	AllowGuestInput  bool   `json:"allowGuestInput"`
	ControllerUserID string `json:"controllerUserId,omitempty"`
}

type TerminalMode int

const (
	TerminalNotShared TerminalMode = iota
	TerminalSharedReadOnly
	TerminalSharedWithController
)

func (m TerminalMode) String() string {
	switch m {
	case TerminalSharedReadOnly:
		return "shared_read_only"
	case TerminalSharedWithController:
		return "shared_with_controller"
	default:
		return "not_shared"
	}
}

// TerminalState is the arbitration state derived from a TerminalPolicy.
// Controller is set only in TerminalSharedWithController.
type TerminalState struct {
	Mode       TerminalMode `json:"mode"`
	Controller string       `json:"controller,omitempty"`
}

// State derives the arbitration state.
func (p TerminalPolicy) State() TerminalState {
	switch {
	case !p.Shared:
		return TerminalState{Mode: TerminalNotShared}
	case p.AllowGuestInput && p.ControllerUserID != "":
		return TerminalState{Mode: TerminalSharedWithController, Controller: p.ControllerUserID}
	default:
		return TerminalState{Mode: TerminalSharedReadOnly}
	}
}
