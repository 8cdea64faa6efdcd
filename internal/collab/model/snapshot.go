package model

// Snapshot is a point-in-time read of everything a room view renders.
type Snapshot struct {
	HostID        string            `json:"hostId"`
	MyRole        Role              `json:"myRole"`
	Roles         map[string]Role   `json:"roles"`
	Visibility    VisibilityPolicy  `json:"visibility"`
	Terminal      TerminalPolicy    `json:"terminal"`
	EditRequests  []EditRequest     `json:"editRequests"`
	TerminalQueue []TerminalRequest `json:"terminalRequests"`
	Members       []Member          `json:"members"`
	ChatMessages  []ChatMessage     `json:"chatMessages"`
}
