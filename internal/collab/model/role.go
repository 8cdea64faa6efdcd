package model

// Role is a participant's coarse capability in a room.
type Role string

const (
	RoleHost   Role = "host"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole accepts only the three known roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleHost, RoleEditor, RoleViewer:
		return r, true
	}
	return "", false
}

// Level is a per-document permission. Levels are totally ordered.
type Level int

const (
	LevelNone Level = iota
	LevelView
	LevelEdit
	LevelManage
)

var levelNames = [...]string{"none", "view", "edit", "manage"}

func (l Level) String() string {
	if l < LevelNone || l > LevelManage {
		return "none"
	}
	return levelNames[l]
}

// ParseLevel maps a stored level name back to a Level.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return LevelNone, false
}

// AccessReason says why a path was denied to a guest.
type AccessReason string

const (
	ReasonTreeNotShared      AccessReason = "tree_not_shared"
	ReasonOutsideSharedRoots AccessReason = "outside_shared_roots"
	ReasonExcluded           AccessReason = "excluded"
	ReasonHidden             AccessReason = "hidden"
)

// PathAccess is the outcome of a visibility check. Reason is empty when OK.
type PathAccess struct {
	OK     bool         `json:"ok"`
	Reason AccessReason `json:"reason,omitempty"`
}
