package collab

import "saturuang/internal/crdt"

// Names of the shared structures every client of a room agrees on.
const (
	MetaMap              = "room:meta"
	RolesMap             = "room:roles"
	VisibilityMap        = "room:visibility"
	VisibilityRootsArray = "room:visibility:roots"
	VisibilityHideArray  = "room:visibility:hide"
	VisibilityExclArray  = "room:visibility:exclude"
	DocPermsMap          = "docs:perms"
	EditRequestsArray    = "docs:editRequests"
	TerminalPolicyMap    = "terminal:policy"
	TerminalRequestArray = "terminal:requests"
	TerminalInputArray   = "terminal:input"
	TerminalOutputText   = "terminal:output"
	TerminalOutputMeta   = "terminal:outputMeta"
	ChatArray            = "chat:messages"
)

// Keys inside the singleton maps.
const (
	keyHostID           = "hostId"
	keyShareTreeEnabled = "shareTreeEnabled"
	keyShared           = "shared"
	keyAllowGuestInput  = "allowGuestInput"
	keyController       = "controllerUserId"
	keyOutputTrimmed    = "trimmed"
)

// DocSchema is the shape every replica of a room document starts from.
var DocSchema = crdt.Schema{
	Maps:   []string{MetaMap, RolesMap, VisibilityMap, DocPermsMap, TerminalPolicyMap, TerminalOutputMeta},
	Arrays: []string{VisibilityRootsArray, VisibilityHideArray, VisibilityExclArray, EditRequestsArray, TerminalRequestArray, TerminalInputArray, ChatArray},
	Texts:  []string{TerminalOutputText},
}

// NewDoc creates an empty room document.
func NewDoc() *crdt.Doc {
	return crdt.New(crdt.WithSchema(DocSchema))
}

// PresenceUserField is the presence field carrying a client's identity.
const PresenceUserField = "user"

const (
	// MaxChatMessages bounds the chat log; the oldest go first.
	MaxChatMessages = 200
	// MaxTerminalOutput bounds the mirrored terminal log in characters.
	MaxTerminalOutput = 200_000
)
