// Package collab is the coordination layer of a shared room: who is host,
// what guests may see and edit, the request queues the host resolves and
// who may type into the host's terminal. All of it lives in one replicated
// document and is enforced by each client on itself; any peer can write
// the underlying structures, so the rules are cooperative.
package collab

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"saturuang/internal/collab/model"
	"saturuang/internal/crdt"
	"saturuang/internal/presence"
)

// Room is the local client's view of one room's shared state.
type Room struct {
	doc  *crdt.Doc
	aw   *presence.Awareness
	self model.Identity
	log  *zap.Logger
	now  func() time.Time
}

type RoomOption func(*Room)

func WithLogger(l *zap.Logger) RoomOption {
	return func(r *Room) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source used for createdAt stamps.
func WithClock(now func() time.Time) RoomOption {
	return func(r *Room) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRoom binds the coordination rules to a document and its presence
// channel, acting as self.
func NewRoom(doc *crdt.Doc, aw *presence.Awareness, self model.Identity, opts ...RoomOption) *Room {
	r := &Room{
		doc:  doc,
		aw:   aw,
		self: ResolveIdentity(self),
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Doc() *crdt.Doc                { return r.doc }
func (r *Room) Presence() *presence.Awareness { return r.aw }
func (r *Room) Self() model.Identity          { return r.self }

func (r *Room) timestamp() int64 {
	return r.now().UnixMilli()
}

func newID() string {
	return uuid.NewString()
}

// requireHost guards host-only mutations. Denials are not errors: the
// caller just sees nothing happen.
func (r *Room) requireHost(op string) bool {
	if r.IsHost() {
		return true
	}
	r.log.Debug("ignoring host-only operation", zap.String("op", op), zap.String("user", r.self.UserID))
	return false
}

// seedDefaults writes every default that is still missing. Values other
// clients already wrote are left alone.
func (r *Room) seedDefaults() {
	r.doc.Transact(func() {
		r.doc.Map(VisibilityMap).SetIfAbsent(keyShareTreeEnabled, false)
		pol := r.doc.Map(TerminalPolicyMap)
		pol.SetIfAbsent(keyShared, false)
		pol.SetIfAbsent(keyAllowGuestInput, false)
		pol.SetIfAbsent(keyController, nil)
		r.doc.Map(RolesMap).SetIfAbsent(r.self.UserID, string(model.RoleViewer))
	})
}

// Snapshot reads everything a room view renders in one pass.
func (r *Room) Snapshot() model.Snapshot {
	return model.Snapshot{
		HostID:        r.HostID(),
		MyRole:        r.MyRole(),
		Roles:         r.Roles(),
		Visibility:    r.Visibility(),
		Terminal:      r.TerminalPolicy(),
		EditRequests:  r.EditRequests(),
		TerminalQueue: r.TerminalRequests(),
		Members:       r.Members(),
		ChatMessages:  r.ChatMessages(),
	}
}

// Watch calls fn with a fresh snapshot after every committed change to
// the document and every presence change.
func (r *Room) Watch(fn func(model.Snapshot)) (cancel func()) {
	cancelDoc := r.doc.OnUpdate(func([]byte, any) { fn(r.Snapshot()) })
	cancelAw := r.aw.Observe(func(presence.Change) { fn(r.Snapshot()) })
	return func() {
		cancelDoc()
		cancelAw()
	}
}
