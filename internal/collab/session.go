package collab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"saturuang/internal/collab/model"
	"saturuang/internal/crdt"
	"saturuang/internal/presence"
	"saturuang/internal/provider"
)

// ErrNoRoom is returned by Open without a room id.
var ErrNoRoom = errors.New("collab: room id is required")

const connectionLost = "connection lost"

// Transport is the connection a session syncs its document over.
type Transport interface {
	Connect(ctx context.Context)
	Close() error
	Subscribe(fn func(provider.Event)) (cancel func())
}

// DialFunc builds the transport for one room's document and presence.
type DialFunc func(roomID string, doc *crdt.Doc, aw *presence.Awareness) Transport

// WebsocketDialer dials the relay at endpoint, authenticating with token.
func WebsocketDialer(endpoint, token string, log *zap.Logger) DialFunc {
	return func(roomID string, doc *crdt.Doc, aw *presence.Awareness) Transport {
		return provider.NewWebsocket(endpoint, roomID, doc, aw, provider.Options{Token: token, Logger: log})
	}
}

// NetworkDialer joins rooms on an in-process network.
func NetworkDialer(net *provider.Network) DialFunc {
	return func(roomID string, doc *crdt.Doc, aw *presence.Awareness) Transport {
		return net.Provider(roomID, doc, aw)
	}
}

type Options struct {
	// Endpoint and Token are used when Dial is nil.
	Endpoint string
	Token    string
	RoomID   string
	Identity model.Identity
	Dial     DialFunc
	Logger   *zap.Logger
	Now      func() time.Time
}

// StatusChange is delivered to OnStatus listeners.
type StatusChange struct {
	Status    provider.Status
	LastError string
}

// Session owns one room connection: the document, its presence channel,
// the transport and the Room built over them. They are created together
// in Open and released together in Close.
type Session struct {
	roomID    string
	doc       *crdt.Doc
	aw        *presence.Awareness
	room      *Room
	transport Transport
	log       *zap.Logger

	alive     atomic.Bool
	closeOnce sync.Once

	mu        sync.Mutex
	status    provider.Status
	lastError string
	nextID    int
	listeners map[int]func(StatusChange)
	cancels   []func()
}

// Open creates the session and starts connecting. Defaults are seeded and
// host is claimed once the first sync completes.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.RoomID == "" {
		return nil, ErrNoRoom
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dial := opts.Dial
	if dial == nil {
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("collab: endpoint is required to open room %s", opts.RoomID)
		}
		dial = WebsocketDialer(opts.Endpoint, opts.Token, log.Named("provider"))
	}

	self := ResolveIdentity(opts.Identity)
	doc := NewDoc()
	aw := presence.New(doc.ClientID())
	s := &Session{
		roomID:    opts.RoomID,
		doc:       doc,
		aw:        aw,
		room:      NewRoom(doc, aw, self, WithLogger(log), WithClock(opts.Now)),
		log:       log.With(zap.String("room", opts.RoomID), zap.String("user", self.UserID)),
		status:    provider.StatusConnecting,
		listeners: make(map[int]func(StatusChange)),
	}
	s.transport = dial(opts.RoomID, doc, aw)
	s.cancels = append(s.cancels, s.transport.Subscribe(s.handleEvent))

	aw.SetLocalStateField(PresenceUserField, map[string]any{
		"id":    self.UserID,
		"name":  self.Name,
		"color": self.Color,
	})

	s.alive.Store(true)
	s.transport.Connect(ctx)
	return s, nil
}

func (s *Session) RoomID() string                { return s.roomID }
func (s *Session) Doc() *crdt.Doc                { return s.doc }
func (s *Session) Presence() *presence.Awareness { return s.aw }
func (s *Session) Room() *Room                   { return s.room }

func (s *Session) Status() provider.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError describes why the connection last failed. It is cleared when
// a connection completes.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// OnStatus calls fn after every status change.
func (s *Session) OnStatus(fn func(StatusChange)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) handleEvent(ev provider.Event) {
	if !s.alive.Load() {
		return
	}
	switch ev.Status {
	case provider.StatusConnected:
		s.setStatus(provider.StatusConnected, "")
		s.room.seedDefaults()
		s.room.ClaimHostIfAbsent()
	case provider.StatusDisconnected:
		reason := describeClose(ev)
		s.log.Warn("room connection closed", zap.String("reason", reason), zap.Error(ev.Err))
		s.setStatus(provider.StatusDisconnected, reason)
	default:
		s.setStatus(ev.Status, s.LastError())
	}
}

func describeClose(ev provider.Event) string {
	switch {
	case ev.Reason != "":
		return ev.Reason
	case ev.Code != 0:
		return fmt.Sprintf("closed with code %d", ev.Code)
	default:
		return connectionLost
	}
}

func (s *Session) setStatus(status provider.Status, lastError string) {
	s.mu.Lock()
	s.status = status
	s.lastError = lastError
	fns := make([]func(StatusChange), 0, len(s.listeners))
	for _, id := range sortedIDs(s.listeners) {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	ch := StatusChange{Status: status, LastError: lastError}
	for _, fn := range fns {
		fn(ch)
	}
}

// Close tears the session down. It is safe to call more than once and
// events arriving afterwards are ignored.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.alive.Store(false)

		s.mu.Lock()
		cancels := s.cancels
		s.cancels = nil
		s.status = provider.StatusDisconnected
		s.listeners = make(map[int]func(StatusChange))
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}

		s.aw.SetLocalState(nil)
		err = s.transport.Close()
	})
	return err
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Manager keeps at most one open session, replacing it on room switch.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager uses opts for every session it opens; RoomID is ignored.
// The identity is resolved once so it stays the same across rooms.
func NewManager(opts Options) *Manager {
	opts.Identity = ResolveIdentity(opts.Identity)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{opts: opts, log: log}
}

// Switch closes the current session before opening one for roomID.
// Switching to the room already open returns the existing session. A
// failed close is logged and does not stop the switch.
func (m *Manager) Switch(ctx context.Context, roomID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.roomID == roomID {
			return m.current, nil
		}
		if err := m.current.Close(); err != nil {
			m.log.Warn("closing previous room failed",
				zap.String("room", m.current.roomID), zap.Error(err))
		}
		m.current = nil
	}
	if roomID == "" {
		return nil, nil
	}

	opts := m.opts
	opts.RoomID = roomID
	s, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
