package socket

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"saturuang/internal/collab"
	collabmodel "saturuang/internal/collab/model"
	"saturuang/internal/crdt"
	"saturuang/internal/presence"
	"saturuang/internal/provider"
	"saturuang/pkg/logger"
)

// CloseRoomFull is sent when a room already has its maximum number of
// distinct users connected.
const CloseRoomFull = 4003

// Store is what the hub needs from persistence.
type Store interface {
	// RoomAccess returns the room's user cap, or model.ErrRoomNotFound /
	// model.ErrNotMember.
	RoomAccess(roomID, userID string) (maxUsers int, err error)
	// LoadSnapshot returns the last saved document state, nil if none.
	LoadSnapshot(roomID string) ([]byte, error)
	SaveSnapshot(roomID string, state []byte) error
}

// Message is a frame received from one client, to be merged into the
// room replica and fanned out to the other clients.
type Message struct {
	RoomID string
	Sender *Client
	Frame  provider.Frame
}

// Room is the relay's replica of one room: the merged document, the
// presence states of every connection and the connected clients.
type Room struct {
	Clients   map[*Client]bool
	Doc       *crdt.Doc
	Awareness *presence.Awareness
	MaxUsers  int
	version   uint64
	saved     uint64
}

func (r *Room) distinctUsers() map[string]bool {
	users := make(map[string]bool, len(r.Clients))
	for c := range r.Clients {
		users[c.UserID] = true
	}
	return users
}

type Hub struct {
	Rooms      map[string]*Room
	Broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	removals   chan string

	store        Store
	saveInterval time.Duration
	mu           sync.Mutex
}

type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	RoomID   string
	UserID   string
	MaxUsers int
	Send     chan []byte

	// presence ids announced by this connection, removed when it leaves
	awarenessIDs map[uint64]struct{}
	closeCode    int
	closeText    string
}

func NewHub(store Store, saveInterval time.Duration) *Hub {
	if saveInterval <= 0 {
		saveInterval = 10 * time.Second
	}
	return &Hub{
		Rooms:        make(map[string]*Room),
		Broadcast:    make(chan Message),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		removals:     make(chan string),
		store:        store,
		saveInterval: saveInterval,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.Broadcast:
			h.broadcast(msg)
		case roomID := <-h.removals:
			h.removeRoom(roomID)
		}
	}
}

// openRoom loads the room replica from its last snapshot. Caller holds mu.
func (h *Hub) openRoom(roomID string, maxUsers int) *Room {
	room := &Room{
		Clients:   make(map[*Client]bool),
		Doc:       collab.NewDoc(),
		Awareness: presence.New(0),
		MaxUsers:  maxUsers,
	}
	room.Awareness.SetLocalState(nil)

	state, err := h.store.LoadSnapshot(roomID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load room %s snapshot: %v", roomID, err)
	} else if state != nil {
		if err := room.Doc.ApplyUpdate(state, nil); err != nil {
			logger.Sugar.Errorf("Corrupt snapshot for room %s: %v", roomID, err)
		}
	}
	h.Rooms[roomID] = room
	return room
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	room := h.Rooms[client.RoomID]
	if room == nil {
		room = h.openRoom(client.RoomID, client.MaxUsers)
	}

	users := room.distinctUsers()
	if room.MaxUsers > 0 && !users[client.UserID] && len(users) >= room.MaxUsers {
		h.mu.Unlock()
		logger.Sugar.Warnf("Room %s is full, rejecting user %s", client.RoomID, client.UserID)
		client.closeCode = CloseRoomFull
		client.closeText = "room is full"
		close(client.Send)
		return
	}
	room.Clients[client] = true

	state, err := room.Doc.EncodeState()
	if err != nil {
		logger.Sugar.Errorf("Failed to encode room %s: %v", client.RoomID, err)
	}
	var live []uint64
	for id := range room.Awareness.States() {
		live = append(live, id)
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	var aw []byte
	if len(live) > 0 {
		aw, err = room.Awareness.EncodeUpdate(live...)
		if err != nil {
			logger.Sugar.Errorf("Failed to encode presence for room %s: %v", client.RoomID, err)
		}
	}
	h.mu.Unlock()

	// The sync frame goes out first: the client reports connected on it.
	if frame, err := provider.EncodeFrame(provider.FrameSync, state); err == nil {
		client.Send <- frame
	}
	if aw != nil {
		if frame, err := provider.EncodeFrame(provider.FrameAwareness, aw); err == nil {
			client.Send <- frame
		}
	}
	logger.Sugar.Infof("User %s joined room %s", client.UserID, client.RoomID)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	room := h.Rooms[client.RoomID]
	if room == nil || !room.Clients[client] {
		h.mu.Unlock()
		return
	}
	delete(room.Clients, client)
	close(client.Send)

	var gone []byte
	if len(client.awarenessIDs) > 0 {
		ids := make([]uint64, 0, len(client.awarenessIDs))
		for id := range client.awarenessIDs {
			ids = append(ids, id)
		}
		room.Awareness.RemoveStates(ids, client)
		if upd, err := room.Awareness.EncodeUpdate(ids...); err == nil {
			gone, _ = provider.EncodeFrame(provider.FrameAwareness, upd)
		}
	}

	var recipients []*Client
	if len(room.Clients) == 0 {
		if room.version != room.saved {
			h.saveLocked(client.RoomID, room)
		}
		delete(h.Rooms, client.RoomID)
		logger.Sugar.Infof("Closed and cleaned up empty room: %s", client.RoomID)
	} else {
		for c := range room.Clients {
			recipients = append(recipients, c)
		}
	}
	h.mu.Unlock()

	if gone != nil {
		h.fanOut(recipients, gone)
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	room := h.Rooms[msg.RoomID]
	if room == nil || !room.Clients[msg.Sender] {
		h.mu.Unlock()
		return
	}

	outType := msg.Frame.Type
	switch msg.Frame.Type {
	case provider.FrameSync, provider.FrameUpdate:
		if err := room.Doc.ApplyUpdate(msg.Frame.Payload, msg.Sender); err != nil {
			h.mu.Unlock()
			logger.Sugar.Warnf("Dropping bad update from %s in room %s: %v", msg.Sender.UserID, msg.RoomID, err)
			return
		}
		room.version++
		// Other replicas merge a peer's full state like any update.
		outType = provider.FrameUpdate
	case provider.FrameAwareness:
		ids, err := presence.UpdateClients(msg.Frame.Payload)
		if err != nil {
			h.mu.Unlock()
			logger.Sugar.Warnf("Dropping bad presence from %s: %v", msg.Sender.UserID, err)
			return
		}
		for _, id := range ids {
			msg.Sender.awarenessIDs[id] = struct{}{}
		}
		room.Awareness.ApplyUpdate(msg.Frame.Payload, msg.Sender)
	}

	payload, err := provider.EncodeFrame(outType, msg.Frame.Payload)
	if err != nil {
		h.mu.Unlock()
		logger.Sugar.Errorf("Error encoding broadcast frame: %v", err)
		return
	}
	recipients := make([]*Client, 0, len(room.Clients))
	for c := range room.Clients {
		if c != msg.Sender {
			recipients = append(recipients, c)
		}
	}
	h.mu.Unlock()

	h.fanOut(recipients, payload)
}

func (h *Hub) fanOut(clients []*Client, payload []byte) {
	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			// A lagging replica would miss operations; cut it loose and
			// let its read pump unregister it.
			logger.Sugar.Warnf("Client %s's send buffer is full. Disconnecting.", client.UserID)
			client.Conn.Close()
		}
	}
}

// SaveWorker periodically persists rooms whose replica changed since the
// last save.
func (h *Hub) SaveWorker() {
	ticker := time.NewTicker(h.saveInterval)
	defer ticker.Stop()

	for range ticker.C {
		h.SaveDirty()
	}
}

// SaveDirty persists every changed room once.
func (h *Hub) SaveDirty() {
	type pending struct {
		state   []byte
		version uint64
	}
	toSave := make(map[string]pending)

	h.mu.Lock()
	for roomID, room := range h.Rooms {
		if room.version == room.saved {
			continue
		}
		state, err := room.Doc.EncodeState()
		if err != nil {
			logger.Sugar.Errorf("Failed to encode room %s: %v", roomID, err)
			continue
		}
		toSave[roomID] = pending{state: state, version: room.version}
	}
	h.mu.Unlock()

	for roomID, p := range toSave {
		if err := h.store.SaveSnapshot(roomID, p.state); err != nil {
			logger.Sugar.Errorf("Failed to save room %s: %v", roomID, err)
			continue // retried on the next tick
		}
		h.mu.Lock()
		if room := h.Rooms[roomID]; room != nil && room.saved < p.version {
			room.saved = p.version
		}
		h.mu.Unlock()
		logger.Sugar.Infof("Auto-saved room: %s", roomID)
	}
}

// saveLocked persists a room synchronously. Caller holds mu.
func (h *Hub) saveLocked(roomID string, room *Room) {
	state, err := room.Doc.EncodeState()
	if err != nil {
		logger.Sugar.Errorf("Failed to encode room %s on close: %v", roomID, err)
		return
	}
	if err := h.store.SaveSnapshot(roomID, state); err != nil {
		logger.Sugar.Errorf("Failed to save room %s on close: %v", roomID, err)
		return
	}
	room.saved = room.version
}

// RemoveRoom drops a room from memory without saving it and disconnects
// its clients. Called when the room is deleted.
func (h *Hub) RemoveRoom(roomID string) {
	h.removals <- roomID
}

func (h *Hub) removeRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.Rooms[roomID]; ok {
		for client := range room.Clients {
			close(client.Send)
			client.Conn.Close()
		}
		delete(h.Rooms, roomID)
	}
}

// PathGate returns the visibility check of roomID as seen by userID. The
// live replica is used when the room is open, the last snapshot otherwise.
func (h *Hub) PathGate(roomID, userID string) (func(path string) collabmodel.PathAccess, error) {
	if _, err := h.store.RoomAccess(roomID, userID); err != nil {
		return nil, err
	}

	h.mu.Lock()
	var doc *crdt.Doc
	if room := h.Rooms[roomID]; room != nil {
		doc = room.Doc
	}
	h.mu.Unlock()

	if doc == nil {
		doc = collab.NewDoc()
		state, err := h.store.LoadSnapshot(roomID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			if err := doc.ApplyUpdate(state, nil); err != nil {
				return nil, err
			}
		}
	}

	view := collab.NewRoom(doc, nil, collabmodel.Identity{UserID: userID})
	return func(path string) collabmodel.PathAccess {
		return view.PathAccessFor(path, userID)
	}, nil
}
