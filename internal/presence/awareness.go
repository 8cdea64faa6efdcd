// Package presence carries ephemeral per-connection state (who is here,
// their colour, cursor) next to a replicated document. Nothing here is
// persisted; a connection's state disappears when it leaves.
package presence

import (
	"fmt"
	"sort"
	"sync"

	"saturuang/pkg/codec"
)

// State is one connection's published fields.
type State map[string]any

// Change lists the connections whose state changed in one update.
type Change struct {
	Added   []uint64
	Updated []uint64
	Removed []uint64
	Local   bool
	Origin  any
}

type entry struct {
	clock uint64
	state State // nil once removed
}

// Awareness holds the states of every connection seen on the channel,
// including the local one.
type Awareness struct {
	clientID uint64

	mu       sync.Mutex
	entries  map[uint64]*entry
	nextID   int
	handlers map[int]func(Change)
}

// New creates an awareness channel for the local connection id, normally
// the client id of the document it accompanies.
func New(clientID uint64) *Awareness {
	a := &Awareness{
		clientID: clientID,
		entries:  make(map[uint64]*entry),
		handlers: make(map[int]func(Change)),
	}
	a.entries[clientID] = &entry{clock: 0, state: State{}}
	return a
}

// ClientID returns the local connection id.
func (a *Awareness) ClientID() uint64 {
	return a.clientID
}

// LocalState returns a copy of the local state, or nil after it was cleared.
func (a *Awareness) LocalState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyState(a.entries[a.clientID].state)
}

// SetLocalState replaces the local state. A nil state marks the local
// connection as gone.
func (a *Awareness) SetLocalState(s State) {
	a.mu.Lock()
	e := a.entries[a.clientID]
	prev := e.state
	e.clock++
	e.state = copyState(s)
	ch := Change{Local: true}
	switch {
	case s == nil && prev != nil:
		ch.Removed = []uint64{a.clientID}
	case s != nil && prev == nil:
		ch.Added = []uint64{a.clientID}
	case s != nil:
		ch.Updated = []uint64{a.clientID}
	}
	handlers := a.handlersLocked()
	a.mu.Unlock()

	a.emit(handlers, ch)
}

// SetLocalStateField sets one field of the local state.
func (a *Awareness) SetLocalStateField(key string, value any) {
	s := a.LocalState()
	if s == nil {
		s = State{}
	}
	s[key] = value
	a.SetLocalState(s)
}

// States returns a copy of every live state keyed by connection id.
func (a *Awareness) States() map[uint64]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]State, len(a.entries))
	for id, e := range a.entries {
		if e.state != nil {
			out[id] = copyState(e.state)
		}
	}
	return out
}

// Observe calls fn after every change. The returned func unregisters it.
func (a *Awareness) Observe(fn func(Change)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.handlers, id)
		a.mu.Unlock()
	}
}

type wireEntry struct {
	Client uint64           `cbor:"c"`
	Clock  uint64           `cbor:"k"`
	State  codec.RawMessage `cbor:"s"`
}

type wireUpdate struct {
	Entries []wireEntry `cbor:"e"`
}

// EncodeUpdate encodes the given connections' states, or every known
// state when clients is empty. Removed connections encode as null.
func (a *Awareness) EncodeUpdate(clients ...uint64) ([]byte, error) {
	a.mu.Lock()
	if len(clients) == 0 {
		for id := range a.entries {
			clients = append(clients, id)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	}
	var u wireUpdate
	for _, id := range clients {
		e, ok := a.entries[id]
		if !ok {
			continue
		}
		var raw []byte
		var err error
		if e.state == nil {
			raw, err = codec.Marshal(nil)
		} else {
			raw, err = codec.Marshal(map[string]any(e.state))
		}
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("presence: encode state of %d: %w", id, err)
		}
		u.Entries = append(u.Entries, wireEntry{Client: id, Clock: e.clock, State: raw})
	}
	a.mu.Unlock()

	data, err := codec.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("presence: encode update: %w", err)
	}
	return data, nil
}

// ApplyUpdate merges an update from another connection. Entries older
// than what is already known are ignored; the local entry is never
// overwritten by a remote one.
func (a *Awareness) ApplyUpdate(data []byte, origin any) error {
	var u wireUpdate
	if err := codec.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("presence: decode update: %w", err)
	}

	a.mu.Lock()
	ch := Change{Origin: origin}
	for _, we := range u.Entries {
		if we.Client == a.clientID {
			continue
		}
		var st State
		if err := codec.Unmarshal(we.State, &st); err != nil {
			continue
		}
		e, known := a.entries[we.Client]
		if known && we.Clock < e.clock {
			continue
		}
		if known && we.Clock == e.clock && (st == nil) == (e.state == nil) {
			continue
		}
		switch {
		case st == nil && known && e.state != nil:
			ch.Removed = append(ch.Removed, we.Client)
		case st != nil && (!known || e.state == nil):
			ch.Added = append(ch.Added, we.Client)
		case st != nil:
			ch.Updated = append(ch.Updated, we.Client)
		}
		a.entries[we.Client] = &entry{clock: we.Clock, state: st}
	}
	handlers := a.handlersLocked()
	a.mu.Unlock()

	a.emit(handlers, ch)
	return nil
}

// RemoveStates drops remote connections, typically when the transport
// reports them gone. The local connection cannot be removed this way.
func (a *Awareness) RemoveStates(clients []uint64, origin any) {
	a.mu.Lock()
	ch := Change{Origin: origin}
	for _, id := range clients {
		if id == a.clientID {
			continue
		}
		e, ok := a.entries[id]
		if !ok || e.state == nil {
			continue
		}
		e.clock++
		e.state = nil
		ch.Removed = append(ch.Removed, id)
	}
	handlers := a.handlersLocked()
	a.mu.Unlock()

	a.emit(handlers, ch)
}

func (a *Awareness) handlersLocked() []func(Change) {
	ids := make([]int, 0, len(a.handlers))
	for id := range a.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		out = append(out, a.handlers[id])
	}
	return out
}

func (a *Awareness) emit(handlers []func(Change), ch Change) {
	if len(ch.Added)+len(ch.Updated)+len(ch.Removed) == 0 {
		return
	}
	for _, h := range handlers {
		h(ch)
	}
}

func copyState(s State) State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// UpdateClients lists the connection ids carried by an encoded update
// without applying it.
func UpdateClients(data []byte) ([]uint64, error) {
	var u wireUpdate
	if err := codec.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("presence: decode update: %w", err)
	}
	ids := make([]uint64, 0, len(u.Entries))
	for _, we := range u.Entries {
		ids = append(ids, we.Client)
	}
	return ids, nil
}
