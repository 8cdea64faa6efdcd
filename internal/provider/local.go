package provider

import (
	"context"
	"sync"

	"saturuang/internal/crdt"
	"saturuang/internal/presence"
)

// Network is an in-process relay: every LocalProvider connected to the same
// room receives the others' updates synchronously. It backs tests and
// embedding several replicas in one process.
type Network struct {
	mu    sync.Mutex
	rooms map[string]map[*LocalProvider]struct{}
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{rooms: make(map[string]map[*LocalProvider]struct{})}
}

// Provider creates a provider for roomID. It joins the network on Connect.
func (n *Network) Provider(roomID string, doc *crdt.Doc, aw *presence.Awareness) *LocalProvider {
	return &LocalProvider{net: n, room: roomID, doc: doc, aw: aw, status: StatusDisconnected}
}

func (n *Network) join(p *LocalProvider) []*LocalProvider {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := n.peersLocked(p)
	if n.rooms[p.room] == nil {
		n.rooms[p.room] = make(map[*LocalProvider]struct{})
	}
	n.rooms[p.room][p] = struct{}{}
	return peers
}

func (n *Network) leave(p *LocalProvider) []*LocalProvider {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rooms[p.room], p)
	if len(n.rooms[p.room]) == 0 {
		delete(n.rooms, p.room)
	}
	return n.peersLocked(p)
}

func (n *Network) peers(p *LocalProvider) []*LocalProvider {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peersLocked(p)
}

func (n *Network) peersLocked(p *LocalProvider) []*LocalProvider {
	out := make([]*LocalProvider, 0, len(n.rooms[p.room]))
	for peer := range n.rooms[p.room] {
		if peer != p {
			out = append(out, peer)
		}
	}
	return out
}

// LocalProvider is one replica's connection to a Network.
type LocalProvider struct {
	net  *Network
	room string
	doc  *crdt.Doc
	aw   *presence.Awareness
	listeners

	mu        sync.Mutex
	status    Status
	connected bool
	unsub     []func()
}

// Status returns the last reported status.
func (p *LocalProvider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Subscribe registers fn for status events.
func (p *LocalProvider) Subscribe(fn func(Event)) (cancel func()) {
	return p.subscribe(fn)
}

func (p *LocalProvider) report(ev Event) {
	p.mu.Lock()
	p.status = ev.Status
	p.mu.Unlock()
	p.emit(ev)
}

// Connect joins the room and exchanges full state with every peer before
// reporting connected. It completes before returning.
func (p *LocalProvider) Connect(ctx context.Context) {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = true
	p.mu.Unlock()

	p.report(Event{Status: StatusConnecting})
	if err := ctx.Err(); err != nil {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.report(Event{Status: StatusDisconnected, Err: err})
		return
	}

	for _, peer := range p.net.join(p) {
		if state, err := peer.doc.EncodeState(); err == nil {
			p.doc.ApplyUpdate(state, p)
		}
		if state, err := p.doc.EncodeState(); err == nil {
			peer.doc.ApplyUpdate(state, peer)
		}
		if upd, err := peer.aw.EncodeUpdate(peer.aw.ClientID()); err == nil {
			p.aw.ApplyUpdate(upd, p)
		}
		if upd, err := p.aw.EncodeUpdate(p.aw.ClientID()); err == nil {
			peer.aw.ApplyUpdate(upd, peer)
		}
	}

	unsubDoc := p.doc.OnUpdate(func(update []byte, origin any) {
		if origin == p {
			return
		}
		for _, peer := range p.net.peers(p) {
			peer.doc.ApplyUpdate(update, peer)
		}
	})
	unsubAw := p.aw.Observe(func(ch presence.Change) {
		if !ch.Local {
			return
		}
		upd, err := p.aw.EncodeUpdate(p.aw.ClientID())
		if err != nil {
			return
		}
		for _, peer := range p.net.peers(p) {
			peer.aw.ApplyUpdate(upd, peer)
		}
	})
	p.mu.Lock()
	p.unsub = []func(){unsubDoc, unsubAw}
	p.mu.Unlock()

	p.report(Event{Status: StatusConnected})
}

// Close leaves the room.
func (p *LocalProvider) Close() error {
	p.disconnect(Event{Status: StatusDisconnected, Code: 1000})
	return nil
}

// Drop simulates the transport failing with a close code and reason.
func (p *LocalProvider) Drop(code int, reason string) {
	p.disconnect(Event{Status: StatusDisconnected, Code: code, Reason: reason})
}

func (p *LocalProvider) disconnect(ev Event) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	peers := p.net.leave(p)
	var remote []uint64
	for _, peer := range peers {
		peer.aw.RemoveStates([]uint64{p.aw.ClientID()}, peer)
		remote = append(remote, peer.aw.ClientID())
	}
	p.aw.RemoveStates(remote, p)
	p.report(ev)
}
