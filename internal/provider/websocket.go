package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"saturuang/internal/crdt"
	"saturuang/internal/presence"
)

const (
	sendBufferSize = 256
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Options configures a WebsocketProvider.
type Options struct {
	Token  string
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// WebsocketProvider syncs one room through the relay hub. It does not
// reconnect: once it reports disconnected the owner opens a new one.
type WebsocketProvider struct {
	url    string
	urlErr error
	doc    *crdt.Doc
	aw     *presence.Awareness
	dialer *websocket.Dialer
	log    *zap.Logger
	listeners

	mu     sync.Mutex
	status Status
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed bool
	synced bool
	unsub  []func()
}

// NewWebsocket prepares a provider for roomID on the relay at endpoint
// (for example ws://127.0.0.1:1234). Nothing is dialled until Connect.
func NewWebsocket(endpoint, roomID string, doc *crdt.Doc, aw *presence.Awareness, opts Options) *WebsocketProvider {
	p := &WebsocketProvider{
		doc:    doc,
		aw:     aw,
		dialer: opts.Dialer,
		log:    opts.Logger,
		status: StatusDisconnected,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	if p.dialer == nil {
		p.dialer = websocket.DefaultDialer
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.url, p.urlErr = roomURL(endpoint, roomID, opts.Token)
	return p
}

func roomURL(endpoint, roomID, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("provider: invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("provider: endpoint %q is not a websocket url", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("room", roomID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Status returns the last reported status.
func (p *WebsocketProvider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Subscribe registers fn for status events.
func (p *WebsocketProvider) Subscribe(fn func(Event)) (cancel func()) {
	return p.subscribe(fn)
}

// Connect dials in the background. ctx bounds the dial only.
func (p *WebsocketProvider) Connect(ctx context.Context) {
	go p.run(ctx)
}

func (p *WebsocketProvider) report(ev Event) {
	p.mu.Lock()
	if p.closed && ev.Status != StatusDisconnected {
		p.mu.Unlock()
		return
	}
	p.status = ev.Status
	p.mu.Unlock()
	p.emit(ev)
}

func (p *WebsocketProvider) run(ctx context.Context) {
	if p.urlErr != nil {
		p.report(Event{Status: StatusDisconnected, Err: p.urlErr})
		return
	}
	p.report(Event{Status: StatusConnecting})

	conn, resp, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		ev := Event{Status: StatusDisconnected, Err: err}
		if resp != nil {
			ev.Code = resp.StatusCode
			ev.Reason = resp.Status
		}
		p.log.Warn("dial failed", zap.String("url", p.url), zap.Error(err))
		p.report(ev)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.unsub = append(p.unsub,
		p.doc.OnUpdate(func(update []byte, origin any) {
			if origin == p {
				return
			}
			p.enqueue(FrameUpdate, update)
		}),
		p.aw.Observe(func(ch presence.Change) {
			if !ch.Local {
				return
			}
			upd, err := p.aw.EncodeUpdate(p.aw.ClientID())
			if err != nil {
				p.log.Error("encode awareness", zap.Error(err))
				return
			}
			p.enqueue(FrameAwareness, upd)
		}),
	)
	p.mu.Unlock()

	if state, err := p.doc.EncodeState(); err == nil {
		p.enqueue(FrameSync, state)
	}
	if upd, err := p.aw.EncodeUpdate(p.aw.ClientID()); err == nil {
		p.enqueue(FrameAwareness, upd)
	}

	go p.writePump(conn)
	p.readPump(conn)
}

func (p *WebsocketProvider) enqueue(t FrameType, payload []byte) {
	data, err := EncodeFrame(t, payload)
	if err != nil {
		p.log.Error("encode frame", zap.Error(err))
		return
	}
	p.mu.Lock()
	conn := p.conn
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.send <- data:
	default:
		// A replica that misses updates cannot converge; drop the
		// connection instead of a frame.
		p.log.Warn("send buffer full, dropping connection")
		if conn != nil {
			conn.Close()
		}
	}
}

func (p *WebsocketProvider) readPump(conn *websocket.Conn) {
	var ev Event
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ev = Event{Status: StatusDisconnected, Err: err}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				ev.Code = ce.Code
				ev.Reason = ce.Text
			}
			break
		}
		f, err := DecodeFrame(data)
		if err != nil {
			p.log.Warn("bad frame", zap.Error(err))
			continue
		}
		switch f.Type {
		case FrameSync, FrameUpdate:
			if err := p.doc.ApplyUpdate(f.Payload, p); err != nil {
				p.log.Warn("apply update", zap.Error(err))
				continue
			}
			if f.Type == FrameSync {
				p.mu.Lock()
				first := !p.synced
				p.synced = true
				p.mu.Unlock()
				if first {
					p.report(Event{Status: StatusConnected})
				}
			}
		case FrameAwareness:
			if err := p.aw.ApplyUpdate(f.Payload, p); err != nil {
				p.log.Warn("apply awareness", zap.Error(err))
			}
		}
	}

	p.mu.Lock()
	wasClosed := p.closed
	p.mu.Unlock()
	p.teardown()
	if !wasClosed {
		p.report(ev)
	}
}

func (p *WebsocketProvider) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// teardown detaches from the document and forgets every remote presence
// state, which is stale once the connection is gone.
func (p *WebsocketProvider) teardown() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}

	var remote []uint64
	for id := range p.aw.States() {
		if id != p.aw.ClientID() {
			remote = append(remote, id)
		}
	}
	p.aw.RemoveStates(remote, p)
}

// Close shuts the connection. It is safe to call more than once.
func (p *WebsocketProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	close(p.done)
	p.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
	p.teardown()
	p.report(Event{Status: StatusDisconnected, Code: websocket.CloseNormalClosure})
	return nil
}
