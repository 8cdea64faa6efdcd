// Package provider connects a replicated document and its presence channel
// to other replicas of the same room.
package provider

import (
	"fmt"
	"sort"
	"sync"

	"saturuang/pkg/codec"
)

// Status is the connection state reported to subscribers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Event is one status notification. Code and Reason carry the close
// frame or HTTP status when the transport had one.
type Event struct {
	Status Status
	Code   int
	Reason string
	Err    error
}

// FrameType tags what a Frame carries.
type FrameType uint8

const (
	// FrameSync carries a full document state. The first one received on a
	// connection completes the initial sync.
	FrameSync FrameType = iota + 1
	// FrameUpdate carries incremental document operations.
	FrameUpdate
	// FrameAwareness carries presence states.
	FrameAwareness
)

// Frame is the unit exchanged between providers and the relay.
type Frame struct {
	Type    FrameType `cbor:"t"`
	Payload []byte    `cbor:"p"`
}

// EncodeFrame encodes a frame for a binary websocket message.
func EncodeFrame(t FrameType, payload []byte) ([]byte, error) {
	data, err := codec.Marshal(Frame{Type: t, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("provider: encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame decodes a binary websocket message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := codec.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("provider: decode frame: %w", err)
	}
	if f.Type < FrameSync || f.Type > FrameAwareness {
		return Frame{}, fmt.Errorf("provider: unknown frame type %d", f.Type)
	}
	return f, nil
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (l *listeners) subscribe(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
