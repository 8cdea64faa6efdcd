package collab

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"saturuang/internal/collab/model"
	"saturuang/internal/provider"
)

const (
	hostID  = "u-host"
	guestID = "u-guest"
	otherID = "u-other"
)

// steppingClock returns strictly increasing times, one millisecond apart.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

type testNet struct {
	net *provider.Network
	now func() time.Time
}

func newTestNet() *testNet {
	return &testNet{net: provider.NewNetwork(), now: steppingClock()}
}

func (n *testNet) open(t *testing.T, roomID, userID, name string) *Session {
	t.Helper()
	s, err := Open(context.Background(), Options{
		RoomID:   roomID,
		Identity: model.Identity{UserID: userID, Name: name},
		Dial:     NetworkDialer(n.net),
		Now:      n.now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// hostAndGuest opens a room where the first client has claimed host.
func hostAndGuest(t *testing.T) (*testNet, *Room, *Room) {
	t.Helper()
	n := newTestNet()
	host := n.open(t, "room-1", hostID, "Hana")
	guest := n.open(t, "room-1", guestID, "Gilang")
	require.True(t, host.Room().IsHost())
	require.False(t, guest.Room().IsHost())
	return n, host.Room(), guest.Room()
}

type fakeTransport struct {
	mu        sync.Mutex
	listeners map[int]func(provider.Event)
	next      int
	connects  int
	closes    int
	closeErr  error
}

func (f *fakeTransport) Connect(ctx context.Context) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeTransport) Subscribe(fn func(provider.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func(provider.Event))
	}
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) emit(ev provider.Event) {
	f.mu.Lock()
	fns := make([]func(provider.Event), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
