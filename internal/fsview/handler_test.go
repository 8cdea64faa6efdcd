package fsview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
	roommodel "saturuang/internal/room/model"
	"saturuang/middleware"
)

type fakeGates struct {
	vis     model.VisibilityPolicy
	hostID  string
	members map[string]bool
}

func (f *fakeGates) PathGate(roomID, userID string) (func(path string) model.PathAccess, error) {
	if roomID != "room-1" {
		return nil, roommodel.ErrRoomNotFound
	}
	if !f.members[userID] {
		return nil, roommodel.ErrNotMember
	}
	return func(p string) model.PathAccess {
		return policy.PathAccess(f.vis, p, userID != f.hostID)
	}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	b, _ := newTree(t)
	gates := &fakeGates{
		vis:     model.VisibilityPolicy{ShareTreeEnabled: true, ShareRoots: []string{"/src"}},
		hostID:  "host",
		members: map[string]bool{"host": true, "guest": true},
	}
	return NewHandler(b, gates)
}

func get(h http.HandlerFunc, target, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandlerListForGuest(t *testing.T) {
	h := newTestHandler(t)

	rr := get(h.List, "/fs/list?roomId=room-1&path=/src", "guest")
	require.Equal(t, http.StatusOK, rr.Code)
	var listing Listing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, "/src", listing.Path)
	assert.Len(t, listing.Entries, 2)

	rr = get(h.List, "/fs/list?roomId=room-1", "guest")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"detail":"outside_shared_roots"}`, rr.Body.String())
}

func TestHandlerHostSeesEverything(t *testing.T) {
	h := newTestHandler(t)

	rr := get(h.Read, "/fs/read?roomId=room-1&path=README.md", "host")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"path":"/README.md","content":"# demo\n"}`, rr.Body.String())

	rr = get(h.Read, "/fs/read?roomId=room-1&path=README.md", "guest")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerErrors(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name   string
		target string
		user   string
		want   int
	}{
		{"missing room", "/fs/read?path=/src/app.ts", "guest", http.StatusBadRequest},
		{"unknown room", "/fs/read?roomId=nope&path=/src/app.ts", "guest", http.StatusNotFound},
		{"not a member", "/fs/read?roomId=room-1&path=/src/app.ts", "stranger", http.StatusForbidden},
		{"missing path", "/fs/read?roomId=room-1", "host", http.StatusBadRequest},
		{"escape", "/fs/read?roomId=room-1&path=../etc/passwd", "host", http.StatusForbidden},
		{"not a file", "/fs/read?roomId=room-1&path=src", "host", http.StatusBadRequest},
		{"not a dir", "/fs/list?roomId=room-1&path=README.md", "host", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := h.Read
			if tt.target[:8] == "/fs/list" {
				fn = h.List
			}
			assert.Equal(t, tt.want, get(fn, tt.target, tt.user).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/fs/list?roomId=room-1", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
