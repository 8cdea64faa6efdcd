package collab

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saturuang/internal/collab/model"
)

func TestSetMemberRole(t *testing.T) {
	_, host, guest := hostAndGuest(t)

	assert.True(t, host.SetMemberRole(guestID, model.RoleEditor))
	assert.Equal(t, model.RoleEditor, guest.MyRole())

	assert.False(t, host.SetMemberRole(guestID, model.RoleHost))
	assert.False(t, host.SetMemberRole(guestID, model.Role("owner")))
	assert.False(t, host.SetMemberRole(hostID, model.RoleViewer))
	assert.False(t, host.SetMemberRole("", model.RoleEditor))
	assert.False(t, guest.SetMemberRole(otherID, model.RoleEditor))

	assert.Equal(t, model.RoleEditor, host.RoleOf(guestID))
	assert.Equal(t, model.RoleHost, host.MyRole())
	assert.Equal(t, model.RoleViewer, host.RoleOf(otherID))
}

func TestStaleHostRoleReadsAsViewer(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	guest.Doc().Map(RolesMap).Set(guestID, string(model.RoleHost))

	assert.Equal(t, model.RoleViewer, guest.MyRole())
	assert.False(t, guest.IsHost())
	assert.Equal(t, model.RoleViewer, host.Roles()[guestID])
	assert.Equal(t, model.RoleHost, host.Roles()[hostID])
}

func TestGuestCannotChangeHostSettings(t *testing.T) {
	_, host, guest := hostAndGuest(t)

	assert.False(t, guest.SetShareTreeEnabled(true))
	assert.False(t, guest.SetShareRoots([]string{"/"}))
	assert.False(t, guest.SetHidePatterns([]string{"*.log"}))
	assert.False(t, guest.SetExcludePatterns([]string{"*.env"}))
	assert.False(t, guest.SetDocPermission("/a.go", guestID, model.LevelEdit))
	assert.False(t, guest.ClearDocPermission("/a.go", guestID))
	assert.False(t, guest.SetTerminalShared(true))
	assert.False(t, guest.SetTerminalInput(true, model.AnyGuest))
	assert.False(t, guest.GrantTerminalRequest(guestID))
	assert.False(t, guest.RevokeTerminalControl())
	assert.Nil(t, guest.DrainTerminalInput())

	assert.Equal(t, model.VisibilityPolicy{ShareRoots: []string{}, HidePatterns: []string{}, ExcludePatterns: []string{}}, host.Visibility())
	assert.Equal(t, model.TerminalPolicy{}, host.TerminalPolicy())
	assert.Empty(t, host.DocPermissions("/a.go"))
}

func TestVisibilityIsClosedByDefault(t *testing.T) {
	_, host, guest := hostAndGuest(t)

	assert.Equal(t, model.PathAccess{Reason: model.ReasonTreeNotShared}, guest.PathAccess("/src/main.go"))
	assert.False(t, guest.CanView("/src/main.go"))
	assert.True(t, host.PathAccess("/src/main.go").OK)
	assert.True(t, host.CanEdit("/src/main.go"))
	assert.Equal(t, model.ReasonTreeNotShared, host.PathAccessFor("/src/main.go", guestID).Reason)
}

func TestVisibilityRules(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetShareTreeEnabled(true))
	require.True(t, host.SetShareRoots([]string{" /src/ ", "", `\docs`}))
	require.True(t, host.SetExcludePatterns([]string{"**/secrets/**", " "}))
	require.True(t, host.SetHidePatterns([]string{"*.LOG"}))

	vis := guest.Visibility()
	assert.True(t, vis.ShareTreeEnabled)
	assert.Equal(t, []string{"/src", "/docs"}, vis.ShareRoots)
	assert.Equal(t, []string{"**/secrets/**"}, vis.ExcludePatterns)

	tests := []struct {
		path string
		want model.PathAccess
	}{
		{"/src/main.go", model.PathAccess{OK: true}},
		{"/docs/readme.md", model.PathAccess{OK: true}},
		{"/srcx/main.go", model.PathAccess{Reason: model.ReasonOutsideSharedRoots}},
		{"/etc/passwd", model.PathAccess{Reason: model.ReasonOutsideSharedRoots}},
		{"/src/secrets/key.pem", model.PathAccess{Reason: model.ReasonExcluded}},
		{"/src/build/out.log", model.PathAccess{Reason: model.ReasonHidden}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, guest.PathAccess(tt.path))
			assert.Equal(t, tt.want, host.PathAccessFor(tt.path, guestID))
			assert.True(t, host.PathAccess(tt.path).OK)
		})
	}

	listing := []string{"/src/main.go", "/src/secrets/key.pem", "/src/app.log", "/docs/a.md"}
	assert.Equal(t, []string{"/src/main.go", "/docs/a.md"}, guest.FilterVisible(listing))
	assert.Equal(t, listing, host.FilterVisible(listing))

	require.True(t, host.SetShareRoots(nil))
	assert.True(t, guest.PathAccess("/etc/passwd").OK)
}

func TestPermissionCeilings(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetShareTreeEnabled(true))

	// A viewer never exceeds view, whatever the grant.
	require.True(t, host.SetDocPermission("/a.go", guestID, model.LevelManage))
	assert.Equal(t, model.LevelView, guest.EffectiveLevel("/a.go", guestID))
	assert.True(t, guest.CanView("/a.go"))
	assert.False(t, guest.CanEdit("/a.go"))

	require.True(t, host.SetMemberRole(guestID, model.RoleEditor))
	assert.Equal(t, model.LevelEdit, guest.EffectiveLevel("/a.go", guestID))
	assert.True(t, guest.CanEdit("/a.go"))

	require.True(t, host.SetDocPermission("/a.go", guestID, model.LevelNone))
	assert.Equal(t, model.LevelNone, guest.EffectiveLevel("/a.go", guestID))
	assert.False(t, guest.CanView("/a.go"))

	require.True(t, host.ClearDocPermission("/a.go", guestID))
	_, ok := guest.ACL("/a.go", guestID)
	assert.False(t, ok)
	assert.Equal(t, model.LevelEdit, guest.EffectiveLevel("/a.go", guestID))
	assert.False(t, guest.Doc().Map(DocPermsMap).Has("/a.go"))

	assert.False(t, host.SetDocPermission("", guestID, model.LevelView))
	assert.False(t, host.SetDocPermission("/a.go", guestID, model.Level(9)))
	assert.Equal(t, model.LevelManage, guest.EffectiveLevel("/a.go", hostID))
}

func TestDocPermissionsShareOneEntryPerPath(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetDocPermission(`\src\a.go`, guestID, model.LevelView))
	require.True(t, host.SetDocPermission("/src/a.go", otherID, model.LevelEdit))

	assert.Equal(t, map[string]model.Level{guestID: model.LevelView, otherID: model.LevelEdit}, guest.DocPermissions("/src/a.go"))

	require.True(t, host.ClearDocPermission("/src/a.go", otherID))
	assert.Equal(t, map[string]model.Level{guestID: model.LevelView}, guest.DocPermissions("/src/a.go"))
}

func TestEditRequestApproval(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetShareTreeEnabled(true))

	require.True(t, guest.RequestEdit("/src/main.go"))
	assert.False(t, guest.RequestEdit("/src/main.go"))
	assert.False(t, host.RequestEdit("/src/main.go"))

	reqs := host.EditRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/src/main.go", reqs[0].Path)
	assert.Equal(t, model.Requester{UserID: guestID, Name: "Gilang"}, reqs[0].RequestedBy)
	assert.NotZero(t, reqs[0].CreatedAt)

	assert.False(t, guest.ResolveEditRequest(reqs[0].ID, true))
	assert.False(t, host.ResolveEditRequest("missing", true))

	require.True(t, host.ResolveEditRequest(reqs[0].ID, true))
	assert.Empty(t, guest.EditRequests())
	assert.Equal(t, model.RoleEditor, guest.MyRole())
	level, ok := guest.ACL("/src/main.go", guestID)
	require.True(t, ok)
	assert.Equal(t, model.LevelEdit, level)
	assert.True(t, guest.CanEdit("/src/main.go"))

	// Nothing left to ask for.
	assert.False(t, guest.RequestEdit("/src/main.go"))
}

func TestEditApprovalPromotesRoomWide(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetShareTreeEnabled(true))
	require.True(t, host.SetDocPermission("/src/config.go", guestID, model.LevelView))

	require.True(t, guest.RequestEdit("/src/main.go"))
	require.True(t, host.ResolveEditRequest(host.EditRequests()[0].ID, true))

	// The role change reaches paths nobody asked about.
	assert.True(t, guest.CanEdit("/src/main.go"))
	assert.True(t, guest.CanEdit("/src/util.go"))
	// Explicit grants still hold.
	assert.False(t, guest.CanEdit("/src/config.go"))

	// Demoting afterwards caps every path at view again.
	require.True(t, host.SetMemberRole(guestID, model.RoleViewer))
	assert.False(t, guest.CanEdit("/src/util.go"))
	assert.Equal(t, model.LevelView, guest.EffectiveLevel("/src/main.go", guestID))
}

func TestEditRequestDenialAllowsRetry(t *testing.T) {
	n, host, _ := hostAndGuest(t)
	other := n.open(t, "room-1", otherID, "Oki").Room()

	require.True(t, other.RequestEdit("/notes.md"))
	reqs := host.EditRequests()
	require.Len(t, reqs, 1)

	require.True(t, host.ResolveEditRequest(reqs[0].ID, false))
	assert.Empty(t, other.EditRequests())
	assert.Equal(t, model.RoleViewer, other.MyRole())
	assert.Empty(t, other.DocPermissions("/notes.md"))

	assert.True(t, other.RequestEdit("/notes.md"))
}

func TestEditRequestsOldestFirst(t *testing.T) {
	n, host, guest := hostAndGuest(t)
	other := n.open(t, "room-1", otherID, "Oki").Room()

	require.True(t, guest.RequestEdit("/b.go"))
	require.True(t, other.RequestEdit("/a.go"))
	require.True(t, guest.RequestEdit("/a.go"))
	host.Doc().Array(EditRequestsArray).Push("garbage")

	reqs := host.EditRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/b.go", reqs[0].Path)
	assert.Equal(t, otherID, reqs[1].RequestedBy.UserID)
	assert.Equal(t, guestID, reqs[2].RequestedBy.UserID)
}

func TestTerminalStateTransitions(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	assert.Equal(t, model.TerminalState{Mode: model.TerminalNotShared}, guest.TerminalState())

	assert.False(t, host.SetTerminalInput(true, guestID))

	require.True(t, host.SetTerminalShared(true))
	assert.Equal(t, model.TerminalState{Mode: model.TerminalSharedReadOnly}, guest.TerminalState())
	assert.False(t, guest.CanSendTerminalInput())

	require.True(t, host.SetTerminalInput(true, model.AnyGuest))
	assert.Equal(t, model.TerminalState{Mode: model.TerminalSharedWithController, Controller: model.AnyGuest}, guest.TerminalState())
	assert.True(t, guest.CanSendTerminalInput())
	assert.False(t, host.CanSendTerminalInput())

	require.True(t, host.SetTerminalInput(true, ""))
	assert.Equal(t, model.TerminalSharedReadOnly, guest.TerminalState().Mode)
	assert.False(t, guest.CanSendTerminalInput())

	require.True(t, host.SetTerminalInput(false, guestID))
	assert.Equal(t, model.TerminalPolicy{Shared: true}, guest.TerminalPolicy())

	require.True(t, host.GrantTerminalRequest(guestID))
	require.True(t, host.SetTerminalShared(false))
	assert.Equal(t, model.TerminalPolicy{}, guest.TerminalPolicy())

	// Sharing again starts read-only.
	require.True(t, host.SetTerminalShared(true))
	assert.Equal(t, model.TerminalPolicy{Shared: true}, guest.TerminalPolicy())
}

func TestTerminalControlRequests(t *testing.T) {
	n, host, guest := hostAndGuest(t)
	other := n.open(t, "room-1", otherID, "Oki").Room()
	require.True(t, host.SetTerminalShared(true))

	assert.False(t, host.RequestTerminalControl())
	require.True(t, guest.RequestTerminalControl())
	assert.False(t, guest.RequestTerminalControl())
	require.True(t, other.RequestTerminalControl())

	queue := host.TerminalRequests()
	require.Len(t, queue, 2)
	assert.Equal(t, guestID, queue[0].UserID)
	assert.Equal(t, "Gilang", queue[0].Name)

	require.True(t, host.GrantNextTerminalRequest())
	assert.Equal(t, model.TerminalState{Mode: model.TerminalSharedWithController, Controller: guestID}, other.TerminalState())
	assert.True(t, guest.CanSendTerminalInput())
	assert.False(t, other.CanSendTerminalInput())

	queue = host.TerminalRequests()
	require.Len(t, queue, 1)
	assert.Equal(t, otherID, queue[0].UserID)

	require.True(t, host.DenyTerminalRequest(queue[0].ID))
	assert.False(t, host.DenyTerminalRequest(queue[0].ID))
	assert.Empty(t, host.TerminalRequests())
	assert.Equal(t, guestID, host.TerminalPolicy().ControllerUserID)
	assert.False(t, host.GrantNextTerminalRequest())

	require.True(t, host.RevokeTerminalControl())
	assert.Equal(t, model.TerminalState{Mode: model.TerminalSharedReadOnly}, guest.TerminalState())
	assert.False(t, guest.CanSendTerminalInput())

	assert.False(t, host.GrantTerminalRequest(hostID))
	assert.False(t, host.GrantTerminalRequest(""))
}

func TestOnlyTheControllerReachesTheProcess(t *testing.T) {
	n, host, guest := hostAndGuest(t)
	other := n.open(t, "room-1", otherID, "Oki").Room()
	require.True(t, host.SetTerminalShared(true))
	require.True(t, host.GrantTerminalRequest(guestID))

	require.True(t, guest.SendTerminalInput("ls\n"))
	assert.False(t, guest.SendTerminalInput(""))
	assert.False(t, other.SendTerminalInput("rm -rf /\n"))

	// A peer can still write the queue directly; the host filters it out.
	forged := model.InputRecord{ID: "forged", UserID: otherID, Data: "whoami\n", CreatedAt: 1}
	other.Doc().Array(TerminalInputArray).Push(forged.Record(), "not a record")
	require.True(t, guest.SendTerminalInput("pwd\n"))

	got := host.DrainTerminalInput()
	require.Len(t, got, 2)
	assert.Equal(t, "ls\n", got[0].Data)
	assert.Equal(t, "pwd\n", got[1].Data)
	assert.Zero(t, guest.Doc().Array(TerminalInputArray).Len())

	// Input queued under an old grant is dropped once control moves on.
	require.True(t, guest.SendTerminalInput("make\n"))
	require.True(t, host.RevokeTerminalControl())
	assert.Empty(t, host.DrainTerminalInput())
	assert.Zero(t, host.Doc().Array(TerminalInputArray).Len())
}

func TestTerminalOutputMirroring(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	var screen syncBuffer
	viewer := guest.NewTerminalViewer(&screen)
	viewer.Start()
	defer viewer.Stop()

	term := host.TerminalHost()
	n, err := term.Write([]byte("private\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "", guest.Doc().Text(TerminalOutputText).String())

	require.True(t, host.SetTerminalShared(true))
	_, _ = term.Write([]byte("$ ls\n"))
	_, _ = term.Write([]byte("main.go\n"))
	assert.Equal(t, "$ ls\nmain.go\n", screen.String())

	// Guests never mirror, even when they hold a TerminalHost.
	_, _ = guest.TerminalHost().Write([]byte("spoof\n"))
	assert.Equal(t, "$ ls\nmain.go\n", host.Doc().Text(TerminalOutputText).String())

	late := syncBuffer{}
	lateViewer := guest.NewTerminalViewer(&late)
	lateViewer.Start()
	defer lateViewer.Stop()
	assert.Equal(t, "$ ls\nmain.go\n", late.String())
	require.NoError(t, viewer.Err())
}

func TestTerminalOutputIsBounded(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetTerminalShared(true))
	var screen syncBuffer
	viewer := guest.NewTerminalViewer(&screen)
	viewer.Start()
	defer viewer.Stop()

	term := host.TerminalHost()
	xs := strings.Repeat("x", 150_000)
	ys := strings.Repeat("y", 100_000)
	_, _ = term.Write([]byte(xs))
	_, _ = term.Write([]byte(ys))

	out := guest.Doc().Text(TerminalOutputText).String()
	assert.Len(t, out, MaxTerminalOutput)
	assert.Equal(t, strings.Repeat("x", 100_000)+ys, out)
	assert.Equal(t, xs+ys, screen.String())
}

func TestTerminalOutputCapCountsCharacters(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetTerminalShared(true))
	var screen syncBuffer
	viewer := guest.NewTerminalViewer(&screen)
	viewer.Start()
	defer viewer.Stop()

	// Every write ends mid-character.
	raw := []byte("a" + strings.Repeat("€", MaxTerminalOutput))
	term := host.TerminalHost()
	for len(raw) > 0 {
		n := min(len(raw), 4096)
		_, _ = term.Write(raw[:n])
		raw = raw[n:]
	}

	out := guest.Doc().Text(TerminalOutputText).String()
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, MaxTerminalOutput, utf8.RuneCountInString(out))
	assert.Equal(t, strings.Repeat("€", MaxTerminalOutput), out)
	assert.Equal(t, "a"+strings.Repeat("€", MaxTerminalOutput), screen.String())

	// A single write larger than the cap keeps its tail.
	_, _ = term.Write([]byte(strings.Repeat("z", MaxTerminalOutput+10)))
	out = guest.Doc().Text(TerminalOutputText).String()
	assert.Equal(t, strings.Repeat("z", MaxTerminalOutput), out)
	assert.True(t, strings.HasSuffix(screen.String(), "€"+strings.Repeat("z", MaxTerminalOutput)))
}

func TestTerminalPump(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	require.True(t, host.SetTerminalShared(true))
	require.True(t, host.GrantTerminalRequest(guestID))
	require.True(t, guest.SendTerminalInput("echo one\n"))

	ctx, cancel := context.WithCancel(context.Background())
	var process syncBuffer
	done := make(chan error, 1)
	go func() { done <- host.TerminalHost().Pump(ctx, &process) }()

	require.Eventually(t, func() bool { return process.String() == "echo one\n" }, time.Second, 5*time.Millisecond)
	require.True(t, guest.SendTerminalInput("echo two\n"))
	require.Eventually(t, func() bool { return process.String() == "echo one\necho two\n" }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestChatIsBounded(t *testing.T) {
	_, host, guest := hostAndGuest(t)

	assert.False(t, guest.SendChat("   "))
	for i := 0; i < MaxChatMessages+5; i++ {
		require.True(t, guest.SendChat(fmt.Sprintf("msg %d", i)))
	}
	require.True(t, host.SendChat("last"))

	msgs := guest.ChatMessages()
	require.Len(t, msgs, MaxChatMessages)
	assert.Equal(t, "msg 6", msgs[0].Text)
	assert.Equal(t, "last", msgs[len(msgs)-1].Text)
	assert.Equal(t, hostID, msgs[len(msgs)-1].UserID)
	assert.Equal(t, "Hana", msgs[len(msgs)-1].Name)
	assert.Len(t, msgs[0].ID, 26)
	assert.Equal(t, MaxChatMessages, host.Doc().Array(ChatArray).Len())
}

func TestChatMessagesOrderByCreation(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	log := host.Doc().Array(ChatArray)
	log.Push(
		model.ChatMessage{ID: "c", UserID: hostID, Text: "third", CreatedAt: 30}.Record(),
		model.ChatMessage{ID: "a", UserID: guestID, Text: "first", CreatedAt: 10}.Record(),
		model.ChatMessage{ID: "b2", UserID: guestID, Text: "second", CreatedAt: 20}.Record(),
		model.ChatMessage{ID: "b1", UserID: hostID, Text: "also second", CreatedAt: 20}.Record(),
	)

	var texts []string
	for _, msg := range guest.ChatMessages() {
		texts = append(texts, msg.Text)
	}
	assert.Equal(t, []string{"first", "second", "also second", "third"}, texts)
}

func TestMembersOrdering(t *testing.T) {
	n, host, _ := hostAndGuest(t)
	n.open(t, "room-1", otherID, "oki")
	// Known from roles only.
	host.Doc().Map(RolesMap).Set("u-zed", string(model.RoleEditor))

	members := host.Members()
	require.Len(t, members, 4)
	assert.Equal(t, model.Member{UserID: hostID, Name: "Hana", Color: ColorFor(hostID), Role: model.RoleHost, Online: true}, members[0])
	assert.Equal(t, guestID, members[1].UserID)
	assert.Equal(t, "Guest-u-ze", members[2].Name)
	assert.False(t, members[2].Online)
	assert.Equal(t, model.RoleEditor, members[2].Role)
	assert.Equal(t, otherID, members[3].UserID)
	assert.True(t, members[3].Online)
}

func TestWatchDeliversSnapshots(t *testing.T) {
	_, host, guest := hostAndGuest(t)
	var snaps []model.Snapshot
	cancel := guest.Watch(func(s model.Snapshot) { snaps = append(snaps, s) })

	require.True(t, host.SetShareTreeEnabled(true))
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.True(t, last.Visibility.ShareTreeEnabled)
	assert.Equal(t, hostID, last.HostID)
	assert.Equal(t, model.RoleViewer, last.MyRole)

	cancel()
	seen := len(snaps)
	require.True(t, host.SendChat("after"))
	assert.Len(t, snaps, seen)
}

func TestPairingSession(t *testing.T) {
	_, host, guest := hostAndGuest(t)

	require.True(t, host.SetShareTreeEnabled(true))
	require.True(t, host.SetExcludePatterns([]string{"**/secrets/**"}))
	assert.Equal(t, []string{"/app/main.go"}, guest.FilterVisible([]string{"/app/main.go", "/app/secrets/key.pem"}))

	require.True(t, guest.RequestEdit("/app/main.go"))
	require.True(t, host.ResolveEditRequest(host.EditRequests()[0].ID, true))
	assert.True(t, guest.CanEdit("/app/main.go"))
	assert.False(t, guest.CanView("/app/secrets/key.pem"))

	require.True(t, host.SetTerminalShared(true))
	var screen syncBuffer
	viewer := guest.NewTerminalViewer(&screen)
	viewer.Start()
	defer viewer.Stop()
	_, _ = host.TerminalHost().Write([]byte("$ "))

	require.True(t, guest.RequestTerminalControl())
	require.True(t, host.GrantNextTerminalRequest())
	require.True(t, guest.SendTerminalInput("go test ./...\n"))
	got := host.DrainTerminalInput()
	require.Len(t, got, 1)
	_, _ = host.TerminalHost().Write([]byte(got[0].Data + "ok\n"))
	assert.Equal(t, "$ go test ./...\nok\n", screen.String())

	require.True(t, guest.SendChat("tests pass"))
	snap := host.Snapshot()
	assert.Equal(t, model.RoleEditor, snap.Roles[guestID])
	assert.Equal(t, model.TerminalState{Mode: model.TerminalSharedWithController, Controller: guestID}, snap.Terminal.State())
	require.Len(t, snap.ChatMessages, 1)
	assert.Len(t, snap.Members, 2)
}
