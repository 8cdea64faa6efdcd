package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saturuang/internal/room/model"
	"saturuang/internal/room/repository"
)

type fakeEvictor struct {
	removed []string
}

func (f *fakeEvictor) RemoveRoom(roomID string) {
	f.removed = append(f.removed, roomID)
}

var roomCols = []string{"id", "name", "join_code", "max_users", "created_at", "created_by"}

func newService(t *testing.T) (*RoomService, sqlmock.Sqlmock, *fakeEvictor) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	hub := &fakeEvictor{}
	svc := NewRoomService(repository.NewRoomRepository(db), hub, "ws://relay.test", 0)
	return svc, mock, hub
}

func TestCreateRoom(t *testing.T) {
	svc, mock, _ := newService(t)
	svc.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO room_members").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.CreateRoom("user-1", "  Pairing  ")
	require.NoError(t, err)

	assert.Equal(t, "Pairing", resp.Name)
	assert.Equal(t, model.DefaultMaxUsers, resp.MaxUsers)
	assert.Equal(t, "ws://relay.test", resp.WSURL)
	assert.Equal(t, "room:"+resp.ID, resp.DocName)
	assert.Len(t, resp.JoinCode, model.JoinCodeLength)
	for _, c := range resp.JoinCode {
		assert.True(t, strings.ContainsRune(model.JoinCodeAlphabet, c), "unexpected join code rune %q", c)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoomRollsBackWithoutMembership(t *testing.T) {
	svc, mock, _ := newService(t)

	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO room_members").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	resp, err := svc.CreateRoom("user-1", "Pairing")
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoomRejectsBadNames(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateRoom("user-1", "   ")
	assert.ErrorIs(t, err, model.ErrInvalidRoomName)

	_, err = svc.CreateRoom("user-1", strings.Repeat("x", model.MaxRoomName+1))
	assert.ErrorIs(t, err, model.ErrInvalidRoomName)
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	svc, mock, _ := newService(t)

	mock.ExpectQuery("FROM rooms WHERE join_code").WithArgs("ABCD2345").
		WillReturnRows(sqlmock.NewRows(roomCols).AddRow("room-1", "Pairing", "ABCD2345", 10, time.Now(), "owner"))
	mock.ExpectExec("INSERT INTO room_members").WithArgs("room-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := svc.JoinRoom("user-2", " abcd2345 ")
	require.NoError(t, err)
	assert.Equal(t, "room-1", resp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRoomUnknownCode(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.ExpectQuery("FROM rooms WHERE join_code").WillReturnRows(sqlmock.NewRows(roomCols))

	_, err := svc.JoinRoom("user-2", "NOPE2345")
	assert.ErrorIs(t, err, model.ErrInvalidJoinCode)

	_, err = svc.JoinRoom("user-2", "  ")
	assert.ErrorIs(t, err, model.ErrInvalidJoinCode)
}

func TestDeleteRoom(t *testing.T) {
	t.Run("creator deletes and evicts", func(t *testing.T) {
		svc, mock, hub := newService(t)
		mock.ExpectQuery("FROM rooms WHERE id").WithArgs("room-1").
			WillReturnRows(sqlmock.NewRows(roomCols).AddRow("room-1", "Pairing", "ABCD2345", 10, time.Now(), "owner"))
		mock.ExpectExec("DELETE FROM rooms").WithArgs("room-1").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.DeleteRoom("room-1", "owner"))
		assert.Equal(t, []string{"room-1"}, hub.removed)
	})

	t.Run("other member is refused", func(t *testing.T) {
		svc, mock, hub := newService(t)
		mock.ExpectQuery("FROM rooms WHERE id").
			WillReturnRows(sqlmock.NewRows(roomCols).AddRow("room-1", "Pairing", "ABCD2345", 10, time.Now(), "owner"))

		assert.ErrorIs(t, svc.DeleteRoom("room-1", "guest"), model.ErrNotCreator)
		assert.Empty(t, hub.removed)
	})

	t.Run("missing room", func(t *testing.T) {
		svc, mock, _ := newService(t)
		mock.ExpectQuery("FROM rooms WHERE id").WillReturnRows(sqlmock.NewRows(roomCols))

		assert.ErrorIs(t, svc.DeleteRoom("gone", "owner"), model.ErrRoomNotFound)
	})
}

func TestMembersRequiresMembership(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.ExpectQuery("SELECT r.max_users").
		WillReturnRows(sqlmock.NewRows([]string{"max_users", "exists"}).AddRow(10, false))

	_, err := svc.Members("room-1", "stranger")
	assert.ErrorIs(t, err, model.ErrNotMember)
}
