package repository

import (
	"database/sql"
	"errors"

	"saturuang/internal/room/model"
	"saturuang/pkg/logger"
	"saturuang/store"
)

type RoomRepository struct {
	DB *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{DB: db}
}

const (
	insertRoom   = `INSERT INTO rooms (id, name, join_code, created_by, created_at, max_users) VALUES ($1, $2, $3, $4, $5, $6)`
	insertMember = `INSERT INTO room_members (room_id, user_id, joined_at) VALUES ($1, $2, NOW())
		ON CONFLICT (room_id, user_id) DO NOTHING`
)

// CreateWithMember inserts the room and its creator's membership in one
// transaction. Neither row is kept when either insert fails.
func (r *RoomRepository) CreateWithMember(room model.Room, userID string) (err error) {
	tx, err := r.DB.Begin()
	if err != nil {
		logger.Sugar.Errorf("Failed to begin room creation: %v", err)
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Sugar.Errorf("Failed to roll back room %s: %v", room.ID, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(insertRoom, room.ID, room.Name, room.JoinCode, room.CreatedBy, room.CreatedAt, room.MaxUsers); err != nil {
		logger.Sugar.Errorf("Failed to create room: %v", err)
		return err
	}
	if _, err = tx.Exec(insertMember, room.ID, userID); err != nil {
		logger.Sugar.Errorf("Failed to add member %s to room %s: %v", userID, room.ID, err)
		return err
	}
	if err = tx.Commit(); err != nil {
		logger.Sugar.Errorf("Failed to commit room %s: %v", room.ID, err)
	}
	return err
}

func (r *RoomRepository) JoinCodeExists(code string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow("SELECT EXISTS(SELECT 1 FROM rooms WHERE join_code = $1)", code).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check join code: %v", err)
	}
	return exists, err
}

func (r *RoomRepository) AddMember(roomID, userID string) error {
	_, err := r.DB.Exec(insertMember, roomID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to add member %s to room %s: %v", userID, roomID, err)
	}
	return err
}

const roomColumns = "id, name, join_code, max_users, created_at, created_by"

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (model.Room, error) {
	var room model.Room
	var createdBy sql.NullString
	err := s.Scan(&room.ID, &room.Name, &room.JoinCode, &room.MaxUsers, &room.CreatedAt, &createdBy)
	room.CreatedBy = createdBy.String
	return room, err
}

// GetByJoinCode returns sql.ErrNoRows when no room has the code.
func (r *RoomRepository) GetByJoinCode(code string) (model.Room, error) {
	room, err := scanRoom(r.DB.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE join_code = $1", code))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Sugar.Errorf("Failed to get room by join code: %v", err)
	}
	return room, err
}

// GetByID returns sql.ErrNoRows when the room does not exist.
func (r *RoomRepository) GetByID(roomID string) (model.Room, error) {
	room, err := scanRoom(r.DB.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE id = $1", roomID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Sugar.Errorf("Failed to get room %s: %v", roomID, err)
	}
	return room, err
}

func (r *RoomRepository) ListForUser(userID string) ([]model.Room, error) {
	rows, err := r.DB.Query(`
		SELECT r.id, r.name, r.join_code, r.max_users, r.created_at, r.created_by
		FROM rooms r JOIN room_members m ON r.id = m.room_id
		WHERE m.user_id = $1
		ORDER BY r.created_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list rooms for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	rooms := []model.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *RoomRepository) Members(roomID string) ([]model.MemberResponse, error) {
	rows, err := r.DB.Query(`
		SELECT u.id, u.email, m.joined_at
		FROM room_members m JOIN auth.users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.joined_at ASC`, roomID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get members of room %s: %v", roomID, err)
		return nil, err
	}
	defer rows.Close()

	members := []model.MemberResponse{}
	for rows.Next() {
		var m model.MemberResponse
		if err := rows.Scan(&m.UserID, &m.Email, &m.JoinedAt); err == nil {
			members = append(members, m)
		}
	}
	return members, rows.Err()
}

func (r *RoomRepository) Delete(roomID string) error {
	_, err := r.DB.Exec("DELETE FROM rooms WHERE id = $1", roomID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete room %s: %v", roomID, err)
	}
	return err
}

// RoomAccess returns the user cap of a room the user belongs to.
func (r *RoomRepository) RoomAccess(roomID, userID string) (int, error) {
	var maxUsers int
	var member bool
	err := r.DB.QueryRow(`
		SELECT r.max_users, EXISTS(SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $2)
		FROM rooms r WHERE r.id = $1`, roomID, userID).Scan(&maxUsers, &member)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrRoomNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to check access for user %s on room %s: %v", userID, roomID, err)
		return 0, err
	}
	if !member {
		return 0, model.ErrNotMember
	}
	return maxUsers, nil
}

// GetSnapshot returns sql.ErrNoRows when the room was never saved.
func (r *RoomRepository) GetSnapshot(roomID string) (store.Snapshot, error) {
	snap := store.Snapshot{RoomID: roomID}
	err := r.DB.QueryRow("SELECT state, updated_at FROM room_documents WHERE room_id = $1", roomID).
		Scan(&snap.State, &snap.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Sugar.Errorf("Failed to load snapshot of room %s: %v", roomID, err)
	}
	return snap, err
}

// LoadSnapshot returns the saved document state, or nil for a new room.
func (r *RoomRepository) LoadSnapshot(roomID string) ([]byte, error) {
	snap, err := r.GetSnapshot(roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.State, nil
}

func (r *RoomRepository) SaveSnapshot(roomID string, state []byte) error {
	_, err := r.DB.Exec(`INSERT INTO room_documents (room_id, state, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (room_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`, roomID, state)
	if err != nil {
		logger.Sugar.Errorf("Failed to save snapshot of room %s: %v", roomID, err)
	}
	return err
}
