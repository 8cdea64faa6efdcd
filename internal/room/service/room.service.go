package service

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"saturuang/internal/room/model"
	"saturuang/internal/room/repository"
)

const maxJoinCodeAttempts = 10

// RoomEvictor drops a deleted room's live state from the relay.
type RoomEvictor interface {
	RemoveRoom(roomID string)
}

type RoomService struct {
	Repo     *repository.RoomRepository
	Hub      RoomEvictor
	WSURL    string
	MaxUsers int
	Now      func() time.Time
}

func NewRoomService(repo *repository.RoomRepository, hub RoomEvictor, wsURL string, maxUsers int) *RoomService {
	if maxUsers <= 0 {
		maxUsers = model.DefaultMaxUsers
	}
	return &RoomService{Repo: repo, Hub: hub, WSURL: wsURL, MaxUsers: maxUsers, Now: time.Now}
}

func (s *RoomService) response(room model.Room) *model.RoomResponse {
	return &model.RoomResponse{Room: room, WSURL: s.WSURL, DocName: model.DocName(room.ID)}
}

func (s *RoomService) CreateRoom(userID, name string) (*model.RoomResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > model.MaxRoomName {
		return nil, model.ErrInvalidRoomName
	}

	code, err := s.uniqueJoinCode()
	if err != nil {
		return nil, err
	}

	room := model.Room{
		ID:        uuid.NewString(),
		Name:      name,
		JoinCode:  code,
		MaxUsers:  s.MaxUsers,
		CreatedAt: s.Now().UTC(),
		CreatedBy: userID,
	}
	if err := s.Repo.CreateWithMember(room, userID); err != nil {
		return nil, err
	}
	return s.response(room), nil
}

func (s *RoomService) JoinRoom(userID, joinCode string) (*model.RoomResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(joinCode))
	if code == "" {
		return nil, model.ErrInvalidJoinCode
	}
	room, err := s.Repo.GetByJoinCode(code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrInvalidJoinCode
	}
	if err != nil {
		return nil, err
	}
	if err := s.Repo.AddMember(room.ID, userID); err != nil {
		return nil, err
	}
	return s.response(room), nil
}

func (s *RoomService) ListRooms(userID string) (*model.RoomListResponse, error) {
	rooms, err := s.Repo.ListForUser(userID)
	if err != nil {
		return nil, err
	}
	return &model.RoomListResponse{WSURL: s.WSURL, Rooms: rooms}, nil
}

func (s *RoomService) Members(roomID, userID string) ([]model.MemberResponse, error) {
	if _, err := s.Repo.RoomAccess(roomID, userID); err != nil {
		return nil, err
	}
	return s.Repo.Members(roomID)
}

func (s *RoomService) DeleteRoom(roomID, userID string) error {
	room, err := s.Repo.GetByID(roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	if room.CreatedBy != userID {
		return model.ErrNotCreator
	}
	if err := s.Repo.Delete(roomID); err != nil {
		return err
	}
	if s.Hub != nil {
		s.Hub.RemoveRoom(roomID)
	}
	return nil
}

func (s *RoomService) uniqueJoinCode() (string, error) {
	for i := 0; i < maxJoinCodeAttempts; i++ {
		code, err := generateJoinCode()
		if err != nil {
			return "", err
		}
		exists, err := s.Repo.JoinCodeExists(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate a unique join code")
}

func generateJoinCode() (string, error) {
	alphabet := model.JoinCodeAlphabet
	limit := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	for i := 0; i < model.JoinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}
