package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"saturuang/internal/room/model"
	"saturuang/internal/room/service"
	"saturuang/middleware"
	"saturuang/pkg/logger"
)

type RoomHandler struct {
	Service *service.RoomService
}

func NewRoomHandler(service *service.RoomService) *RoomHandler {
	return &RoomHandler{Service: service}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidJoinCode):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "invalid-code"})
	case errors.Is(err, model.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrNotMember), errors.Is(err, model.ErrNotCreator):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, model.ErrInvalidRoomName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := middleware.UserID(r.Context())

	resp, err := h.Service.CreateRoom(userID, req.Name)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create room: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := middleware.UserID(r.Context())

	resp, err := h.Service.JoinRoom(userID, req.JoinCode)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidJoinCode) {
			logger.Sugar.Errorf("Handler: Failed to join room: %v", err)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RoomHandler) GetRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.UserID(r.Context())

	resp, err := h.Service.ListRooms(userID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching rooms: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RoomHandler) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "Missing roomId parameter", http.StatusBadRequest)
		return
	}

	userID := middleware.UserID(r.Context())

	members, err := h.Service.Members(roomID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "Missing roomId parameter", http.StatusBadRequest)
		return
	}

	userID := middleware.UserID(r.Context())

	if err := h.Service.DeleteRoom(roomID, userID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete room %s: %v", roomID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Room deleted successfully"))
}
