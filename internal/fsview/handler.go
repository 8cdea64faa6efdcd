package fsview

import (
	"encoding/json"
	"errors"
	"net/http"

	"saturuang/internal/collab/model"
	roommodel "saturuang/internal/room/model"
	"saturuang/middleware"
	"saturuang/pkg/logger"
)

// Gates looks up the visibility check of a room for one member.
type Gates interface {
	PathGate(roomID, userID string) (func(path string) model.PathAccess, error)
}

type Handler struct {
	Browser *Browser
	Gates   Gates
}

func NewHandler(browser *Browser, gates Gates) *Handler {
	return &Handler{Browser: browser, Gates: gates}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": string(denied.Reason)})
	case errors.Is(err, ErrOutsideRoot):
		http.Error(w, "Forbidden path", http.StatusForbidden)
	case errors.Is(err, ErrMissingPath), errors.Is(err, ErrNotExist), errors.Is(err, ErrNotDir),
		errors.Is(err, ErrNotFile), errors.Is(err, ErrTooLarge):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, roommodel.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, roommodel.ErrNotMember):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		logger.Sugar.Errorf("Handler: file access failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// gate resolves the caller's visibility check from the roomId parameter.
func (h *Handler) gate(r *http.Request) (Gate, error) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		return nil, errMissingRoom
	}
	g, err := h.Gates.PathGate(roomID, middleware.UserID(r.Context()))
	if err != nil {
		return nil, err
	}
	return g, nil
}

var errMissingRoom = errors.New("missing roomId parameter")

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, fn func(path string, gate Gate) (any, error)) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gate, err := h.gate(r)
	if errors.Is(err, errMissingRoom) {
		http.Error(w, "Missing roomId parameter", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := fn(r.URL.Query().Get("path"), gate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(path string, gate Gate) (any, error) {
		return h.Browser.List(path, gate)
	})
}

func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(path string, gate Gate) (any, error) {
		return h.Browser.Read(path, gate)
	})
}
