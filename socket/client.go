package socket

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"saturuang/internal/provider"
	"saturuang/internal/room/model"
	"saturuang/pkg/logger"
)

const maxFrameSize = 8 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Desktop and dev-server clients connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "Missing room parameter", http.StatusBadRequest)
		return
	}

	maxUsers, err := hub.store.RoomAccess(roomID, userID)
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		logger.Sugar.Warnf("Connection rejected: room %s not found", roomID)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, model.ErrNotMember):
		logger.Sugar.Warnf("Connection rejected: user %s is not in room %s", userID, roomID)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case err != nil:
		logger.Sugar.Errorf("Database error checking room access: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := &Client{
		Hub:          hub,
		Conn:         conn,
		RoomID:       roomID,
		UserID:       userID,
		MaxUsers:     maxUsers,
		Send:         make(chan []byte, 256),
		awarenessIDs: make(map[uint64]struct{}),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		frame, err := provider.DecodeFrame(raw)
		if err != nil {
			logger.Sugar.Errorf("Error decoding frame from %s: %v", c.UserID, err)
			continue
		}

		// Room policy (roles, visibility, terminal control) lives in the
		// replicated state and is enforced by the clients; the relay only
		// merges and forwards.
		c.Hub.Broadcast <- Message{RoomID: c.RoomID, Sender: c, Frame: frame}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				code, text := c.closeCode, c.closeText
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := c.Conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
