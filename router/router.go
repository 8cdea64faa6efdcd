package router

import (
	"database/sql"
	"net/http"

	"saturuang/config"
	"saturuang/internal/fsview"
	roomHandler "saturuang/internal/room"
	"saturuang/internal/room/repository"
	"saturuang/internal/room/service"
	"saturuang/middleware"
	"saturuang/pkg/logger"
	"saturuang/socket"
)

func Setup(cfg config.Config, db *sql.DB, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserID(r.Context()))
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	roomRepo := repository.NewRoomRepository(db)
	roomService := service.NewRoomService(roomRepo, hub, cfg.WSURL, cfg.MaxUsers)
	rooms := roomHandler.NewRoomHandler(roomService)

	mux.Handle("/api/rooms", auth(http.HandlerFunc(rooms.GetRooms)))
	mux.Handle("/api/rooms/create", auth(http.HandlerFunc(rooms.CreateRoom)))
	mux.Handle("/api/rooms/join", auth(http.HandlerFunc(rooms.JoinRoom)))
	mux.Handle("/api/rooms/members", auth(http.HandlerFunc(rooms.GetRoomMembers)))
	mux.Handle("/api/rooms/delete", auth(http.HandlerFunc(rooms.DeleteRoom)))

	// Project files, filtered by each room's visibility rules
	if cfg.FileRoot != "" {
		browser, err := fsview.New(cfg.FileRoot)
		if err != nil {
			logger.Sugar.Errorf("File browsing disabled: %v", err)
		} else {
			files := fsview.NewHandler(browser, hub)
			mux.Handle("/fs/list", auth(http.HandlerFunc(files.List)))
			mux.Handle("/fs/read", auth(http.HandlerFunc(files.Read)))
		}
	}

	return middleware.CORSMiddleware(mux)
}
