package main

import (
	"net/http"

	"saturuang/config"
	"saturuang/config/database"
	"saturuang/internal/room/repository"
	"saturuang/pkg/logger"
	"saturuang/router"
	"saturuang/socket"
)

func main() {
	envErr := config.LoadEnv()
	logger.Init(config.LogLevel())
	defer logger.Log.Sync()
	if envErr != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	cfg := config.FromEnv()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Sugar.Fatalf("Database unavailable: %v", err)
	}
	defer db.Close()

	hub := socket.NewHub(repository.NewRoomRepository(db), cfg.SaveInterval)
	go hub.Run()
	go hub.SaveWorker()

	handler := router.Setup(cfg, db, hub)

	logger.Sugar.Infof("Room relay listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
