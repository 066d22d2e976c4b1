package main

import (
	"os"

	_ "boardsync/docs"
	"boardsync/internal/config"
	"boardsync/internal/logging"
	"boardsync/internal/server"
)

// @title           Board Sync API
// @version         1.0
// @description     Collaborative Kanban boards with optimistic updates and realtime board rooms.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @schemes http
func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	s, err := server.Init(cfg, logger)
	if err != nil {
		logger.Error("server initialization failed", "error", err)
		os.Exit(1)
	}

	s.Run()
}
