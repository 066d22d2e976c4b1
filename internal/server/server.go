package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boardsync/internal/config"
	"boardsync/internal/database"
	"boardsync/internal/handler"
	"boardsync/internal/middleware"
	"boardsync/internal/realtime"
	"boardsync/internal/repository"
	"boardsync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

type Server struct {
	Engine *gin.Engine
	DB     *gorm.DB
	Hub    *realtime.Hub
	Config *config.Config
	Seeder *service.SeedService
	logger *slog.Logger
}

// Init migrates and connects to the database, then builds the server.
func Init(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.MigrationURL()); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

	s := New(cfg, db, logger)
	if cfg.SeedDemo {
		if err := s.SeedDemo(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SeedDemo creates the demo board and logs how to open it as each user.
func (s *Server) SeedDemo(ctx context.Context) error {
	demo, err := s.Seeder.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed demo board: %w", err)
	}
	for _, seat := range demo.Seats {
		s.logger.Info("demo seat",
			"board_id", demo.Board.ID,
			"user", seat.User.Email,
			"role", seat.Role,
			"token", seat.Token,
		)
	}
	return nil
}

// New wires repositories, the board service, the hub and the routes on db.
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *Server {
	// Repositories
	userRepo := repository.NewUserRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	boardShareRepo := repository.NewBoardShareRepository(db)
	columnRepo := repository.NewColumnRepository(db)
	issueRepo := repository.NewIssueRepository(db)

	hub := realtime.NewHub(realtime.HubConfig{
		PingInterval: cfg.WSPingInterval,
		StaleAfter:   cfg.WSStaleAfter,
		ClientBuffer: cfg.WSClientBuffer,
	}, logger)
	boardService := service.NewBoardService(boardRepo, columnRepo, issueRepo, boardShareRepo, userRepo, hub, logger)
	hub.Bind(boardService)
	seedService := service.NewSeedService(userRepo, boardRepo, columnRepo, boardShareRepo, cfg.JWTSecret, logger)

	// Handlers
	boardHandler := handler.NewBoardHandler(boardService, logger)
	socketHandler := handler.NewSocketHandler(hub, logger)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// Public routes
	r.GET("/healthz", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		authorized.GET("/me", boardHandler.Me)

		// Board routes
		authorized.GET("/boards/ws", socketHandler.Connect)
		authorized.GET("/boards/:id", boardHandler.GetByID)
		authorized.POST("/boards/:id/issues", boardHandler.CreateIssue)
		authorized.POST("/boards/:id/issues/reorder", boardHandler.Reorder)

		// Issue routes
		authorized.PATCH("/issues/:id", boardHandler.UpdateIssue)
		authorized.DELETE("/issues/:id", boardHandler.DeleteIssue)
	}

	return &Server{
		Engine: r,
		DB:     db,
		Hub:    hub,
		Config: cfg,
		Seeder: seedService,
		logger: logger,
	}
}

func (s *Server) Run() {
	srv := &http.Server{
		Addr:              ":" + s.Config.ServerPort,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.Hub.Run(hubCtx)

	go func() {
		s.logger.Info("server running", "port", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to listen", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	s.logger.Info("shutting down server")

	stopHub()
	s.Hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("server forced to shutdown", "error", err)
		return
	}

	s.logger.Info("server exited properly")
}
