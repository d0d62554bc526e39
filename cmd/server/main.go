package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quillchat/quill/internal/api/handlers"
	"github.com/quillchat/quill/internal/api/middleware"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/crypto"
	"github.com/quillchat/quill/internal/database"
	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/internal/websocket"
	"github.com/quillchat/quill/pkg/logger"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	} else if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	store := engine.NewSQLStore(db.DB)
	dispatcher := engine.NewDispatcher(store, engine.Options{
		IdempotencyRetention: cfg.IdempotencyRetention,
		SubscriberQueueDepth: cfg.SubscriberQueueDepth,
	})

	logger.Infof("Initializing Socket.IO server...")
	socketIOServer := websocket.NewSocketIOServer(jwtManager, dispatcher)
	defer socketIOServer.Close()

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	router.Use(middleware.LoggingMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.String(200, "Welcome to Quill Server!")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	conversationHandler := handlers.NewConversationHandler(db.DB, dispatcher)
	messageHandler := handlers.NewMessageHandler(db.DB, dispatcher)
	reactionHandler := handlers.NewReactionHandler(dispatcher)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.GET("/conversations", conversationHandler.ListConversations)
		v1.GET("/conversations/:id", conversationHandler.GetConversation)
		v1.GET("/conversations/:id/messages", messageHandler.ListMessages)
		v1.GET("/conversations/:id/events", conversationHandler.ListEvents)

		mutating := v1.Group("")
		mutating.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
		{
			mutating.POST("/conversations", conversationHandler.CreateGroup)
			mutating.POST("/conversations/direct", conversationHandler.CreateDirect)
			mutating.PUT("/conversations/:id/read", conversationHandler.MarkRead)
			mutating.POST("/messages", messageHandler.SendMessage)
			mutating.POST("/messages/:id/reactions", reactionHandler.ToggleReaction)
			mutating.DELETE("/messages/:id/reactions/:emoji", reactionHandler.RemoveReaction)
		}
	}

	// The Socket.IO endpoint is mounted without REST auth; the handshake
	// carries its own token.
	router.Any("/v1/updates", socketIOServer.HandleSocketIO())
	router.Any("/v1/updates/*any", socketIOServer.HandleSocketIO())

	logger.Infof("Quill Server starting on http://localhost%s", cfg.Addr)
	logger.Infof("Database: %s", cfg.DatabasePath)

	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
