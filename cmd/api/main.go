package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"npcforge/internal/config"
	"npcforge/internal/generation"
	"npcforge/internal/handlers"
	"npcforge/internal/ledger"
	"npcforge/internal/logger"
	"npcforge/internal/middleware"
	"npcforge/internal/search"
	"npcforge/internal/storage"
	ws "npcforge/internal/websocket"
)

func main() {
	log, err := logger.New(gin.Mode() != gin.ReleaseMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("cannot load config", zap.Error(err))
	}

	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		log.Fatal("cannot connect to database", zap.Error(err))
	}
	defer db.Close()
	log.Info("connected to database")

	// Clients are constructed here and injected; nothing initializes
	// lazily at first use.
	audit := logger.NewAudit(cfg.AuditLogPath)
	defer audit.Sync()

	tokenLedger := ledger.NewPostgresLedger(db, audit)
	chatClient := generation.NewChatClient(cfg.GenerationBaseURL, cfg.GenerationAPIKey)
	orchestrator := generation.NewOrchestrator(
		tokenLedger,
		chatClient,
		cfg.GenerationModel,
		time.Duration(cfg.GenerationTimeout)*time.Second,
		log,
	)
	images := storage.NewImageStore(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket)
	index := search.NewPostgresIndex(db)

	hub := ws.NewHub(log)
	go hub.Run()

	userHandler := handlers.NewUserHandler(db, cfg.IdentityWebhookSecret, log)
	npcHandler := handlers.NewNPCHandler(db, index, images, log)
	generationHandler := handlers.NewGenerationHandler(orchestrator, log)
	paymentHandler := handlers.NewPaymentHandler(db, tokenLedger, cfg.StripeSecretKey, cfg.StripeWebhookSecret, hub, log)
	wsHandler := handlers.NewWebSocketHandler(hub, cfg.JWTSecret, log)

	generationLimiter := middleware.NewRateLimiter(cfg.GenerationRatePerMinute)

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		// Public reads.
		api.GET("/npcs", npcHandler.ListNPCs)
		api.GET("/npcs/search", npcHandler.SearchNPCs)
		api.GET("/npcs/trending", npcHandler.TrendingNPCs)
		api.GET("/npcs/:npcId", npcHandler.GetNPC)
		api.POST("/npcs/:npcId/views", npcHandler.IncrementViews)
		api.GET("/authors/:authorId/npcs", npcHandler.GetNPCsByAuthor)
		api.GET("/users/top", userHandler.GetTopAuthors)
		api.GET("/users/:clerkId", userHandler.GetUser)

		// Provider callbacks, verified by signature rather than session.
		api.POST("/webhook/identity", userHandler.HandleIdentityWebhook)
		api.POST("/webhook/payments", paymentHandler.HandleWebhook)

		// Credit alert stream, token-authenticated on upgrade.
		api.GET("/ws", wsHandler.ServeWs)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			protected.GET("/me", userHandler.GetMe)
			protected.POST("/npcs", npcHandler.CreateNPC)
			protected.DELETE("/npcs/:npcId", npcHandler.DeleteNPC)
			protected.POST("/npcs/portrait", npcHandler.UploadPortrait)
			protected.POST("/generate", generationLimiter.Middleware(), generationHandler.GenerateNPC)
			protected.POST("/payments/intent", paymentHandler.CreateIntent)
			protected.POST("/payments/confirm", paymentHandler.Confirm)
		}
	}

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("could not start server", zap.Error(err))
	}
}
