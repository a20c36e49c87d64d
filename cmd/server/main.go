package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	_ "modernc.org/sqlite"

	"sql-rag-platform/internal/ai"
	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/logger"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
	"sql-rag-platform/internal/telemetry"
	"sql-rag-platform/internal/vectorstore"
	"sql-rag-platform/middleware"
	"sql-rag-platform/models"
	"sql-rag-platform/routes"
	"sql-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitTracer("sql-rag-platform", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis powers rate limiting and the task queue; the server still
	// works without it, minus those two features.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and async tasks disabled", "error", err)
		rdb = nil
	}

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.EmbeddingsModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	source, err := sqlsource.Open(cfg.SQLDriver, cfg.SQLDSN)
	if err != nil {
		log.Fatal("Failed to connect to SQL source:", err)
	}
	defer source.Close()

	documentsIndex := vectorstore.New("documents", cfg.VectorstoreDir, gemini)
	sqlRecordsIndex := vectorstore.New("sqlrecords", cfg.VectorstoreDir, gemini)

	users := models.NewUserStore(db)
	documents := models.NewDocumentStore(db)
	llmConfigs := models.NewLLMConfigStore(db)
	queryLogs := models.NewQueryLogStore(db)
	audit := models.NewAuditLogger(db)

	llm := ai.NewLLMService(gemini, llmConfigs, cfg.GeminiModel, cfg.LLMTemperature)
	syncSvc := services.NewSyncService(sqlRecordsIndex, rag.Estimator{}, cfg.Sync)
	docSvc := services.NewDocumentService(cfg.Documents, cfg.ChunkSize, cfg.Overlap, documents, documentsIndex, services.NewExtractor(), audit)
	querySvc := services.NewQueryService(sqlRecordsIndex, documentsIndex, source, llm, queryLogs)
	exportSvc := services.NewExportService(queryLogs)

	var tasks *asynq.Client
	if rdb != nil {
		tasks = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer tasks.Close()
	}

	cron := services.NewCronService(cfg.SyncCron, func(ctx context.Context) error {
		progress, err := syncSvc.Sync(ctx, source, 0)
		if progress != nil {
			metrics.RecordSync(string(progress.Status), progress.IndexedChunks)
		}
		return err
	})
	if err := cron.Start(); err != nil {
		logger.Warn("scheduled sync not started", "error", err)
	}
	defer cron.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.MetricsMiddleware(metrics))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	roleMiddleware := middleware.NewRoleMiddleware()

	api := router.Group("/api")
	api.Use(middleware.EnrichTrace())
	routes.NewAuthHandler(cfg, users, audit).Register(api, authMiddleware, roleMiddleware)
	routes.NewQueryHandler(querySvc, metrics).Register(api, authMiddleware)
	routes.NewDocumentHandler(docSvc, documents, tasks).Register(api, authMiddleware, roleMiddleware)
	routes.NewAdminHandler(syncSvc, source, exportSvc, llmConfigs, queryLogs, audit, tasks).Register(api, authMiddleware, roleMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	logger.Info("server exited")
}
