package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"
	_ "modernc.org/sqlite"

	"sql-rag-platform/internal/ai"
	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/logger"
	"sql-rag-platform/internal/queue"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
	"sql-rag-platform/internal/vectorstore"
	"sql-rag-platform/models"
	"sql-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

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

	documents := models.NewDocumentStore(db)
	audit := models.NewAuditLogger(db)

	syncSvc := services.NewSyncService(sqlRecordsIndex, rag.Estimator{}, cfg.Sync)
	docSvc := services.NewDocumentService(cfg.Documents, cfg.ChunkSize, cfg.Overlap, documents, documentsIndex, services.NewExtractor(), audit)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(docSvc, syncSvc, source)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIndexDocument, processor.IndexDocument)
	mux.HandleFunc(queue.TaskSyncDatabase, processor.SyncDatabase)

	slog.Info("worker starting", "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
