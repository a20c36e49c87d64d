package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"sql-rag-platform/services"
)

const (
	TaskIndexDocument = "document:index"
	TaskSyncDatabase  = "db:sync"
)

type IndexDocumentPayload struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	TempPath string `json:"temp_path"`
	Size     int64  `json:"size"`
}

type SyncDatabasePayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// NewIndexDocumentTask queues one already-saved upload for background
// ingestion. The temp file must outlive the task.
func NewIndexDocumentTask(username, filename, tempPath string, size int64) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexDocumentPayload{
		Username: username,
		Filename: filename,
		TempPath: tempPath,
		Size:     size,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewSyncDatabaseTask queues a full relational re-sync.
func NewSyncDatabaseTask(triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncDatabasePayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskSyncDatabase,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued work against the same services the HTTP
// layer uses.
type TaskProcessor struct {
	documents *services.DocumentService
	sync      *services.SyncService
	source    services.SyncSource
}

func NewTaskProcessor(documents *services.DocumentService, sync *services.SyncService, source services.SyncSource) *TaskProcessor {
	return &TaskProcessor{documents: documents, sync: sync, source: source}
}

func (p *TaskProcessor) IndexDocument(ctx context.Context, t *asynq.Task) error {
	var payload IndexDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	slog.Info("processing queued document", "filename", payload.Filename)
	report, err := p.documents.Upload(ctx, payload.Username, []services.UploadedFile{{
		Filename: payload.Filename,
		TempPath: payload.TempPath,
		Size:     payload.Size,
	}})
	if err != nil {
		return err
	}
	if len(report.Processed) == 0 {
		// Validation rejections will not succeed on retry.
		return fmt.Errorf("document rejected: %s: %w", report.Message, asynq.SkipRetry)
	}
	return nil
}

func (p *TaskProcessor) SyncDatabase(ctx context.Context, t *asynq.Task) error {
	var payload SyncDatabasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	slog.Info("processing queued sync", "triggered_by", payload.TriggeredBy)
	progress, err := p.sync.Sync(ctx, p.source, 0)
	if err != nil {
		return err
	}
	slog.Info("queued sync finished",
		"status", progress.Status,
		"processed", progress.ProcessedRecords,
		"chunks", progress.IndexedChunks)
	return nil
}
