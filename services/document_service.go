package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/models"
)

// UploadedFile is one file already persisted to a temporary path by the
// transport layer.
type UploadedFile struct {
	Filename string
	TempPath string
	Size     int64
}

// InvalidFile explains why one file of a batch was rejected.
type InvalidFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// UploadReport is the per-batch outcome: processed and invalid files are
// reported separately so one bad file never hides the rest.
type UploadReport struct {
	Processed []string      `json:"processed"`
	Invalid   []InvalidFile `json:"invalid,omitempty"`
	Message   string        `json:"message"`
}

// ChunkDeleter is the removal side of a vector index.
type ChunkDeleter interface {
	DeleteBy(pred func(rag.Chunk) bool) error
}

// DocumentIndex combines the two index capabilities the ingestion pipeline
// needs. *vectorstore.Index satisfies it.
type DocumentIndex interface {
	ChunkIndexer
	ChunkDeleter
}

// TextExtractor converts a stored file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Auditor records admin actions. *models.AuditLogger satisfies it.
type Auditor interface {
	Log(ctx context.Context, username, action, module string, details map[string]any) error
}

// DocumentRecords is the metadata store for uploaded documents.
// *models.DocumentStore satisfies it.
type DocumentRecords interface {
	Create(ctx context.Context, record *models.DocumentRecord) error
	MarkIndexed(ctx context.Context, id primitive.ObjectID, indexed bool) error
	MarkDeleted(ctx context.Context, id primitive.ObjectID) error
	FindByFilename(ctx context.Context, filename string) (*models.DocumentRecord, error)
}

// DocumentService runs the ingestion pipeline: validate, store, extract,
// chunk, embed, index, and the reverse on removal.
type DocumentService struct {
	cfg       config.DocumentConfig
	store     DocumentRecords
	index     DocumentIndex
	extractor TextExtractor
	audit     Auditor
	splitter  *rag.BoundedSplitter
	counter   rag.TokenCounter
}

func NewDocumentService(cfg config.DocumentConfig, chunkSize, overlap int, store DocumentRecords, index DocumentIndex, extractor TextExtractor, audit Auditor) *DocumentService {
	return &DocumentService{
		cfg:       cfg,
		store:     store,
		index:     index,
		extractor: extractor,
		audit:     audit,
		splitter:  rag.NewBoundedSplitter(chunkSize, overlap),
		counter:   rag.Estimator{},
	}
}

// Upload processes a batch of already-saved temporary files. A batch over
// the per-upload limit is rejected whole; within the limit, each file is
// validated and indexed independently.
func (s *DocumentService) Upload(ctx context.Context, username string, files []UploadedFile) (*UploadReport, error) {
	report := &UploadReport{}

	if !s.cfg.IsActive {
		cleanupTemp(files)
		return nil, fmt.Errorf("%w: document uploads are disabled", rag.ErrValidation)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in upload", rag.ErrValidation)
	}
	if len(files) > s.cfg.MaxFilesPerUpload {
		cleanupTemp(files)
		report.Message = fmt.Sprintf("too many files: got %d, limit is %d per upload", len(files), s.cfg.MaxFilesPerUpload)
		return report, nil
	}

	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		cleanupTemp(files)
		return nil, fmt.Errorf("%w: preparing storage dir: %v", rag.ErrStorage, err)
	}

	for _, file := range files {
		if reason := s.validate(file); reason != "" {
			os.Remove(file.TempPath)
			report.Invalid = append(report.Invalid, InvalidFile{Filename: file.Filename, Reason: reason})
			continue
		}
		if err := s.ingest(ctx, username, file, true, report); err != nil {
			slog.Warn("document ingestion failed", "filename", file.Filename, "error", err)
			report.Invalid = append(report.Invalid, InvalidFile{Filename: file.Filename, Reason: err.Error()})
		}
	}

	report.summarize()
	return report, nil
}

// UploadFolder ingests every file found under a server-side folder,
// descending into subdirectories when recursive is set. Source files are
// copied into storage and left in place; a folder holding more files than
// the per-upload limit is rejected whole, before anything is indexed.
func (s *DocumentService) UploadFolder(ctx context.Context, username, dir string, recursive bool) (*UploadReport, error) {
	report := &UploadReport{}

	if !s.cfg.IsActive {
		return nil, fmt.Errorf("%w: document uploads are disabled", rag.ErrValidation)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a readable folder", rag.ErrValidation, dir)
	}

	files, err := discoverFiles(dir, recursive)
	if err != nil {
		return nil, fmt.Errorf("%w: walking folder: %v", rag.ErrStorage, err)
	}
	if len(files) == 0 {
		report.Message = "no files found in folder"
		return report, nil
	}
	if len(files) > s.cfg.MaxFilesPerUpload {
		report.Message = fmt.Sprintf("too many files: found %d, limit is %d per upload", len(files), s.cfg.MaxFilesPerUpload)
		return report, nil
	}

	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: preparing storage dir: %v", rag.ErrStorage, err)
	}

	for _, file := range files {
		if reason := s.validate(file); reason != "" {
			report.Invalid = append(report.Invalid, InvalidFile{Filename: file.Filename, Reason: reason})
			continue
		}
		if err := s.ingest(ctx, username, file, false, report); err != nil {
			slog.Warn("document ingestion failed", "filename", file.Filename, "error", err)
			report.Invalid = append(report.Invalid, InvalidFile{Filename: file.Filename, Reason: err.Error()})
		}
	}

	report.summarize()
	return report, nil
}

// discoverFiles lists the folder's regular files, walking subdirectories
// only when recursive is set.
func discoverFiles(dir string, recursive bool) ([]UploadedFile, error) {
	var files []UploadedFile
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, UploadedFile{Filename: d.Name(), TempPath: path, Size: info.Size()})
			return nil
		})
		return files, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, UploadedFile{
			Filename: entry.Name(),
			TempPath: filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
		})
	}
	return files, nil
}

func (r *UploadReport) summarize() {
	switch {
	case len(r.Processed) > 0 && len(r.Invalid) == 0:
		r.Message = fmt.Sprintf("%d file(s) indexed", len(r.Processed))
	case len(r.Processed) > 0:
		r.Message = fmt.Sprintf("%d file(s) indexed, %d rejected", len(r.Processed), len(r.Invalid))
	default:
		r.Message = "no files were indexed"
	}
}

func (s *DocumentService) validate(file UploadedFile) string {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowed := false
	for _, a := range s.cfg.AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Sprintf("extension %s not allowed", ext)
	}
	if maxBytes := int64(s.cfg.MaxFileSizeMB) << 20; file.Size > maxBytes {
		return fmt.Sprintf("file exceeds %d MB limit", s.cfg.MaxFileSizeMB)
	}
	return ""
}

// ingest stores one validated file and indexes its text. With move set the
// source is a scratch file that is consumed; without it (folder uploads)
// the source is copied and left untouched.
func (s *DocumentService) ingest(ctx context.Context, username string, file UploadedFile, move bool, report *UploadReport) error {
	name := filepath.Base(file.Filename)
	storedPath := filepath.Join(s.cfg.StoragePath, name)
	if !move {
		if err := copyFile(file.TempPath, storedPath); err != nil {
			return fmt.Errorf("%w: storing file: %v", rag.ErrStorage, err)
		}
	} else if err := os.Rename(file.TempPath, storedPath); err != nil {
		// Cross-device temp dirs cannot be renamed; fall back to a copy.
		if copyErr := copyFile(file.TempPath, storedPath); copyErr != nil {
			return fmt.Errorf("%w: storing file: %v", rag.ErrStorage, copyErr)
		}
		os.Remove(file.TempPath)
	}

	record := &models.DocumentRecord{
		Filename: name,
		FilePath: storedPath,
		FileSize: file.Size,
		FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		UploadedBy: username,
	}
	if err := s.store.Create(ctx, record); err != nil {
		os.Remove(storedPath)
		return fmt.Errorf("%w: recording document: %v", rag.ErrStorage, err)
	}

	text, err := s.extractor.Extract(ctx, storedPath)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no extractable text")
	}

	parts := s.splitter.Split(text)
	now := time.Now().UTC()
	chunks := make([]rag.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = rag.Chunk{
			Text:         fmt.Sprintf("Document: %s\n%s", name, part),
			TokenCount:   s.counter.CountTokens(part),
			SourceKind:   rag.SourceFile,
			SourceID:     name,
			Ordinal:      i + 1,
			TotalInGroup: len(parts),
			CreatedAt:    now,
		}
	}

	if err := s.index.Add(ctx, chunks); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if err := s.store.MarkIndexed(ctx, record.ID, true); err != nil {
		return fmt.Errorf("%w: marking indexed: %v", rag.ErrStorage, err)
	}

	// Audit before reporting success so a processed file always has a trail.
	s.audit.Log(ctx, username, "index", "documents", map[string]any{
		"filename": name,
		"chunks":   len(chunks),
	})
	report.Processed = append(report.Processed, name)
	return nil
}

// Remove deletes a document's chunks from the index and soft-deletes its
// record. The filename arrives URL-encoded from the transport layer.
func (s *DocumentService) Remove(ctx context.Context, username, encodedFilename string) error {
	filename, err := url.QueryUnescape(encodedFilename)
	if err != nil {
		return fmt.Errorf("%w: malformed filename", rag.ErrValidation)
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: invalid filename", rag.ErrValidation)
	}
	name := filepath.Base(filename)

	record, err := s.store.FindByFilename(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: document %s not found", rag.ErrValidation, name)
	}

	if err := s.index.DeleteBy(func(c rag.Chunk) bool {
		return c.SourceKind == rag.SourceFile && c.SourceID == name
	}); err != nil {
		return fmt.Errorf("removing chunks: %w", err)
	}

	if err := s.store.MarkDeleted(ctx, record.ID); err != nil {
		return fmt.Errorf("%w: marking deleted: %v", rag.ErrStorage, err)
	}
	if record.FilePath != "" {
		os.Remove(record.FilePath)
	}

	s.audit.Log(ctx, username, "delete", "documents", map[string]any{"filename": name})
	return nil
}

func cleanupTemp(files []UploadedFile) {
	for _, f := range files {
		os.Remove(f.TempPath)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
