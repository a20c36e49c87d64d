package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/models"
)

type fakeDocumentStore struct {
	records map[string]*models.DocumentRecord
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{records: map[string]*models.DocumentRecord{}}
}

func (f *fakeDocumentStore) Create(ctx context.Context, record *models.DocumentRecord) error {
	record.ID = primitive.NewObjectID()
	f.records[record.Filename] = record
	return nil
}

func (f *fakeDocumentStore) MarkIndexed(ctx context.Context, id primitive.ObjectID, indexed bool) error {
	for _, r := range f.records {
		if r.ID == id {
			r.IsIndexed = indexed
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeDocumentStore) MarkDeleted(ctx context.Context, id primitive.ObjectID) error {
	for _, r := range f.records {
		if r.ID == id {
			r.IsDeleted = true
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeDocumentStore) FindByFilename(ctx context.Context, filename string) (*models.DocumentRecord, error) {
	r, ok := f.records[filename]
	if !ok || r.IsDeleted {
		return nil, errors.New("not found")
	}
	return r, nil
}

type fakeDocIndex struct {
	chunks  []rag.Chunk
	addFail bool
}

func (f *fakeDocIndex) Add(ctx context.Context, chunks []rag.Chunk) error {
	if f.addFail {
		return errors.New("index unavailable")
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDocIndex) DeleteBy(pred func(rag.Chunk) bool) error {
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if !pred(c) {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

type recordingAuditor struct {
	actions []string
}

func (r *recordingAuditor) Log(ctx context.Context, username, action, module string, details map[string]any) error {
	r.actions = append(r.actions, action+":"+module)
	return nil
}

func docConfig(t *testing.T) config.DocumentConfig {
	return config.DocumentConfig{
		MaxFileSizeMB:     50,
		AllowedExtensions: []string{".pdf", ".doc", ".docx", ".txt", ".html", ".xlsx"},
		MaxFilesPerUpload: 5,
		StoragePath:       t.TempDir(),
		IsActive:          true,
	}
}

func tempUpload(t *testing.T, name, content string) UploadedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return UploadedFile{Filename: name, TempPath: path, Size: int64(len(content))}
}

func newDocService(t *testing.T) (*DocumentService, *fakeDocumentStore, *fakeDocIndex, *recordingAuditor) {
	store := newFakeDocumentStore()
	index := &fakeDocIndex{}
	audit := &recordingAuditor{}
	svc := NewDocumentService(docConfig(t), 800, 100, store, index, NewExtractor(), audit)
	return svc, store, index, audit
}

func TestUploadIndexesValidFile(t *testing.T) {
	svc, store, index, audit := newDocService(t)

	report, err := svc.Upload(context.Background(), "admin", []UploadedFile{
		tempUpload(t, "guide.txt", "This is the user guide. It explains everything."),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(report.Processed) != 1 || report.Processed[0] != "guide.txt" {
		t.Fatalf("processed = %v", report.Processed)
	}
	if len(index.chunks) == 0 {
		t.Fatal("no chunks indexed")
	}
	chunk := index.chunks[0]
	if chunk.SourceKind != rag.SourceFile || chunk.SourceID != "guide.txt" {
		t.Errorf("chunk tagged %s/%s", chunk.SourceKind, chunk.SourceID)
	}
	if !strings.HasPrefix(chunk.Text, "Document: guide.txt\n") {
		t.Errorf("chunk missing document tag: %q", chunk.Text)
	}
	if rec := store.records["guide.txt"]; rec == nil || !rec.IsIndexed {
		t.Error("record not marked indexed")
	}
	if len(audit.actions) != 1 || audit.actions[0] != "index:documents" {
		t.Errorf("audit actions = %v", audit.actions)
	}
}

func TestUploadRejectsInvalidFilesSeparately(t *testing.T) {
	svc, _, index, _ := newDocService(t)

	report, err := svc.Upload(context.Background(), "admin", []UploadedFile{
		tempUpload(t, "ok.txt", "valid content here"),
		tempUpload(t, "malware.exe", "nope"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(report.Processed) != 1 {
		t.Fatalf("processed = %v", report.Processed)
	}
	if len(report.Invalid) != 1 || report.Invalid[0].Filename != "malware.exe" {
		t.Fatalf("invalid = %v", report.Invalid)
	}
	for _, c := range index.chunks {
		if c.SourceID == "malware.exe" {
			t.Fatal("rejected file was indexed")
		}
	}
}

func TestUploadOverLimitAbortsWholeBatch(t *testing.T) {
	svc, _, index, _ := newDocService(t)

	var files []UploadedFile
	for i := 0; i < 6; i++ {
		files = append(files, tempUpload(t, fmt.Sprintf("f%d.txt", i), "content"))
	}
	report, err := svc.Upload(context.Background(), "admin", files)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(report.Processed) != 0 {
		t.Fatalf("processed = %v, want none", report.Processed)
	}
	if !strings.Contains(report.Message, "too many files") {
		t.Errorf("message = %q", report.Message)
	}
	if len(index.chunks) != 0 {
		t.Fatal("chunks indexed despite aborted batch")
	}
}

func TestUploadIndexFailureIsReported(t *testing.T) {
	svc, store, index, audit := newDocService(t)
	index.addFail = true

	report, err := svc.Upload(context.Background(), "admin", []UploadedFile{
		tempUpload(t, "doc.txt", "some content"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(report.Processed) != 0 || len(report.Invalid) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if rec := store.records["doc.txt"]; rec != nil && rec.IsIndexed {
		t.Error("record marked indexed despite index failure")
	}
	if len(audit.actions) != 0 {
		t.Error("audit logged for failed ingestion")
	}
}

func TestUploadFolderRecursiveIndexesNestedFiles(t *testing.T) {
	svc, store, index, _ := newDocService(t)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFolderFile(t, filepath.Join(dir, "top.txt"), "top level content")
	writeFolderFile(t, filepath.Join(dir, "nested", "deep.txt"), "nested content")

	report, err := svc.UploadFolder(context.Background(), "admin", dir, true)
	if err != nil {
		t.Fatalf("UploadFolder: %v", err)
	}
	if len(report.Processed) != 2 {
		t.Fatalf("processed = %v, want both files", report.Processed)
	}
	for _, name := range []string{"top.txt", "deep.txt"} {
		if store.records[name] == nil || !store.records[name].IsIndexed {
			t.Errorf("%s not indexed", name)
		}
	}
	if len(index.chunks) != 2 {
		t.Fatalf("indexed %d chunks, want 2", len(index.chunks))
	}

	// Folder uploads copy; the originals stay where they were.
	for _, p := range []string{filepath.Join(dir, "top.txt"), filepath.Join(dir, "nested", "deep.txt")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("source file %s was removed: %v", p, err)
		}
	}
}

func TestUploadFolderNonRecursiveSkipsSubdirectories(t *testing.T) {
	svc, _, index, _ := newDocService(t)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFolderFile(t, filepath.Join(dir, "top.txt"), "top level content")
	writeFolderFile(t, filepath.Join(dir, "nested", "deep.txt"), "nested content")

	report, err := svc.UploadFolder(context.Background(), "admin", dir, false)
	if err != nil {
		t.Fatalf("UploadFolder: %v", err)
	}
	if len(report.Processed) != 1 || report.Processed[0] != "top.txt" {
		t.Fatalf("processed = %v, want only top.txt", report.Processed)
	}
	for _, c := range index.chunks {
		if c.SourceID == "deep.txt" {
			t.Fatal("nested file indexed without the recursive flag")
		}
	}
}

func TestUploadFolderOverLimitAbortsWholeWalk(t *testing.T) {
	svc, _, index, _ := newDocService(t)

	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		writeFolderFile(t, filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), "content")
	}

	report, err := svc.UploadFolder(context.Background(), "admin", dir, true)
	if err != nil {
		t.Fatalf("UploadFolder: %v", err)
	}
	if len(report.Processed) != 0 {
		t.Fatalf("processed = %v, want none", report.Processed)
	}
	if !strings.Contains(report.Message, "too many files") {
		t.Errorf("message = %q", report.Message)
	}
	if len(index.chunks) != 0 {
		t.Fatal("chunks indexed despite aborted walk")
	}
}

func TestUploadFolderRejectsMissingFolder(t *testing.T) {
	svc, _, _, _ := newDocService(t)
	if _, err := svc.UploadFolder(context.Background(), "admin", "/no/such/folder", true); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func writeFolderFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveDeletesChunksAndRecord(t *testing.T) {
	svc, store, index, audit := newDocService(t)

	if _, err := svc.Upload(context.Background(), "admin", []UploadedFile{
		tempUpload(t, "a.txt", "document a content"),
		tempUpload(t, "b.txt", "document b content"),
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Remove(context.Background(), "admin", "a.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, c := range index.chunks {
		if c.SourceID == "a.txt" {
			t.Fatal("chunks for removed document still present")
		}
	}
	if !store.records["a.txt"].IsDeleted {
		t.Error("record not soft-deleted")
	}
	if store.records["b.txt"].IsDeleted {
		t.Error("unrelated record deleted")
	}
	if audit.actions[len(audit.actions)-1] != "delete:documents" {
		t.Errorf("audit actions = %v", audit.actions)
	}
}

func TestRemoveRejectsPathTraversal(t *testing.T) {
	svc, _, _, _ := newDocService(t)

	for _, name := range []string{"../etc/passwd", "..%2Fetc%2Fpasswd", "dir/file.txt"} {
		err := svc.Remove(context.Background(), "admin", name)
		if !errors.Is(err, rag.ErrValidation) {
			t.Errorf("Remove(%q) = %v, want validation error", name, err)
		}
	}
}

func TestRemoveUnknownDocument(t *testing.T) {
	svc, _, _, _ := newDocService(t)
	if err := svc.Remove(context.Background(), "admin", "ghost.txt"); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
