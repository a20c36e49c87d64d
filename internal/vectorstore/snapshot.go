package vectorstore

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"

	"sql-rag-platform/internal/rag"
)

// Snapshot layout: a brotli stream wrapping a gob-encoded record slice.
// Embedding text repeats heavily across records, so compression keeps large
// indexes manageable on disk.

func loadSnapshot(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening snapshot %q: %v", rag.ErrStorage, path, err)
	}
	defer f.Close()

	var records []Record
	if err := gob.NewDecoder(brotli.NewReader(f)).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot %q: %v", rag.ErrStorage, path, err)
	}
	return records, nil
}

// saveSnapshot writes the full record set to a temp file and renames it over
// the snapshot, so concurrent readers only ever see a complete image.
func saveSnapshot(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot dir for %q: %v", rag.ErrStorage, path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp snapshot for %q: %v", rag.ErrStorage, path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := brotli.NewWriterLevel(tmp, brotli.DefaultCompression)
	if err := gob.NewEncoder(w).Encode(records); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encoding snapshot %q: %v", rag.ErrStorage, path, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flushing snapshot %q: %v", rag.ErrStorage, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp snapshot for %q: %v", rag.ErrStorage, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replacing snapshot %q: %v", rag.ErrStorage, path, err)
	}
	return nil
}
