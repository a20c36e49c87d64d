// Package vectorstore implements a persisted, per-domain similarity index.
//
// Each Index owns one snapshot file holding the complete record set. Every
// mutation loads the snapshot, applies the change in memory and atomically
// replaces the file, so readers never observe a partial state. Deleting the
// last record removes the snapshot entirely: "no records" and "no snapshot"
// are the same state.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"sql-rag-platform/internal/rag"
)

// Embedder computes embedding vectors for a batch of texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is a chunk plus its embedding and stable content id.
type Record struct {
	ContentID string
	Chunk     rag.Chunk
	Embedding []float32
}

// SearchResult pairs a record with its similarity score to the query.
type SearchResult struct {
	Record Record
	Score  float64
}

// Index is a snapshot-backed vector index. At most one writer may mutate an
// index at a time; the file lock extends that guarantee across processes.
type Index struct {
	name     string
	path     string
	embedder Embedder

	mu   sync.RWMutex
	lock *flock.Flock
}

// New returns an index named name with its snapshot under dir. The snapshot
// file is created lazily on the first Add.
func New(name, dir string, embedder Embedder) *Index {
	path := filepath.Join(dir, name+".snapshot")
	return &Index{
		name:     name,
		path:     path,
		embedder: embedder,
		lock:     flock.New(path + ".lock"),
	}
}

// Name returns the index name (the snapshot domain).
func (ix *Index) Name() string { return ix.name }

// Exists reports whether a snapshot is present on disk.
func (ix *Index) Exists() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, err := os.Stat(ix.path)
	return err == nil
}

// Add embeds the chunks, merges them with the persisted record set and
// atomically overwrites the snapshot. On any failure nothing is written:
// either the full merged set lands on disk or the previous snapshot stays.
func (ix *Index) Add(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embedding %d chunks for index %q: %v", rag.ErrRetrieval, len(chunks), ix.name, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", rag.ErrRetrieval, len(vectors), len(chunks))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.lock.Lock(); err != nil {
		return fmt.Errorf("%w: locking index %q: %v", rag.ErrStorage, ix.name, err)
	}
	defer ix.lock.Unlock()

	records, err := loadSnapshot(ix.path)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		records = append(records, Record{
			ContentID: c.ContentID(),
			Chunk:     c,
			Embedding: vectors[i],
		})
	}
	return saveSnapshot(ix.path, records)
}

// Search returns up to k records ranked by cosine similarity to query.
// An absent snapshot yields an empty result, not an error. Ties keep
// insertion order, which makes rankings deterministic for a fixed snapshot.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	records, err := loadSnapshot(ix.path)
	ix.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	vectors, err := ix.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedding query for index %q: %v", rag.ErrRetrieval, ix.name, err)
	}
	qv := vectors[0]

	results := make([]SearchResult, len(records))
	for i, r := range records {
		results[i] = SearchResult{Record: r, Score: cosine(qv, r.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// DeleteBy removes every record whose chunk matches pred. When no records
// survive the snapshot file is removed; deleting from an absent index is a
// no-op. The rebuild is O(n) in index size, which is acceptable because
// deletions are rare relative to appends.
func (ix *Index) DeleteBy(pred func(rag.Chunk) bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.lock.Lock(); err != nil {
		return fmt.Errorf("%w: locking index %q: %v", rag.ErrStorage, ix.name, err)
	}
	defer ix.lock.Unlock()

	if _, err := os.Stat(ix.path); os.IsNotExist(err) {
		return nil
	}
	records, err := loadSnapshot(ix.path)
	if err != nil {
		return err
	}

	survivors := records[:0]
	for _, r := range records {
		if !pred(r.Chunk) {
			survivors = append(survivors, r)
		}
	}
	if len(survivors) == 0 {
		if err := os.Remove(ix.path); err != nil {
			return fmt.Errorf("%w: removing empty snapshot %q: %v", rag.ErrStorage, ix.path, err)
		}
		return nil
	}
	return saveSnapshot(ix.path, survivors)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
