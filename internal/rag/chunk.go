package rag

import (
	"fmt"
	"time"
)

// SourceKind identifies where a chunk's text came from.
type SourceKind string

const (
	SourceTable SourceKind = "table"
	SourceFile  SourceKind = "file"
)

// Chunk is the unit of embedding and retrieval: a bounded piece of text plus
// the metadata needed to trace it back to its source and to delete it later.
type Chunk struct {
	Text         string     `json:"text"`
	TokenCount   int        `json:"token_count"`
	SourceKind   SourceKind `json:"source_kind"`
	SourceID     string     `json:"source_id"`
	RecordID     string     `json:"record_id,omitempty"`
	Ordinal      int        `json:"ordinal,omitempty"`
	TotalInGroup int        `json:"total_in_group,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ContentID returns a stable identifier derived from the chunk's source and
// position. Two ingestions of the same source produce the same IDs, which is
// what makes delete-and-reindex safe.
func (c Chunk) ContentID() string {
	if c.RecordID != "" {
		return fmt.Sprintf("%s/%s#%d", c.SourceID, c.RecordID, c.Ordinal)
	}
	return fmt.Sprintf("%s#%d", c.SourceID, c.Ordinal)
}
