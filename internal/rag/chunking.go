package rag

import (
	"strings"
)

// BoundedSplitter cuts free text into fixed-size windows where consecutive
// windows share an overlap region. Used for document text before embedding.
type BoundedSplitter struct {
	ChunkSize int // maximum chunk length in runes
	Overlap   int // runes shared between consecutive chunks
}

// NewBoundedSplitter returns a splitter with the given size and overlap.
// Overlap is clamped below ChunkSize so every step makes progress.
func NewBoundedSplitter(chunkSize, overlap int) *BoundedSplitter {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &BoundedSplitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split returns the chunk sequence for text. Empty input yields no chunks;
// no returned chunk exceeds ChunkSize runes.
func (s *BoundedSplitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= s.ChunkSize {
		return []string{text}
	}

	step := s.ChunkSize - s.Overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// RecordSplitter splits one formatted relational record ("Table: T" header
// followed by "field: value" lines) under a token budget. When the record
// fits the budget it passes through untouched; otherwise lines are
// accumulated greedily and every produced chunk repeats the header line.
type RecordSplitter struct {
	MaxTokens int
	Counter   TokenCounter
}

func NewRecordSplitter(maxTokens int, counter TokenCounter) *RecordSplitter {
	if maxTokens <= 0 {
		maxTokens = 200_000
	}
	if counter == nil {
		counter = Estimator{}
	}
	return &RecordSplitter{MaxTokens: maxTokens, Counter: counter}
}

// Split returns one or more chunks, each within MaxTokens. Empty input
// yields no chunks.
func (s *RecordSplitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	if s.Counter.CountTokens(text) <= s.MaxTokens {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	header := lines[0]
	headerTokens := s.Counter.CountTokens(header)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, header+"\n"+strings.Join(current, "\n"))
			current = nil
			currentTokens = 0
		}
	}

	for _, line := range lines[1:] {
		for _, part := range s.fitLine(line, headerTokens) {
			partTokens := s.Counter.CountTokens(part)
			if currentTokens+partTokens > s.MaxTokens-headerTokens-1 {
				flush()
			}
			current = append(current, part)
			currentTokens += partTokens
		}
	}
	flush()
	return chunks
}

// fitLine hard-splits a line that alone would blow the per-chunk budget.
// A token never spans fewer runes than one, so cutting at budget runes keeps
// each piece within budget tokens.
func (s *RecordSplitter) fitLine(line string, headerTokens int) []string {
	budget := s.MaxTokens - headerTokens - 1
	if budget < 1 {
		budget = 1
	}
	if s.Counter.CountTokens(line) <= budget {
		return []string{line}
	}
	runes := []rune(line)
	parts := make([]string, 0, len(runes)/budget+1)
	for start := 0; start < len(runes); start += budget {
		end := start + budget
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
