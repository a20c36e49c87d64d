package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
	"sql-rag-platform/internal/vectorstore"
	"sql-rag-platform/models"
)

const (
	sqlRecordsTopK = 10
	documentsTopK  = 5

	// Marker prefixes let the answer model see that a retrieval path
	// failed without aborting the whole query.
	sqlErrorMarker  = "[ERROR SQL] "
	docsErrorMarker = "[ERROR DOCS] "

	// answerErrorMarker prefixes the answer itself when synthesis fails,
	// so the failed-run payload still names what went wrong.
	answerErrorMarker = "[ERROR ANSWER] "

	embeddingsAnswerNote = "answered using embeddings"
)

// QueryRequest is one natural-language question against the platform.
type QueryRequest struct {
	Question    string `json:"question" binding:"required"`
	LLMConfigID string `json:"llm_config_id,omitempty"`
	UserID      string `json:"-"`
}

// QueryResponse carries the answer plus everything needed to judge how it
// was produced. Warnings name the retrieval paths that failed on a run that
// still produced an answer.
type QueryResponse struct {
	Answer       string            `json:"answer"`
	GeneratedSQL string            `json:"generated_sql,omitempty"`
	Status       string            `json:"status"` // success, error
	Warnings     map[string]string `json:"warnings,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

// ChunkSearcher is the read side of a vector index.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
}

// SQLRunner executes a generated query against the relational source.
type SQLRunner interface {
	Run(ctx context.Context, query string) (*sqlsource.QueryResult, error)
}

// TextGenerator is the LLM surface the orchestrator needs.
// *ai.LLMService satisfies it.
type TextGenerator interface {
	GenerateSQL(ctx context.Context, question, llmConfigID string) (string, error)
	GenerateAnswer(ctx context.Context, question, contextText, llmConfigID string) (string, error)
}

// QueryLogs persists one entry per answered question.
type QueryLogs interface {
	Insert(ctx context.Context, entry *models.QueryLog) error
}

// QueryService orchestrates one question end to end: embedded relational
// records first, generated SQL as the fallback, document chunks always, and
// a final synthesis over whatever context survived. Any single path may
// fail without failing the query; the run only errors when every path
// failed and no answer could be produced.
type QueryService struct {
	sqlRecords ChunkSearcher
	documents  ChunkSearcher
	source     SQLRunner
	llm        TextGenerator
	logs       QueryLogs
}

func NewQueryService(sqlRecords, documents ChunkSearcher, source SQLRunner, llm TextGenerator, logs QueryLogs) *QueryService {
	return &QueryService{
		sqlRecords: sqlRecords,
		documents:  documents,
		source:     source,
		llm:        llm,
		logs:       logs,
	}
}

// Answer runs the full pipeline for one question.
func (s *QueryService) Answer(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", rag.ErrValidation)
	}

	resp := &QueryResponse{Warnings: map[string]string{}}

	sqlContext := s.relationalContext(ctx, question, req.LLMConfigID, resp)
	docsContext := s.documentContext(ctx, question, resp)

	combined := combineContext(sqlContext, docsContext)
	answer, err := s.llm.GenerateAnswer(ctx, question, combined, req.LLMConfigID)
	if err != nil {
		slog.Warn("answer synthesis failed", "error", err)
		resp.Warnings["llm_error"] = err.Error()
		answer = answerErrorMarker + err.Error()
	}
	resp.Answer = answer
	resp.DurationMS = time.Since(start).Milliseconds()

	// A run fails only when something went wrong and no usable answer
	// came out of it. An empty answer and a marker answer are equally
	// unusable; partial failures with a real answer report success plus
	// warnings.
	unusable := strings.TrimSpace(resp.Answer) == "" ||
		strings.HasPrefix(resp.Answer, answerErrorMarker)
	if len(resp.Warnings) > 0 && unusable {
		resp.Status = "error"
	} else {
		resp.Status = "success"
	}
	if len(resp.Warnings) == 0 {
		resp.Warnings = nil
	}

	s.log(ctx, req, resp)

	if resp.Status == "error" {
		return resp, fmt.Errorf("%w: all retrieval paths failed", rag.ErrRetrieval)
	}
	return resp, nil
}

// relationalContext answers from the embedded record index when it can;
// otherwise it falls back to generating and running SQL.
func (s *QueryService) relationalContext(ctx context.Context, question, llmConfigID string, resp *QueryResponse) string {
	results, err := s.sqlRecords.Search(ctx, question, sqlRecordsTopK)
	if err != nil {
		slog.Warn("relational index search failed", "error", err)
	}
	if len(results) > 0 {
		resp.GeneratedSQL = embeddingsAnswerNote
		var b strings.Builder
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(r.Record.Chunk.Text)
		}
		return b.String()
	}

	query, err := s.llm.GenerateSQL(ctx, question, llmConfigID)
	if err != nil {
		slog.Warn("sql generation failed", "error", err)
		resp.Warnings["sql_error"] = err.Error()
		return sqlErrorMarker + err.Error()
	}
	resp.GeneratedSQL = query

	result, err := s.source.Run(ctx, query)
	if err != nil {
		slog.Warn("generated sql failed", "query", query, "error", err)
		resp.Warnings["sql_error"] = err.Error()
		return sqlErrorMarker + err.Error()
	}
	return formatQueryResult(result)
}

func (s *QueryService) documentContext(ctx context.Context, question string, resp *QueryResponse) string {
	results, err := s.documents.Search(ctx, question, documentsTopK)
	if err != nil {
		slog.Warn("document index search failed", "error", err)
		resp.Warnings["docs_error"] = err.Error()
		return docsErrorMarker + err.Error()
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Record.Chunk.Text)
	}
	return b.String()
}

func combineContext(sqlContext, docsContext string) string {
	var sections []string
	if strings.TrimSpace(sqlContext) != "" {
		sections = append(sections, "Database results:\n"+sqlContext)
	}
	if strings.TrimSpace(docsContext) != "" {
		sections = append(sections, "Document excerpts:\n"+docsContext)
	}
	if len(sections) == 0 {
		return "No relevant information was found."
	}
	return strings.Join(sections, "\n\n")
}

// formatQueryResult renders a result set as one line per row so the answer
// model sees column names next to their values.
func formatQueryResult(result *sqlsource.QueryResult) string {
	if result == nil || len(result.Rows) == 0 {
		return "The query returned no rows."
	}
	var b strings.Builder
	for i, row := range result.Rows {
		if i > 0 {
			b.WriteString("\n")
		}
		for j, col := range result.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", col, row[col])
		}
	}
	return b.String()
}

func (s *QueryService) log(ctx context.Context, req QueryRequest, resp *QueryResponse) {
	if s.logs == nil {
		return
	}
	entry := &models.QueryLog{
		UserID:       req.UserID,
		Question:     req.Question,
		GeneratedSQL: resp.GeneratedSQL,
		Answer:       resp.Answer,
		Status:       resp.Status,
		Warnings:     resp.Warnings,
		DurationMS:   resp.DurationMS,
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		slog.Warn("failed to persist query log", "error", err)
	}
}
