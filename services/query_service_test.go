package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/sqlsource"
	"sql-rag-platform/internal/vectorstore"
	"sql-rag-platform/models"
)

type fakeSearcher struct {
	results []vectorstore.SearchResult
	err     error
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeRunner struct {
	result *sqlsource.QueryResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*sqlsource.QueryResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeLLM struct {
	sql       string
	sqlErr    error
	sqlCalls  int
	answer    string
	answerErr error
	contexts  []string
}

func (f *fakeLLM) GenerateSQL(ctx context.Context, question, llmConfigID string) (string, error) {
	f.sqlCalls++
	return f.sql, f.sqlErr
}

func (f *fakeLLM) GenerateAnswer(ctx context.Context, question, contextText, llmConfigID string) (string, error) {
	f.contexts = append(f.contexts, contextText)
	return f.answer, f.answerErr
}

type fakeQueryLogs struct {
	entries []*models.QueryLog
}

func (f *fakeQueryLogs) Insert(ctx context.Context, entry *models.QueryLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func chunkResult(text string) vectorstore.SearchResult {
	return vectorstore.SearchResult{Record: vectorstore.Record{Chunk: rag.Chunk{Text: text}}, Score: 0.9}
}

func TestAnswerShortCircuitsOnEmbeddedRecords(t *testing.T) {
	sqlIdx := &fakeSearcher{results: []vectorstore.SearchResult{chunkResult("Table: customers\nname: Ana")}}
	docsIdx := &fakeSearcher{}
	runner := &fakeRunner{}
	llm := &fakeLLM{answer: "Ana is a customer."}
	logs := &fakeQueryLogs{}

	svc := NewQueryService(sqlIdx, docsIdx, runner, llm, logs)
	resp, err := svc.Answer(context.Background(), QueryRequest{Question: "who are the customers?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Status != "success" || resp.Answer != "Ana is a customer." {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.GeneratedSQL != "answered using embeddings" {
		t.Errorf("GeneratedSQL = %q", resp.GeneratedSQL)
	}
	if llm.sqlCalls != 0 || runner.calls != 0 {
		t.Errorf("short circuit still generated sql (gen=%d run=%d)", llm.sqlCalls, runner.calls)
	}
	if docsIdx.calls != 1 {
		t.Error("document index was not consulted")
	}
	if len(logs.entries) != 1 || logs.entries[0].Status != "success" {
		t.Errorf("query log = %+v", logs.entries)
	}
}

func TestAnswerFallsBackToGeneratedSQL(t *testing.T) {
	sqlIdx := &fakeSearcher{}
	docsIdx := &fakeSearcher{}
	runner := &fakeRunner{result: &sqlsource.QueryResult{
		Columns: []string{"count"},
		Rows:    []map[string]any{{"count": int64(42)}},
	}}
	llm := &fakeLLM{sql: "SELECT COUNT(*) AS count FROM orders", answer: "There are 42 orders."}

	svc := NewQueryService(sqlIdx, docsIdx, runner, llm, &fakeQueryLogs{})
	resp, err := svc.Answer(context.Background(), QueryRequest{Question: "how many orders?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.GeneratedSQL != "SELECT COUNT(*) AS count FROM orders" {
		t.Errorf("GeneratedSQL = %q", resp.GeneratedSQL)
	}
	if runner.calls != 1 {
		t.Error("generated sql was not executed")
	}
	if len(llm.contexts) != 1 || !strings.Contains(llm.contexts[0], "count: 42") {
		t.Errorf("answer context missing sql rows: %v", llm.contexts)
	}
}

func TestAnswerSQLFailureIsPartialSuccess(t *testing.T) {
	sqlIdx := &fakeSearcher{}
	docsIdx := &fakeSearcher{results: []vectorstore.SearchResult{chunkResult("Document: guide.txt\nthe answer is in here")}}
	runner := &fakeRunner{err: errors.New("syntax error")}
	llm := &fakeLLM{sql: "SELEC broken", answer: "Based on the documents, yes."}

	svc := NewQueryService(sqlIdx, docsIdx, runner, llm, &fakeQueryLogs{})
	resp, err := svc.Answer(context.Background(), QueryRequest{Question: "is it supported?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success with warnings", resp.Status)
	}
	if resp.Warnings["sql_error"] == "" {
		t.Errorf("warnings = %v, want sql_error", resp.Warnings)
	}
	if !strings.Contains(llm.contexts[0], "[ERROR SQL] ") {
		t.Errorf("context missing sql error marker: %q", llm.contexts[0])
	}
	if !strings.Contains(llm.contexts[0], "the answer is in here") {
		t.Errorf("context missing document excerpt: %q", llm.contexts[0])
	}
}

func TestAnswerAllPathsFailedIsError(t *testing.T) {
	sqlIdx := &fakeSearcher{}
	docsIdx := &fakeSearcher{err: errors.New("snapshot corrupt")}
	llm := &fakeLLM{sqlErr: errors.New("llm down"), answerErr: errors.New("llm down")}
	logs := &fakeQueryLogs{}

	svc := NewQueryService(sqlIdx, docsIdx, &fakeRunner{}, llm, logs)
	resp, err := svc.Answer(context.Background(), QueryRequest{Question: "anything?"})
	if !errors.Is(err, rag.ErrRetrieval) {
		t.Fatalf("err = %v, want retrieval error", err)
	}
	if resp.Status != "error" {
		t.Fatalf("status = %q", resp.Status)
	}
	for _, key := range []string{"sql_error", "docs_error", "llm_error"} {
		if resp.Warnings[key] == "" {
			t.Errorf("warnings missing %s: %v", key, resp.Warnings)
		}
	}
	if !strings.HasPrefix(resp.Answer, "[ERROR ANSWER] ") {
		t.Errorf("failed run should carry the answer error marker, got %q", resp.Answer)
	}
	if len(logs.entries) != 1 || logs.entries[0].Status != "error" {
		t.Errorf("failed run was not logged: %+v", logs.entries)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	svc := NewQueryService(&fakeSearcher{}, &fakeSearcher{}, &fakeRunner{}, &fakeLLM{}, nil)
	if _, err := svc.Answer(context.Background(), QueryRequest{Question: "   "}); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
