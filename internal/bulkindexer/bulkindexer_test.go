package bulkindexer

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"vecbatch/internal/searchclient"
)

func newTestIndexer(t *testing.T, handler http.HandlerFunc) (*BulkIndexer, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := searchclient.New(srv.URL, srv.Client())
	return New(client, "documents", nil, nil, nil), srv.Close
}

func TestIndex_PartitionsIntoBatchesOf50(t *testing.T) {
	var bulkCalls int
	indexer, closeSrv := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_bulk" {
			bulkCalls++
			w.Write([]byte(`{"errors":false,"items":[]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	rows := make([]map[string]any, 125) // 3 batches: 50, 50, 25
	for i := range rows {
		rows[i] = map[string]any{"text": "hello"}
	}

	result, err := indexer.Index(context.Background(), rows, false, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if bulkCalls != 3 {
		t.Fatalf("expected 3 bulk calls for 125 rows, got %d", bulkCalls)
	}
	if result.TotalFailed != 0 {
		t.Fatalf("expected no failures, got %d", result.TotalFailed)
	}
}

func TestIndex_IgnoresVersionConflict(t *testing.T) {
	indexer, closeSrv := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":true,"items":[
			{"create":{"_id":"0","status":409,"error":{"type":"version_conflict_engine_exception","reason":"conflict"}}}
		]}`))
	})
	defer closeSrv()

	result, err := indexer.Index(context.Background(), []map[string]any{{"text": "a"}}, false, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalFailed != 0 {
		t.Fatalf("version conflict should count as success, got total_failed=%d", result.TotalFailed)
	}
}

func TestIndex_NonIgnorableErrorRetriesThenFails(t *testing.T) {
	indexer, closeSrv := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":true,"items":[
			{"create":{"_id":"0","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}
		]}`))
	})
	defer closeSrv()

	result, err := indexer.Index(context.Background(), []map[string]any{{"text": "a"}}, false, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalFailed != 1 {
		t.Fatalf("expected the batch to ultimately fail, total_failed=%d", result.TotalFailed)
	}
}

func TestIndex_TruncatesFirstWhenRequested(t *testing.T) {
	var sawDelete bool
	indexer, closeSrv := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/documents/_delete_by_query" {
			sawDelete = true
		}
		w.Write([]byte(`{"errors":false,"items":[]}`))
	})
	defer closeSrv()

	_, err := indexer.Index(context.Background(), []map[string]any{{"text": "a"}}, true, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !sawDelete {
		t.Fatal("expected a delete_by_query call before bulk indexing")
	}
}

func TestFilterNullAndNaN(t *testing.T) {
	row := map[string]any{
		"keep":     "value",
		"drop_nil": nil,
		"drop_nan": math.NaN(),
		"keep_list": []any{},
	}
	out := filterNullAndNaN(row)
	if _, ok := out["drop_nil"]; ok {
		t.Fatal("nil value should be dropped")
	}
	if _, ok := out["drop_nan"]; ok {
		t.Fatal("NaN value should be dropped")
	}
	if _, ok := out["keep_list"]; !ok {
		t.Fatal("empty list should be retained")
	}
	if _, ok := out["keep"]; !ok {
		t.Fatal("plain value should be retained")
	}
}

func TestSchemaValidator_RejectsRowMissingRequiredField(t *testing.T) {
	validator, err := SchemaValidator(`{
		"type": "object",
		"required": ["title"],
		"properties": {"title": {"type": "string"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := validator(map[string]any{"body": "no title here"}); err == nil {
		t.Fatal("expected validation error for row missing required field")
	}
	if err := validator(map[string]any{"title": "ok"}); err != nil {
		t.Fatalf("expected valid row to pass, got %v", err)
	}
}

func TestRowValidator_RejectsBadRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":false,"items":[]}`))
	}))
	defer srv.Close()

	client := searchclient.New(srv.URL, srv.Client())
	validator := func(row map[string]any) error {
		if _, ok := row["required_field"]; !ok {
			return &json.UnsupportedValueError{}
		}
		return nil
	}
	indexer := New(client, "documents", validator, nil, nil)

	result, err := indexer.Index(context.Background(), []map[string]any{{"text": "a"}}, false, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalFailed != 1 {
		t.Fatalf("expected row validation failure to fail the batch, total_failed=%d", result.TotalFailed)
	}
}
