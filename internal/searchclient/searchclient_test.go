package searchclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vecbatch/internal/vecerr"
)

func TestCreateIndex_SendsKNNMapping(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	err := c.CreateIndex(context.Background(), "documents", IndexMapping{
		VectorField: "embedding",
		Dimension:   1024,
		Method: KNNMethod{
			Name: "hnsw", SpaceType: "cosine", Engine: "faiss",
			Parameters: map[string]int{"ef_construction": 128, "m": 16},
		},
		EFSearch: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	mappings := captured["mappings"].(map[string]any)["properties"].(map[string]any)
	embField := mappings["embedding"].(map[string]any)
	if embField["type"] != "knn_vector" {
		t.Fatalf("expected knn_vector type, got %v", embField["type"])
	}
}

func TestBulk_ParsesPerItemErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":true,"items":[
			{"create":{"_id":"0","status":201}},
			{"create":{"_id":"1","status":409,"error":{"type":"version_conflict_engine_exception","reason":"conflict"}}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	resp, err := c.Bulk(context.Background(), []byte("{}\n{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Errors {
		t.Fatal("expected errors flag set")
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[1].Create.Error.Type != "version_conflict_engine_exception" {
		t.Fatalf("expected version_conflict_engine_exception, got %s", resp.Items[1].Create.Error.Type)
	}
}

func TestDeleteByQuery_SendsMatchAll(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		body = buf[:n]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if err := c.DeleteByQuery(context.Background(), "documents"); err != nil {
		t.Fatal(err)
	}
	if string(body) == "" {
		t.Fatal("expected a request body")
	}
}

func TestClassifyStatus_ThrottleAndServerError(t *testing.T) {
	cases := []struct {
		status int
		kind   vecerr.Kind
	}{
		{http.StatusTooManyRequests, vecerr.Throttling},
		{http.StatusInternalServerError, vecerr.Transient},
		{http.StatusBadRequest, vecerr.ConfigError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := New(srv.URL, srv.Client())
		err := c.DeleteByQuery(context.Background(), "documents")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if kind, _ := vecerr.KindOf(err); kind != tc.kind {
			t.Fatalf("status %d: expected kind %v, got %v", tc.status, tc.kind, kind)
		}
	}
}
