// Package searchclient is a thin REST client over a search cluster's
// index-creation, bulk, and delete-by-query endpoints.
package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"vecbatch/internal/vecerr"
)

// KNNMethod describes a knn_vector field's indexing method.
type KNNMethod struct {
	Name       string         `json:"name"`       // "hnsw" or "ivf"
	SpaceType  string         `json:"space_type"` // "l2" or "cosine"
	Engine     string         `json:"engine"`     // "faiss" or "nmslib"
	Parameters map[string]int `json:"parameters"` // ef_construction, m
}

// IndexMapping describes the single knn_vector field and the index
// setting that governs search-time recall/latency tradeoffs.
type IndexMapping struct {
	VectorField string
	Dimension   int
	Method      KNNMethod
	EFSearch    int
}

// BulkItemError is a per-document failure reported by the bulk endpoint.
type BulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkResponse is the parsed shape of a _bulk call.
type BulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Create struct {
			ID     string         `json:"_id"`
			Status int            `json:"status"`
			Error  *BulkItemError `json:"error"`
		} `json:"create"`
	} `json:"items"`
}

// Client is a pooled REST client for one search cluster.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client over a pooled *http.Client built the same
// way the embedding client builds its transport.
func New(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// CreateIndex PUTs an index with a single knn_vector field configured
// per mapping.
func (c *Client) CreateIndex(ctx context.Context, index string, mapping IndexMapping) error {
	body := map[string]any{
		"settings": map[string]any{
			"index.knn":                true,
			"knn.algo_param.ef_search": mapping.EFSearch,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				mapping.VectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": mapping.Dimension,
					"method": map[string]any{
						"name":       mapping.Method.Name,
						"space_type": mapping.Method.SpaceType,
						"engine":     mapping.Method.Engine,
						"parameters": mapping.Method.Parameters,
					},
				},
			},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return vecerr.Wrap(vecerr.Permanent, "encoding create-index request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+index, bytes.NewReader(raw))
	if err != nil {
		return vecerr.Wrap(vecerr.Permanent, "building create-index request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return vecerr.Wrap(vecerr.Transient, "create-index request failed", err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp, "create-index")
}

// Bulk POSTs a pre-built newline-delimited bulk body.
func (c *Client) Bulk(ctx context.Context, body []byte) (*BulkResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_bulk", bytes.NewReader(body))
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Permanent, "building bulk request", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Transient, "bulk request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "bulk"); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Transient, "reading bulk response", err)
	}

	var parsed BulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, vecerr.Wrap(vecerr.OutputParse, "decoding bulk response: "+vecerr.Preview(string(raw), 200), err)
	}
	return &parsed, nil
}

// DeleteByQuery truncates index with a match_all query.
func (c *Client) DeleteByQuery(ctx context.Context, index string) error {
	body := []byte(`{"query":{"match_all":{}}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+index+"/_delete_by_query", bytes.NewReader(body))
	if err != nil {
		return vecerr.Wrap(vecerr.Permanent, "building delete-by-query request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return vecerr.Wrap(vecerr.Transient, "delete-by-query request failed", err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp, "delete-by-query")
}

func classifyStatus(resp *http.Response, op string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	preview := vecerr.Preview(string(body), 200)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return vecerr.New(vecerr.Throttling, fmt.Sprintf("%s throttled (%d): %s", op, resp.StatusCode, preview)).WithCode("ThrottlingException")
	case resp.StatusCode >= 500:
		return vecerr.New(vecerr.Transient, fmt.Sprintf("%s failed (%d): %s", op, resp.StatusCode, preview))
	default:
		return vecerr.New(vecerr.ConfigError, fmt.Sprintf("%s rejected (%d): %s", op, resp.StatusCode, preview))
	}
}
