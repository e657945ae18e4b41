// Package bulkindexer batches row-oriented records and bulk-indexes
// them into a search cluster index via the scheduler.
package bulkindexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"vecbatch/internal/domain"
	"vecbatch/internal/scheduler"
	"vecbatch/internal/searchclient"
	"vecbatch/internal/vecerr"
)

const batchSize = 50

// RowValidator optionally validates one row before it is placed in the
// bulk body; a non-nil error is wrapped as a ConfigError that fails the
// row's whole batch without sending it, and is not retried.
type RowValidator func(row map[string]any) error

// SchemaValidator builds a RowValidator from a gojsonschema document
// schema, so a configured target index can reject malformed rows
// before spending a round trip on them.
func SchemaValidator(schemaJSON string) (RowValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, vecerr.Wrap(vecerr.ConfigError, "compiling document schema", err)
	}
	return func(row map[string]any) error {
		raw, err := json.Marshal(row)
		if err != nil {
			return vecerr.Wrap(vecerr.Permanent, "encoding row for schema validation", err)
		}
		result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return vecerr.Wrap(vecerr.OutputParse, "schema validation failed", err)
		}
		if !result.Valid() {
			return vecerr.New(vecerr.ConfigError, fmt.Sprintf("row does not match document schema: %s", vecerr.Preview(string(raw), 200)))
		}
		return nil
	}, nil
}

// Observer receives both the generic scheduler progress updates and the
// bulk-indexing-specific metrics that the scheduler interface has no room
// for (per-request latency and per-reason error counts).
type Observer interface {
	scheduler.Observer
	RecordBulkRequest(index string, duration time.Duration, rowsOK int)
	RecordBulkError(index, reason string)
}

// BulkIndexer drives batched documents into one target index.
type BulkIndexer struct {
	client    *searchclient.Client
	index     string
	validator RowValidator
	obs       Observer
	log       *slog.Logger
}

// New constructs a BulkIndexer targeting index on client.
func New(client *searchclient.Client, index string, validator RowValidator, obs Observer, log *slog.Logger) *BulkIndexer {
	if log == nil {
		log = slog.Default()
	}
	return &BulkIndexer{client: client, index: index, validator: validator, obs: obs, log: log}
}

// Index optionally truncates the target index, partitions rows into
// batches of 50, and drives them through the scheduler with
// 10 workers, jittered retry, and throttling handled.
func (b *BulkIndexer) Index(ctx context.Context, rows []map[string]any, truncateFirst bool, runID string) (domain.ProcessorResult[int], error) {
	if truncateFirst {
		if err := b.client.DeleteByQuery(ctx, b.index); err != nil {
			return domain.ProcessorResult[int]{}, err
		}
	}

	batches := partition(rows, batchSize)

	cfg := domain.ProcessorConfig{
		MaxAttempts:      10,
		NumWorkers:       10,
		RetryStrategy:    domain.RetryJittered,
		HandleThrottling: true,
		RetryableKinds:   map[vecerr.Kind]bool{vecerr.Transient: true, vecerr.Throttling: true},
		IsThrottling:     vecerr.DefaultIsThrottling,
	}

	op := func(ctx context.Context, batch domain.BulkBatchItem) (int, error) {
		return b.indexBatch(ctx, batch)
	}

	result := scheduler.Run(ctx, batches, op, cfg, "bulk_indexer", b.obs, b.log, runID)
	return result, nil
}

func partition(rows []map[string]any, size int) []domain.BulkBatchItem {
	var batches []domain.BulkBatchItem
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, domain.BulkBatchItem{
			Rows:     rows[i:end],
			BatchNum: len(batches) + 1,
			StartIdx: i,
		})
	}
	return batches
}

// indexBatch builds the newline-delimited bulk body, submits it, and
// triages per-item errors. It returns the count of rows indexed
// (including ignorable version-conflict rows, which count as success)
// or a batch-level error so the scheduler retries the whole batch.
func (b *BulkIndexer) indexBatch(ctx context.Context, batch domain.BulkBatchItem) (int, error) {
	body, configErrs, err := b.buildBody(batch)
	if err != nil {
		return 0, err
	}
	if len(configErrs) > 0 {
		// Row-level validation failures are not retried; surface the
		// first one so the caller sees a concrete reason.
		return 0, configErrs[0]
	}

	start := time.Now()
	resp, err := b.client.Bulk(ctx, body)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	var nonIgnorable []string
	for _, item := range resp.Items {
		if item.Create.Error == nil {
			succeeded++
			continue
		}
		if item.Create.Error.Type == "version_conflict_engine_exception" {
			b.log.Info("ignoring version conflict on bulk index",
				"index", b.index, "id", item.Create.ID)
			succeeded++
			continue
		}
		nonIgnorable = append(nonIgnorable, fmt.Sprintf("%s: %s", item.Create.Error.Type, item.Create.Error.Reason))
		if b.obs != nil {
			b.obs.RecordBulkError(b.index, item.Create.Error.Type)
		}
	}

	if b.obs != nil {
		b.obs.RecordBulkRequest(b.index, time.Since(start), succeeded)
	}

	if len(nonIgnorable) > 0 {
		return succeeded, vecerr.New(vecerr.Transient, fmt.Sprintf("bulk batch %d had %d non-ignorable error(s): %s",
			batch.BatchNum, len(nonIgnorable), vecerr.Preview(nonIgnorable[0], 200)))
	}

	return succeeded, nil
}

func (b *BulkIndexer) buildBody(batch domain.BulkBatchItem) ([]byte, []error, error) {
	var buf bytes.Buffer
	var configErrs []error

	for offset, row := range batch.Rows {
		if b.validator != nil {
			if err := b.validator(row); err != nil {
				configErrs = append(configErrs, vecerr.Wrap(vecerr.ConfigError, "row failed schema validation", err))
				continue
			}
		}

		id := strconv.Itoa(batch.StartIdx + offset)
		action := map[string]any{
			"create": map[string]any{"_index": b.index, "_id": id},
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return nil, nil, vecerr.Wrap(vecerr.Permanent, "encoding bulk action line", err)
		}

		doc := filterNullAndNaN(row)
		docLine, err := json.Marshal(doc)
		if err != nil {
			return nil, nil, vecerr.Wrap(vecerr.Permanent, "encoding bulk document line", err)
		}

		buf.Write(actionLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), configErrs, nil
}

// filterNullAndNaN drops nil values and NaN-valued scalars. List/tuple
// values (slices) are retained even if empty or containing non-numeric
// elements; the NaN test is ill-defined on sequences so it is skipped.
func filterNullAndNaN(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			continue
		}
		out[k] = v
	}
	return out
}
