// Package vectorizer orchestrates column-level embedding generation for
// a tabular input via the scheduler and embedding client.
package vectorizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"vecbatch/internal/domain"
	"vecbatch/internal/embedclient"
	"vecbatch/internal/scheduler"
	"vecbatch/internal/vecerr"
)

// Strategy selects how a row's requested columns are embedded.
type Strategy int

const (
	// PerColumn sends each row's requested-column values as one call,
	// expecting one embedding back per column.
	PerColumn Strategy = iota
	// Combined concatenates the row's values across requested columns
	// with single-space separation and expects one embedding.
	Combined
)

// Table is a rectangular, named-column, row-oriented input/output.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// Vectorizer drives embedding generation over a Table's rows.
type Vectorizer struct {
	client    *embedclient.EmbeddingClient
	dimension int
	kind      domain.EmbeddingKind
	obs       scheduler.Observer
	log       *slog.Logger
}

// New constructs a Vectorizer bound to one embedding client.
func New(client *embedclient.EmbeddingClient, dimension int, kind domain.EmbeddingKind, obs scheduler.Observer, log *slog.Logger) *Vectorizer {
	if log == nil {
		log = slog.Default()
	}
	return &Vectorizer{client: client, dimension: dimension, kind: kind, obs: obs, log: log}
}

// rowOutcome is the per-row success payload: one embedding per
// requested column under PerColumn, or exactly one under Combined.
type rowOutcome struct {
	embeddings [][]float64
}

// Vectorize validates the requested columns, builds one work item per
// row, drives them through the scheduler, and writes embedding columns
// back into the table. On any row failure it returns the first error;
// the table is otherwise returned fully augmented.
func (v *Vectorizer) Vectorize(ctx context.Context, table Table, columns []string, strategy Strategy, suffix string, cfg domain.ProcessorConfig, runID string) (Table, error) {
	if err := validateColumns(table.Columns, columns); err != nil {
		return Table{}, err
	}

	op := func(ctx context.Context, rowIdx int) (rowOutcome, error) {
		row := table.Rows[rowIdx]
		switch strategy {
		case Combined:
			return v.embedCombined(ctx, row, columns)
		default:
			return v.embedPerColumn(ctx, row, columns)
		}
	}

	indices := make([]int, len(table.Rows))
	for i := range indices {
		indices[i] = i
	}

	result := scheduler.Run(ctx, indices, op, cfg, "vectorizer", v.obs, v.log, runID)

	for _, slot := range result.Results {
		if !slot.Ok() {
			return Table{}, slot.Err
		}
	}

	return v.writeBack(table, columns, suffix, strategy, result)
}

func (v *Vectorizer) embedPerColumn(ctx context.Context, row map[string]any, columns []string) (rowOutcome, error) {
	texts := make([]string, len(columns))
	for i, col := range columns {
		texts[i] = stringify(row[col])
	}

	outputs, err := v.client.EmbedBatch(ctx, texts, v.dimension, v.kind)
	if err != nil {
		return rowOutcome{}, err
	}

	vectors := make([][]float64, len(outputs))
	for i, o := range outputs {
		vectors[i] = o.Vectors[v.kind]
	}

	if len(vectors) < len(columns) {
		// The service silently combined inputs; fall back to assigning
		// the single returned embedding to every column.
		v.log.Warn("embedding service returned fewer embeddings than requested columns; broadcasting single embedding",
			"columns", columns, "returned", len(vectors))
		broadcast := vectors[0]
		vectors = make([][]float64, len(columns))
		for i := range vectors {
			vectors[i] = broadcast
		}
	}

	return rowOutcome{embeddings: vectors}, nil
}

func (v *Vectorizer) embedCombined(ctx context.Context, row map[string]any, columns []string) (rowOutcome, error) {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = norm.NFC.String(stringify(row[col]))
	}
	joined := strings.Join(parts, " ")

	outputs, err := v.client.EmbedBatch(ctx, []string{joined}, v.dimension, v.kind)
	if err != nil {
		return rowOutcome{}, err
	}
	if len(outputs) == 0 {
		return rowOutcome{}, vecerr.New(vecerr.OutputParse, "embedding service returned no embeddings for combined input")
	}
	return rowOutcome{embeddings: [][]float64{outputs[0].Vectors[v.kind]}}, nil
}

func (v *Vectorizer) writeBack(table Table, columns []string, suffix string, strategy Strategy, result domain.ProcessorResult[rowOutcome]) (Table, error) {
	out := Table{
		Columns: append([]string{}, table.Columns...),
		Rows:    make([]map[string]any, len(table.Rows)),
	}

	var combinedCol string
	if strategy == Combined {
		combinedCol = strings.Join(columns, "_") + suffix
		out.Columns = append(out.Columns, combinedCol)
	} else {
		for _, col := range columns {
			out.Columns = append(out.Columns, col+suffix)
		}
	}

	for i, row := range table.Rows {
		newRow := make(map[string]any, len(row)+len(columns))
		for k, val := range row {
			newRow[k] = val
		}

		outcome := result.Results[i].Value
		switch strategy {
		case Combined:
			newRow[combinedCol] = outcome.embeddings[0]
		default:
			for j, col := range columns {
				newRow[col+suffix] = outcome.embeddings[j]
			}
		}
		out.Rows[i] = newRow
	}

	return out, nil
}

func validateColumns(available, requested []string) error {
	present := make(map[string]bool, len(available))
	for _, c := range available {
		present[c] = true
	}

	var missing []string
	for _, c := range requested {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	msg := fmt.Sprintf("missing column(s): %s", strings.Join(missing, ", "))
	for _, m := range missing {
		if suggestions := suggestColumns(m, available); len(suggestions) > 0 {
			msg += fmt.Sprintf(" (did you mean %s for %q?)", strings.Join(suggestions, ", "), m)
		}
	}
	return vecerr.New(vecerr.ConfigError, msg)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
