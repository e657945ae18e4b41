// Package modeladapter implements per-model request formatting, output
// parsing, and dimension validation for the embedding service, keyed by
// a small registry populated at init.
package modeladapter

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"vecbatch/internal/domain"
	"vecbatch/internal/vecerr"
)

// ModelID identifies an adapter in the registry. New model families are
// added by registering a new ModelID; callers never branch on it.
type ModelID string

const (
	Titan  ModelID = "titan"
	Cohere ModelID = "cohere"
)

// Adapter is the capability set every model family implements:
// dimension validation, input formatting, and output parsing.
type Adapter interface {
	// SupportedDimensions is this model's dimension allow-list.
	SupportedDimensions() []int

	// FormatInput produces one or more request payloads for texts. A
	// model that accepts batched input returns one payload covering all
	// of texts; a model requiring per-input calls returns one payload
	// per text. The returned perPayloadInputs slice tells the caller how
	// many of texts each payload corresponds to, in order.
	FormatInput(texts []string, dimension int, kind domain.EmbeddingKind) (payloads [][]byte, perPayloadInputs []int, err error)

	// ParseOutput maps one raw service response back to one
	// EmbeddingModelOutput per input the corresponding payload covered.
	ParseOutput(raw []byte, numInputs int) ([]domain.EmbeddingModelOutput, error)
}

var registry = map[ModelID]Adapter{}

func register(id ModelID, a Adapter) { registry[id] = a }

func init() {
	register(Titan, titanAdapter{})
	register(Cohere, cohereAdapter{})
}

// Get returns the registered adapter for id.
func Get(id ModelID) (Adapter, bool) {
	a, ok := registry[id]
	return a, ok
}

// ValidateDimension rejects a requested dimension outside a's allow-list.
func ValidateDimension(a Adapter, dimension int) error {
	for _, d := range a.SupportedDimensions() {
		if d == dimension {
			return nil
		}
	}
	return vecerr.New(vecerr.ConfigError, fmt.Sprintf("dimension %d is not in this model's allow-list %v", dimension, a.SupportedDimensions()))
}

// validateSchema validates raw against a compiled gojsonschema schema,
// raising an OutputParseError with a bounded preview on mismatch.
func validateSchema(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return vecerr.Wrap(vecerr.OutputParse, "schema validation failed: "+vecerr.Preview(string(raw), 200), err)
	}
	if !result.Valid() {
		return vecerr.New(vecerr.OutputParse, fmt.Sprintf("response does not match expected shape: %s", vecerr.Preview(string(raw), 200)))
	}
	return nil
}

func mustCompile(schemaJSON string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("modeladapter: invalid built-in schema: %v", err))
	}
	return s
}

// --- Titan ---

var titanOutputSchema = mustCompile(`{
	"type": "object",
	"required": ["embedding"],
	"properties": {
		"embedding": {"type": "array", "items": {"type": "number"}}
	}
}`)

// Titan: Amazon Bedrock Titan Text Embeddings. One payload per input;
// the service has no native batch endpoint.
type titanAdapter struct{}

func (titanAdapter) SupportedDimensions() []int { return []int{1024} }

func (titanAdapter) FormatInput(texts []string, dimension int, kind domain.EmbeddingKind) ([][]byte, []int, error) {
	payloads := make([][]byte, 0, len(texts))
	counts := make([]int, 0, len(texts))
	for _, text := range texts {
		body := map[string]any{
			"inputText":  text,
			"dimensions": dimension,
		}
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, vecerr.Wrap(vecerr.Permanent, "encoding titan request", err)
		}
		payloads = append(payloads, b)
		counts = append(counts, 1)
	}
	return payloads, counts, nil
}

func (titanAdapter) ParseOutput(raw []byte, numInputs int) ([]domain.EmbeddingModelOutput, error) {
	if err := validateSchema(titanOutputSchema, raw); err != nil {
		return nil, err
	}
	var body struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, vecerr.Wrap(vecerr.OutputParse, "decoding titan response: "+vecerr.Preview(string(raw), 200), err)
	}
	out := domain.EmbeddingModelOutput{Vectors: map[domain.EmbeddingKind][]float64{domain.EmbeddingFloat: body.Embedding}}
	return []domain.EmbeddingModelOutput{out}, nil
}

// --- Cohere ---

var cohereOutputSchema = mustCompile(`{
	"type": "object",
	"required": ["embeddings"],
	"properties": {
		"embeddings": {"type": "array", "items": {"type": "array", "items": {"type": "number"}}}
	}
}`)

// Cohere: a single payload batches every text in one request.
type cohereAdapter struct{}

func (cohereAdapter) SupportedDimensions() []int { return []int{256, 512, 1024, 1536} }

func (cohereAdapter) FormatInput(texts []string, dimension int, kind domain.EmbeddingKind) ([][]byte, []int, error) {
	body := map[string]any{
		"texts":      texts,
		"input_type": "search_document",
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, nil, vecerr.Wrap(vecerr.Permanent, "encoding cohere request", err)
	}
	return [][]byte{b}, []int{len(texts)}, nil
}

func (cohereAdapter) ParseOutput(raw []byte, numInputs int) ([]domain.EmbeddingModelOutput, error) {
	if err := validateSchema(cohereOutputSchema, raw); err != nil {
		return nil, err
	}
	var body struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, vecerr.Wrap(vecerr.OutputParse, "decoding cohere response: "+vecerr.Preview(string(raw), 200), err)
	}
	if len(body.Embeddings) != numInputs {
		return nil, vecerr.New(vecerr.OutputParse, fmt.Sprintf("cohere returned %d embeddings for %d inputs: %s", len(body.Embeddings), numInputs, vecerr.Preview(string(raw), 200)))
	}
	out := make([]domain.EmbeddingModelOutput, numInputs)
	for i, v := range body.Embeddings {
		out[i] = domain.EmbeddingModelOutput{Vectors: map[domain.EmbeddingKind][]float64{domain.EmbeddingFloat: v}}
	}
	return out, nil
}
