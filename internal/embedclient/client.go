// Package embedclient implements the stateful, connection-pooled
// client over the remote embedding service: a single AdaptiveGate per
// instance, dispatching to model-specific request/response adapters.
package embedclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vecbatch/internal/domain"
	"vecbatch/internal/gate"
	"vecbatch/internal/modeladapter"
	"vecbatch/internal/vecerr"
)

// Observer receives per-call telemetry; errKind is "" on success.
type Observer interface {
	RecordEmbedCall(model string, duration time.Duration, errKind string)
}

// Config selects the backend and the model this client targets.
type Config struct {
	// Backend is "bedrock" or "cohere_rest".
	Backend string
	Bedrock BedrockCredentials
	// RESTBaseURL/RESTAPIKey configure the cohere_rest backend.
	RESTBaseURL string
	RESTAPIKey  string

	ModelID   modeladapter.ModelID
	ModelName string // service-facing model identifier, e.g. "amazon.titan-embed-text-v2:0"
}

// EmbeddingClient is a parallel-safe client to the remote embedding
// service. It owns one AdaptiveGate; the feedback signal reflects the
// aggregate load this client instance imposes, never a per-request
// local decision.
type EmbeddingClient struct {
	inv     invoker
	gate    *gate.AdaptiveGate
	adapter modeladapter.Adapter
	model   string

	log *slog.Logger
	obs Observer
}

// New constructs an EmbeddingClient. g must be dedicated to this
// client; gates are never shared across instances.
func New(ctx context.Context, cfg Config, g *gate.AdaptiveGate, log *slog.Logger, obs Observer) (*EmbeddingClient, error) {
	adapter, ok := modeladapter.Get(cfg.ModelID)
	if !ok {
		return nil, vecerr.New(vecerr.ConfigError, "unknown model id: "+string(cfg.ModelID))
	}
	if log == nil {
		log = slog.Default()
	}

	conn := DefaultConnectionSettings()
	var inv invoker
	var err error
	switch cfg.Backend {
	case "bedrock":
		inv, err = newBedrockInvoker(ctx, cfg.ModelName, cfg.Bedrock, conn)
	case "cohere_rest":
		inv = newRESTInvoker(cfg.RESTBaseURL, cfg.RESTAPIKey, conn)
	default:
		err = vecerr.New(vecerr.ConfigError, "unknown embedder backend: "+cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return &EmbeddingClient{inv: inv, gate: g, adapter: adapter, model: cfg.ModelName, log: log, obs: obs}, nil
}

// invoke is one admission-controlled call: acquire, issue, feed the
// gate back, release on every exit path.
func (c *EmbeddingClient) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, vecerr.Wrap(vecerr.Cancelled, "gate acquire cancelled", err)
	}
	defer c.gate.Release()

	start := time.Now()
	raw, err := c.inv.invoke(ctx, payload)
	if err != nil {
		if code, ok := vecerr.CodeOf(err); ok && code == "ThrottlingException" {
			c.gate.OnThrottle()
		}
		if c.obs != nil {
			kind, _ := vecerr.KindOf(err)
			c.obs.RecordEmbedCall(c.model, time.Since(start), kind.String())
		}
		return nil, err
	}

	c.gate.OnSuccess()
	if c.obs != nil {
		c.obs.RecordEmbedCall(c.model, time.Since(start), "")
	}
	return raw, nil
}

// EmbedBatch dispatches to the model adapter to format inputs, issues
// one invoke call per formatted payload in parallel, and assembles a
// sequence of EmbeddingModelOutput aligned to texts.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string, dimension int, kind domain.EmbeddingKind) ([]domain.EmbeddingModelOutput, error) {
	if err := modeladapter.ValidateDimension(c.adapter, dimension); err != nil {
		return nil, err
	}
	payloads, counts, err := c.adapter.FormatInput(texts, dimension, kind)
	if err != nil {
		return nil, err
	}

	type slot struct {
		out []domain.EmbeddingModelOutput
		err error
	}
	slots := make([]slot, len(payloads))

	var wg sync.WaitGroup
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := c.invoke(ctx, payloads[i])
			if err != nil {
				slots[i] = slot{err: err}
				return
			}
			out, err := c.adapter.ParseOutput(raw, counts[i])
			slots[i] = slot{out: out, err: err}
		}(i)
	}
	wg.Wait()

	result := make([]domain.EmbeddingModelOutput, 0, len(texts))
	for _, s := range slots {
		if s.err != nil {
			return nil, s.err
		}
		result = append(result, s.out...)
	}
	return result, nil
}

// Close releases the pooled connection.
func (c *EmbeddingClient) Close() error {
	return c.inv.close()
}

// FuncInvoker adapts a plain function to the unexported invoker
// interface, letting other packages' tests (e.g. vectorizer) supply
// deterministic responses without a real network call.
type FuncInvoker func(ctx context.Context, payload []byte) ([]byte, error)

func (f FuncInvoker) invoke(ctx context.Context, payload []byte) ([]byte, error) { return f(ctx, payload) }
func (f FuncInvoker) close() error                                              { return nil }

// NewForTest builds an EmbeddingClient from an already-constructed
// invoker, gate, and adapter, bypassing backend dispatch.
func NewForTest(inv FuncInvoker, g *gate.AdaptiveGate, adapter modeladapter.Adapter, model string) *EmbeddingClient {
	return &EmbeddingClient{inv: inv, gate: g, adapter: adapter, model: model, log: slog.Default()}
}
