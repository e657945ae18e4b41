package embedclient

import (
	"context"
	"sync/atomic"
	"testing"

	"vecbatch/internal/domain"
	"vecbatch/internal/gate"
	"vecbatch/internal/modeladapter"
	"vecbatch/internal/vecerr"
)

// fakeInvoker lets tests control responses and failures without a real
// network call.
type fakeInvoker struct {
	calls     atomic.Int32
	responder func(payload []byte) ([]byte, error)
}

func (f *fakeInvoker) invoke(_ context.Context, payload []byte) ([]byte, error) {
	f.calls.Add(1)
	return f.responder(payload)
}
func (f *fakeInvoker) close() error { return nil }

func newTestClient(t *testing.T, fi *fakeInvoker) *EmbeddingClient {
	t.Helper()
	adapter, ok := modeladapter.Get(modeladapter.Titan)
	if !ok {
		t.Fatal("titan adapter not registered")
	}
	g := gate.New("test", 10, 1, 0.5, 1000, nil)
	return &EmbeddingClient{inv: fi, gate: g, adapter: adapter, model: "test-model"}
}

func TestEmbedBatch_Success(t *testing.T) {
	fi := &fakeInvoker{responder: func(payload []byte) ([]byte, error) {
		return []byte(`{"embedding":[0.1,0.2]}`), nil
	}}
	c := newTestClient(t, fi)

	out, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"}, 1024, domain.EmbeddingFloat)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 outputs (one payload per input for titan), got %d", len(out))
	}
	if fi.calls.Load() != 3 {
		t.Fatalf("expected 3 invoke calls, got %d", fi.calls.Load())
	}
}

func TestEmbedBatch_RejectsBadDimension(t *testing.T) {
	fi := &fakeInvoker{responder: func(payload []byte) ([]byte, error) { return nil, nil }}
	c := newTestClient(t, fi)

	_, err := c.EmbedBatch(context.Background(), []string{"a"}, 77, domain.EmbeddingFloat)
	if err == nil {
		t.Fatal("expected ConfigError for unsupported dimension")
	}
	if kind, _ := vecerr.KindOf(err); kind != vecerr.ConfigError {
		t.Fatalf("expected ConfigError, got %v", kind)
	}
}

func TestEmbedBatch_ThrottleFeedsGate(t *testing.T) {
	fi := &fakeInvoker{responder: func(payload []byte) ([]byte, error) {
		return nil, vecerr.New(vecerr.Throttling, "throttled").WithCode("ThrottlingException")
	}}
	c := newTestClient(t, fi)
	before := c.gate.Capacity()

	_, err := c.EmbedBatch(context.Background(), []string{"a"}, 1024, domain.EmbeddingFloat)
	if err == nil {
		t.Fatal("expected error")
	}
	if after := c.gate.Capacity(); after >= before {
		t.Fatalf("expected gate capacity to decrease on throttle, before=%d after=%d", before, after)
	}
}

func TestEmbedBatch_GateReleasedOnEveryPath(t *testing.T) {
	fi := &fakeInvoker{responder: func(payload []byte) ([]byte, error) {
		return nil, vecerr.New(vecerr.Transient, "boom")
	}}
	c := newTestClient(t, fi)

	_, _ = c.EmbedBatch(context.Background(), []string{"a"}, 1024, domain.EmbeddingFloat)
	if got := c.gate.CurrentCount(); got != 0 {
		t.Fatalf("gate should be fully released after a failing call, current_count=%d", got)
	}
}
