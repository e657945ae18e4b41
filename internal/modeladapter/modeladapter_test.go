package modeladapter

import (
	"testing"

	"vecbatch/internal/domain"
	"vecbatch/internal/vecerr"
)

func TestDimensionAllowLists(t *testing.T) {
	cases := []struct {
		id    ModelID
		valid []int
	}{
		{Titan, []int{1024}},
		{Cohere, []int{256, 512, 1024, 1536}},
	}

	for _, c := range cases {
		t.Run(string(c.id), func(t *testing.T) {
			a, ok := Get(c.id)
			if !ok {
				t.Fatalf("adapter %s not registered", c.id)
			}
			for _, d := range c.valid {
				if err := ValidateDimension(a, d); err != nil {
					t.Errorf("dimension %d should be valid: %v", d, err)
				}
			}
			if err := ValidateDimension(a, 99999); err == nil {
				t.Errorf("expected rejection of out-of-range dimension")
			} else if kind, _ := vecerr.KindOf(err); kind != vecerr.ConfigError {
				t.Errorf("expected ConfigError, got %v", kind)
			}
		})
	}
}

func TestTitanRoundTrip(t *testing.T) {
	a, _ := Get(Titan)
	payloads, counts, err := a.FormatInput([]string{"a", "b"}, 1024, domain.EmbeddingFloat)
	if err != nil {
		t.Fatal(err)
	}
	if len(payloads) != 2 || counts[0] != 1 || counts[1] != 1 {
		t.Fatalf("titan should issue one payload per input, got %d payloads", len(payloads))
	}

	out, err := a.ParseOutput([]byte(`{"embedding":[0.1,0.2,0.3]}`), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || len(out[0].Vectors[domain.EmbeddingFloat]) != 3 {
		t.Fatalf("unexpected parse result: %+v", out)
	}
}

func TestTitanParseOutput_SchemaMismatch(t *testing.T) {
	a, _ := Get(Titan)
	_, err := a.ParseOutput([]byte(`{"unexpected":"shape"}`), 1)
	if err == nil {
		t.Fatal("expected OutputParseError")
	}
	if kind, _ := vecerr.KindOf(err); kind != vecerr.OutputParse {
		t.Fatalf("expected OutputParse, got %v", kind)
	}
}

func TestCohereBatchedRoundTrip(t *testing.T) {
	a, _ := Get(Cohere)
	payloads, counts, err := a.FormatInput([]string{"a", "b", "c"}, 1024, domain.EmbeddingFloat)
	if err != nil {
		t.Fatal(err)
	}
	if len(payloads) != 1 || counts[0] != 3 {
		t.Fatalf("cohere should batch all inputs into one payload, got %d payloads count=%v", len(payloads), counts)
	}

	out, err := a.ParseOutput([]byte(`{"embeddings":[[0.1],[0.2],[0.3]]}`), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(out))
	}
}

func TestCohereParseOutput_CountMismatch(t *testing.T) {
	a, _ := Get(Cohere)
	_, err := a.ParseOutput([]byte(`{"embeddings":[[0.1]]}`), 3)
	if err == nil {
		t.Fatal("expected OutputParseError on count mismatch")
	}
}
