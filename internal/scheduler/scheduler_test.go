package scheduler

import (
	"context"
	"testing"

	"vecbatch/internal/domain"
	"vecbatch/internal/vecerr"
)

func throttlingErr() error {
	return vecerr.New(vecerr.Throttling, "throttled").WithCode("ThrottlingException")
}

func TestScheduler_Doubling(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	cfg := domain.DefaultProcessorConfig()
	cfg.NumWorkers = 2

	res := Run(context.Background(), items, func(_ context.Context, x int) (int, error) {
		return x * 2, nil
	}, cfg, "test", nil, nil, "run-1")

	want := []int{2, 4, 6, 8, 10}
	for i, w := range want {
		if !res.Results[i].Ok() || res.Results[i].Value != w {
			t.Fatalf("results[%d] = %+v, want %d", i, res.Results[i], w)
		}
	}
	if res.TotalRetried != 0 || res.TotalFailed != 0 {
		t.Fatalf("expected no retries/failures, got retried=%d failed=%d", res.TotalRetried, res.TotalFailed)
	}
}

func TestScheduler_AlwaysThrottles(t *testing.T) {
	items := []int{1, 2}
	cfg := domain.ProcessorConfig{
		MaxAttempts:      2,
		NumWorkers:       2,
		RetryStrategy:    domain.RetryImmediate,
		HandleThrottling: true,
		RetryableKinds:   map[vecerr.Kind]bool{vecerr.Throttling: true},
		IsThrottling:     vecerr.DefaultIsThrottling,
	}

	res := Run(context.Background(), items, func(_ context.Context, _ int) (int, error) {
		return 0, throttlingErr()
	}, cfg, "test", nil, nil, "run-2")

	if res.TotalFailed != 2 {
		t.Fatalf("total_failed = %d, want 2", res.TotalFailed)
	}
	if res.TotalRetried != 2 {
		t.Fatalf("total_retried = %d, want 2", res.TotalRetried)
	}
	for i, s := range res.Results {
		if s.Ok() {
			t.Fatalf("results[%d] should be an error", i)
		}
		if kind, _ := vecerr.KindOf(s.Err); kind != vecerr.Throttling {
			t.Fatalf("results[%d] kind = %v, want Throttling", i, kind)
		}
	}
}

func TestScheduler_ThrottleThenSucceed(t *testing.T) {
	attempts := 0
	cfg := domain.ProcessorConfig{
		MaxAttempts:      3,
		NumWorkers:       1,
		RetryStrategy:    domain.RetryImmediate,
		HandleThrottling: true,
		RetryableKinds:   map[vecerr.Kind]bool{vecerr.Throttling: true},
		IsThrottling:     vecerr.DefaultIsThrottling,
	}

	res := Run(context.Background(), []int{1}, func(_ context.Context, _ int) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, throttlingErr()
		}
		return 2, nil
	}, cfg, "test", nil, nil, "run-3")

	if !res.Results[0].Ok() || res.Results[0].Value != 2 {
		t.Fatalf("results[0] = %+v, want success 2", res.Results[0])
	}
	if res.TotalRetried != 1 || res.TotalFailed != 0 {
		t.Fatalf("expected retried=1 failed=0, got retried=%d failed=%d", res.TotalRetried, res.TotalFailed)
	}
}

func TestScheduler_OnlyThrottlingRetryable(t *testing.T) {
	cfg := domain.ProcessorConfig{
		MaxAttempts:      5,
		NumWorkers:       3,
		RetryStrategy:    domain.RetryImmediate,
		HandleThrottling: true,
		RetryableKinds:   map[vecerr.Kind]bool{vecerr.Throttling: true},
		IsThrottling:     vecerr.DefaultIsThrottling,
	}

	res := Run(context.Background(), []int{1, 2, 3}, func(_ context.Context, x int) (int, error) {
		if x%2 == 0 {
			return 0, vecerr.New(vecerr.Permanent, "value error")
		}
		return x * 2, nil
	}, cfg, "test", nil, nil, "run-4")

	if res.Results[0].Value != 2 || !res.Results[0].Ok() {
		t.Fatalf("results[0] = %+v", res.Results[0])
	}
	if res.Results[1].Ok() {
		t.Fatalf("results[1] should be a permanent failure")
	}
	if res.Results[2].Value != 6 || !res.Results[2].Ok() {
		t.Fatalf("results[2] = %+v", res.Results[2])
	}
	if res.TotalRetried != 0 || res.TotalFailed != 1 {
		t.Fatalf("expected retried=0 failed=1, got retried=%d failed=%d", res.TotalRetried, res.TotalFailed)
	}
}

func TestScheduler_EmptyInput(t *testing.T) {
	res := Run(context.Background(), []int{}, func(_ context.Context, x int) (int, error) {
		return x, nil
	}, domain.DefaultProcessorConfig(), "test", nil, nil, "run-5")

	if len(res.Results) != 0 || res.TotalProcessed != 0 || res.TotalFailed != 0 || res.TotalRetried != 0 {
		t.Fatalf("expected zeroed result for empty input, got %+v", res)
	}
}

func TestScheduler_MoreWorkersThanItems(t *testing.T) {
	cfg := domain.DefaultProcessorConfig()
	cfg.NumWorkers = 50

	res := Run(context.Background(), []int{1, 2, 3}, func(_ context.Context, x int) (int, error) {
		return x, nil
	}, cfg, "test", nil, nil, "run-6")

	if res.TotalProcessed != 3 {
		t.Fatalf("total_processed = %d, want 3", res.TotalProcessed)
	}
}

func TestScheduler_OrderPreservation(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	cfg := domain.DefaultProcessorConfig()
	cfg.NumWorkers = 8

	res := Run(context.Background(), items, func(_ context.Context, x int) (int, error) {
		return x, nil
	}, cfg, "test", nil, nil, "run-7")

	for i, s := range res.Results {
		if !s.Ok() || s.Value != items[i] {
			t.Fatalf("results[%d] = %+v, want %d", i, s, items[i])
		}
	}
}
