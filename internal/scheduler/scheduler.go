// Package scheduler implements the generic bounded-concurrency engine
// that drives a user operation over a finite queue of work items,
// enforcing retry policy and preserving input order in its output.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vecbatch/internal/domain"
	"vecbatch/internal/resilience"
	"vecbatch/internal/vecerr"
)

// Observer receives scheduler metrics, labeled by a caller-supplied
// component name ("vectorizer" or "bulk_indexer").
type Observer interface {
	IncProcessed(component string, n int)
	IncFailed(component string, n int)
	IncRetried(component string, n int)
	SetSchedulerInflight(component string, v float64)
	ObserveDuration(component string, seconds float64)
}

// Op is the user-supplied, possibly-failing operation driven over each
// work item's payload.
type Op[T, U any] func(ctx context.Context, data T) (U, error)

// Run drives items through op with bounded concurrency, per-item retry
// policy, and a results sequence index-aligned to items. The scheduler
// itself never fails; per-item failures are surfaced in the returned
// result's Results slots.
func Run[T, U any](ctx context.Context, items []T, op Op[T, U], cfg domain.ProcessorConfig, component string, obs Observer, log *slog.Logger, runID string) domain.ProcessorResult[U] {
	n := len(items)
	result := domain.ProcessorResult[U]{Results: make([]domain.Slot[U], n)}
	if n == 0 {
		return result
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = applyDefaults(cfg)
	start := time.Now()

	// Pre-fill a buffered channel sized to len(items); retries re-send
	// on the same channel, which never holds more than one live entry
	// per original item, so this capacity is never exceeded.
	queue := make(chan *domain.WorkItem[T], n)
	for i, it := range items {
		queue <- &domain.WorkItem[T]{Index: i, Data: it, RemainingAttempts: cfg.MaxAttempts}
	}

	var (
		mu           sync.Mutex
		totalFailed  int
		totalRetried int
	)

	if obs != nil {
		obs.SetSchedulerInflight(component, float64(n))
	}

	var wg sync.WaitGroup
	for w := 0; w < cfg.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, queue, op, cfg, result.Results, &mu, &totalFailed, &totalRetried, log, runID)
		}()
	}
	wg.Wait()

	result.TotalFailed = totalFailed
	result.TotalRetried = totalRetried
	result.TotalProcessed = n - totalFailed

	if obs != nil {
		obs.SetSchedulerInflight(component, 0)
		obs.IncProcessed(component, result.TotalProcessed)
		obs.IncFailed(component, totalFailed)
		obs.IncRetried(component, totalRetried)
		obs.ObserveDuration(component, time.Since(start).Seconds())
	}

	log.Debug("scheduler run complete",
		"run_id", runID,
		"component", component,
		"total_processed", result.TotalProcessed,
		"total_failed", result.TotalFailed,
		"total_retried", result.TotalRetried,
	)

	return result
}

func applyDefaults(cfg domain.ProcessorConfig) domain.ProcessorConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 100
	}
	if cfg.RetryableKinds == nil {
		cfg.RetryableKinds = map[vecerr.Kind]bool{vecerr.Transient: true, vecerr.Throttling: true}
	}
	if cfg.IsThrottling == nil {
		cfg.IsThrottling = vecerr.DefaultIsThrottling
	}
	return cfg
}

// runWorker loops: non-blocking dequeue, invoke op, classify failure,
// retry-or-terminate. It exits the instant the queue looks empty; any
// item it is itself retrying stays live because the worker re-sends it
// before looping back to dequeue, so no item is ever stranded by other
// workers exiting early.
func runWorker[T, U any](
	ctx context.Context,
	queue chan *domain.WorkItem[T],
	op Op[T, U],
	cfg domain.ProcessorConfig,
	results []domain.Slot[U],
	mu *sync.Mutex,
	totalFailed, totalRetried *int,
	log *slog.Logger,
	runID string,
) {
	for {
		if ctx.Err() != nil {
			return
		}

		var item *domain.WorkItem[T]
		select {
		case item = <-queue:
		default:
			return
		}

		out, err := op(ctx, item.Data)
		if err == nil {
			results[item.Index] = domain.Slot[U]{Value: out}
			invokeProgress(cfg.OnProgress, log, runID)
			continue
		}

		kind, _ := vecerr.KindOf(err)
		if !cfg.RetryableKinds[kind] {
			results[item.Index] = domain.Slot[U]{Err: err}
			mu.Lock()
			*totalFailed++
			mu.Unlock()
			continue
		}

		var shouldRetry bool
		switch {
		case cfg.RetryStrategy == domain.RetryNone:
			shouldRetry = false
		case cfg.IsThrottling(err):
			shouldRetry = cfg.HandleThrottling && item.RemainingAttempts > 1
		default:
			shouldRetry = item.RemainingAttempts > 1
		}

		if !shouldRetry {
			results[item.Index] = domain.Slot[U]{Err: err}
			mu.Lock()
			*totalFailed++
			mu.Unlock()
			continue
		}

		delay := resilience.Backoff(cfg.RetryStrategy, cfg.MaxAttempts, item.RemainingAttempts)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Abandoned: per the cancellation contract, the item's slot
			// stays unset and is the caller's problem to treat as partial.
			return
		}

		item.RemainingAttempts--
		mu.Lock()
		*totalRetried++
		mu.Unlock()
		queue <- item
	}
}

// invokeProgress calls the progress callback, swallowing and logging any
// panic it raises so a broken observability sink never breaks the run.
func invokeProgress(cb func(int), log *slog.Logger, runID string) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("progress callback panicked", "run_id", runID, "panic", fmt.Sprint(r))
		}
	}()
	cb(1)
}
