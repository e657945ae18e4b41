// Package domain holds the data types shared across the scheduler,
// embedding client, vectorizer, and bulk indexer: work items, results,
// retry policy, and the embedding model's output shape.
package domain

import (
	"github.com/google/uuid"

	"vecbatch/internal/vecerr"
)

// RetryStrategy governs the delay chosen before a re-enqueue.
type RetryStrategy int

const (
	RetryNone RetryStrategy = iota
	RetryImmediate
	RetryFixed
	RetryExponential
	RetryJittered
)

// ParseRetryStrategy maps a config string to a RetryStrategy, defaulting
// to Jittered for an unrecognized or empty value.
func ParseRetryStrategy(s string) RetryStrategy {
	switch s {
	case "none":
		return RetryNone
	case "immediate":
		return RetryImmediate
	case "fixed":
		return RetryFixed
	case "exponential":
		return RetryExponential
	case "jittered", "":
		return RetryJittered
	default:
		return RetryJittered
	}
}

func (s RetryStrategy) String() string {
	switch s {
	case RetryNone:
		return "none"
	case RetryImmediate:
		return "immediate"
	case RetryFixed:
		return "fixed"
	case RetryExponential:
		return "exponential"
	case RetryJittered:
		return "jittered"
	default:
		return "unknown"
	}
}

// WorkItem is a queued unit carrying its original position, payload, and
// remaining retry budget. The scheduler mutates only RemainingAttempts,
// on re-enqueue after a retryable failure.
type WorkItem[T any] struct {
	Index             int
	Data              T
	RemainingAttempts int
}

// ProcessorResult is the scheduler's terminal output: a results sequence
// aligned 1:1 with input order, plus run counters.
type ProcessorResult[U any] struct {
	Results       []Slot[U]
	TotalProcessed int
	TotalFailed    int
	TotalRetried   int
}

// Slot holds either a success value of type U or a terminal error. Value
// is meaningful only when Err is nil.
type Slot[U any] struct {
	Value U
	Err   error
}

// Ok reports whether the slot holds a success value.
func (s Slot[U]) Ok() bool { return s.Err == nil }

// ProcessorConfig is immutable once a scheduler run starts.
type ProcessorConfig struct {
	MaxAttempts        int
	NumWorkers         int
	RetryStrategy      RetryStrategy
	HandleThrottling   bool
	OnProgress         func(delta int)
	RetryableKinds     map[vecerr.Kind]bool
	IsThrottling       func(error) bool
}

// DefaultProcessorConfig mirrors the scheduler's documented defaults:
// max_attempts=10, num_workers=100, retry_strategy=Jittered,
// handle_throttling=true, retrying Transient and Throttling errors by default.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxAttempts:      10,
		NumWorkers:       100,
		RetryStrategy:    RetryJittered,
		HandleThrottling: true,
		RetryableKinds:   map[vecerr.Kind]bool{vecerr.Transient: true, vecerr.Throttling: true},
		IsThrottling:     vecerr.DefaultIsThrottling,
	}
}

// EmbeddingKind enumerates the numeric representations a model may
// return for a single vector.
type EmbeddingKind int

const (
	EmbeddingFloat EmbeddingKind = iota
	EmbeddingInt8
	EmbeddingUInt8
	EmbeddingBinary
	EmbeddingUBinary
)

func (k EmbeddingKind) String() string {
	switch k {
	case EmbeddingFloat:
		return "float"
	case EmbeddingInt8:
		return "int8"
	case EmbeddingUInt8:
		return "uint8"
	case EmbeddingBinary:
		return "binary"
	case EmbeddingUBinary:
		return "ubinary"
	default:
		return "unknown"
	}
}

// EmbeddingModelOutput maps each requested embedding kind to its vector.
// The scheduler treats this type as opaque U.
type EmbeddingModelOutput struct {
	Vectors map[EmbeddingKind][]float64
}

// BulkBatchItem is one partition of rows submitted to the search
// cluster's bulk endpoint; StartIdx is the offset used to derive
// per-document ids.
type BulkBatchItem struct {
	Rows     []map[string]any
	BatchNum int
	StartIdx int
}

// NewRunID mints a correlation id for one scheduler/vectorize/bulk-index
// invocation, threaded through logging and metrics.
func NewRunID() string {
	return uuid.NewString()
}
