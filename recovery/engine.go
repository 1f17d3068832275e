package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/buffer"
	"github.com/c360/perfkit/pkg/retry"
)

// Error log retention: most recent errorLogCapacity entries, compacted to
// errorLogCompactTo when full.
const (
	errorLogCapacity  = 100
	errorLogCompactTo = 50
)

// RecoverableError is the terminal failure of a retried operation. It
// carries the original cause plus a human-readable suggestion; hosts are
// expected to surface the suggestion, not the technical message.
type RecoverableError struct {
	OperationID string
	Attempts    int
	Suggestion  string
	Err         error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("operation %s failed after %d attempts: %v", e.OperationID, e.Attempts, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// LoggedError is one entry in the rolling error log.
type LoggedError struct {
	Time        time.Time
	OperationID string
	Class       errors.ErrorClass
	Code        string
	Message     string
}

// ErrorStats summarizes the rolling error log.
type ErrorStats struct {
	Total               int
	ByClass             map[string]int
	ByCode              map[string]int
	RecoveredOperations int64
	Recent              []LoggedError
}

// Engine wraps fallible operations with classification-driven retry. All
// retry decisions for the layer are made here.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	core   *metric.Core

	mu  sync.Mutex
	ops map[string]*opState

	errorLog  *buffer.Ring[LoggedError]
	recovered int64
}

// opState serializes attempts for one operation id and tracks its retry
// counter, which resets on success.
type opState struct {
	mu      sync.Mutex
	retries int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics exports retry counters through the perfkit registry.
func WithMetrics(reg *metric.Registry) EngineOption {
	return func(e *Engine) {
		if reg != nil {
			e.core = reg.Core
		}
	}
}

// NewEngine creates a retry engine with the given policy.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = DefaultConfig().BackoffMultiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}

	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		ops:      make(map[string]*opState),
		errorLog: buffer.NewRing[LoggedError](errorLogCapacity, errorLogCompactTo),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn under the engine's retry policy. Attempts for the same
// operationID run strictly sequentially; distinct ids are independent.
// Terminal failures come back as a *RecoverableError.
func (e *Engine) Execute(ctx context.Context, operationID string, fn func(ctx context.Context) error) error {
	op := e.opState(operationID)
	op.mu.Lock()
	defer op.mu.Unlock()

	retryIf := e.cfg.RetryIf
	if retryIf == nil {
		retryIf = errors.IsRetryable
	}
	cfg := retry.Config{
		MaxAttempts:  e.cfg.MaxRetries + 1,
		InitialDelay: e.cfg.RetryDelay,
		MaxDelay:     e.cfg.MaxDelay,
		Multiplier:   e.cfg.BackoffMultiplier,
		AddJitter:    true,
		RetryIf:      retryIf,
	}

	attempts := 1
	err := retry.DoWithObserver(ctx, cfg, func() error {
		return fn(ctx)
	}, func(a retry.Attempt) {
		attempts = a.Number + 1
		op.retries++
		e.record(operationID, a.Err)
		if e.core != nil {
			e.core.RetryAttempts.WithLabelValues(categoryOf(operationID)).Inc()
		}
		e.logger.Debug("retrying operation",
			"operation", operationID, "attempt", a.Number, "delay", a.Delay, "error", a.Err)
	})

	if err == nil {
		if op.retries > 0 {
			atomic.AddInt64(&e.recovered, 1)
		}
		op.retries = 0
		return nil
	}

	ce := errors.Classify(err)
	e.record(operationID, err)
	if e.core != nil {
		e.core.OperationFailures.WithLabelValues(ce.Class.String()).Inc()
	}
	e.logger.Warn("operation failed terminally",
		"operation", operationID, "attempts", attempts, "class", ce.Class.String(), "error", err)

	return &RecoverableError{
		OperationID: operationID,
		Attempts:    attempts,
		Suggestion:  suggestionFor(operationID),
		Err:         ce,
	}
}

// ExecuteWithRetry runs a value-returning operation under the engine's
// retry policy.
func ExecuteWithRetry[T any](ctx context.Context, e *Engine, operationID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, operationID, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// LogError appends an error to the rolling log without retrying anything.
// Used by the error boundary and for failures handled elsewhere.
func (e *Engine) LogError(operationID string, err error) {
	if err == nil {
		return
	}
	e.record(operationID, err)
}

// ErrorStats summarizes the rolling error log.
func (e *Engine) ErrorStats() ErrorStats {
	entries := e.errorLog.Items()
	stats := ErrorStats{
		Total:               len(entries),
		ByClass:             make(map[string]int),
		ByCode:              make(map[string]int),
		RecoveredOperations: atomic.LoadInt64(&e.recovered),
		Recent:              entries,
	}
	for _, le := range entries {
		stats.ByClass[le.Class.String()]++
		if le.Code != "" {
			stats.ByCode[le.Code]++
		}
	}
	return stats
}

func (e *Engine) opState(operationID string) *opState {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[operationID]
	if !ok {
		op = &opState{}
		e.ops[operationID] = op
	}
	return op
}

func (e *Engine) record(operationID string, err error) {
	ce := errors.Classify(err)
	e.errorLog.Append(LoggedError{
		Time:        time.Now(),
		OperationID: operationID,
		Class:       ce.Class,
		Code:        ce.Code,
		Message:     err.Error(),
	})
}

// categoryOf derives the operation category from the id: the segment
// before the first separator, lowercased.
func categoryOf(operationID string) string {
	id := strings.ToLower(operationID)
	if i := strings.IndexAny(id, "_-.:"); i > 0 {
		return id[:i]
	}
	if id == "" {
		return "general"
	}
	return id
}

// suggestionFor maps an operation category onto the fallback message shown
// to users when recovery is exhausted.
func suggestionFor(operationID string) string {
	switch categoryOf(operationID) {
	case "fetch", "api", "http", "network", "sync":
		return "Check your network connection and try again."
	case "cache", "storage", "save":
		return "Storage appears to be full or unavailable. Free up space and retry."
	case "load", "resource", "image", "script", "style", "component", "data":
		return "The resource could not be loaded. Refresh and try again."
	case "session", "auth", "login":
		return "Your session could not be restored. Sign in again to continue."
	default:
		return "Something went wrong. Please try again."
	}
}
