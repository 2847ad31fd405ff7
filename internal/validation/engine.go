// Package validation executes registered invariants against captures
// with bounded parallelism, per-rule timeouts, and retry with
// exponential backoff.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

const (
	defaultMaxParallel = 10
	defaultTimeout     = 5 * time.Second
	baseBackoff        = 100 * time.Millisecond
)

// Engine runs invariants over captures. It is safe for concurrent use;
// the semaphore bounds in-flight invariant executions across all
// callers.
type Engine struct {
	registry       *invariant.Registry
	maxParallel    int
	defaultTimeout time.Duration
	sem            chan struct{}
	logger         *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxParallel bounds concurrent invariant executions.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithDefaultTimeout sets the fallback per-invariant timeout, used
// when a rule's own config leaves it zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// NewEngine builds an engine over a registry.
func NewEngine(registry *invariant.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:       registry,
		maxParallel:    defaultMaxParallel,
		defaultTimeout: defaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = make(chan struct{}, e.maxParallel)
	return e
}

// ValidateCapture runs invariants against one capture and returns one
// result per applicable invariant, in registry order. When
// invariantIDs is non-empty only those rules are considered; unknown
// ids are skipped. Rules that error or time out after their retry
// budget yield an ERROR result rather than failing the whole call.
func (e *Engine) ValidateCapture(ctx context.Context, capture domain.CaptureEvent, invariantIDs ...string) []domain.ValidationResult {
	e.logger.Info("validating capture",
		"capture_id", capture.ID,
		"invariant_ids", invariantIDs,
	)

	var invariants []invariant.Invariant
	if len(invariantIDs) > 0 {
		for _, id := range invariantIDs {
			if inv, ok := e.registry.Get(id); ok {
				invariants = append(invariants, inv)
			}
		}
	} else {
		invariants = e.registry.Enabled()
	}

	ic := invariant.NewContext(capture)
	var applicable []invariant.Invariant
	for _, inv := range invariants {
		if inv.ShouldApply(ic) {
			applicable = append(applicable, inv)
		}
	}
	e.logger.Info("executing invariants",
		"total", len(invariants),
		"applicable", len(applicable),
	)

	results := make([]domain.ValidationResult, len(applicable))
	var wg sync.WaitGroup
	for i, inv := range applicable {
		wg.Add(1)
		go func(i int, inv invariant.Invariant) {
			defer wg.Done()
			results[i] = e.execute(ctx, inv, ic)
		}(i, inv)
	}
	wg.Wait()

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed() {
			passed++
		} else {
			failed++
		}
	}
	e.logger.Info("validation complete",
		"capture_id", capture.ID,
		"total", len(results),
		"passed", passed,
		"failed", failed,
	)
	return results
}

// ValidateBatch validates each capture in turn and aggregates the
// results.
func (e *Engine) ValidateBatch(ctx context.Context, captures []domain.CaptureEvent) domain.BatchValidationResult {
	start := time.Now()
	var all []domain.ValidationResult
	for _, capture := range captures {
		all = append(all, e.ValidateCapture(ctx, capture)...)
	}
	return domain.NewBatchValidationResult(all, time.Since(start))
}

// execute runs one invariant under the semaphore with timeout and
// retry. The semaphore slot is held across retries so backing-off
// rules still count against the parallelism bound.
func (e *Engine) execute(ctx context.Context, inv invariant.Invariant, ic *invariant.Context) domain.ValidationResult {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return e.errorResult(inv, ic, fmt.Sprintf("Execution cancelled: %v", ctx.Err()))
	}

	cfg := inv.Config()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	maxRetries := 0
	if cfg.RetryOnError {
		maxRetries = cfg.MaxRetries
	}

	for attempt := 0; ; attempt++ {
		res, err := e.runOnce(ctx, inv, ic, timeout)
		if err == nil {
			return res
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			e.logger.Warn("invariant timeout",
				"invariant_id", inv.Metadata().ID,
				"timeout", timeout,
				"attempt", attempt+1,
			)
			if attempt >= maxRetries {
				return e.errorResult(inv, ic, fmt.Sprintf("Execution timeout after %dms", timeout.Milliseconds()))
			}
		case errors.Is(err, context.Canceled):
			return e.errorResult(inv, ic, "Execution cancelled")
		default:
			e.logger.Error("invariant error",
				"invariant_id", inv.Metadata().ID,
				"error", err,
				"attempt", attempt+1,
			)
			if attempt >= maxRetries {
				return e.errorResult(inv, ic, fmt.Sprintf("Execution error: %v", err))
			}
		}

		select {
		case <-time.After(baseBackoff << attempt):
		case <-ctx.Done():
			return e.errorResult(inv, ic, "Execution cancelled")
		}
	}
}

// runOnce runs a single attempt with its own deadline. A panicking
// invariant is recovered and reported as an error.
func (e *Engine) runOnce(ctx context.Context, inv invariant.Invariant, ic *invariant.Context, timeout time.Duration) (domain.ValidationResult, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res domain.ValidationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("invariant panic: %v", r)}
			}
		}()
		res, err := inv.Validate(tctx, ic)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-tctx.Done():
		// DeadlineExceeded for a timeout, Canceled when the caller
		// gave up.
		return domain.ValidationResult{}, tctx.Err()
	}
}

func (e *Engine) errorResult(inv invariant.Invariant, ic *invariant.Context, message string) domain.ValidationResult {
	return domain.NewValidationResult(inv.Metadata().ID, ic.Capture.ID,
		domain.StatusError, inv.Config().Severity, message, nil, 0)
}
