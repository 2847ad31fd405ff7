package validation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

// fake is a scriptable invariant for engine tests.
type fake struct {
	invariant.Base
	id       string
	delay    time.Duration
	err      error
	panicMsg string
	failures int32 // errors returned before succeeding
	calls    int32
	gauge    *gauge
}

// gauge tracks peak concurrency across a set of fakes.
type gauge struct {
	running int32
	peak    int32
}

func (g *gauge) enter() {
	n := atomic.AddInt32(&g.running, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			return
		}
	}
}

func (g *gauge) exit() { atomic.AddInt32(&g.running, -1) }

func newFake(id string, cfg invariant.Config) *fake {
	return &fake{Base: invariant.Base{Cfg: cfg}, id: id}
}

func (f *fake) Metadata() invariant.Metadata {
	return invariant.Metadata{ID: f.id, Name: f.id, Category: invariant.CategoryCustom, Version: "1.0.0"}
}

func (f *fake) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	attempt := atomic.AddInt32(&f.calls, 1)
	if f.gauge != nil {
		f.gauge.enter()
		defer f.gauge.exit()
	}

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.ValidationResult{}, ctx.Err()
		}
	}
	if f.err != nil && attempt <= f.failures {
		return domain.ValidationResult{}, f.err
	}
	if f.err != nil && f.failures == 0 {
		return domain.ValidationResult{}, f.err
	}
	return invariant.NewResult(f.Metadata(), f.Cfg, ic, domain.StatusPassed, "ok", nil, 0), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCapture(t *testing.T) domain.CaptureEvent {
	t.Helper()
	model, err := domain.NewModelConfig(domain.ProviderOpenAI, "gpt-4o", 0.7, 1.0)
	if err != nil {
		t.Fatalf("NewModelConfig() error = %v", err)
	}
	req, err := domain.NewLLMRequest(domain.RequestTypeChat, "hello", nil, model, domain.RequestContext{ApplicationName: "app"})
	if err != nil {
		t.Fatalf("NewLLMRequest() error = %v", err)
	}
	resp := domain.NewLLMResponse(req.ID, "world", "stop", nil, 10)
	return domain.NewCaptureEvent(req, resp, "test")
}

func TestValidateCapture_OneResultPerApplicable(t *testing.T) {
	reg := invariant.NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		if err := reg.Register(newFake(id, invariant.DefaultConfig())); err != nil {
			t.Fatalf("Register(%q) error = %v", id, err)
		}
	}
	disabled := invariant.DefaultConfig()
	disabled.Enabled = false
	if err := reg.Register(newFake("d", disabled)); err != nil {
		t.Fatalf("Register(d) error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for _, r := range results {
		if r.Status != domain.StatusPassed {
			t.Errorf("invariant %s: Status = %q, want passed", r.InvariantID, r.Status)
		}
	}
}

func TestValidateCapture_ExplicitIDsSkipUnknown(t *testing.T) {
	reg := invariant.NewRegistry()
	if err := reg.Register(newFake("known", invariant.DefaultConfig())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t), "known", "missing")
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].InvariantID != "known" {
		t.Errorf("InvariantID = %q, want known", results[0].InvariantID)
	}
}

func TestValidateCapture_BoundsParallelism(t *testing.T) {
	reg := invariant.NewRegistry()
	g := &gauge{}
	for i := 0; i < 20; i++ {
		f := newFake(string(rune('a'+i)), invariant.DefaultConfig())
		f.delay = 20 * time.Millisecond
		f.gauge = g
		if err := reg.Register(f); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	e := NewEngine(reg, WithLogger(quietLogger()), WithMaxParallel(3))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if len(results) != 20 {
		t.Fatalf("len(results) = %d, want 20", len(results))
	}
	if got := atomic.LoadInt32(&g.peak); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
	if got := atomic.LoadInt32(&g.peak); got == 0 {
		t.Error("no invariant ever ran")
	}
}

func TestValidateCapture_TimeoutExhaustsRetries(t *testing.T) {
	cfg := invariant.DefaultConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.MaxRetries = 2
	f := newFake("slow", cfg)
	f.delay = 500 * time.Millisecond

	reg := invariant.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Status != domain.StatusError {
		t.Errorf("Status = %q, want error", results[0].Status)
	}
	if got := atomic.LoadInt32(&f.calls); got != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestValidateCapture_ErrorDegradesToErrorResult(t *testing.T) {
	cfg := invariant.DefaultConfig()
	cfg.RetryOnError = false
	f := newFake("broken", cfg)
	f.err = errors.New("backend unavailable")

	reg := invariant.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Status != domain.StatusError {
		t.Errorf("Status = %q, want error", results[0].Status)
	}
	if got := atomic.LoadInt32(&f.calls); got != 1 {
		t.Errorf("attempts = %d, want 1 with retries disabled", got)
	}
}

func TestValidateCapture_RetrySucceedsAfterTransientError(t *testing.T) {
	cfg := invariant.DefaultConfig()
	f := newFake("flaky", cfg)
	f.err = errors.New("transient")
	f.failures = 1

	reg := invariant.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if results[0].Status != domain.StatusPassed {
		t.Errorf("Status = %q, want passed after retry", results[0].Status)
	}
	if got := atomic.LoadInt32(&f.calls); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestValidateCapture_PanicBecomesErrorResult(t *testing.T) {
	cfg := invariant.DefaultConfig()
	cfg.RetryOnError = false
	f := newFake("panicky", cfg)
	f.panicMsg = "boom"

	reg := invariant.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(context.Background(), testCapture(t))
	if results[0].Status != domain.StatusError {
		t.Errorf("Status = %q, want error from recovered panic", results[0].Status)
	}
}

func TestValidateCapture_Cancellation(t *testing.T) {
	cfg := invariant.DefaultConfig()
	f := newFake("slow", cfg)
	f.delay = time.Second

	reg := invariant.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	e := NewEngine(reg, WithLogger(quietLogger()))
	results := e.ValidateCapture(ctx, testCapture(t))
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Status != domain.StatusError {
		t.Errorf("Status = %q, want error on cancellation", results[0].Status)
	}
}

func TestValidateBatch(t *testing.T) {
	reg := invariant.NewRegistry()
	if err := reg.Register(newFake("ok", invariant.DefaultConfig())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	e := NewEngine(reg, WithLogger(quietLogger()))
	captures := []domain.CaptureEvent{testCapture(t), testCapture(t), testCapture(t)}
	batch := e.ValidateBatch(context.Background(), captures)
	if batch.TotalValidations != 3 {
		t.Errorf("TotalValidations = %d, want 3", batch.TotalValidations)
	}
	if batch.PassedCount != 3 {
		t.Errorf("PassedCount = %d, want 3", batch.PassedCount)
	}
	if got := batch.PassRate(); got != 1.0 {
		t.Errorf("PassRate() = %v, want 1.0", got)
	}
}
