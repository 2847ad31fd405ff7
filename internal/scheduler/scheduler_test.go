package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

type fakeDetector struct {
	mu      sync.Mutex
	calls   map[string]int
	metrics []domain.DriftMetric
	err     error
}

func (d *fakeDetector) DetectDrift(_ context.Context, application string, _, _ *domain.DriftWindow) ([]domain.DriftMetric, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls == nil {
		d.calls = map[string]int{}
	}
	d.calls[application]++
	return d.metrics, d.err
}

type fakeSink struct {
	mu      sync.Mutex
	metrics map[string][]domain.DriftMetric
	alerts  []domain.DriftAlert
}

func (s *fakeSink) SaveMetrics(_ context.Context, application string, metrics []domain.DriftMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = map[string][]domain.DriftMetric{}
	}
	s.metrics[application] = append(s.metrics[application], metrics...)
	return nil
}

func (s *fakeSink) SaveAlert(_ context.Context, alert domain.DriftAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	alerts []domain.DriftAlert
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, alert domain.DriftAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return p.err
}

type fakeStats struct{ stats storage.CaptureStats }

func (f fakeStats) Stats(_ context.Context, _ string, _ time.Time) (storage.CaptureStats, error) {
	return f.stats, nil
}

func driftingMetric() domain.DriftMetric {
	now := time.Now().UTC()
	return domain.DriftMetric{
		ID:               uuid.New(),
		Type:             domain.DriftPerformance,
		MetricName:       "latency_p95_change",
		Value:            1.2,
		Threshold:        0.5,
		Severity:         domain.DriftHigh,
		BaselineWindow:   domain.DriftWindow{Start: now.Add(-25 * time.Hour), End: now.Add(-time.Hour)},
		ComparisonWindow: domain.DriftWindow{Start: now.Add(-time.Hour), End: now},
		Timestamp:        now,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_PersistsAndPublishes(t *testing.T) {
	detector := &fakeDetector{metrics: []domain.DriftMetric{driftingMetric()}}
	sink := &fakeSink{}
	pub := &fakePublisher{}
	w := NewWorker(detector, sink, []string{"app-a", "app-b"}, time.Hour,
		WithLogger(quietLogger()),
		WithPublishers(pub),
		WithStats(fakeStats{stats: storage.CaptureStats{TotalCostUSD: 100}}),
	)

	w.RunOnce(context.Background())

	if detector.calls["app-a"] != 1 || detector.calls["app-b"] != 1 {
		t.Errorf("detector calls = %v, want one per application", detector.calls)
	}
	if len(sink.metrics["app-a"]) != 1 {
		t.Errorf("saved metrics for app-a = %d, want 1", len(sink.metrics["app-a"]))
	}
	if len(sink.alerts) != 2 {
		t.Fatalf("saved alerts = %d, want 2", len(sink.alerts))
	}
	if len(pub.alerts) != 2 {
		t.Fatalf("published alerts = %d, want 2", len(pub.alerts))
	}
	if _, ok := pub.alerts[0].AffectedScope["estimated_cost_usd"]; !ok {
		t.Error("alert missing estimated_cost_usd annotation")
	}
}

func TestRunOnce_NoDriftNoAlert(t *testing.T) {
	m := driftingMetric()
	m.Value = 0.1
	m.Severity = domain.DriftNone
	detector := &fakeDetector{metrics: []domain.DriftMetric{m}}
	sink := &fakeSink{}
	pub := &fakePublisher{}
	w := NewWorker(detector, sink, []string{"app-a"}, time.Hour,
		WithLogger(quietLogger()), WithPublishers(pub))

	w.RunOnce(context.Background())

	if len(sink.metrics["app-a"]) != 1 {
		t.Errorf("metrics should be persisted even without drift, got %d", len(sink.metrics["app-a"]))
	}
	if len(sink.alerts) != 0 {
		t.Errorf("saved alerts = %d, want 0", len(sink.alerts))
	}
	if len(pub.alerts) != 0 {
		t.Errorf("published alerts = %d, want 0", len(pub.alerts))
	}
}

func TestRunOnce_DetectionErrorRetriesThenContinues(t *testing.T) {
	detector := &fakeDetector{err: errors.New("window query failed")}
	sink := &fakeSink{}
	w := NewWorker(detector, sink, []string{"app-a", "app-b"}, time.Hour,
		WithLogger(quietLogger()),
		WithJobRetry(2, time.Millisecond))

	w.RunOnce(context.Background())

	if detector.calls["app-a"] != 3 {
		t.Errorf("app-a attempts = %d, want 3 (initial + 2 retries)", detector.calls["app-a"])
	}
	if detector.calls["app-b"] != 3 {
		t.Error("second application skipped after first failed")
	}
}

func TestWorker_TickerDrivesRuns(t *testing.T) {
	detector := &fakeDetector{}
	sink := &fakeSink{}
	w := NewWorker(detector, sink, []string{"app-a"}, 10*time.Millisecond,
		WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	w.Close()

	detector.mu.Lock()
	calls := detector.calls["app-a"]
	detector.mu.Unlock()
	if calls < 2 {
		t.Errorf("detector calls = %d, want at least 2 ticks", calls)
	}
}

func TestWorker_CloseIdempotent(t *testing.T) {
	w := NewWorker(&fakeDetector{}, &fakeSink{}, nil, time.Hour, WithLogger(quietLogger()))
	w.Start(context.Background())
	w.Close()
	w.Close()
}
