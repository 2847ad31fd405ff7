package drift

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/embedding"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

// fakeSource serves records whose CapturedAt falls inside the
// requested window.
type fakeSource struct {
	records []storage.CaptureRecord
}

func (f *fakeSource) CapturesInWindow(ctx context.Context, application string, start, end time.Time, limit int) ([]storage.CaptureRecord, error) {
	var out []storage.CaptureRecord
	for _, r := range f.records {
		if r.ApplicationName != application {
			continue
		}
		if r.CapturedAt.Before(start) || r.CapturedAt.After(end) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func fill(src *fakeSource, app string, n int, start time.Time, span time.Duration, text func(i int) string, latencyMS int, costUSD float64) {
	step := span / time.Duration(n)
	for i := 0; i < n; i++ {
		src.records = append(src.records, storage.CaptureRecord{
			ID:              uuid.New(),
			ApplicationName: app,
			ModelName:       "gpt-4o",
			ResponseText:    text(i),
			TokensTotal:     len(text(i)) / 4,
			LatencyMS:       latencyMS,
			CostUSD:         costUSD,
			CapturedAt:      start.Add(time.Duration(i) * step),
		})
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func steadyText(i int) string {
	return fmt.Sprintf("The answer to question %d is a short factual sentence. It has two sentences.", i%7)
}

func testClock() func() time.Time {
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

func newTestEngine(src *fakeSource) *Engine {
	return NewEngine(src, embedding.NewHashing(), DefaultConfig(),
		WithLogger(quietLogger()), WithClock(testClock()))
}

func TestDetectDrift_InsufficientSamples(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	// Only 50 captures in the baseline, below the minimum of 100.
	fill(src, "app-a", 50, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 100, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("len(metrics) = %d, want 0 when baseline is too small", len(metrics))
	}
}

func TestDetectDrift_StableTraffic(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 100, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	if len(metrics) != 9 {
		t.Fatalf("len(metrics) = %d, want 9", len(metrics))
	}
	for _, m := range metrics {
		if m.IsDrifting() {
			t.Errorf("metric %s drifting on stable traffic: value=%v threshold=%v", m.MetricName, m.Value, m.Threshold)
		}
		if m.Severity != domain.DriftNone {
			t.Errorf("metric %s severity = %q, want none", m.MetricName, m.Severity)
		}
	}
}

func TestDetectDrift_MetricFamilies(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 100, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}

	byName := map[string]domain.DriftMetric{}
	for _, m := range metrics {
		byName[m.MetricName] = m
	}
	want := map[string]domain.DriftType{
		"kl_divergence_response_length": domain.DriftStatistical,
		"js_divergence_response_length": domain.DriftStatistical,
		"kl_divergence_token_usage":     domain.DriftStatistical,
		"cosine_distance_centroid":      domain.DriftSemantic,
		"pairwise_distance_change":      domain.DriftSemantic,
		"response_length_change":        domain.DriftBehavioral,
		"sentence_count_change":         domain.DriftBehavioral,
		"latency_p95_change":            domain.DriftPerformance,
		"cost_per_request_change":       domain.DriftPerformance,
	}
	for name, family := range want {
		m, ok := byName[name]
		if !ok {
			t.Errorf("missing metric %s", name)
			continue
		}
		if m.Type != family {
			t.Errorf("metric %s family = %q, want %q", name, m.Type, family)
		}
	}
}

func TestDetectDrift_LatencyRegression(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	// Comparison latency doubles: change = +1.0 against threshold 0.5.
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 200, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	var latency domain.DriftMetric
	for _, m := range metrics {
		if m.MetricName == "latency_p95_change" {
			latency = m
		}
	}
	if latency.MetricName == "" {
		t.Fatal("missing latency_p95_change metric")
	}
	if latency.Value < 0.99 || latency.Value > 1.01 {
		t.Errorf("Value = %v, want ~1.0", latency.Value)
	}
	if !latency.IsDrifting() {
		t.Error("latency regression must be flagged as drifting")
	}
	if latency.Severity != domain.DriftHigh {
		t.Errorf("Severity = %q, want high (2x threshold)", latency.Severity)
	}
}

func TestDetectDrift_CostDropKeepsSign(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.002)
	// Cost halves: signed change is -0.5, severity graded on |0.5|.
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 100, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	var cost domain.DriftMetric
	for _, m := range metrics {
		if m.MetricName == "cost_per_request_change" {
			cost = m
		}
	}
	if cost.Value > -0.49 || cost.Value < -0.51 {
		t.Errorf("Value = %v, want ~-0.5 (signed)", cost.Value)
	}
	if cost.Severity != domain.DriftMedium {
		t.Errorf("Severity = %q, want medium (|value| at ~1.67x threshold)", cost.Severity)
	}
}

func TestDetectDrift_SemanticShift(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, func(i int) string {
		return fmt.Sprintf("Stocks and bonds moved in the market today, session %d.", i%5)
	}, 100, 0.001)
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, func(i int) string {
		return fmt.Sprintf("Preheat the oven and fold the dough gently, recipe %d.", i%5)
	}, 100, 0.001)

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	var centroidDist domain.DriftMetric
	for _, m := range metrics {
		if m.MetricName == "cosine_distance_centroid" {
			centroidDist = m
		}
	}
	if !centroidDist.IsDrifting() {
		t.Errorf("topic change: cosine_distance_centroid = %v, want > %v", centroidDist.Value, centroidDist.Threshold)
	}
}

func TestDetectDrift_Deterministic(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 200, now.Add(-25*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	fill(src, "app-a", 150, now.Add(-time.Hour), time.Hour, steadyText, 100, 0.001)

	e := newTestEngine(src)
	first, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	second, err := e.DetectDrift(context.Background(), "app-a", nil, nil)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("metric counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].MetricName != second[i].MetricName {
			t.Fatalf("metric order differs at %d", i)
		}
		if first[i].Value != second[i].Value {
			t.Errorf("metric %s not deterministic: %v vs %v", first[i].MetricName, first[i].Value, second[i].Value)
		}
	}
}

func TestDetectDrift_ExplicitWindows(t *testing.T) {
	now := testClock()()
	src := &fakeSource{}
	fill(src, "app-a", 120, now.Add(-48*time.Hour), 24*time.Hour, steadyText, 100, 0.001)
	fill(src, "app-a", 120, now.Add(-24*time.Hour), 24*time.Hour, steadyText, 100, 0.001)

	baseline := &domain.DriftWindow{Start: now.Add(-48 * time.Hour), End: now.Add(-24 * time.Hour), Label: "baseline"}
	comparison := &domain.DriftWindow{Start: now.Add(-24 * time.Hour), End: now, Label: "current"}

	e := newTestEngine(src)
	metrics, err := e.DetectDrift(context.Background(), "app-a", comparison, baseline)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	if len(metrics) != 9 {
		t.Fatalf("len(metrics) = %d, want 9", len(metrics))
	}
	for _, m := range metrics {
		if m.BaselineWindow.Label != "baseline" || m.ComparisonWindow.Label != "current" {
			t.Errorf("metric %s windows = %q/%q", m.MetricName, m.BaselineWindow.Label, m.ComparisonWindow.Label)
		}
	}
}
