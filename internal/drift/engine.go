// Package drift compares recent capture traffic against a baseline
// window across four metric families: statistical, semantic,
// behavioral, and performance.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/embedding"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

// CaptureSource is what the engine needs from persistence.
type CaptureSource interface {
	CapturesInWindow(ctx context.Context, application string, start, end time.Time, limit int) ([]storage.CaptureRecord, error)
}

// Config tunes windowing, sample requirements, and per-family
// thresholds.
type Config struct {
	Enabled             bool          `koanf:"enabled"`
	DetectionInterval   time.Duration `koanf:"detection_interval"`
	BaselineWindow      time.Duration `koanf:"baseline_window"`
	ComparisonWindow    time.Duration `koanf:"comparison_window"`
	MinSamplesRequired  int           `koanf:"min_samples_required"`
	KLThreshold         float64       `koanf:"kl_divergence_threshold"`
	JSThreshold         float64       `koanf:"js_divergence_threshold"`
	CosineThreshold     float64       `koanf:"cosine_distance_threshold"`
	LengthThreshold     float64       `koanf:"response_length_change_threshold"`
	LatencyThreshold    float64       `koanf:"latency_change_threshold"`
	CostThreshold       float64       `koanf:"cost_change_threshold"`
	MaxSamplesPerWindow int           `koanf:"max_samples_per_window"`
}

// DefaultConfig mirrors the standard production tuning: hourly
// comparison against a daily baseline.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		DetectionInterval:   15 * time.Minute,
		BaselineWindow:      24 * time.Hour,
		ComparisonWindow:    time.Hour,
		MinSamplesRequired:  100,
		KLThreshold:         0.1,
		JSThreshold:         0.1,
		CosineThreshold:     0.15,
		LengthThreshold:     0.3,
		LatencyThreshold:    0.5,
		CostThreshold:       0.3,
		MaxSamplesPerWindow: 10000,
	}
}

// embeddingSampleSize caps how many responses are embedded per window.
const embeddingSampleSize = 100

// pairwiseSampleSize caps the vectors entering the O(n^2) pairwise
// distance computation.
const pairwiseSampleSize = 50

// Engine detects drift for one application at a time. It is stateless
// between calls and safe for concurrent use.
type Engine struct {
	source   CaptureSource
	embedder embedding.Embedder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
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

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds a drift engine.
func NewEngine(source CaptureSource, embedder embedding.Embedder, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectDrift compares the comparison window against the baseline
// window for one application. Nil windows default to the configured
// spans ending now. If either window holds fewer than the minimum
// sample count the run is skipped and no metrics are returned.
func (e *Engine) DetectDrift(ctx context.Context, application string, comparison, baseline *domain.DriftWindow) ([]domain.DriftMetric, error) {
	e.logger.Info("detecting drift", "application", application)

	now := e.now().UTC()
	if comparison == nil {
		comparison = &domain.DriftWindow{
			Start: now.Add(-e.cfg.ComparisonWindow),
			End:   now,
			Label: "current",
		}
	}
	if baseline == nil {
		baseline = &domain.DriftWindow{
			Start: now.Add(-e.cfg.BaselineWindow - e.cfg.ComparisonWindow),
			End:   now.Add(-e.cfg.ComparisonWindow),
			Label: "baseline",
		}
	}

	baselineData, err := e.source.CapturesInWindow(ctx, application, baseline.Start, baseline.End, e.cfg.MaxSamplesPerWindow)
	if err != nil {
		return nil, fmt.Errorf("fetching baseline window: %w", err)
	}
	comparisonData, err := e.source.CapturesInWindow(ctx, application, comparison.Start, comparison.End, e.cfg.MaxSamplesPerWindow)
	if err != nil {
		return nil, fmt.Errorf("fetching comparison window: %w", err)
	}

	if len(baselineData) < e.cfg.MinSamplesRequired {
		e.logger.Warn("insufficient baseline samples",
			"baseline_count", len(baselineData),
			"required", e.cfg.MinSamplesRequired,
		)
		return nil, nil
	}
	if len(comparisonData) < e.cfg.MinSamplesRequired {
		e.logger.Warn("insufficient comparison samples",
			"comparison_count", len(comparisonData),
			"required", e.cfg.MinSamplesRequired,
		)
		return nil, nil
	}

	var metrics []domain.DriftMetric
	metrics = append(metrics, e.statisticalDrift(baselineData, comparisonData, *baseline, *comparison)...)

	semantic, err := e.semanticDrift(ctx, baselineData, comparisonData, *baseline, *comparison)
	if err != nil {
		return nil, fmt.Errorf("semantic drift: %w", err)
	}
	metrics = append(metrics, semantic...)
	metrics = append(metrics, e.behavioralDrift(baselineData, comparisonData, *baseline, *comparison)...)
	metrics = append(metrics, e.performanceDrift(baselineData, comparisonData, *baseline, *comparison)...)

	drifting := 0
	for _, m := range metrics {
		if m.IsDrifting() {
			drifting++
		}
	}
	e.logger.Info("drift detection complete",
		"application", application,
		"total_metrics", len(metrics),
		"drifting_metrics", drifting,
	)
	return metrics, nil
}

func (e *Engine) statisticalDrift(baselineData, comparisonData []storage.CaptureRecord, baseline, comparison domain.DriftWindow) []domain.DriftMetric {
	baselineLengths := responseLengths(baselineData)
	comparisonLengths := responseLengths(comparisonData)

	kl := klDivergence(baselineLengths, comparisonLengths)
	js := jsDivergence(baselineLengths, comparisonLengths)

	metrics := []domain.DriftMetric{
		e.newMetric(domain.DriftStatistical, "kl_divergence_response_length", kl, e.cfg.KLThreshold, baseline, comparison,
			map[string]any{
				"baseline_samples":   len(baselineLengths),
				"comparison_samples": len(comparisonLengths),
			}),
		e.newMetric(domain.DriftStatistical, "js_divergence_response_length", js, e.cfg.JSThreshold, baseline, comparison, nil),
	}

	baselineTokens := make([]float64, len(baselineData))
	for i, d := range baselineData {
		baselineTokens[i] = float64(d.TokensTotal)
	}
	comparisonTokens := make([]float64, len(comparisonData))
	for i, d := range comparisonData {
		comparisonTokens[i] = float64(d.TokensTotal)
	}
	tokenKL := klDivergence(baselineTokens, comparisonTokens)
	metrics = append(metrics,
		e.newMetric(domain.DriftStatistical, "kl_divergence_token_usage", tokenKL, e.cfg.KLThreshold, baseline, comparison, nil))
	return metrics
}

func (e *Engine) semanticDrift(ctx context.Context, baselineData, comparisonData []storage.CaptureRecord, baseline, comparison domain.DriftWindow) ([]domain.DriftMetric, error) {
	sampleSize := embeddingSampleSize
	if len(baselineData) < sampleSize {
		sampleSize = len(baselineData)
	}
	if len(comparisonData) < sampleSize {
		sampleSize = len(comparisonData)
	}

	// Sampling is seeded from the window bounds so repeated runs over
	// the same windows see the same captures.
	rng := rand.New(rand.NewSource(baseline.Start.UnixNano() ^ comparison.End.UnixNano()))

	baselineTexts := sampleTexts(rng, baselineData, sampleSize)
	comparisonTexts := sampleTexts(rng, comparisonData, sampleSize)

	baselineVecs, err := e.embedder.EmbedBatch(ctx, baselineTexts)
	if err != nil {
		return nil, fmt.Errorf("embedding baseline sample: %w", err)
	}
	comparisonVecs, err := e.embedder.EmbedBatch(ctx, comparisonTexts)
	if err != nil {
		return nil, fmt.Errorf("embedding comparison sample: %w", err)
	}

	cosineDist := cosineDistance(centroid(baselineVecs, e.embedder.Dim()), centroid(comparisonVecs, e.embedder.Dim()))
	metrics := []domain.DriftMetric{
		e.newMetric(domain.DriftSemantic, "cosine_distance_centroid", cosineDist, e.cfg.CosineThreshold, baseline, comparison,
			map[string]any{"sample_size": sampleSize}),
	}

	baselineSpread := avgPairwiseDistance(rng, baselineVecs)
	comparisonSpread := avgPairwiseDistance(rng, comparisonVecs)
	spreadChange := relativeChange(baselineSpread, comparisonSpread)
	metrics = append(metrics,
		e.newMetric(domain.DriftSemantic, "pairwise_distance_change", spreadChange, e.cfg.CosineThreshold, baseline, comparison, nil))
	return metrics, nil
}

func (e *Engine) behavioralDrift(baselineData, comparisonData []storage.CaptureRecord, baseline, comparison domain.DriftWindow) []domain.DriftMetric {
	baselineAvgLen := mean(responseLengths(baselineData))
	comparisonAvgLen := mean(responseLengths(comparisonData))
	lengthChange := relativeChange(baselineAvgLen, comparisonAvgLen)

	metrics := []domain.DriftMetric{
		e.newMetric(domain.DriftBehavioral, "response_length_change", lengthChange, e.cfg.LengthThreshold, baseline, comparison,
			map[string]any{
				"baseline_avg":   baselineAvgLen,
				"comparison_avg": comparisonAvgLen,
			}),
	}

	baselineSentences := mean(sentenceCounts(baselineData))
	comparisonSentences := mean(sentenceCounts(comparisonData))
	sentenceChange := relativeChange(baselineSentences, comparisonSentences)
	metrics = append(metrics,
		e.newMetric(domain.DriftBehavioral, "sentence_count_change", sentenceChange, e.cfg.LengthThreshold, baseline, comparison, nil))
	return metrics
}

func (e *Engine) performanceDrift(baselineData, comparisonData []storage.CaptureRecord, baseline, comparison domain.DriftWindow) []domain.DriftMetric {
	baselineP95 := percentile(latencies(baselineData), 95)
	comparisonP95 := percentile(latencies(comparisonData), 95)
	// Performance changes keep their sign so a report can distinguish
	// regressions from improvements; severity uses the magnitude.
	latencyChange := (comparisonP95 - baselineP95) / denomFloor(baselineP95)

	metrics := []domain.DriftMetric{
		e.newSignedMetric(domain.DriftPerformance, "latency_p95_change", latencyChange, e.cfg.LatencyThreshold, baseline, comparison,
			map[string]any{
				"baseline_p95_ms":   baselineP95,
				"comparison_p95_ms": comparisonP95,
			}),
	}

	baselineCost := mean(costs(baselineData))
	comparisonCost := mean(costs(comparisonData))
	costChange := (comparisonCost - baselineCost) / denomFloor(baselineCost)
	metrics = append(metrics,
		e.newSignedMetric(domain.DriftPerformance, "cost_per_request_change", costChange, e.cfg.CostThreshold, baseline, comparison,
			map[string]any{
				"baseline_avg_cost":   baselineCost,
				"comparison_avg_cost": comparisonCost,
			}))
	return metrics
}

func (e *Engine) newMetric(driftType domain.DriftType, name string, value, threshold float64, baseline, comparison domain.DriftWindow, metadata map[string]any) domain.DriftMetric {
	return domain.DriftMetric{
		ID:               uuid.New(),
		Type:             driftType,
		MetricName:       name,
		Value:            value,
		Threshold:        threshold,
		Severity:         severityFor(value, threshold),
		BaselineWindow:   baseline,
		ComparisonWindow: comparison,
		Timestamp:        e.now().UTC(),
		Metadata:         metadata,
	}
}

// newSignedMetric keeps the signed value but grades severity on its
// magnitude.
func (e *Engine) newSignedMetric(driftType domain.DriftType, name string, value, threshold float64, baseline, comparison domain.DriftWindow, metadata map[string]any) domain.DriftMetric {
	m := e.newMetric(driftType, name, value, threshold, baseline, comparison, metadata)
	abs := value
	if abs < 0 {
		abs = -abs
	}
	m.Severity = severityFor(abs, threshold)
	return m
}

// severityEps absorbs float rounding at bracket boundaries so a value
// exactly at a multiple of the threshold lands in the upper bracket.
const severityEps = 1e-9

// severityFor brackets a value against its threshold: below threshold
// is none, then low, medium, and high at 1.5x, 2x, and 3x, critical
// beyond. Bracketing works on the ratio; comparing against
// threshold*1.5 directly misclassifies exact multiples (0.1*1.5
// rounds above 0.15 while 0.15 itself rounds below it).
func severityFor(value, threshold float64) domain.DriftSeverity {
	r := value / threshold
	switch {
	case r < 1.0-severityEps:
		return domain.DriftNone
	case r < 1.5-severityEps:
		return domain.DriftLow
	case r < 2.0-severityEps:
		return domain.DriftMedium
	case r < 3.0-severityEps:
		return domain.DriftHigh
	default:
		return domain.DriftCritical
	}
}

func responseLengths(data []storage.CaptureRecord) []float64 {
	out := make([]float64, len(data))
	for i, d := range data {
		out[i] = float64(len(d.ResponseText))
	}
	return out
}

func sentenceCounts(data []storage.CaptureRecord) []float64 {
	out := make([]float64, len(data))
	for i, d := range data {
		n := 0
		for _, s := range strings.Split(d.ResponseText, ".") {
			if strings.TrimSpace(s) != "" {
				n++
			}
		}
		out[i] = float64(n)
	}
	return out
}

func latencies(data []storage.CaptureRecord) []float64 {
	out := make([]float64, len(data))
	for i, d := range data {
		out[i] = float64(d.LatencyMS)
	}
	return out
}

func costs(data []storage.CaptureRecord) []float64 {
	out := make([]float64, len(data))
	for i, d := range data {
		out[i] = d.CostUSD
	}
	return out
}

func sampleTexts(rng *rand.Rand, data []storage.CaptureRecord, n int) []string {
	idx := rng.Perm(len(data))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = data[j].ResponseText
	}
	return out
}

func centroid(vectors [][]float64, dim int) []float64 {
	out := make([]float64, dim)
	if len(vectors) == 0 {
		return out
	}
	for _, vec := range vectors {
		for i, v := range vec {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}

// avgPairwiseDistance averages cosine distance over a sampled subset
// of vector pairs.
func avgPairwiseDistance(rng *rand.Rand, vectors [][]float64) float64 {
	n := len(vectors)
	if n < 2 {
		return 0
	}
	sample := pairwiseSampleSize
	if n < sample {
		sample = n
	}
	idx := rng.Perm(n)[:sample]

	total, count := 0.0, 0
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			total += cosineDistance(vectors[idx[i]], vectors[idx[j]])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func denomFloor(v float64) float64 {
	if v > changeFloor {
		return v
	}
	return changeFloor
}
