// Package scheduler runs periodic drift detection for monitored
// applications and fans resulting alerts out to publishers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/alerting"
	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

const (
	defaultJobRetries = 2
	defaultJobBackoff = time.Second
)

// Detector runs one drift comparison for an application.
type Detector interface {
	DetectDrift(ctx context.Context, application string, comparison, baseline *domain.DriftWindow) ([]domain.DriftMetric, error)
}

// MetricSink persists detection output.
type MetricSink interface {
	SaveMetrics(ctx context.Context, application string, metrics []domain.DriftMetric) error
	SaveAlert(ctx context.Context, alert domain.DriftAlert) error
}

// StatsSource supplies recent spend figures for impact estimation.
type StatsSource interface {
	Stats(ctx context.Context, application string, since time.Time) (storage.CaptureStats, error)
}

// Worker drives drift detection on a fixed interval.
type Worker struct {
	detector     Detector
	sink         MetricSink
	stats        StatsSource
	publishers   []alerting.Publisher
	applications []string
	interval     time.Duration
	jobRetries   int
	jobBackoff   time.Duration
	logger       *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithPublishers sets the alert sinks, replacing any previous set.
func WithPublishers(pubs ...alerting.Publisher) Option {
	return func(w *Worker) { w.publishers = pubs }
}

// WithStats enables cost impact estimation on alerts.
func WithStats(stats StatsSource) Option {
	return func(w *Worker) { w.stats = stats }
}

// WithJobRetry overrides the per-application retry policy.
func WithJobRetry(retries int, backoff time.Duration) Option {
	return func(w *Worker) {
		w.jobRetries = retries
		w.jobBackoff = backoff
	}
}

// NewWorker builds a Worker checking the given applications every
// interval.
func NewWorker(detector Detector, sink MetricSink, applications []string, interval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		detector:     detector,
		sink:         sink,
		applications: applications,
		interval:     interval,
		jobRetries:   defaultJobRetries,
		jobBackoff:   defaultJobBackoff,
		logger:       slog.Default(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the detection loop. It returns immediately; the loop
// stops when ctx is cancelled or Close is called.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Close stops the loop and waits for any in-flight run to finish.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes one detection pass over every monitored
// application. The detection job owns retry: source and embedding
// failures are retried with backoff here, and a job that still fails
// is logged without stopping the pass.
func (w *Worker) RunOnce(ctx context.Context) {
	for _, app := range w.applications {
		if err := w.runWithRetry(ctx, app); err != nil {
			w.logger.Error("drift detection failed",
				"application", app,
				"error", err,
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) runWithRetry(ctx context.Context, application string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = w.runApplication(ctx, application)
		if err == nil || attempt >= w.jobRetries {
			return err
		}
		w.logger.Warn("drift job retrying",
			"application", application,
			"attempt", attempt+1,
			"error", err,
		)
		select {
		case <-time.After(w.jobBackoff << attempt):
		case <-ctx.Done():
			return err
		case <-w.done:
			return err
		}
	}
}

func (w *Worker) runApplication(ctx context.Context, application string) error {
	metrics, err := w.detector.DetectDrift(ctx, application, nil, nil)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}
	if err := w.sink.SaveMetrics(ctx, application, metrics); err != nil {
		return err
	}

	alert, ok := alerting.BuildAlert(application, metrics)
	if !ok {
		w.logger.Debug("no drift", "application", application)
		return nil
	}
	w.annotateImpact(ctx, application, &alert)
	if err := w.sink.SaveAlert(ctx, alert); err != nil {
		return err
	}

	for _, pub := range w.publishers {
		if err := pub.Publish(ctx, alert); err != nil {
			w.logger.Error("alert publish failed",
				"application", application,
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}
	return nil
}

// annotateImpact attaches a cost estimate to high and critical alerts
// when a stats source is configured. Estimation failures only log.
func (w *Worker) annotateImpact(ctx context.Context, application string, alert *domain.DriftAlert) {
	if w.stats == nil || !alert.IsCritical() {
		return
	}
	since := alert.Metrics[0].BaselineWindow.Start
	stats, err := w.stats.Stats(ctx, application, since)
	if err != nil {
		w.logger.Warn("stats lookup failed", "application", application, "error", err)
		return
	}
	impact, err := alerting.EstimateImpact(*alert, stats)
	if err != nil {
		w.logger.Warn("impact estimation failed", "application", application, "error", err)
		return
	}
	if alert.AffectedScope == nil {
		alert.AffectedScope = map[string]any{}
	}
	alert.AffectedScope["estimated_cost_usd"] = impact.TotalCostUSD()
	alert.AffectedScope["impact_level"] = string(impact.Level)
	w.logger.Info("drift alert",
		"application", application,
		"alert_id", alert.ID,
		"severity", alert.OverallSeverity,
		"estimated_cost_usd", impact.TotalCostUSD(),
	)
}
