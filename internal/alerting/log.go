package alerting

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// LogPublisher writes alerts to the structured log. It is the default
// sink when no external channel is configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher builds a log sink.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, alert domain.DriftAlert) error {
	level := slog.LevelWarn
	if alert.IsCritical() {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "drift alert",
		"alert_id", alert.ID,
		"severity", alert.OverallSeverity,
		"title", alert.Title,
		"drift_count", alert.DriftCount(),
	)
	return nil
}
