// Package storage defines the persistence ports for captures,
// validation results, and drift artifacts. Implementations live in
// the sqlite and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// CaptureRecord is the flattened, query-oriented projection of a
// capture that the drift engine consumes. Keeping it flat avoids
// re-hydrating full request/response payloads for analytics.
type CaptureRecord struct {
	ID              uuid.UUID `json:"id"`
	ApplicationName string    `json:"application_name"`
	UserID          string    `json:"user_id,omitempty"`
	ModelName       string    `json:"model_name"`
	ResponseText    string    `json:"response_text"`
	TokensTotal     int       `json:"tokens_total"`
	LatencyMS       int       `json:"latency_ms"`
	CostUSD         float64   `json:"cost_usd"`
	CapturedAt      time.Time `json:"captured_at"`
}

// CaptureStats is an aggregate view over one application's captures.
type CaptureStats struct {
	ApplicationName string    `json:"application_name"`
	CaptureCount    int       `json:"capture_count"`
	AvgLatencyMS    float64   `json:"avg_latency_ms"`
	P95LatencyMS    float64   `json:"p95_latency_ms"`
	TotalTokens     int64     `json:"total_tokens"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	Since           time.Time `json:"since"`
}

// CaptureStore persists and queries capture events.
type CaptureStore interface {
	SaveCapture(ctx context.Context, capture domain.CaptureEvent) error
	SaveCaptures(ctx context.Context, captures []domain.CaptureEvent) error
	GetCapture(ctx context.Context, id uuid.UUID) (domain.CaptureEvent, error)
	// CapturesInWindow returns flattened records for one application
	// between start and end, oldest first. limit <= 0 means the
	// store's default cap.
	CapturesInWindow(ctx context.Context, application string, start, end time.Time, limit int) ([]CaptureRecord, error)
	Stats(ctx context.Context, application string, since time.Time) (CaptureStats, error)
}

// ResultStore persists validation results.
type ResultStore interface {
	SaveResults(ctx context.Context, results []domain.ValidationResult) error
	ResultsForCapture(ctx context.Context, captureID uuid.UUID) ([]domain.ValidationResult, error)
}

// DriftStore persists drift metrics and alerts.
type DriftStore interface {
	SaveMetrics(ctx context.Context, application string, metrics []domain.DriftMetric) error
	RecentMetrics(ctx context.Context, application string, limit int) ([]domain.DriftMetric, error)
	SaveAlert(ctx context.Context, alert domain.DriftAlert) error
	RecentAlerts(ctx context.Context, limit int) ([]domain.DriftAlert, error)
}

// Store is the full persistence surface the service wires at startup.
type Store interface {
	CaptureStore
	ResultStore
	DriftStore
	Close() error
}
