package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DriftType names the analytical family a metric belongs to.
type DriftType string

const (
	DriftStatistical DriftType = "statistical"
	DriftSemantic    DriftType = "semantic"
	DriftBehavioral  DriftType = "behavioral"
	DriftPerformance DriftType = "performance"
)

// DriftSeverity classifies how far a metric sits beyond its threshold.
type DriftSeverity string

const (
	DriftNone     DriftSeverity = "none"
	DriftLow      DriftSeverity = "low"
	DriftMedium   DriftSeverity = "medium"
	DriftHigh     DriftSeverity = "high"
	DriftCritical DriftSeverity = "critical"
)

var driftSeverityOrder = map[DriftSeverity]int{
	DriftNone:     0,
	DriftLow:      1,
	DriftMedium:   2,
	DriftHigh:     3,
	DriftCritical: 4,
}

// AtLeast reports whether s is as severe as other.
func (s DriftSeverity) AtLeast(other DriftSeverity) bool {
	return driftSeverityOrder[s] >= driftSeverityOrder[other]
}

// MaxDriftSeverity returns the more severe of a and b.
func MaxDriftSeverity(a, b DriftSeverity) DriftSeverity {
	if a.AtLeast(b) {
		return a
	}
	return b
}

// DriftWindow is a labeled time window for drift comparison.
type DriftWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Duration is the window length.
func (w DriftWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window, inclusive on
// both bounds.
func (w DriftWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DriftMetric is a single drift measurement between two windows.
type DriftMetric struct {
	ID               uuid.UUID      `json:"id"`
	Type             DriftType      `json:"drift_type"`
	MetricName       string         `json:"metric_name"`
	Value            float64        `json:"value"`
	Threshold        float64        `json:"threshold"`
	Severity         DriftSeverity  `json:"severity"`
	BaselineWindow   DriftWindow    `json:"baseline_window"`
	ComparisonWindow DriftWindow    `json:"comparison_window"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// IsDrifting reports whether the measured value exceeds its threshold.
func (m DriftMetric) IsDrifting() bool {
	return m.Value > m.Threshold
}

// DriftRatio is value relative to threshold. A zero threshold yields
// +Inf for a positive value and 0 otherwise.
func (m DriftMetric) DriftRatio() float64 {
	if m.Threshold == 0 {
		if m.Value > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return m.Value / m.Threshold
}

// DriftAlert groups drifting metrics into one actionable notification.
type DriftAlert struct {
	ID                 uuid.UUID      `json:"id"`
	Metrics            []DriftMetric  `json:"drift_metrics"`
	OverallSeverity    DriftSeverity  `json:"overall_severity"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	RecommendedActions []string       `json:"recommended_actions,omitempty"`
	AffectedScope      map[string]any `json:"affected_scope,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Acknowledged       bool           `json:"acknowledged"`
	Resolved           bool           `json:"resolved"`
}

// IsCritical reports whether the alert warrants paging: overall
// severity high or critical.
func (a DriftAlert) IsCritical() bool {
	return a.OverallSeverity == DriftHigh || a.OverallSeverity == DriftCritical
}

// DriftCount is the number of contributing metrics over threshold.
func (a DriftAlert) DriftCount() int {
	n := 0
	for _, m := range a.Metrics {
		if m.IsDrifting() {
			n++
		}
	}
	return n
}
