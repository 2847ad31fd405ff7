// Package alerting turns drift metrics into actionable alerts and
// fans them out to notification sinks.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// Publisher delivers an alert to one sink.
type Publisher interface {
	Publish(ctx context.Context, alert domain.DriftAlert) error
}

// BuildAlert folds the drifting metrics of one detection run into a
// single alert. Only metrics over their thresholds contribute; the
// overall severity is the worst contributing severity. An alert fires
// only when at least one drifting metric is high or critical; below
// that the run is recorded but not alerted.
func BuildAlert(application string, metrics []domain.DriftMetric) (domain.DriftAlert, bool) {
	var drifting []domain.DriftMetric
	overall := domain.DriftNone
	for _, m := range metrics {
		if !m.IsDrifting() {
			continue
		}
		drifting = append(drifting, m)
		overall = domain.MaxDriftSeverity(overall, m.Severity)
	}
	if len(drifting) == 0 || !overall.AtLeast(domain.DriftHigh) {
		return domain.DriftAlert{}, false
	}

	// Worst first, so the title and description lead with what
	// matters.
	sort.SliceStable(drifting, func(i, j int) bool {
		return drifting[i].Severity.AtLeast(drifting[j].Severity) && drifting[i].Severity != drifting[j].Severity
	})

	names := make([]string, len(drifting))
	for i, m := range drifting {
		names[i] = m.MetricName
	}

	alert := domain.DriftAlert{
		ID:              uuid.New(),
		Metrics:         drifting,
		OverallSeverity: overall,
		Title:           fmt.Sprintf("Drift detected in %s: %d metric(s) over threshold", application, len(drifting)),
		Description: fmt.Sprintf("Severity %s. Drifting metrics: %s. Worst: %s at %.3f against threshold %.3f.",
			overall, strings.Join(names, ", "), drifting[0].MetricName, drifting[0].Value, drifting[0].Threshold),
		RecommendedActions: recommendedActions(drifting),
		AffectedScope: map[string]any{
			"application":       application,
			"baseline_window":   drifting[0].BaselineWindow,
			"comparison_window": drifting[0].ComparisonWindow,
		},
		Timestamp: time.Now().UTC(),
	}
	return alert, true
}

func recommendedActions(drifting []domain.DriftMetric) []string {
	seen := map[domain.DriftType]bool{}
	var actions []string
	for _, m := range drifting {
		if seen[m.Type] {
			continue
		}
		seen[m.Type] = true
		switch m.Type {
		case domain.DriftStatistical:
			actions = append(actions, "Compare recent response length and token distributions against the baseline window")
		case domain.DriftSemantic:
			actions = append(actions, "Review a sample of recent responses for topic or tone changes")
		case domain.DriftBehavioral:
			actions = append(actions, "Check for prompt template or model version changes in the application")
		case domain.DriftPerformance:
			actions = append(actions, "Inspect provider latency and pricing; consider routing or model fallback")
		}
	}
	return actions
}
