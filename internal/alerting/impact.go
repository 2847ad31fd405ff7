package alerting

import (
	"fmt"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

// cost per drifting metric attributed to engineer triage time
const triageCostPerMetricUSD = 50.0

// EstimateImpact derives a coarse cost impact from a drift alert and
// the application's recent spend. The infrastructure component scales
// the observed spend by the cost-metric overshoot; the operational
// component prices triage effort. It is a heuristic for ranking
// alerts, not an invoice.
func EstimateImpact(alert domain.DriftAlert, stats storage.CaptureStats) (domain.CostImpact, error) {
	var infrastructureUSD float64
	for _, m := range alert.Metrics {
		if m.MetricName != "cost_per_request_change" || m.Value <= 0 {
			continue
		}
		// Projected extra spend if the cost increase holds over the
		// same traffic volume.
		infrastructureUSD = stats.TotalCostUSD * m.Value
	}

	breakdown := domain.CostBreakdown{
		InfrastructureUSD: infrastructureUSD,
		OperationalUSD:    triageCostPerMetricUSD * float64(alert.DriftCount()),
	}

	level := impactLevel(alert.OverallSeverity)
	description := fmt.Sprintf("Estimated impact of %d drifting metric(s) in %s", alert.DriftCount(), stats.ApplicationName)
	return domain.NewCostImpact(alert.ID, level, breakdown, description, "drift_overshoot_projection", 0.5)
}

func impactLevel(severity domain.DriftSeverity) domain.ImpactLevel {
	switch severity {
	case domain.DriftCritical:
		return domain.ImpactCritical
	case domain.DriftHigh:
		return domain.ImpactHigh
	case domain.DriftMedium:
		return domain.ImpactMedium
	case domain.DriftLow:
		return domain.ImpactLow
	default:
		return domain.ImpactNegligible
	}
}
