package domain

import (
	"time"

	"github.com/google/uuid"
)

// CostCategory buckets the kinds of cost a quality issue can incur.
type CostCategory string

const (
	CostInfrastructure CostCategory = "infrastructure"
	CostOperational    CostCategory = "operational"
	CostBusiness       CostCategory = "business"
	CostRegulatory     CostCategory = "regulatory"
	CostReputational   CostCategory = "reputational"
)

// ImpactLevel grades business impact.
type ImpactLevel string

const (
	ImpactNegligible ImpactLevel = "negligible"
	ImpactLow        ImpactLevel = "low"
	ImpactMedium     ImpactLevel = "medium"
	ImpactHigh       ImpactLevel = "high"
	ImpactCritical   ImpactLevel = "critical"
)

// CostBreakdown itemizes estimated cost by category, in USD.
type CostBreakdown struct {
	InfrastructureUSD float64 `json:"infrastructure_usd"`
	OperationalUSD    float64 `json:"operational_usd"`
	BusinessUSD       float64 `json:"business_usd"`
	RegulatoryUSD     float64 `json:"regulatory_usd"`
	ReputationalUSD   float64 `json:"reputational_usd"`
}

// TotalUSD sums all categories.
func (b CostBreakdown) TotalUSD() float64 {
	return b.InfrastructureUSD + b.OperationalUSD + b.BusinessUSD +
		b.RegulatoryUSD + b.ReputationalUSD
}

// CostImpact is the estimated cost of a single quality issue.
type CostImpact struct {
	ID                uuid.UUID      `json:"id"`
	RelatedEventID    uuid.UUID      `json:"related_event_id"`
	Level             ImpactLevel    `json:"impact_level"`
	Breakdown         CostBreakdown  `json:"cost_breakdown"`
	Description       string         `json:"description"`
	CalculationMethod string         `json:"calculation_method"`
	Confidence        float64        `json:"confidence_score"`
	Timestamp         time.Time      `json:"timestamp"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// NewCostImpact validates the confidence score and stamps identity.
func NewCostImpact(relatedEventID uuid.UUID, level ImpactLevel, breakdown CostBreakdown, description, method string, confidence float64) (CostImpact, error) {
	if confidence < 0 || confidence > 1 {
		return CostImpact{}, invalidArgument("confidence score must be between 0 and 1")
	}
	return CostImpact{
		ID:                uuid.New(),
		RelatedEventID:    relatedEventID,
		Level:             level,
		Breakdown:         breakdown,
		Description:       description,
		CalculationMethod: method,
		Confidence:        confidence,
		Timestamp:         time.Now().UTC(),
	}, nil
}

// TotalCostUSD is the summed breakdown.
func (c CostImpact) TotalCostUSD() float64 {
	return c.Breakdown.TotalUSD()
}
