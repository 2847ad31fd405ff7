package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

var gdprKeywords = []string{"personal data", "gdpr", "data protection", "eu regulation 2016/679"}

// GDPR checks that responses discussing personal data carry a GDPR
// disclaimer.
type GDPR struct {
	invariant.Base
}

// NewGDPR builds the rule with the given configuration.
func NewGDPR(cfg invariant.Config) *GDPR {
	return &GDPR{Base: invariant.Base{Cfg: cfg}}
}

func (g *GDPR) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "compliance.gdpr",
		Name:        "GDPR Compliance",
		Description: "Ensures GDPR disclaimer when personal data is discussed",
		Category:    invariant.CategoryCompliance,
		Version:     "1.0.0",
		Tags:        []string{"compliance", "gdpr"},
	}
}

func (g *GDPR) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := strings.ToLower(ic.Response().Text)

	mentions := false
	for _, kw := range gdprKeywords {
		if strings.Contains(text, kw) {
			mentions = true
			break
		}
	}
	hasDisclaimer := strings.Contains(text, "gdpr") || strings.Contains(text, "data protection")

	if mentions && !hasDisclaimer {
		evidence := []domain.ValidationEvidence{invariant.MustEvidence(
			"Missing GDPR disclaimer",
			truncate(text, 200),
			0.7,
			nil,
		)}
		return invariant.NewResult(g.Metadata(), g.Cfg, ic, domain.StatusFailed,
			"Mentions personal data without GDPR disclaimer", evidence, time.Since(start)), nil
	}
	return invariant.NewResult(g.Metadata(), g.Cfg, ic, domain.StatusPassed,
		"GDPR compliance ok or not applicable", nil, time.Since(start)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
