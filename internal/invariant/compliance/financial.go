// Package compliance holds the built-in regulatory invariants:
// financial warnings, medical disclaimers, and GDPR language.
package compliance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

var financialKeywords = []string{
	"invest", "stock", "trading", "portfolio", "return", "profit",
	"dividend", "cryptocurrency", "crypto", "bitcoin", "market",
	"financial advice", "buy", "sell",
}

// warningPatterns match against the lowercased response.
var warningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`not financial advice`),
	regexp.MustCompile(`consult.*?financial advisor`),
	regexp.MustCompile(`past performance.*?not.*?guarantee`),
	regexp.MustCompile(`risk.*?loss`),
	regexp.MustCompile(`do your own research`),
	regexp.MustCompile(`dyor`),
}

// FinancialWarnings requires a risk warning whenever a response
// discusses financial topics.
type FinancialWarnings struct {
	invariant.Base
}

// NewFinancialWarnings builds the rule with the given configuration.
func NewFinancialWarnings(cfg invariant.Config) *FinancialWarnings {
	return &FinancialWarnings{Base: invariant.Base{Cfg: cfg}}
}

func (f *FinancialWarnings) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "compliance.financial_warnings",
		Name:        "Financial Warnings",
		Description: "Ensures financial content includes appropriate warnings",
		Category:    invariant.CategoryCompliance,
		Version:     "1.0.0",
		Tags:        []string{"compliance", "financial", "legal", "warnings"},
	}
}

func (f *FinancialWarnings) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := strings.ToLower(ic.Response().Text)

	keywordCount := 0
	for _, kw := range financialKeywords {
		if strings.Contains(text, kw) {
			keywordCount++
		}
	}
	if keywordCount == 0 {
		return invariant.NewResult(f.Metadata(), f.Cfg, ic, domain.StatusPassed,
			"Not financial content - warning not required", nil, time.Since(start)), nil
	}

	for _, re := range warningPatterns {
		if re.MatchString(text) {
			return invariant.NewResult(f.Metadata(), f.Cfg, ic, domain.StatusPassed,
				"Financial content includes appropriate warnings", nil, time.Since(start)), nil
		}
	}

	evidence := []domain.ValidationEvidence{invariant.MustEvidence(
		"Missing required financial warning",
		"Content provides financial information without appropriate disclaimers",
		0.95,
		map[string]any{"financial_keyword_count": keywordCount},
	)}
	msg := fmt.Sprintf("Financial content detected (%d keywords) but no warning found", keywordCount)
	return invariant.NewResult(f.Metadata(), f.Cfg, ic, domain.StatusFailed, msg, evidence, time.Since(start)), nil
}
