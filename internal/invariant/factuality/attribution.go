// Package factuality holds the built-in factual-accuracy invariants:
// source attribution, hallucination indicators, and internal
// consistency.
package factuality

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

// claimIndicators flag sentences that assert a checkable fact.
var claimIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)according to`),
	regexp.MustCompile(`(?i)studies show`),
	regexp.MustCompile(`(?i)research indicates`),
	regexp.MustCompile(`(?i)data shows`),
	regexp.MustCompile(`(?i)statistics reveal`),
	regexp.MustCompile(`(?i)experts say`),
	regexp.MustCompile(`(?i)\d+% of`),
	regexp.MustCompile(`(?i)in \d{4}`),
}

// sourcePatterns recognize a citation in any common shape.
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(.*?\d{4}.*?\)`),
	regexp.MustCompile(`(?i)\[.*?\]`),
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)according to .+? \(`),
	regexp.MustCompile(`(?i)as reported by`),
	regexp.MustCompile(`(?i)source:`),
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

var (
	financialTerms = []string{"stock", "investment", "portfolio", "trading", "financial", "market"}
	medicalTerms   = []string{"medical", "diagnosis", "treatment", "symptom", "disease", "patient"}
	legalTerms     = []string{"legal", "law", "court", "attorney", "contract", "lawsuit"}
)

// SourceAttribution requires factual claims to carry citations.
// Regulated domains (financial, medical, legal) fail on any unsourced
// claim; elsewhere a handful is tolerated.
type SourceAttribution struct {
	invariant.Base
}

// NewSourceAttribution builds the rule with the given configuration.
func NewSourceAttribution(cfg invariant.Config) *SourceAttribution {
	return &SourceAttribution{Base: invariant.Base{Cfg: cfg}}
}

func (s *SourceAttribution) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "factuality.source_attribution",
		Name:        "Source Attribution",
		Description: "Ensures factual claims are attributed to verifiable sources",
		Category:    invariant.CategoryFactuality,
		Version:     "1.0.0",
		Tags:        []string{"factuality", "sources", "attribution", "citations"},
	}
}

func (s *SourceAttribution) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := ic.Response().Text

	claims := claimSentences(text)
	if len(claims) == 0 {
		return invariant.NewResult(s.Metadata(), s.Cfg, ic, domain.StatusPassed,
			"No factual claims requiring attribution detected", nil, time.Since(start)), nil
	}

	var unsourced []string
	for _, claim := range claims {
		if !hasAttribution(claim) {
			unsourced = append(unsourced, claim)
		}
	}

	contentDomain := detectDomain(text)
	strict := contentDomain == "financial" || contentDomain == "medical" || contentDomain == "legal"

	if len(unsourced) == 0 {
		msg := fmt.Sprintf("All %d factual claims properly attributed", len(claims))
		return invariant.NewResult(s.Metadata(), s.Cfg, ic, domain.StatusPassed, msg, nil, time.Since(start)), nil
	}

	var evidence []domain.ValidationEvidence
	for i, claim := range unsourced {
		if i == 5 {
			break
		}
		evidence = append(evidence, invariant.MustEvidence(
			fmt.Sprintf("Unsourced claim in %s domain", contentDomain),
			truncate(claim, 200),
			0.8,
			map[string]any{"domain": contentDomain, "requires_strict": strict},
		))
	}

	status := domain.StatusPassed
	msg := fmt.Sprintf("%d claims without explicit source attribution", len(unsourced))
	if strict || len(unsourced) > 3 {
		status = domain.StatusFailed
	}
	if strict {
		msg = fmt.Sprintf("%d unsourced claims in %s domain", len(unsourced), contentDomain)
	}
	return invariant.NewResult(s.Metadata(), s.Cfg, ic, status, msg, evidence, time.Since(start)), nil
}

func claimSentences(text string) []string {
	var out []string
	for _, sentence := range sentenceSplit.Split(text, -1) {
		candidate := strings.TrimSpace(sentence)
		if candidate == "" {
			continue
		}
		for _, re := range claimIndicators {
			if re.MatchString(candidate) {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

func hasAttribution(sentence string) bool {
	for _, re := range sourcePatterns {
		if re.MatchString(sentence) {
			return true
		}
	}
	return false
}

func detectDomain(text string) string {
	t := strings.ToLower(text)
	for _, term := range financialTerms {
		if strings.Contains(t, term) {
			return "financial"
		}
	}
	for _, term := range medicalTerms {
		if strings.Contains(t, term) {
			return "medical"
		}
	}
	for _, term := range legalTerms {
		if strings.Contains(t, term) {
			return "legal"
		}
	}
	return "general"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
