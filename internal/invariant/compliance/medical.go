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

var medicalKeywords = []string{
	"symptom", "diagnosis", "treatment", "medication", "disease",
	"condition", "doctor", "physician", "medical", "health",
	"prescription", "therapy", "cure", "illness",
}

var disclaimerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`consult.*?(doctor|physician|healthcare professional)`),
	regexp.MustCompile(`seek.*?medical advice`),
	regexp.MustCompile(`not.*?substitute.*?professional`),
	regexp.MustCompile(`this is not medical advice`),
	regexp.MustCompile(`speak.*?healthcare provider`),
}

// MedicalDisclaimer requires a disclaimer whenever a response
// discusses medical or health topics.
type MedicalDisclaimer struct {
	invariant.Base
}

// NewMedicalDisclaimer builds the rule with the given configuration.
func NewMedicalDisclaimer(cfg invariant.Config) *MedicalDisclaimer {
	return &MedicalDisclaimer{Base: invariant.Base{Cfg: cfg}}
}

func (m *MedicalDisclaimer) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "compliance.medical_disclaimer",
		Name:        "Medical Disclaimer",
		Description: "Ensures medical content includes appropriate disclaimers",
		Category:    invariant.CategoryCompliance,
		Version:     "1.0.0",
		Tags:        []string{"compliance", "medical", "legal", "disclaimer"},
	}
}

func (m *MedicalDisclaimer) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := strings.ToLower(ic.Response().Text)

	keywordCount := 0
	for _, kw := range medicalKeywords {
		if strings.Contains(text, kw) {
			keywordCount++
		}
	}
	if keywordCount == 0 {
		return invariant.NewResult(m.Metadata(), m.Cfg, ic, domain.StatusPassed,
			"Not medical content - disclaimer not required", nil, time.Since(start)), nil
	}

	for _, re := range disclaimerPatterns {
		if re.MatchString(text) {
			return invariant.NewResult(m.Metadata(), m.Cfg, ic, domain.StatusPassed,
				"Medical content includes appropriate disclaimer", nil, time.Since(start)), nil
		}
	}

	evidence := []domain.ValidationEvidence{invariant.MustEvidence(
		"Missing required medical disclaimer",
		"Content discusses medical topics but lacks disclaimer",
		0.9,
		map[string]any{"medical_keyword_count": keywordCount},
	)}
	msg := fmt.Sprintf("Medical content detected (%d keywords) but no disclaimer found", keywordCount)
	return invariant.NewResult(m.Metadata(), m.Cfg, ic, domain.StatusFailed, msg, evidence, time.Since(start)), nil
}
