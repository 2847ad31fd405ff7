package safety

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

// injectionPatterns match attempts to override or escape the system
// instructions. They are applied against the lowercased prompt and
// response together, since an injected instruction can surface in
// either.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore (previous|prior) (instructions|rules)`),
	regexp.MustCompile(`disregard (all|any) (instructions|above)`),
	regexp.MustCompile(`you are no longer`),
	regexp.MustCompile(`jailbreak`),
	regexp.MustCompile(`act as .* and bypass`),
}

// PromptInjection flags prompt injection attempts.
type PromptInjection struct {
	invariant.Base
}

// NewPromptInjection builds the rule with the given configuration.
func NewPromptInjection(cfg invariant.Config) *PromptInjection {
	return &PromptInjection{Base: invariant.Base{Cfg: cfg}}
}

func (p *PromptInjection) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "safety.prompt_injection",
		Name:        "Prompt Injection Detection",
		Description: "Detects prompt injection attempts in content",
		Category:    invariant.CategorySafety,
		Version:     "1.0.0",
		Tags:        []string{"safety", "prompt_injection"},
	}
}

func (p *PromptInjection) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := strings.ToLower(ic.Request().Prompt + " \n " + ic.Response().Text)

	var evidence []domain.ValidationEvidence
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			evidence = append(evidence, invariant.MustEvidence(
				"Prompt injection pattern detected",
				re.String(),
				0.8,
				nil,
			))
		}
	}

	if len(evidence) > 0 {
		msg := fmt.Sprintf("Detected %d prompt injection indicator(s)", len(evidence))
		return invariant.NewResult(p.Metadata(), p.Cfg, ic, domain.StatusFailed, msg, evidence, time.Since(start)), nil
	}
	return invariant.NewResult(p.Metadata(), p.Cfg, ic, domain.StatusPassed, "No prompt injection detected", nil, time.Since(start)), nil
}
