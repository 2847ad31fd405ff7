package factuality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

// Consistency flags the same numeric value appearing with different
// units on different lines. It is a coarse line-by-line heuristic.
type Consistency struct {
	invariant.Base
}

// NewConsistency builds the rule with the given configuration.
func NewConsistency(cfg invariant.Config) *Consistency {
	return &Consistency{Base: invariant.Base{Cfg: cfg}}
}

func (c *Consistency) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "factuality.consistency",
		Name:        "Consistency Check",
		Description: "Detects simple internal inconsistencies in the response",
		Category:    invariant.CategoryFactuality,
		Version:     "1.0.0",
		Tags:        []string{"factuality", "consistency"},
	}
}

func (c *Consistency) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := ic.Response().Text

	var evidence []domain.ValidationEvidence
	seen := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		unit := "units"
		if strings.Contains(strings.ToLower(line), "word") {
			unit = "words"
		}
		for _, token := range strings.Fields(line) {
			if !allDigits(token) {
				continue
			}
			if prev, ok := seen[token]; ok && prev != unit {
				evidence = append(evidence, invariant.MustEvidence(
					"Potential inconsistency for numeric value",
					truncate(line, 200),
					0.5,
					nil,
				))
			} else {
				seen[token] = unit
			}
		}
	}

	if len(evidence) > 0 {
		msg := fmt.Sprintf("Detected %d potential inconsistency(ies)", len(evidence))
		return invariant.NewResult(c.Metadata(), c.Cfg, ic, domain.StatusFailed, msg, evidence, time.Since(start)), nil
	}
	return invariant.NewResult(c.Metadata(), c.Cfg, ic, domain.StatusPassed,
		"No obvious inconsistencies detected", nil, time.Since(start)), nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
