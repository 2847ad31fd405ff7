package factuality

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

var hedgeWords = []string{
	"might", "may", "could", "possibly", "perhaps", "likely",
	"probably", "seems", "appears", "suggests", "indicates",
}

var hedgeRes = buildHedgeRes()

func buildHedgeRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(hedgeWords))
	for i, w := range hedgeWords {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return res
}

var futureYearRe = regexp.MustCompile(`\b(in|during|by)\s+(\d{4})\b`)

// excessive hedging threshold, as a fraction of the word count
const hedgeRatioLimit = 0.05

// Hallucination flags indicators of fabricated content: excessive
// hedging, contradictory absolute statements, and references to
// future years as past events.
type Hallucination struct {
	invariant.Base

	// now is swappable for temporal tests.
	now func() time.Time
}

// NewHallucination builds the rule with the given configuration.
func NewHallucination(cfg invariant.Config) *Hallucination {
	return &Hallucination{Base: invariant.Base{Cfg: cfg}, now: time.Now}
}

func (h *Hallucination) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "factuality.hallucination_detection",
		Name:        "Hallucination Detection",
		Description: "Detects potential hallucinations and fabricated information",
		Category:    invariant.CategoryFactuality,
		Version:     "1.0.0",
		Tags:        []string{"factuality", "hallucination", "accuracy"},
	}
}

func (h *Hallucination) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	text := ic.Response().Text
	var evidence []domain.ValidationEvidence

	hedgeCount := countHedges(text)
	wordCount := len(strings.Fields(text))
	if wordCount == 0 {
		wordCount = 1
	}
	hedgeRatio := float64(hedgeCount) / float64(wordCount)
	if hedgeRatio > hedgeRatioLimit {
		evidence = append(evidence, invariant.MustEvidence(
			"Excessive hedging detected",
			fmt.Sprintf("%d hedge words in %d words (%.1f%%)", hedgeCount, wordCount, hedgeRatio*100),
			0.6,
			map[string]any{"hedge_count": hedgeCount, "hedge_ratio": hedgeRatio},
		))
	}

	if contradictions := detectContradictions(text); len(contradictions) > 0 {
		sample := contradictions
		if len(sample) > 3 {
			sample = sample[:3]
		}
		evidence = append(evidence, invariant.MustEvidence(
			"Contradictory absolute statements detected",
			strings.Join(sample, "; "),
			0.75,
			map[string]any{"contradiction_count": len(contradictions)},
		))
	}

	if issue := h.detectTemporalIssue(text); issue != "" {
		evidence = append(evidence, invariant.MustEvidence(
			"Temporal inconsistencies detected",
			issue,
			0.8,
			map[string]any{"issue_type": "temporal"},
		))
	}

	if len(evidence) > 0 {
		var confSum float64
		for _, e := range evidence {
			if e.Confidence != nil {
				confSum += *e.Confidence
			}
		}
		avg := confSum / float64(len(evidence))
		msg := fmt.Sprintf("Detected %d hallucination indicator(s) (confidence: %.0f%%)", len(evidence), avg*100)
		return invariant.NewResult(h.Metadata(), h.Cfg, ic, domain.StatusFailed, msg, evidence, time.Since(start)), nil
	}
	return invariant.NewResult(h.Metadata(), h.Cfg, ic, domain.StatusPassed,
		"No hallucination indicators detected", nil, time.Since(start)), nil
}

func countHedges(text string) int {
	tl := strings.ToLower(text)
	n := 0
	for _, re := range hedgeRes {
		n += len(re.FindAllString(tl, -1))
	}
	return n
}

func detectContradictions(text string) []string {
	var out []string
	tl := strings.ToLower(text)
	if strings.Contains(tl, "always") && strings.Contains(tl, "never") {
		out = append(out, "Contains both 'always' and 'never' statements")
	}
	if strings.Contains(tl, "impossible") && strings.Contains(tl, "definitely") {
		out = append(out, "Contains both 'impossible' and 'definitely' statements")
	}

	// A sentence stating "X is not Y" contradicting another sentence
	// stating "X is Y".
	sentences := strings.Split(text, ".")
	for i, sent := range sentences {
		sl := strings.ToLower(sent)
		if !strings.Contains(sl, " not ") {
			continue
		}
		opposite := strings.ReplaceAll(sl, " not ", " ")
		if strings.TrimSpace(opposite) == "" {
			continue
		}
		for j, other := range sentences {
			if i != j && strings.Contains(strings.ToLower(other), opposite) {
				out = append(out, "Possible contradiction between statements")
				break
			}
		}
	}
	return out
}

func (h *Hallucination) detectTemporalIssue(text string) string {
	currentYear := h.now().Year()
	for _, m := range futureYearRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		prep := m[1]
		year, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if year > currentYear && (prep == "in" || prep == "during") {
			return fmt.Sprintf("References future year %d as past event", year)
		}
	}
	return ""
}
