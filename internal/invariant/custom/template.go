// Package custom holds the extension point for user-defined
// invariants. Template is a minimal working example to copy from.
package custom

import (
	"context"
	"time"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

// Template is a no-op invariant that always passes. Copy it, give it
// a unique id, and put real checks in Validate.
type Template struct {
	invariant.Base
}

// NewTemplate builds the rule with the given configuration.
func NewTemplate(cfg invariant.Config) *Template {
	return &Template{Base: invariant.Base{Cfg: cfg}}
}

func (t *Template) Metadata() invariant.Metadata {
	return invariant.Metadata{
		ID:          "custom.template",
		Name:        "Custom Template",
		Description: "User-defined template invariant",
		Category:    invariant.CategoryCustom,
		Version:     "1.0.0",
	}
}

func (t *Template) Validate(ctx context.Context, ic *invariant.Context) (domain.ValidationResult, error) {
	start := time.Now()
	return invariant.NewResult(t.Metadata(), t.Cfg, ic, domain.StatusPassed, "Template pass", nil, time.Since(start)), nil
}
