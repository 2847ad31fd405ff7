// Package registration wires the built-in invariants into a registry.
// This replaces init-based side effects and is intended to be called
// from cmd/reliability and tests before validation starts.
package registration

import (
	"github.com/tjfontaine/llm-reliability/internal/invariant"
	"github.com/tjfontaine/llm-reliability/internal/invariant/compliance"
	"github.com/tjfontaine/llm-reliability/internal/invariant/custom"
	"github.com/tjfontaine/llm-reliability/internal/invariant/factuality"
	"github.com/tjfontaine/llm-reliability/internal/invariant/safety"
)

// builtinConstructors maps invariant ids to their constructors so
// per-rule configuration can be applied at build time.
var builtinConstructors = map[string]func(invariant.Config) invariant.Invariant{
	"safety.pii_leakage":            func(c invariant.Config) invariant.Invariant { return safety.NewPIILeakage(c) },
	"safety.prompt_injection":       func(c invariant.Config) invariant.Invariant { return safety.NewPromptInjection(c) },
	"safety.toxicity":               func(c invariant.Config) invariant.Invariant { return safety.NewToxicity(c) },
	"compliance.financial_warnings": func(c invariant.Config) invariant.Invariant { return compliance.NewFinancialWarnings(c) },
	"compliance.medical_disclaimer": func(c invariant.Config) invariant.Invariant { return compliance.NewMedicalDisclaimer(c) },
	"compliance.gdpr":               func(c invariant.Config) invariant.Invariant { return compliance.NewGDPR(c) },
	"factuality.source_attribution": func(c invariant.Config) invariant.Invariant { return factuality.NewSourceAttribution(c) },
	"factuality.hallucination_detection": func(c invariant.Config) invariant.Invariant {
		return factuality.NewHallucination(c)
	},
	"factuality.consistency": func(c invariant.Config) invariant.Invariant { return factuality.NewConsistency(c) },
	"custom.template":        func(c invariant.Config) invariant.Invariant { return custom.NewTemplate(c) },
}

// RegisterBuiltins registers every built-in invariant with its default
// configuration.
func RegisterBuiltins(reg *invariant.Registry) error {
	return RegisterBuiltinsWith(reg, nil)
}

// RegisterBuiltinsWith registers the built-in invariants, constructing
// each with its override when one is present and the default
// configuration otherwise.
func RegisterBuiltinsWith(reg *invariant.Registry, overrides map[string]invariant.Config) error {
	for id, build := range builtinConstructors {
		cfg := invariant.DefaultConfig()
		if override, ok := overrides[id]; ok {
			cfg = override
		}
		if err := reg.Register(build(cfg)); err != nil {
			return err
		}
	}
	return nil
}
