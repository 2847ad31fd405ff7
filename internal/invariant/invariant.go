// Package invariant defines the contract every validation rule
// implements, plus the registry that owns rule instances for the
// lifetime of the process.
package invariant

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// Category groups invariants by the concern they police.
type Category string

const (
	CategorySafety      Category = "safety"
	CategoryFactuality  Category = "factuality"
	CategoryCompliance  Category = "compliance"
	CategoryPerformance Category = "performance"
	CategoryConsistency Category = "consistency"
	CategoryCustom      Category = "custom"
)

// Scope controls which captures an invariant applies to.
type Scope string

const (
	ScopeAllRequests          Scope = "all_requests"
	ScopeSpecificUsers        Scope = "specific_users"
	ScopeSpecificApplications Scope = "specific_applications"
	ScopeABVariant            Scope = "ab_variant"
	ScopeSampleBased          Scope = "sample_based"
)

// ScopeFilters parameterizes the non-default scopes.
type ScopeFilters struct {
	Applications []string `koanf:"applications"`
	UserIDs      []string `koanf:"user_ids"`
	Variant      string   `koanf:"variant"`
}

// Config is the runtime configuration of one invariant instance.
type Config struct {
	Enabled      bool            `koanf:"enabled"`
	Severity     domain.Severity `koanf:"severity"`
	Scope        Scope           `koanf:"scope"`
	ScopeFilters ScopeFilters    `koanf:"scope_filters"`
	SamplingRate float64         `koanf:"sampling_rate"`
	Timeout      time.Duration   `koanf:"timeout"`
	RetryOnError bool            `koanf:"retry_on_error"`
	MaxRetries   int             `koanf:"max_retries"`
}

// DefaultConfig returns the standard configuration: enabled, medium
// severity, unscoped, no sampling, 5s timeout, two retries.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Severity:     domain.SeverityMedium,
		Scope:        ScopeAllRequests,
		SamplingRate: 1.0,
		Timeout:      5 * time.Second,
		RetryOnError: true,
		MaxRetries:   2,
	}
}

// Validate rejects malformed configurations. The sampling rate must
// sit in (0, 1].
func (c Config) Validate() error {
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		return fmt.Errorf("%w: sampling rate must be between 0 and 1", domain.ErrInvalidArgument)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// Metadata is the stable identity of an invariant. The id is globally
// unique and survives version bumps.
type Metadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags,omitempty"`
}

// Context wraps one capture for the duration of a validation call.
// A fresh execution id is minted per call and discarded afterwards.
type Context struct {
	Capture     domain.CaptureEvent
	ExecutionID uuid.UUID
	Metadata    map[string]any
}

// NewContext builds an execution context around a capture.
func NewContext(capture domain.CaptureEvent) *Context {
	return &Context{
		Capture:     capture,
		ExecutionID: uuid.New(),
		Metadata:    make(map[string]any),
	}
}

// Request is the captured request, for convenience.
func (c *Context) Request() domain.LLMRequest {
	return c.Capture.Request
}

// Response is the captured response, for convenience.
func (c *Context) Response() domain.LLMResponse {
	return c.Capture.Response
}

// Invariant is the capability every rule variant implements.
//
// Validate must return a FAILED result for expected rule violations;
// returning an error is reserved for genuinely unexpected failures.
type Invariant interface {
	Metadata() Metadata
	Config() Config
	Validate(ctx context.Context, ic *Context) (domain.ValidationResult, error)
	ShouldApply(ic *Context) bool
}

// ShouldApply is the default applicability algorithm: disabled rules
// never apply; scope filters are checked next; finally, a sampling
// rate below 1.0 admits captures by a deterministic hash of the
// request id, so the same request is consistently included or
// excluded across repeated evaluations and process restarts.
func ShouldApply(cfg Config, ic *Context) bool {
	if !cfg.Enabled {
		return false
	}

	reqCtx := ic.Request().Context
	switch cfg.Scope {
	case ScopeSpecificApplications:
		if !contains(cfg.ScopeFilters.Applications, reqCtx.ApplicationName) {
			return false
		}
	case ScopeSpecificUsers:
		if !contains(cfg.ScopeFilters.UserIDs, reqCtx.UserID) {
			return false
		}
	case ScopeABVariant:
		if reqCtx.ABVariant != cfg.ScopeFilters.Variant {
			return false
		}
	}

	if cfg.SamplingRate < 1.0 {
		if sampleBucket(ic.Request().ID) > cfg.SamplingRate {
			return false
		}
	}
	return true
}

// sampleBucket maps a request id onto [0.00, 0.99] by reducing its
// MD5 digest modulo 100. MD5 is used as a stable hash, not for
// security.
func sampleBucket(id uuid.UUID) float64 {
	sum := md5.Sum([]byte(id.String()))
	// The digest modulo 100, computed incrementally to avoid big-int
	// arithmetic on the 128-bit value.
	r := 0
	for _, b := range sum {
		r = (r*256 + int(b)) % 100
	}
	return float64(r) / 100.0
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// Base carries the shared configuration plumbing for rule variants.
// Embed it and implement Metadata and Validate.
type Base struct {
	Cfg Config
}

// Config returns the instance configuration.
func (b Base) Config() Config { return b.Cfg }

// ShouldApply applies the default scope and sampling algorithm.
func (b Base) ShouldApply(ic *Context) bool { return ShouldApply(b.Cfg, ic) }

// MustEvidence builds evidence from a known-valid confidence score.
// It panics on an out-of-range score, mirroring regexp.MustCompile:
// rule variants use fixed scores known at compile time.
func MustEvidence(description, extractedText string, confidence float64, metadata map[string]any) domain.ValidationEvidence {
	ev, err := domain.NewEvidence(description, extractedText, confidence, metadata)
	if err != nil {
		panic(err)
	}
	return ev
}

// NewResult builds a ValidationResult stamped with the invariant's
// identity, the configured severity, and the measured execution time.
func NewResult(meta Metadata, cfg Config, ic *Context, status domain.ValidationStatus, message string, evidence []domain.ValidationEvidence, elapsed time.Duration) domain.ValidationResult {
	return domain.NewValidationResult(meta.ID, ic.Capture.ID, status, cfg.Severity, message, evidence, elapsed)
}
