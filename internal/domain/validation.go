package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks validation failures.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ValidationStatus is the outcome of one invariant execution.
type ValidationStatus string

const (
	StatusPassed  ValidationStatus = "passed"
	StatusFailed  ValidationStatus = "failed"
	StatusSkipped ValidationStatus = "skipped"
	StatusError   ValidationStatus = "error"
)

// ValidationEvidence supports a validation result with an extracted
// sample and an optional confidence score.
type ValidationEvidence struct {
	Description   string         `json:"description"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	Confidence    *float64       `json:"confidence_score,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewEvidence builds evidence with a confidence score, rejecting
// scores outside [0, 1].
func NewEvidence(description, extractedText string, confidence float64, metadata map[string]any) (ValidationEvidence, error) {
	if confidence < 0 || confidence > 1 {
		return ValidationEvidence{}, invalidArgument("confidence score must be between 0 and 1")
	}
	return ValidationEvidence{
		Description:   description,
		ExtractedText: extractedText,
		Confidence:    &confidence,
		Metadata:      metadata,
	}, nil
}

// ValidationResult records one invariant's verdict over one capture.
type ValidationResult struct {
	ID             uuid.UUID            `json:"id"`
	InvariantID    string               `json:"invariant_id"`
	CaptureEventID uuid.UUID            `json:"capture_event_id"`
	Status         ValidationStatus     `json:"status"`
	Severity       Severity             `json:"severity"`
	Message        string               `json:"message"`
	Evidence       []ValidationEvidence `json:"evidence,omitempty"`
	ExecutionTime  time.Duration        `json:"execution_time_ms"`
	Timestamp      time.Time            `json:"timestamp"`
}

// NewValidationResult stamps a fresh id and timestamp on a result.
func NewValidationResult(invariantID string, captureEventID uuid.UUID, status ValidationStatus, severity Severity, message string, evidence []ValidationEvidence, executionTime time.Duration) ValidationResult {
	return ValidationResult{
		ID:             uuid.New(),
		InvariantID:    invariantID,
		CaptureEventID: captureEventID,
		Status:         status,
		Severity:       severity,
		Message:        message,
		Evidence:       evidence,
		ExecutionTime:  executionTime,
		Timestamp:      time.Now().UTC(),
	}
}

// Passed reports whether the validation passed.
func (r ValidationResult) Passed() bool {
	return r.Status == StatusPassed
}

// RequiresAction reports whether the result needs immediate attention:
// a failure at critical or high severity.
func (r ValidationResult) RequiresAction() bool {
	return r.Status == StatusFailed &&
		(r.Severity == SeverityCritical || r.Severity == SeverityHigh)
}

// BatchValidationResult aggregates the results of validating a batch
// of captures.
type BatchValidationResult struct {
	ID               uuid.UUID          `json:"id"`
	Results          []ValidationResult `json:"results"`
	TotalValidations int                `json:"total_validations"`
	PassedCount      int                `json:"passed_count"`
	FailedCount      int                `json:"failed_count"`
	ErrorCount       int                `json:"error_count"`
	TotalTime        time.Duration      `json:"total_execution_time_ms"`
	Timestamp        time.Time          `json:"timestamp"`
}

// NewBatchValidationResult tallies statuses over a result list.
func NewBatchValidationResult(results []ValidationResult, totalTime time.Duration) BatchValidationResult {
	b := BatchValidationResult{
		ID:               uuid.New(),
		Results:          results,
		TotalValidations: len(results),
		TotalTime:        totalTime,
		Timestamp:        time.Now().UTC(),
	}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			b.PassedCount++
		case StatusFailed:
			b.FailedCount++
		case StatusError:
			b.ErrorCount++
		}
	}
	return b
}

// PassRate is the fraction of validations that passed.
func (b BatchValidationResult) PassRate() float64 {
	if b.TotalValidations == 0 {
		return 0
	}
	return float64(b.PassedCount) / float64(b.TotalValidations)
}

// CriticalFailures returns the failed results at critical severity.
func (b BatchValidationResult) CriticalFailures() []ValidationResult {
	var out []ValidationResult
	for _, r := range b.Results {
		if r.Status == StatusFailed && r.Severity == SeverityCritical {
			out = append(out, r)
		}
	}
	return out
}
