package compliance

import (
	"context"
	"testing"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
)

func capture(t *testing.T, response string) *invariant.Context {
	t.Helper()
	model, err := domain.NewModelConfig(domain.ProviderOpenAI, "gpt-4o", 0.7, 1.0)
	if err != nil {
		t.Fatalf("NewModelConfig() error = %v", err)
	}
	req, err := domain.NewLLMRequest(domain.RequestTypeChat, "hi", nil, model, domain.RequestContext{ApplicationName: "test-app"})
	if err != nil {
		t.Fatalf("NewLLMRequest() error = %v", err)
	}
	resp := domain.NewLLMResponse(req.ID, response, "stop", nil, 10)
	return invariant.NewContext(domain.NewCaptureEvent(req, resp, "test"))
}

func TestFinancialWarnings(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.ValidationStatus
	}{
		{
			"non-financial content",
			"The capital of France is Paris.",
			domain.StatusPassed,
		},
		{
			"financial without warning",
			"You should invest in this stock for maximum profit.",
			domain.StatusFailed,
		},
		{
			"financial with disclaimer",
			"You could invest in index funds, but this is not financial advice.",
			domain.StatusPassed,
		},
		{
			"financial with advisor warning",
			"Stocks carry volatility. Please consult a licensed financial advisor.",
			domain.StatusPassed,
		},
		{
			"crypto with dyor",
			"Bitcoin moves fast, dyor before trading.",
			domain.StatusPassed,
		},
	}

	inv := NewFinancialWarnings(invariant.DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := inv.Validate(context.Background(), capture(t, tt.response))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %q, want %q (message %q)", res.Status, tt.want, res.Message)
			}
		})
	}
}

func TestFinancialWarnings_EvidenceCountsKeywords(t *testing.T) {
	inv := NewFinancialWarnings(invariant.DefaultConfig())
	res, err := inv.Validate(context.Background(), capture(t, "Buy this stock to invest your profit."))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Status != domain.StatusFailed {
		t.Fatalf("Status = %q, want failed", res.Status)
	}
	if len(res.Evidence) != 1 {
		t.Fatalf("len(Evidence) = %d, want 1", len(res.Evidence))
	}
	count, ok := res.Evidence[0].Metadata["financial_keyword_count"].(int)
	if !ok || count < 3 {
		t.Errorf("financial_keyword_count = %v, want >= 3", res.Evidence[0].Metadata["financial_keyword_count"])
	}
}

func TestMedicalDisclaimer(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.ValidationStatus
	}{
		{
			"non-medical content",
			"The weather will be sunny tomorrow.",
			domain.StatusPassed,
		},
		{
			"medical without disclaimer",
			"Your symptom pattern suggests a treatable condition; start the medication immediately.",
			domain.StatusFailed,
		},
		{
			"medical with consult disclaimer",
			"Those symptoms can have many causes. Please consult your doctor.",
			domain.StatusPassed,
		},
		{
			"medical with not-advice disclaimer",
			"Common treatment options exist, but this is not medical advice.",
			domain.StatusPassed,
		},
	}

	inv := NewMedicalDisclaimer(invariant.DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := inv.Validate(context.Background(), capture(t, tt.response))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %q, want %q (message %q)", res.Status, tt.want, res.Message)
			}
		})
	}
}

func TestGDPR(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.ValidationStatus
	}{
		{
			"no personal data mention",
			"Here is a pasta recipe.",
			domain.StatusPassed,
		},
		{
			"personal data without disclaimer",
			"We store your personal data for thirty days.",
			domain.StatusFailed,
		},
		{
			"personal data with gdpr mention",
			"We process personal data under GDPR consent rules.",
			domain.StatusPassed,
		},
		{
			"data protection language",
			"Our data protection policy covers all stored personal data.",
			domain.StatusPassed,
		},
	}

	inv := NewGDPR(invariant.DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := inv.Validate(context.Background(), capture(t, tt.response))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %q, want %q (message %q)", res.Status, tt.want, res.Message)
			}
		})
	}
}

func TestGDPR_TruncatesEvidence(t *testing.T) {
	long := "personal data "
	for len(long) < 400 {
		long += "and more personal data "
	}
	inv := NewGDPR(invariant.DefaultConfig())
	res, err := inv.Validate(context.Background(), capture(t, long))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Status != domain.StatusFailed {
		t.Fatalf("Status = %q, want failed", res.Status)
	}
	if got := len(res.Evidence[0].ExtractedText); got > 200 {
		t.Errorf("evidence length = %d, want <= 200", got)
	}
}
