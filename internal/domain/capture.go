// Package domain holds the value objects shared by the validation and
// drift engines. Everything here is immutable once constructed; the
// constructors reject invalid values instead of clamping them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies the upstream LLM vendor.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderCohere      Provider = "cohere"
	ProviderHuggingFace Provider = "huggingface"
	ProviderCustom      Provider = "custom"
)

// RequestType is the kind of LLM request that was captured.
type RequestType string

const (
	RequestTypeChat           RequestType = "chat"
	RequestTypeCompletion     RequestType = "completion"
	RequestTypeEmbedding      RequestType = "embedding"
	RequestTypeClassification RequestType = "classification"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelConfig describes the model parameters a request was made with.
type ModelConfig struct {
	Provider         Provider `json:"provider"`
	ModelName        string   `json:"model_name"`
	ModelVersion     string   `json:"model_version,omitempty"`
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	TopP             float64  `json:"top_p"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
}

// NewModelConfig validates the parameter ranges and returns the config.
// Temperature must be in [0, 2] and top_p in [0, 1].
func NewModelConfig(provider Provider, modelName string, temperature, topP float64) (ModelConfig, error) {
	if temperature < 0 || temperature > 2 {
		return ModelConfig{}, invalidArgument("temperature must be between 0 and 2")
	}
	if topP < 0 || topP > 1 {
		return ModelConfig{}, invalidArgument("top_p must be between 0 and 1")
	}
	return ModelConfig{
		Provider:    provider,
		ModelName:   modelName,
		Temperature: temperature,
		TopP:        topP,
	}, nil
}

// RequestContext carries the application-side context of a request.
type RequestContext struct {
	UserID          string            `json:"user_id,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	ABVariant       string            `json:"ab_variant,omitempty"`
	Environment     string            `json:"environment"`
	ApplicationName string            `json:"application_name"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// LLMRequest is the captured request half of an interaction.
type LLMRequest struct {
	ID        uuid.UUID      `json:"id"`
	Type      RequestType    `json:"request_type"`
	Prompt    string         `json:"prompt,omitempty"`
	Messages  []Message      `json:"messages,omitempty"`
	Model     ModelConfig    `json:"model_config"`
	Context   RequestContext `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewLLMRequest builds a request. At least one of prompt or messages
// must be non-empty.
func NewLLMRequest(reqType RequestType, prompt string, messages []Message, model ModelConfig, reqCtx RequestContext) (LLMRequest, error) {
	if prompt == "" && len(messages) == 0 {
		return LLMRequest{}, invalidArgument("either prompt or messages must be provided")
	}
	if reqCtx.ApplicationName == "" {
		reqCtx.ApplicationName = "default"
	}
	if reqCtx.Environment == "" {
		reqCtx.Environment = "production"
	}
	return LLMRequest{
		ID:        uuid.New(),
		Type:      reqType,
		Prompt:    prompt,
		Messages:  messages,
		Model:     model,
		Context:   reqCtx,
		Timestamp: time.Now().UTC(),
	}, nil
}

// EstimatedTokens is a rough token count: four characters per token.
// It is an approximation, not a tokenizer.
func (r LLMRequest) EstimatedTokens() int {
	text := r.Prompt
	if text == "" {
		for i, m := range r.Messages {
			if i > 0 {
				text += " "
			}
			text += m.Content
		}
	}
	return len(text) / 4
}

// Token usage map keys.
const (
	UsagePromptTokens     = "tokens_prompt"
	UsageCompletionTokens = "tokens_completion"
)

// costPerThousandTokens is placeholder pricing; a real deployment
// would look this up per provider and model.
const costPerThousandTokens = 0.002

// LLMResponse is the captured response half of an interaction.
type LLMResponse struct {
	ID           uuid.UUID      `json:"id"`
	RequestID    uuid.UUID      `json:"request_id"`
	Text         string         `json:"text"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
	LatencyMS    int            `json:"latency_ms"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewLLMResponse builds a response linked to a request.
func NewLLMResponse(requestID uuid.UUID, text, finishReason string, usage map[string]int, latencyMS int) LLMResponse {
	return LLMResponse{
		ID:           uuid.New(),
		RequestID:    requestID,
		Text:         text,
		FinishReason: finishReason,
		Usage:        usage,
		LatencyMS:    latencyMS,
		Timestamp:    time.Now().UTC(),
	}
}

// TotalTokens is prompt plus completion token counts.
func (r LLMResponse) TotalTokens() int {
	return r.Usage[UsagePromptTokens] + r.Usage[UsageCompletionTokens]
}

// CostUSD estimates spend with a flat per-1000-token rate.
func (r LLMResponse) CostUSD() float64 {
	return float64(r.TotalTokens()) / 1000 * costPerThousandTokens
}

// CaptureEvent is one recorded request/response pair. It is the unit
// of analysis for both engines and is never mutated after creation.
type CaptureEvent struct {
	ID         uuid.UUID   `json:"id"`
	Request    LLMRequest  `json:"request"`
	Response   LLMResponse `json:"response"`
	CapturedAt time.Time   `json:"captured_at"`
	SDKVersion string      `json:"sdk_version"`
}

// NewCaptureEvent combines a request and response into a capture.
func NewCaptureEvent(req LLMRequest, resp LLMResponse, sdkVersion string) CaptureEvent {
	if sdkVersion == "" {
		sdkVersion = "1.0.0"
	}
	return CaptureEvent{
		ID:         uuid.New(),
		Request:    req,
		Response:   resp,
		CapturedAt: time.Now().UTC(),
		SDKVersion: sdkVersion,
	}
}
