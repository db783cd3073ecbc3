package providers

// Kind identifies which backend family an adapter (or a credential) targets.
type Kind string

const (
	// KindAnthropic is the cloud provider, reached through its official SDK.
	KindAnthropic Kind = "anthropic"

	// KindOpenAICompat is any endpoint implementing the OpenAI chat API
	// (OpenAI itself, OpenRouter, vLLM, LM Studio, etc.).
	KindOpenAICompat Kind = "openai-compat"

	// KindOllama is a self-hosted Ollama server.
	KindOllama Kind = "ollama"
)

// Valid reports whether k names a known provider kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAnthropic, KindOpenAICompat, KindOllama:
		return true
	}
	return false
}

// Message represents a single message in a conversation.
// It is provider-agnostic and transformed to provider-specific formats
// inside each adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// IsError marks a placeholder the caller rendered for a failed turn.
	// Error placeholders are filtered out before dispatch and never reach
	// a backend.
	IsError bool `json:"is_error,omitempty"`
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerationConfig carries the caller's sampling parameters.
// Fields a given backend does not support are silently ignored by that
// backend's adapter; zero values mean "not set".
type GenerationConfig struct {
	// Temperature controls randomness (0.0 to 2.0, typically 0.0 to 1.0)
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP float64 `json:"top_p,omitempty"`

	// TopK limits sampling to the K most likely tokens
	TopK int `json:"top_k,omitempty"`

	// MaxOutputTokens is the maximum number of tokens to generate
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// StreamEnabled requests incremental delivery when the backend offers it
	StreamEnabled bool `json:"stream_enabled,omitempty"`

	// ThinkingBudget is the extended-thinking token budget (cloud SDK only)
	ThinkingBudget int `json:"thinking_budget,omitempty"`

	// FrequencyPenalty reduces repetition based on frequency (-2.0 to 2.0)
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
}

// ModelInfo describes one model from a backend's catalog.
type ModelInfo struct {
	// Name is the model identifier used in requests
	Name string `json:"name"`

	// DisplayName is a human-readable label (may be empty)
	DisplayName string `json:"display_name,omitempty"`

	// InputTokenLimit is the context window size (0 if unknown)
	InputTokenLimit int `json:"input_token_limit,omitempty"`

	// OutputTokenLimit is the maximum completion size (0 if unknown)
	OutputTokenLimit int `json:"output_token_limit,omitempty"`
}

// ChatRequest is the adapter-level generation request. The dispatch engine
// resolves the credential and model before building one of these, so
// adapters stay stateless.
type ChatRequest struct {
	// Secret is the authentication token for this call
	Secret string

	// Endpoint is the base address; ignored by the cloud-SDK adapter
	Endpoint string

	// Model is the resolved model identifier
	Model string

	// History is the prior conversation, already filtered to non-empty,
	// non-error messages
	History []Message

	// NewMessage is the user turn being answered
	NewMessage string

	// SystemInstruction is the system prompt (may be empty)
	SystemInstruction string

	// Config carries the sampling parameters
	Config GenerationConfig
}

// ChunkFunc receives the cumulative response text after each streamed
// increment. Adapters always pass the full text so far, never the delta,
// so callers can render directly without concatenation bookkeeping.
type ChunkFunc func(cumulative string)

// RejectionMarker is the synthesized text returned when a backend reports a
// content-safety stop with no output.
const RejectionMarker = "[response blocked by provider safety filter]"

// TokensUnsupported is the sentinel returned by CountTokens on adapters
// whose backend exposes no token-counting capability.
const TokensUnsupported = -1
