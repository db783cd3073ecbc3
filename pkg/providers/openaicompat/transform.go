package openaicompat

import (
	"strings"

	"nimbus-chat/relay/pkg/providers"
)

// Wire types for the OpenAI chat completion API.

// chatRequest is an OpenAI chat completion request.
type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

// chatMessage is a message in OpenAI format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is a non-streaming chat completion response.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// chatChoice is a completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// streamResponse is a chunk in the SSE stream.
type streamResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

// streamChoice is a choice within a stream chunk.
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// streamDelta is the incremental content in a stream chunk.
type streamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// modelList is the /models catalog response.
type modelList struct {
	Data []modelEntry `json:"data"`
}

// modelEntry is one catalog entry.
type modelEntry struct {
	ID string `json:"id"`
}

// finishReasonContentFilter is the OpenAI stop reason for safety blocks.
const finishReasonContentFilter = "content_filter"

// buildRequest transforms an adapter-level chat request to OpenAI format.
func buildRequest(req *providers.ChatRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Model:            req.Model,
		Temperature:      req.Config.Temperature,
		TopP:             req.Config.TopP,
		MaxTokens:        req.Config.MaxOutputTokens,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		Stream:           stream,
	}

	// TopK and ThinkingBudget have no OpenAI equivalent and are ignored.

	if req.SystemInstruction != "" {
		out.Messages = append(out.Messages, chatMessage{
			Role:    providers.RoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, msg := range req.History {
		out.Messages = append(out.Messages, chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	out.Messages = append(out.Messages, chatMessage{
		Role:    providers.RoleUser,
		Content: req.NewMessage,
	})

	return out
}

// nonChatFamilies marks catalog entries that can never serve a chat
// completion. Backends like OpenAI return an unfiltered catalog, so the
// adapter trims it to chat-capable families.
var nonChatFamilies = []string{
	"embedding",
	"whisper",
	"tts",
	"dall-e",
	"moderation",
	"davinci",
	"babbage",
}

// isChatModel reports whether a catalog entry looks chat-capable.
func isChatModel(id string) bool {
	lower := strings.ToLower(id)
	for _, family := range nonChatFamilies {
		if strings.Contains(lower, family) {
			return false
		}
	}
	return true
}
