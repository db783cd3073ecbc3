// Package anthropic implements the cloud-SDK provider adapter. Unlike the
// HTTP adapters it delegates transport, framing, and streaming to the
// official SDK; the adapter's job is transforming the shared chat contract
// to SDK parameter types and normalizing SDK failures into classified
// errors.
package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"nimbus-chat/relay/pkg/providers"
)

// defaultMaxTokens is sent when the caller leaves MaxOutputTokens unset;
// the Messages API requires an explicit limit.
const defaultMaxTokens = 4096

// Adapter is the cloud-SDK provider adapter. Clients are constructed per
// call because the secret rotates under the dispatch engine's control.
type Adapter struct {
	// baseURL overrides the SDK's default endpoint; used by tests.
	baseURL string
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithBaseURL points the SDK at an alternate endpoint. The dispatch engine
// never sets this (credential endpoints are ignored for the cloud SDK);
// it exists for tests against a local mock.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

// New creates the cloud-SDK adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind returns the provider kind served by this adapter.
func (a *Adapter) Kind() providers.Kind {
	return providers.KindAnthropic
}

// client builds an SDK client for one call.
func (a *Adapter) client(secret string) anthropic.Client {
	opts := []option.RequestOption{option.WithAPIKey(secret)}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	return anthropic.NewClient(opts...)
}

// ListModels queries the SDK's model catalog. The catalog only contains
// chat-capable models, so no family filtering is applied. A 403 yields an
// empty list instead of an error.
func (a *Adapter) ListModels(ctx context.Context, secret, endpoint string) ([]providers.ModelInfo, error) {
	client := a.client(secret)

	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		ce := normalizeError(err)
		if ce.Code == providers.CodePermissionDenied {
			slog.Debug("model listing forbidden, returning empty catalog",
				"provider", a.Kind(),
			)
			return []providers.ModelInfo{}, nil
		}
		return nil, ce
	}

	models := make([]providers.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, providers.ModelInfo{
			Name:        m.ID,
			DisplayName: m.DisplayName,
		})
	}

	return models, nil
}

// TestConnection lists the catalog as the cheapest request that proves the
// credential is authorized. Any failure converts to false.
func (a *Adapter) TestConnection(ctx context.Context, secret, endpoint, model string) bool {
	client := a.client(secret)

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		slog.Debug("connection test failed",
			"provider", a.Kind(),
			"error", err,
		)
		return false
	}
	return true
}

// StreamChat issues the generation request through the SDK. With streaming
// enabled the SDK's event stream is accumulated and onChunk receives the
// cumulative text after each delta.
func (a *Adapter) StreamChat(ctx context.Context, req *providers.ChatRequest, onChunk providers.ChunkFunc) (string, error) {
	client := a.client(req.Secret)
	params := buildParams(req)

	if !req.Config.StreamEnabled {
		message, err := client.Messages.New(ctx, params)
		if err != nil {
			return "", normalizeError(err)
		}
		text := messageText(message)
		if text != "" && onChunk != nil {
			onChunk(text)
		}
		return finalText(a.Kind(), text, message.StopReason, onChunk)
	}

	stream := client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}

	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return text.String(), normalizeError(err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(text.String())
					}
				}
			}
		}

		// Cancellation is checked at every event boundary.
		select {
		case <-ctx.Done():
			return text.String(), providers.ClassifyErr(a.Kind(), ctx.Err())
		default:
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), normalizeError(err)
	}

	return finalText(a.Kind(), text.String(), message.StopReason, onChunk)
}

// CountTokens asks the SDK for the prompt token count.
func (a *Adapter) CountTokens(ctx context.Context, req *providers.ChatRequest) (int, error) {
	client := a.client(req.Secret)

	count, err := client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(req.Model),
		Messages: buildMessages(req),
	})
	if err != nil {
		return 0, normalizeError(err)
	}

	return int(count.InputTokens), nil
}

// buildMessages transforms the shared history plus the new user turn into
// SDK message params.
func buildMessages(req *providers.ChatRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, msg := range req.History {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == providers.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.NewMessage)))
	return messages
}

// buildParams transforms an adapter-level chat request to SDK params.
// FrequencyPenalty has no SDK equivalent and is ignored.
func buildParams(req *providers.ChatRequest) anthropic.MessageNewParams {
	maxTokens := req.Config.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  buildMessages(req),
	}

	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemInstruction},
		}
	}
	if req.Config.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Config.Temperature)
	}
	if req.Config.TopP != 0 {
		params.TopP = anthropic.Float(req.Config.TopP)
	}
	if req.Config.TopK != 0 {
		params.TopK = anthropic.Int(int64(req.Config.TopK))
	}
	if req.Config.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.Config.ThinkingBudget))
	}

	return params
}

// messageText concatenates the text blocks of a completed message.
func messageText(message *anthropic.Message) string {
	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}
	return text.String()
}

// finalText applies the shared content-filter contract: a refusal stop with
// no text synthesizes the bracketed marker and a rejection classification.
func finalText(kind providers.Kind, text string, stopReason anthropic.StopReason, onChunk providers.ChunkFunc) (string, error) {
	if stopReason == anthropic.StopReasonRefusal && text == "" {
		if onChunk != nil {
			onChunk(providers.RejectionMarker)
		}
		return providers.RejectionMarker, providers.NewRejection(kind, "generation refused with no output")
	}
	return text, nil
}

// normalizeError maps SDK failures into the shared classified-error type.
// API errors carry an HTTP status; everything else goes through the
// generic classifier.
func normalizeError(err error) *providers.ClassifiedError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		ce := providers.ClassifyStatus(providers.KindAnthropic, apierr.StatusCode, apierr.Error())
		ce.Cause = err
		return ce
	}
	return providers.ClassifyErr(providers.KindAnthropic, err)
}
