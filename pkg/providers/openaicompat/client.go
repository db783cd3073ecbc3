// Package openaicompat implements the provider adapter for any endpoint
// speaking the OpenAI chat completion API: OpenAI itself, OpenRouter, vLLM,
// LM Studio, and other compatible servers. Streaming uses Server-Sent
// Events; the adapter accumulates deltas and reports cumulative text.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"nimbus-chat/relay/pkg/providers"
)

// Adapter is the OpenAI-compatible provider adapter. It is stateless apart
// from the pooled HTTP transport and is safe for concurrent use.
type Adapter struct {
	http *providers.HTTPClient
}

// New creates the OpenAI-compatible adapter.
func New(cfg providers.HTTPClientConfig) *Adapter {
	return &Adapter{
		http: providers.NewHTTPClient(providers.KindOpenAICompat, cfg),
	}
}

// Kind returns the provider kind served by this adapter.
func (a *Adapter) Kind() providers.Kind {
	return providers.KindOpenAICompat
}

// headers builds the per-call auth headers.
func headers(secret string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + secret,
	}
}

// baseURL normalizes the configured endpoint.
func baseURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

// ListModels fetches the /models catalog and filters it to chat-capable
// families. A 403 from the backend yields an empty list instead of an
// error; the caller's UI distinguishes that state itself.
func (a *Adapter) ListModels(ctx context.Context, secret, endpoint string) ([]providers.ModelInfo, error) {
	if endpoint == "" {
		return nil, endpointError()
	}

	var catalog modelList
	url := baseURL(endpoint) + "/models"
	if err := a.http.DoJSON(ctx, "GET", url, nil, &catalog, headers(secret)); err != nil {
		if ce, ok := providers.AsClassified(err); ok && ce.Code == providers.CodePermissionDenied {
			slog.Debug("model listing forbidden, returning empty catalog",
				"provider", a.Kind(),
			)
			return []providers.ModelInfo{}, nil
		}
		return nil, err
	}

	models := make([]providers.ModelInfo, 0, len(catalog.Data))
	for _, entry := range catalog.Data {
		if !isChatModel(entry.ID) {
			continue
		}
		models = append(models, providers.ModelInfo{Name: entry.ID})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	return models, nil
}

// TestConnection fetches the catalog as the cheapest authorized request.
// Any failure converts to false.
func (a *Adapter) TestConnection(ctx context.Context, secret, endpoint, model string) bool {
	if endpoint == "" {
		return false
	}

	var catalog modelList
	url := baseURL(endpoint) + "/models"
	if err := a.http.DoJSON(ctx, "GET", url, nil, &catalog, headers(secret)); err != nil {
		slog.Debug("connection test failed",
			"provider", a.Kind(),
			"error", err,
		)
		return false
	}
	return true
}

// StreamChat issues the chat completion. With streaming enabled it reads
// the SSE stream, invoking onChunk with the cumulative text after every
// delta; otherwise it performs a single JSON exchange.
func (a *Adapter) StreamChat(ctx context.Context, req *providers.ChatRequest, onChunk providers.ChunkFunc) (string, error) {
	if req.Endpoint == "" {
		return "", endpointError()
	}

	if !req.Config.StreamEnabled {
		return a.complete(ctx, req, onChunk)
	}

	body, err := json.Marshal(buildRequest(req, true))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := baseURL(req.Endpoint) + "/chat/completions"
	hdrs := headers(req.Secret)
	hdrs["Accept"] = "text/event-stream"

	resp, err := a.http.Do(ctx, "POST", url, body, hdrs)
	if err != nil {
		return "", err
	}

	reader := newStreamReader(resp.Body)
	defer reader.Close()

	var text strings.Builder
	finishReason := ""

	for {
		event, err := reader.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return text.String(), providers.ClassifyErr(a.Kind(), err)
		}

		if event.delta != "" {
			text.WriteString(event.delta)
			if onChunk != nil {
				onChunk(text.String())
			}
		}
		if event.finishReason != "" {
			finishReason = event.finishReason
		}
	}

	return finalText(a.Kind(), text.String(), finishReason, onChunk)
}

// complete performs the non-streaming variant of the call.
func (a *Adapter) complete(ctx context.Context, req *providers.ChatRequest, onChunk providers.ChunkFunc) (string, error) {
	var resp chatResponse
	url := baseURL(req.Endpoint) + "/chat/completions"
	if err := a.http.DoJSON(ctx, "POST", url, buildRequest(req, false), &resp, headers(req.Secret)); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &providers.ClassifiedError{
			Provider: a.Kind(),
			Class:    providers.ClassFatal,
			Code:     providers.CodeUnknown,
			Message:  "no choices in response",
		}
	}

	choice := resp.Choices[0]
	text := choice.Message.Content
	if text != "" && onChunk != nil {
		onChunk(text)
	}

	return finalText(a.Kind(), text, choice.FinishReason, onChunk)
}

// CountTokens is unsupported: the OpenAI API exposes no counting endpoint.
func (a *Adapter) CountTokens(ctx context.Context, req *providers.ChatRequest) (int, error) {
	return providers.TokensUnsupported, nil
}

// Close releases pooled connections.
func (a *Adapter) Close() {
	a.http.Close()
}

// finalText applies the shared content-filter contract: a safety stop with
// no text synthesizes the bracketed marker and a rejection classification.
func finalText(kind providers.Kind, text, finishReason string, onChunk providers.ChunkFunc) (string, error) {
	if finishReason == finishReasonContentFilter && text == "" {
		if onChunk != nil {
			onChunk(providers.RejectionMarker)
		}
		return providers.RejectionMarker, providers.NewRejection(kind, "content filtered with no output")
	}
	return text, nil
}

// endpointError is returned when a call arrives without the required base
// address. Classified fatal so the engine deactivates the misconfigured
// credential instead of retrying it.
func endpointError() *providers.ClassifiedError {
	return &providers.ClassifiedError{
		Provider: providers.KindOpenAICompat,
		Class:    providers.ClassFatal,
		Code:     providers.CodeBadRequest,
		Message:  "endpoint is required for OpenAI-compatible credentials",
	}
}
