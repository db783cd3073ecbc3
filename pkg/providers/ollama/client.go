// Package ollama implements the provider adapter for a self-hosted Ollama
// server. Ollama streams line-delimited JSON objects rather than SSE frames;
// the adapter decodes them incrementally and reports cumulative text through
// the shared streaming contract.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"nimbus-chat/relay/pkg/providers"
)

// Adapter is the self-hosted provider adapter. It is stateless apart from
// the pooled HTTP transport and is safe for concurrent use.
type Adapter struct {
	http *providers.HTTPClient
}

// New creates the self-hosted adapter.
func New(cfg providers.HTTPClientConfig) *Adapter {
	return &Adapter{
		http: providers.NewHTTPClient(providers.KindOllama, cfg),
	}
}

// Kind returns the provider kind served by this adapter.
func (a *Adapter) Kind() providers.Kind {
	return providers.KindOllama
}

// chatRequest is Ollama's native /api/chat request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

// chatMessage is a message in Ollama format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatOptions carries sampling parameters in Ollama's option map shape.
type chatOptions struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
	NumPredict       int     `json:"num_predict,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
}

// chatLine is one line-delimited JSON object from the stream.
type chatLine struct {
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
}

// tagsResponse is the /api/tags model catalog.
type tagsResponse struct {
	Models []tagModel `json:"models"`
}

// tagModel is one installed model.
type tagModel struct {
	Name string `json:"name"`
}

// headers builds the per-call auth headers. Self-hosted servers are often
// unauthenticated; the Authorization header is only sent when a secret is
// configured (reverse proxies in front of Ollama commonly require one).
func headers(secret string) map[string]string {
	h := map[string]string{}
	if secret != "" {
		h["Authorization"] = "Bearer " + secret
	}
	return h
}

// baseURL normalizes the configured endpoint.
func baseURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

// buildRequest transforms an adapter-level chat request to Ollama format.
func buildRequest(req *providers.ChatRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Model:  req.Model,
		Stream: stream,
	}

	cfg := req.Config
	if cfg.Temperature != 0 || cfg.TopP != 0 || cfg.TopK != 0 || cfg.MaxOutputTokens != 0 || cfg.FrequencyPenalty != 0 {
		out.Options = &chatOptions{
			Temperature:      cfg.Temperature,
			TopP:             cfg.TopP,
			TopK:             cfg.TopK,
			NumPredict:       cfg.MaxOutputTokens,
			FrequencyPenalty: cfg.FrequencyPenalty,
		}
	}

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

// ListModels fetches the installed-model catalog from /api/tags. Ollama
// only installs chat-capable models, so no family filtering is needed.
// A 403 (from a fronting proxy) yields an empty list instead of an error.
func (a *Adapter) ListModels(ctx context.Context, secret, endpoint string) ([]providers.ModelInfo, error) {
	if endpoint == "" {
		return nil, endpointError()
	}

	var tags tagsResponse
	url := baseURL(endpoint) + "/api/tags"
	if err := a.http.DoJSON(ctx, "GET", url, nil, &tags, headers(secret)); err != nil {
		if ce, ok := providers.AsClassified(err); ok && ce.Code == providers.CodePermissionDenied {
			slog.Debug("model listing forbidden, returning empty catalog",
				"provider", a.Kind(),
			)
			return []providers.ModelInfo{}, nil
		}
		return nil, err
	}

	models := make([]providers.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, providers.ModelInfo{Name: m.Name})
	}

	return models, nil
}

// TestConnection fetches the catalog as the cheapest request that proves
// the server is reachable and authorized. Any failure converts to false.
func (a *Adapter) TestConnection(ctx context.Context, secret, endpoint, model string) bool {
	if endpoint == "" {
		return false
	}

	var tags tagsResponse
	url := baseURL(endpoint) + "/api/tags"
	if err := a.http.DoJSON(ctx, "GET", url, nil, &tags, headers(secret)); err != nil {
		slog.Debug("connection test failed",
			"provider", a.Kind(),
			"error", err,
		)
		return false
	}
	return true
}

// StreamChat issues the generation request against /api/chat, decoding
// line-delimited JSON objects and invoking onChunk with cumulative text.
func (a *Adapter) StreamChat(ctx context.Context, req *providers.ChatRequest, onChunk providers.ChunkFunc) (string, error) {
	if req.Endpoint == "" {
		return "", endpointError()
	}

	body, err := json.Marshal(buildRequest(req, req.Config.StreamEnabled))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := baseURL(req.Endpoint) + "/api/chat"
	resp, err := a.http.Do(ctx, "POST", url, body, headers(req.Secret))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	doneReason := ""

	for scanner.Scan() {
		// Cancellation is checked at every line boundary.
		select {
		case <-ctx.Done():
			return text.String(), providers.ClassifyErr(a.Kind(), ctx.Err())
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			return text.String(), &providers.ClassifiedError{
				Provider: a.Kind(),
				Class:    providers.ClassFatal,
				Code:     providers.CodeUnknown,
				Message:  "failed to decode stream line",
				Cause:    err,
			}
		}

		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if onChunk != nil {
				onChunk(text.String())
			}
		}
		if chunk.Done {
			doneReason = chunk.DoneReason
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return text.String(), providers.ClassifyErr(a.Kind(), err)
	}

	// Safety stop with no output synthesizes the shared rejection marker.
	if doneReason == "content_filter" && text.Len() == 0 {
		if onChunk != nil {
			onChunk(providers.RejectionMarker)
		}
		return providers.RejectionMarker, providers.NewRejection(a.Kind(), "content filtered with no output")
	}

	return text.String(), nil
}

// CountTokens is unsupported: Ollama exposes no counting endpoint.
func (a *Adapter) CountTokens(ctx context.Context, req *providers.ChatRequest) (int, error) {
	return providers.TokensUnsupported, nil
}

// Close releases pooled connections.
func (a *Adapter) Close() {
	a.http.Close()
}

func endpointError() *providers.ClassifiedError {
	return &providers.ClassifiedError{
		Provider: providers.KindOllama,
		Class:    providers.ClassFatal,
		Code:     providers.CodeBadRequest,
		Message:  "endpoint is required for self-hosted credentials",
	}
}
