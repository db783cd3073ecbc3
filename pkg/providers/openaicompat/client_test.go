package openaicompat

import (
	"context"
	"reflect"
	"testing"

	"nimbus-chat/relay/internal/backendtest"
	"nimbus-chat/relay/pkg/providers"
)

func newTestAdapter() *Adapter {
	return New(providers.HTTPClientConfig{})
}

func chatReq(endpoint string, stream bool) *providers.ChatRequest {
	return &providers.ChatRequest{
		Secret:     "test-key",
		Endpoint:   endpoint,
		Model:      "gpt-4o",
		NewMessage: "hello",
		Config:     providers.GenerationConfig{StreamEnabled: stream},
	}
}

func TestStreamChatSSE(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/chat/completions", backendtest.Response{
		SSEChunks: []string{
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	var chunks []string
	text, err := adapter.StreamChat(context.Background(), chatReq(backend.URL(), true),
		func(cumulative string) { chunks = append(chunks, cumulative) })
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}

	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if want := []string{"Hel", "Hello"}; !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %v, want cumulative %v", chunks, want)
	}
}

func TestStreamChatNonStreaming(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/chat/completions", backendtest.Response{
		Body: map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}, "finish_reason": "stop"},
			},
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	var chunks []string
	text, err := adapter.StreamChat(context.Background(), chatReq(backend.URL(), false),
		func(cumulative string) { chunks = append(chunks, cumulative) })
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if text != "hi there" {
		t.Errorf("text = %q, want %q", text, "hi there")
	}
	if want := []string{"hi there"}; !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %v, want %v", chunks, want)
	}
}

func TestStreamChatContentFilter(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/chat/completions", backendtest.Response{
		SSEChunks: []string{
			`{"choices":[{"delta":{},"finish_reason":"content_filter"}]}`,
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	text, err := adapter.StreamChat(context.Background(), chatReq(backend.URL(), true), nil)

	cerr, ok := providers.AsClassified(err)
	if !ok || cerr.Class != providers.ClassRejection {
		t.Fatalf("error = %v, want rejection", err)
	}
	if text != providers.RejectionMarker {
		t.Errorf("text = %q, want the rejection marker", text)
	}
}

func TestStreamChatStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantClass providers.Class
		wantCode  providers.Code
	}{
		{401, providers.ClassFatal, providers.CodeInvalidCredential},
		{429, providers.ClassTransient, providers.CodeQuotaExceeded},
		{500, providers.ClassTransient, providers.CodeServerError},
	}

	for _, tt := range tests {
		backend := backendtest.New()
		backend.Set("/chat/completions", backendtest.Response{
			StatusCode: tt.status,
			Body:       map[string]string{"error": "boom"},
		})

		adapter := newTestAdapter()
		_, err := adapter.StreamChat(context.Background(), chatReq(backend.URL(), true), nil)

		cerr, ok := providers.AsClassified(err)
		if !ok {
			t.Errorf("status %d: error = %v, want *ClassifiedError", tt.status, err)
		} else if cerr.Class != tt.wantClass || cerr.Code != tt.wantCode {
			t.Errorf("status %d: got (%v, %q), want (%v, %q)",
				tt.status, cerr.Class, cerr.Code, tt.wantClass, tt.wantCode)
		}

		adapter.Close()
		backend.Close()
	}
}

func TestStreamChatRequiresEndpoint(t *testing.T) {
	adapter := newTestAdapter()
	defer adapter.Close()

	_, err := adapter.StreamChat(context.Background(), chatReq("", true), nil)
	cerr, ok := providers.AsClassified(err)
	if !ok || cerr.Class != providers.ClassFatal || cerr.Code != providers.CodeBadRequest {
		t.Errorf("error = %v, want fatal bad_request", err)
	}
}

func TestListModelsFiltersAndSorts(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/models", backendtest.Response{
		Body: map[string]interface{}{
			"data": []map[string]string{
				{"id": "gpt-4o-mini"},
				{"id": "text-embedding-3-small"},
				{"id": "whisper-1"},
				{"id": "gpt-4o"},
				{"id": "dall-e-3"},
			},
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	models, err := adapter.ListModels(context.Background(), "test-key", backend.URL())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}

	got := make([]string, len(models))
	for i, m := range models {
		got[i] = m.Name
	}
	if want := []string{"gpt-4o", "gpt-4o-mini"}; !reflect.DeepEqual(got, want) {
		t.Errorf("models = %v, want %v", got, want)
	}
}

func TestListModelsForbiddenIsEmpty(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/models", backendtest.Response{
		StatusCode: 403,
		Body:       map[string]string{"error": "forbidden"},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	models, err := adapter.ListModels(context.Background(), "test-key", backend.URL())
	if err != nil {
		t.Fatalf("ListModels on 403 should not fail, got %v", err)
	}
	if len(models) != 0 {
		t.Errorf("models = %v, want empty", models)
	}
}

func TestConnectionCheck(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/models", backendtest.Response{Body: map[string]interface{}{"data": []string{}}})

	adapter := newTestAdapter()
	defer adapter.Close()

	if !adapter.TestConnection(context.Background(), "test-key", backend.URL(), "") {
		t.Error("TestConnection = false against a healthy backend")
	}

	backend.Set("/models", backendtest.Response{StatusCode: 401})
	if adapter.TestConnection(context.Background(), "bad-key", backend.URL(), "") {
		t.Error("TestConnection = true against a 401")
	}
	if adapter.TestConnection(context.Background(), "test-key", "", "") {
		t.Error("TestConnection = true with no endpoint")
	}
}

func TestCountTokensUnsupported(t *testing.T) {
	adapter := newTestAdapter()
	defer adapter.Close()

	count, err := adapter.CountTokens(context.Background(), chatReq("http://unused", false))
	if err != nil {
		t.Fatalf("CountTokens failed: %v", err)
	}
	if count != providers.TokensUnsupported {
		t.Errorf("count = %d, want TokensUnsupported", count)
	}
}

func TestBuildRequest(t *testing.T) {
	req := &providers.ChatRequest{
		Model:             "gpt-4o",
		SystemInstruction: "be terse",
		History: []providers.Message{
			{Role: providers.RoleUser, Content: "one"},
			{Role: providers.RoleAssistant, Content: "two"},
		},
		NewMessage: "three",
		Config: providers.GenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 256,
		},
	}

	out := buildRequest(req, true)

	want := []chatMessage{
		{Role: providers.RoleSystem, Content: "be terse"},
		{Role: providers.RoleUser, Content: "one"},
		{Role: providers.RoleAssistant, Content: "two"},
		{Role: providers.RoleUser, Content: "three"},
	}
	if !reflect.DeepEqual(out.Messages, want) {
		t.Errorf("messages = %+v, want %+v", out.Messages, want)
	}
	if !out.Stream {
		t.Error("stream flag not set")
	}
	if out.Temperature != 0.7 || out.MaxTokens != 256 {
		t.Errorf("sampling params not carried: %+v", out)
	}
}

func TestIsChatModel(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"gpt-4o", true},
		{"llama-3.1-70b-instruct", true},
		{"text-embedding-3-large", false},
		{"whisper-1", false},
		{"TTS-1-hd", false},
		{"omni-moderation-latest", false},
	}

	for _, tt := range tests {
		if got := isChatModel(tt.id); got != tt.want {
			t.Errorf("isChatModel(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
