package ollama

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

func chatReq(endpoint string) *providers.ChatRequest {
	return &providers.ChatRequest{
		Secret:     "test-key",
		Endpoint:   endpoint,
		Model:      "llama3.1",
		NewMessage: "hello",
		Config:     providers.GenerationConfig{StreamEnabled: true},
	}
}

func TestStreamChatLines(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/api/chat", backendtest.Response{
		JSONLines: []string{
			`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	var chunks []string
	text, err := adapter.StreamChat(context.Background(), chatReq(backend.URL()),
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

func TestStreamChatContentFilter(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/api/chat", backendtest.Response{
		JSONLines: []string{
			`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"content_filter"}`,
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	text, err := adapter.StreamChat(context.Background(), chatReq(backend.URL()), nil)

	cerr, ok := providers.AsClassified(err)
	if !ok || cerr.Class != providers.ClassRejection {
		t.Fatalf("error = %v, want rejection", err)
	}
	if text != providers.RejectionMarker {
		t.Errorf("text = %q, want the rejection marker", text)
	}
}

func TestStreamChatStatusClassification(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/api/chat", backendtest.Response{
		StatusCode: 500,
		Body:       map[string]string{"error": "model load failed"},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	_, err := adapter.StreamChat(context.Background(), chatReq(backend.URL()), nil)
	cerr, ok := providers.AsClassified(err)
	if !ok || cerr.Class != providers.ClassTransient || cerr.Code != providers.CodeServerError {
		t.Errorf("error = %v, want transient server_error", err)
	}
}

func TestStreamChatRequiresEndpoint(t *testing.T) {
	adapter := newTestAdapter()
	defer adapter.Close()

	_, err := adapter.StreamChat(context.Background(), chatReq(""), nil)
	cerr, ok := providers.AsClassified(err)
	if !ok || cerr.Class != providers.ClassFatal || cerr.Code != providers.CodeBadRequest {
		t.Errorf("error = %v, want fatal bad_request", err)
	}
}

func TestListModelsFromTags(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/api/tags", backendtest.Response{
		Body: map[string]interface{}{
			"models": []map[string]string{
				{"name": "llama3.1:8b"},
				{"name": "qwen2.5:14b"},
			},
		},
	})

	adapter := newTestAdapter()
	defer adapter.Close()

	models, err := adapter.ListModels(context.Background(), "", backend.URL())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}

	got := make([]string, len(models))
	for i, m := range models {
		got[i] = m.Name
	}
	if want := []string{"llama3.1:8b", "qwen2.5:14b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("models = %v, want %v", got, want)
	}
}

func TestListModelsForbiddenIsEmpty(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Set("/api/tags", backendtest.Response{
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

func TestBuildRequestShape(t *testing.T) {
	req := &providers.ChatRequest{
		Model:             "llama3.1",
		SystemInstruction: "be terse",
		History: []providers.Message{
			{Role: providers.RoleUser, Content: "one"},
		},
		NewMessage: "two",
		Config: providers.GenerationConfig{
			Temperature:     0.5,
			TopK:            40,
			MaxOutputTokens: 128,
		},
	}

	out := buildRequest(req, true)

	want := []chatMessage{
		{Role: providers.RoleSystem, Content: "be terse"},
		{Role: providers.RoleUser, Content: "one"},
		{Role: providers.RoleUser, Content: "two"},
	}
	if !reflect.DeepEqual(out.Messages, want) {
		t.Errorf("messages = %+v, want %+v", out.Messages, want)
	}
	if out.Options == nil {
		t.Fatal("options not built")
	}
	if out.Options.Temperature != 0.5 || out.Options.TopK != 40 || out.Options.NumPredict != 128 {
		t.Errorf("options = %+v, want the configured sampling params", out.Options)
	}

	// No sampling params set: the option map is omitted entirely.
	bare := buildRequest(&providers.ChatRequest{Model: "llama3.1", NewMessage: "hi"}, false)
	if bare.Options != nil {
		t.Errorf("options = %+v, want nil when nothing is configured", bare.Options)
	}
}

func TestAuthHeaderOnlyWithSecret(t *testing.T) {
	if h := headers(""); len(h) != 0 {
		t.Errorf("headers(\"\") = %v, want no auth header", h)
	}
	if h := headers("tok"); h["Authorization"] != "Bearer tok" {
		t.Errorf("headers(tok) = %v, want bearer auth", h)
	}
}
