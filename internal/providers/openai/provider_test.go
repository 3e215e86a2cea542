package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/providers"
)

func newTestProvider(t *testing.T, stream bool, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &appconfig.Config{TimeoutSeconds: 5, Stream: &stream}
	provider, err := New(cfg, appconfig.Host{Name: "cloud", URL: server.URL + "/v1", APIKey: "sk-test"}, "test-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return provider
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(&appconfig.Config{}, appconfig.Host{Name: "cloud"}, "m"); err == nil {
		t.Fatal("expected error without api key")
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	if _, err := New(&appconfig.Config{}, appconfig.Host{Name: "cloud"}, "m"); err != nil {
		t.Fatalf("expected env api key to be used, got %v", err)
	}
}

func TestEmbedReordersByIndex(t *testing.T) {
	var captured map[string]any
	provider := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"test-model","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	vectors, err := provider.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(vectors, [][]float32{{1, 0}, {0, 1}}) {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("unexpected model: %v", captured["model"])
	}
}

func TestGenerateStreaming(t *testing.T) {
	provider := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Alice ", "lives in Paris."} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"test-model\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"test-model\",\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":4,\"total_tokens\":13}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []string
	result, err := provider.Generate(context.Background(), providers.GenerateRequest{System: "sys", Prompt: "q"}, providers.StreamCallbacks{
		OnChunk: func(s string) error {
			chunks = append(chunks, s)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "Alice lives in Paris." {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
	if result.PromptEvalCount != 9 || result.EvalCount != 4 {
		t.Fatalf("unexpected usage: %+v", result)
	}
}

func TestGenerateWithoutStreaming(t *testing.T) {
	var captured map[string]any
	provider := newTestProvider(t, false, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	})

	result, err := provider.Generate(context.Background(), providers.GenerateRequest{System: "sys", Prompt: "q"}, providers.StreamCallbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "Paris." || result.EvalCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	messages, ok := captured["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured["messages"])
	}
}

func TestEnsureModelReadyNotFound(t *testing.T) {
	provider := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"The model does not exist","type":"invalid_request_error"}}`))
	})

	err := provider.EnsureModelReady(context.Background(), "missing-model")
	if !errors.Is(err, providers.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing-model") || strings.Contains(err.Error(), "test-model") {
		t.Fatalf("expected the error to name the checked model only, got %v", err)
	}
}
