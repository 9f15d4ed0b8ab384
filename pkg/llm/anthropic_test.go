package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Anthropic-Version"); got != "2023-06-01" {
			t.Errorf("unexpected version header %q", got)
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be brief" {
			t.Errorf("system prompt = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "elevated heart rate while resting"}},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider(Config{APIKey: "k", APIURL: server.URL, Model: "m"})
	got, err := p.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "explain this alert"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "elevated heart rate while resting" {
		t.Fatalf("unexpected completion %q", got)
	}
}

func TestAnthropicCompleteRequiresModel(t *testing.T) {
	p := NewAnthropicProvider(Config{APIKey: "k"})
	p.model = ""
	if _, err := p.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty key should disable enrichment")
	}
	if !(Config{APIKey: "k"}).Enabled() {
		t.Fatal("key should enable enrichment")
	}
}
