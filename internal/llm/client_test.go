package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatReturnsFirstChoiceVerbatim(t *testing.T) {
	const answer = "  The answer,\nwith whitespace preserved.  "
	var gotAuth string
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "m1",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": answer}, "finish_reason": "stop"},
				{"message": map[string]string{"content": "second choice, ignored"}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-x", Model: "m1"})
	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != answer {
		t.Errorf("content = %q, want first choice verbatim", resp.Content)
	}
	if resp.TotalTokens != 42 {
		t.Errorf("total tokens = %d, want 42", resp.TotalTokens)
	}
	if gotAuth != "Bearer sk-x" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Model != "m1" {
		t.Errorf("request model = %q", gotBody.Model)
	}
	if gotBody.Temperature != 0.1 {
		t.Errorf("request temperature = %v", gotBody.Temperature)
	}
}

func TestChatNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "chat completion API error 402") {
		t.Errorf("error = %v", err)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("error = %v, want no choices", err)
	}
}

func TestChatMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "decoding chat response") {
		t.Errorf("error = %v, want decode failure", err)
	}
}

func TestChatUsesConfiguredModelWhenRequestOmitsIt(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatCompletionRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "fallback-model"})
	if _, err := client.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotModel != "fallback-model" {
		t.Errorf("model = %q, want fallback-model", gotModel)
	}
}
