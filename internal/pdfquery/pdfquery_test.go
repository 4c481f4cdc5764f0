package pdfquery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlexandrLebegue/thesis-llm/internal/llm"
)

type stubCompleter struct {
	resp    *llm.ChatResponse
	err     error
	lastReq llm.ChatRequest
}

func (s *stubCompleter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func existingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestQueryMissingAPIKey(t *testing.T) {
	tool := New(Options{Completer: &stubCompleter{}})
	got := tool.Query(context.Background(), "whatever.pdf", "q", "")
	if got != MsgMissingKey {
		t.Errorf("got %q, want missing-key message", got)
	}
}

func TestQueryMissingFile(t *testing.T) {
	tool := New(Options{APIKey: "k", Completer: &stubCompleter{}})
	got := tool.Query(context.Background(), "/no/such/uploaded_file.pdf", "q", "")
	if got != "Error: PDF file not found: uploaded_file.pdf" {
		t.Errorf("got %q, want file-not-found message with bare file name", got)
	}
	if strings.Contains(got, "/no/such") {
		t.Errorf("message leaks the directory: %q", got)
	}
}

func TestQueryEmptyExtractedText(t *testing.T) {
	tool := New(Options{
		APIKey:    "k",
		Completer: &stubCompleter{},
		Extractor: func(string) (string, error) { return "  \n\t ", nil },
	})
	got := tool.Query(context.Background(), existingFile(t), "q", "")
	if got != MsgEmptyText {
		t.Errorf("got %q, want empty-text message", got)
	}
}

func TestQueryExtractionFailure(t *testing.T) {
	tool := New(Options{
		APIKey:    "k",
		Completer: &stubCompleter{},
		Extractor: func(string) (string, error) { return "", errors.New("corrupt xref") },
	})
	got := tool.Query(context.Background(), existingFile(t), "q", "")
	if !strings.HasPrefix(got, "Error: failed to extract text from PDF: ") {
		t.Errorf("got %q", got)
	}
}

func TestQueryAPIFailure(t *testing.T) {
	tool := New(Options{
		APIKey:    "k",
		Completer: &stubCompleter{err: errors.New("boom")},
		Extractor: func(string) (string, error) { return "content", nil },
	})
	got := tool.Query(context.Background(), existingFile(t), "q", "")
	if !strings.HasPrefix(got, "Error: API request failed: ") {
		t.Errorf("got %q", got)
	}
}

func TestQueryEmptyResponse(t *testing.T) {
	tool := New(Options{
		APIKey:    "k",
		Completer: &stubCompleter{resp: &llm.ChatResponse{Content: ""}},
		Extractor: func(string) (string, error) { return "content", nil },
	})
	got := tool.Query(context.Background(), existingFile(t), "q", "")
	if got != MsgNoResponse {
		t.Errorf("got %q, want no-response message", got)
	}
}

func TestQuerySuccessBuildsPrompt(t *testing.T) {
	completer := &stubCompleter{resp: &llm.ChatResponse{Content: "the answer"}}
	tool := New(Options{
		APIKey:      "k",
		Model:       "m1",
		MaxTokens:   123,
		Completer:   completer,
		Extractor:   func(string) (string, error) { return "PAGE ONE TEXT", nil },
		Temperature: 0.1,
	})
	got := tool.Query(context.Background(), existingFile(t), "what is it about?", "PREAMBLE: ")
	if got != "the answer" {
		t.Errorf("got %q, want completion content", got)
	}

	req := completer.lastReq
	if req.Model != "m1" || req.Temperature != 0.1 || req.MaxTokens != 123 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"PREAMBLE: ", "PAGE ONE TEXT", "USER QUESTION: what is it about?", "comprehensive answer"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
