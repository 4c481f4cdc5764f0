// Package pdfquery answers natural-language questions about a PDF by
// sending its full extracted text plus the question to a hosted
// chat-completion model.
package pdfquery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexandrLebegue/thesis-llm/internal/llm"
	"github.com/AlexandrLebegue/thesis-llm/internal/pdftext"
)

// User-facing failure strings. Every failure mode of a query maps to one of
// these; callers (and the agent) receive them as the tool output, never as
// a raised error.
const (
	MsgMissingKey = "Error: API key is required. Configure it in the providers section or set the provider's API key environment variable."
	MsgEmptyText  = "Error: no text could be extracted from the PDF file."
	MsgNoResponse = "Error: no response received from AI service."
)

// Extractor yields the full text of a PDF file.
type Extractor func(path string) (string, error)

// Completer performs one chat-completion call.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Tool binds extraction and completion into the PDF query operation.
type Tool struct {
	extract     Extractor
	completer   Completer
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// Options configures a Tool.
type Options struct {
	Extractor   Extractor
	Completer   Completer
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// New builds the query tool. The extractor defaults to pdftext.Extract.
func New(opts Options) *Tool {
	if opts.Extractor == nil {
		opts.Extractor = pdftext.Extract
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.1
	}
	return &Tool{
		extract:     opts.Extractor,
		completer:   opts.Completer,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Query answers the question from the document at path. The returned string
// is always safe to show a user: failures come back as the documented
// error strings, never as a Go error.
func (t *Tool) Query(ctx context.Context, path, question, preamble string) string {
	if t.apiKey == "" {
		return MsgMissingKey
	}
	// report only the file name; the answer goes back to the model and
	// must not leak scratch directory paths
	if _, err := os.Stat(path); err != nil {
		return "Error: PDF file not found: " + filepath.Base(path)
	}

	text, err := t.extract(path)
	if err != nil {
		return "Error: failed to extract text from PDF: " + err.Error()
	}
	if strings.TrimSpace(text) == "" {
		return MsgEmptyText
	}

	prompt := buildPrompt(preamble, text, question)
	resp, err := t.completer.Chat(ctx, llm.ChatRequest{
		Model:       t.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	})
	if err != nil {
		return "Error: API request failed: " + err.Error()
	}
	if resp == nil || resp.Content == "" {
		return MsgNoResponse
	}
	return resp.Content
}

// buildPrompt concatenates the analyst preamble, the whole document text,
// and the user question. Large documents are sent whole; there is no
// length budgeting.
func buildPrompt(preamble, text, question string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString(text)
	b.WriteString("\n\nUSER QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nPlease provide a comprehensive answer based on the document content above.")
	return b.String()
}
