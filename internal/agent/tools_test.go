package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlexandrLebegue/thesis-llm/internal/docgen"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

func scopedContext(uploads ...*models.Upload) context.Context {
	return WithUploads(context.Background(), uploads)
}

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	if got := UploadsFromContext(ctx); got != nil {
		t.Errorf("uploads on empty context = %v", got)
	}
	if got := ScratchDirFromContext(ctx); got != "" {
		t.Errorf("scratch dir on empty context = %q", got)
	}
	if _, ok := VisitorFromContext(ctx); ok {
		t.Error("visitor id found on empty context")
	}

	ctx = WithUploads(ctx, []*models.Upload{{ID: 7, FileName: "uploaded_a.pdf"}})
	ctx = WithScratchDir(ctx, "/tmp/scratch/7")
	ctx = WithVisitor(ctx, 7)

	uploads := UploadsFromContext(ctx)
	if len(uploads) != 1 || uploads[0].FileName != "uploaded_a.pdf" {
		t.Errorf("uploads = %+v", uploads)
	}
	if got := ScratchDirFromContext(ctx); got != "/tmp/scratch/7" {
		t.Errorf("scratch dir = %q", got)
	}
	if id, ok := VisitorFromContext(ctx); !ok || id != 7 {
		t.Errorf("visitor = %d, %v", id, ok)
	}
}

func TestWithUploadsCopies(t *testing.T) {
	original := &models.Upload{ID: 1, FileName: "uploaded_a.pdf"}
	ctx := WithUploads(context.Background(), []*models.Upload{original, nil})

	scoped := UploadsFromContext(ctx)
	if len(scoped) != 1 {
		t.Fatalf("scoped = %d uploads, want nil entries dropped", len(scoped))
	}
	scoped[0].FileName = "mutated.pdf"
	if original.FileName != "uploaded_a.pdf" {
		t.Error("mutation through scoped copy reached the original")
	}
}

func TestResolveUpload(t *testing.T) {
	ctx := scopedContext(
		&models.Upload{ID: 1, FileName: "uploaded_thesis.pdf"},
		&models.Upload{ID: 2, FileName: "uploaded_notes.md"},
	)

	cases := []struct {
		name   string
		wantID int64
	}{
		{"uploaded_thesis.pdf", 1},
		{"thesis.pdf", 1},
		{"/some/path/uploaded_notes.md", 2},
		{"notes.md", 2},
		{"  uploaded_thesis.pdf  ", 1},
	}
	for _, tc := range cases {
		upload, err := resolveUpload(ctx, tc.name)
		if err != nil {
			t.Errorf("resolveUpload(%q): %v", tc.name, err)
			continue
		}
		if upload.ID != tc.wantID {
			t.Errorf("resolveUpload(%q) = id %d, want %d", tc.name, upload.ID, tc.wantID)
		}
	}
}

func TestResolveUploadMissListsAvailable(t *testing.T) {
	ctx := scopedContext(&models.Upload{ID: 1, FileName: "uploaded_thesis.pdf"})
	_, err := resolveUpload(ctx, "other.pdf")
	if err == nil {
		t.Fatal("expected error for unknown file")
	}
	if !strings.Contains(err.Error(), "uploaded_thesis.pdf") {
		t.Errorf("error does not list available files: %v", err)
	}

	if _, err := resolveUpload(context.Background(), "thesis.pdf"); err == nil {
		t.Error("expected error when no uploads are scoped")
	}
	if _, err := resolveUpload(ctx, "  "); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestExcelGeneratorWritesToScratchDir(t *testing.T) {
	dir := t.TempDir()
	var recordedPath, recordedMime string
	tb := NewToolbox(nil, "", func(ctx context.Context, visitorID int64, path, mimeType string) error {
		recordedPath, recordedMime = path, mimeType
		return nil
	})

	ctx := WithScratchDir(context.Background(), dir)
	ctx = WithVisitor(ctx, 3)
	out, err := tb.runExcelGenerator(ctx, &excelGeneratorParams{
		FileName: "summary",
		Sheets:   []docgen.Sheet{{Name: "Data", Rows: [][]string{{"a", "b"}}}},
	})
	if err != nil {
		t.Fatalf("runExcelGenerator: %v", err)
	}
	if !strings.HasPrefix(out, "Excel file created: ") {
		t.Errorf("output = %q", out)
	}
	if recordedMime != models.MimeXLSX {
		t.Errorf("recorded mime = %q", recordedMime)
	}
	if filepath.Dir(recordedPath) != dir {
		t.Errorf("artifact written to %q, want %q", recordedPath, dir)
	}
	if _, err := os.Stat(recordedPath); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestExcelGeneratorRequiresScratchDir(t *testing.T) {
	tb := NewToolbox(nil, "", nil)
	_, err := tb.runExcelGenerator(context.Background(), &excelGeneratorParams{
		FileName: "summary",
		Sheets:   []docgen.Sheet{{Rows: [][]string{{"a"}}}},
	})
	if err == nil {
		t.Fatal("expected error without scratch dir")
	}
}

func TestWordGeneratorWritesDocument(t *testing.T) {
	dir := t.TempDir()
	tb := NewToolbox(nil, "", nil)

	ctx := WithScratchDir(context.Background(), dir)
	out, err := tb.runWordGenerator(ctx, &wordGeneratorParams{
		FileName: "report",
		Title:    "Findings",
		Blocks: []docgen.Block{
			{Type: "paragraph", Text: "First finding."},
			{Type: "bullets", Items: []string{"one", "two"}},
		},
	})
	if err != nil {
		t.Fatalf("runWordGenerator: %v", err)
	}
	name := strings.TrimPrefix(out, "Word file created: ")
	if name == out {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("document missing: %v", err)
	}
}

func TestToolboxExposesFullToolSet(t *testing.T) {
	tb := NewToolbox(nil, "", nil)
	tools := tb.Tools()
	if len(tools) < 3 {
		t.Fatalf("tools = %d, want at least pdf_query, excel_generator, word_generator", len(tools))
	}
	names := make(map[string]bool)
	for _, tl := range tools {
		info, err := tl.Info(context.Background())
		if err != nil {
			t.Fatalf("tool info: %v", err)
		}
		names[info.Name] = true
	}
	for _, want := range []string{"pdf_query", "excel_generator", "word_generator"} {
		if !names[want] {
			t.Errorf("tool %q missing from set %v", want, names)
		}
	}
}
