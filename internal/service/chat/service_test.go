package chat

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AlexandrLebegue/thesis-llm/internal/config"
	"github.com/AlexandrLebegue/thesis-llm/internal/docgen"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/scratch"
	"github.com/AlexandrLebegue/thesis-llm/internal/storage"
)

type stubRunner struct {
	answer string
	onRun  func(ctx context.Context, instruction string) (string, error)
	calls  []string
}

func (s *stubRunner) Run(ctx context.Context, instruction string, maxSteps int) (string, error) {
	s.calls = append(s.calls, instruction)
	if s.onRun != nil {
		return s.onRun(ctx, instruction)
	}
	return s.answer, nil
}

func newTestService(t *testing.T) (*Service, *scratch.Store, *stubRunner, int64) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatal(err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO visitors (created_at, expires_at) VALUES (?, ?)`, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("insert visitor: %v", err)
	}
	visitorID, _ := res.LastInsertId()

	store := scratch.NewStore(db, t.TempDir(), time.Hour)
	if err := store.Wipe(); err != nil {
		t.Fatal(err)
	}
	runner := &stubRunner{answer: "stub answer"}
	svc := NewService(db, store, runner, config.DefaultPrompts())
	return svc, store, runner, visitorID
}

func TestEnsureGreetingIsIdempotent(t *testing.T) {
	svc, _, _, visitorID := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureGreeting(ctx, visitorID)
	if err != nil {
		t.Fatalf("EnsureGreeting: %v", err)
	}
	if first.Role != models.RoleAssistant {
		t.Errorf("role = %q", first.Role)
	}
	second, err := svc.EnsureGreeting(ctx, visitorID)
	if err != nil {
		t.Fatalf("EnsureGreeting again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("greeting duplicated: %d != %d", second.ID, first.ID)
	}

	history, _ := svc.History(ctx, visitorID)
	if len(history) != 1 {
		t.Errorf("history = %d messages, want 1", len(history))
	}
}

func TestClearHistoryLeavesExactlyOneGreeting(t *testing.T) {
	svc, _, _, visitorID := newTestService(t)
	ctx := context.Background()

	svc.EnsureGreeting(ctx, visitorID)
	svc.insertMessage(ctx, visitorID, models.RoleUser, "question one", nil)
	svc.insertMessage(ctx, visitorID, models.RoleAssistant, "answer one", nil)
	svc.insertMessage(ctx, visitorID, models.RoleUser, "question two", []int64{1, 2})

	greeting, err := svc.ClearHistory(ctx, visitorID)
	if err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	history, err := svc.History(ctx, visitorID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d messages, want exactly 1", len(history))
	}
	if history[0].Role != models.RoleAssistant || history[0].ID != greeting.ID {
		t.Errorf("surviving message = %+v", history[0])
	}
	if history[0].Content != config.DefaultPrompts().Greeting {
		t.Errorf("content = %q, want greeting", history[0].Content)
	}
}

func TestSaveUserMessageRequiresContentOrFiles(t *testing.T) {
	svc, _, _, visitorID := newTestService(t)
	if _, _, err := svc.SaveUserMessage(context.Background(), visitorID, "", nil); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestSaveUserMessageRoundTripsFileIDs(t *testing.T) {
	svc, store, _, visitorID := newTestService(t)
	ctx := context.Background()

	up, err := store.SaveUpload(ctx, visitorID, "doc.pdf", "application/pdf", strings.NewReader("%PDF"), 4)
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	msg, uploads, err := svc.SaveUserMessage(ctx, visitorID, "analyze", []int64{up.ID})
	if err != nil {
		t.Fatalf("SaveUserMessage: %v", err)
	}
	if len(uploads) != 1 || uploads[0].ID != up.ID {
		t.Fatalf("uploads = %+v", uploads)
	}

	history, _ := svc.History(ctx, visitorID)
	last := history[len(history)-1]
	if last.ID != msg.ID || len(last.FileIDs) != 1 || last.FileIDs[0] != up.ID {
		t.Errorf("stored message = %+v", last)
	}
}

func TestExecuteTurnReportsNewArtifacts(t *testing.T) {
	svc, store, runner, visitorID := newTestService(t)
	ctx := context.Background()
	dir := store.VisitorDir(visitorID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// pre-existing artifact must not be reported again
	os.WriteFile(filepath.Join(dir, "old.xlsx"), []byte("x"), 0o644)

	runner.onRun = func(ctx context.Context, instruction string) (string, error) {
		os.WriteFile(filepath.Join(dir, "fresh.docx"), []byte("y"), 0o644)
		return "created a document", nil
	}

	reply, artifacts, err := svc.ExecuteTurn(ctx, visitorID, "write a summary", nil, 0)
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if reply.Role != models.RoleAssistant || reply.Content != "created a document" {
		t.Errorf("reply = %+v", reply)
	}
	if len(artifacts) != 1 || artifacts[0].FileName != "fresh.docx" {
		t.Errorf("artifacts = %+v", artifacts)
	}
}

func TestExecuteTurnGeneratesWithoutUploads(t *testing.T) {
	svc, store, runner, visitorID := newTestService(t)
	ctx := context.Background()

	// no upload ever happened, so the visitor's scratch subdir does not
	// exist when the generator runs
	runner.onRun = func(ctx context.Context, instruction string) (string, error) {
		_, err := docgen.WriteExcel(store.VisitorDir(visitorID), "summary",
			[]docgen.Sheet{{Name: "Data", Rows: [][]string{{"x"}}}})
		if err != nil {
			return "", err
		}
		return "spreadsheet ready", nil
	}

	reply, artifacts, err := svc.ExecuteTurn(ctx, visitorID, "make me a spreadsheet", nil, 0)
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if reply.Content != "spreadsheet ready" {
		t.Errorf("reply = %q", reply.Content)
	}
	if len(artifacts) != 1 || !strings.HasSuffix(artifacts[0].FileName, ".xlsx") {
		t.Errorf("artifacts = %+v", artifacts)
	}
}

func TestExecuteTurnFansOutPerFile(t *testing.T) {
	svc, store, runner, visitorID := newTestService(t)
	ctx := context.Background()

	a, _ := store.SaveUpload(ctx, visitorID, "a.pdf", "application/pdf", strings.NewReader("%PDF"), 4)
	b, _ := store.SaveUpload(ctx, visitorID, "b.pdf", "application/pdf", strings.NewReader("%PDF"), 4)

	reply, _, err := svc.ExecuteTurn(ctx, visitorID, "summarize the abstract",
		[]*models.Upload{a, b}, 0)
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("agent calls = %d, want 2", len(runner.calls))
	}
	if !strings.Contains(reply.Content, "---") {
		t.Errorf("fan-out reply missing separator: %q", reply.Content)
	}
	for _, name := range []string{a.FileName, b.FileName} {
		if !strings.Contains(reply.Content, "## "+name) {
			t.Errorf("reply missing header for %s", name)
		}
	}
}
