// Package chat persists conversation history and orchestrates agent turns.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AlexandrLebegue/thesis-llm/internal/agent"
	"github.com/AlexandrLebegue/thesis-llm/internal/config"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/scratch"
)

// Runner executes one agent invocation. Satisfied by *agent.Service.
type Runner interface {
	Run(ctx context.Context, instruction string, maxSteps int) (string, error)
}

// Service owns message rows and turn execution for all visitors.
type Service struct {
	db      *sql.DB
	store   *scratch.Store
	runner  Runner
	prompts config.Prompts
}

// NewService wires history storage, the scratch store, and the agent runner.
func NewService(db *sql.DB, store *scratch.Store, runner Runner, prompts config.Prompts) *Service {
	return &Service{db: db, store: store, runner: runner, prompts: prompts}
}

// EnsureGreeting inserts the assistant greeting if the visitor has no
// messages yet and returns the visitor's first message.
func (s *Service) EnsureGreeting(ctx context.Context, visitorID int64) (*models.Message, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE visitor_id = ?`, visitorID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if count > 0 {
		history, err := s.History(ctx, visitorID)
		if err != nil {
			return nil, err
		}
		return history[0], nil
	}
	return s.insertMessage(ctx, visitorID, models.RoleAssistant, s.prompts.Greeting, nil)
}

// History returns the visitor's messages in insertion order.
func (s *Service) History(ctx context.Context, visitorID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, visitor_id, role, content, file_ids, created_at
		 FROM messages WHERE visitor_id = ? ORDER BY id ASC`, visitorID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var fileIDs sql.NullString
		if err := rows.Scan(&m.ID, &m.VisitorID, &m.Role, &m.Content, &fileIDs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if fileIDs.Valid && fileIDs.String != "" {
			if err := json.Unmarshal([]byte(fileIDs.String), &m.FileIDs); err != nil {
				return nil, fmt.Errorf("decode file ids: %w", err)
			}
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// ClearHistory deletes every message and re-inserts the greeting. The
// resulting history is exactly one assistant greeting message.
func (s *Service) ClearHistory(ctx context.Context, visitorID int64) (*models.Message, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE visitor_id = ?`, visitorID,
	); err != nil {
		return nil, fmt.Errorf("clear history: %w", err)
	}
	return s.insertMessage(ctx, visitorID, models.RoleAssistant, s.prompts.Greeting, nil)
}

// SaveUserMessage validates the attached uploads and persists the user side
// of a turn. Returns the stored message plus the resolved uploads for the
// subsequent agent run.
func (s *Service) SaveUserMessage(ctx context.Context, visitorID int64, content string, fileIDs []int64) (*models.Message, []*models.Upload, error) {
	if content == "" && len(fileIDs) == 0 {
		return nil, nil, errors.New("message content or attached files required")
	}
	uploads, err := s.store.GetUploadsByIDs(ctx, visitorID, fileIDs)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.insertMessage(ctx, visitorID, models.RoleUser, content, fileIDs)
	if err != nil {
		return nil, nil, err
	}
	return msg, uploads, nil
}

// ExecuteTurn runs the agent for one persisted user message and stores the
// assistant reply. New files appearing in the visitor's scratch directory
// during the turn are reported as artifacts of the turn.
func (s *Service) ExecuteTurn(ctx context.Context, visitorID int64, content string, uploads []*models.Upload, maxSteps int) (*models.Message, []models.Artifact, error) {
	before, err := s.store.ListArtifacts(visitorID)
	if err != nil {
		return nil, nil, err
	}

	runCtx := agent.WithUploads(ctx, uploads)
	runCtx = agent.WithScratchDir(runCtx, s.store.VisitorDir(visitorID))
	runCtx = agent.WithVisitor(runCtx, visitorID)

	runs := planRuns(s.prompts, content, uploads)
	answers := make([]string, 0, len(runs))
	for _, run := range runs {
		answer, err := s.runner.Run(runCtx, run.instruction, maxSteps)
		if err != nil {
			return nil, nil, fmt.Errorf("agent turn: %w", err)
		}
		answers = append(answers, answer)
	}

	reply, err := s.insertMessage(ctx, visitorID, models.RoleAssistant, joinAnswers(runs, answers), nil)
	if err != nil {
		return nil, nil, err
	}

	after, err := s.store.ListArtifacts(visitorID)
	if err != nil {
		return reply, nil, nil
	}
	return reply, diffArtifacts(before, after), nil
}

func (s *Service) insertMessage(ctx context.Context, visitorID int64, role models.Role, content string, fileIDs []int64) (*models.Message, error) {
	var encoded string
	if len(fileIDs) > 0 {
		raw, err := json.Marshal(fileIDs)
		if err != nil {
			return nil, fmt.Errorf("encode file ids: %w", err)
		}
		encoded = string(raw)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (visitor_id, role, content, file_ids, created_at) VALUES (?, ?, ?, ?, ?)`,
		visitorID, string(role), content, encoded, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{
		ID:        id,
		VisitorID: visitorID,
		Role:      role,
		Content:   content,
		FileIDs:   fileIDs,
		CreatedAt: now,
	}, nil
}

// diffArtifacts returns the entries of after whose file names are absent
// from before.
func diffArtifacts(before, after []models.Artifact) []models.Artifact {
	seen := make(map[string]struct{}, len(before))
	for _, a := range before {
		seen[a.FileName] = struct{}{}
	}
	var fresh []models.Artifact
	for _, a := range after {
		if _, ok := seen[a.FileName]; !ok {
			fresh = append(fresh, a)
		}
	}
	return fresh
}
