package worker

import (
	"context"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

// queueLen bounds how many turns may wait per visitor before the manager
// answers busy.
const queueLen = 2

// TurnRequest describes one chat turn to run on a visitor's worker.
type TurnRequest struct {
	Context   context.Context
	VisitorID int64
	Content   string
	FileIDs   []int64
	MaxSteps  int
}

// TurnOutcome is the terminal result of a submitted turn.
type TurnOutcome struct {
	Reply     *models.Message
	Artifacts []models.Artifact
	Err       error
}

// TurnHandle lets the caller observe a submitted turn: Ack fires once the
// user message is persisted, Result exactly once when the turn finishes.
type TurnHandle struct {
	Ack    <-chan *models.Message
	Result <-chan TurnOutcome
}

type turnTask struct {
	req      TurnRequest
	ackCh    chan *models.Message
	resultCh chan TurnOutcome
}

// visitorState is the queue end of one visitor's worker goroutine. closed
// is set by the worker on exit, guarded by the manager's mutex; a closed
// state accepts no further tasks.
type visitorState struct {
	taskCh chan turnTask
	stopCh chan struct{}
	closed bool
}

func newVisitorState() *visitorState {
	return &visitorState{
		taskCh: make(chan turnTask, queueLen),
		stopCh: make(chan struct{}),
	}
}
