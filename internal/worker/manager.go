// Package worker serializes chat turns per visitor. Each active visitor
// gets one goroutine with a small bounded queue, so at most one agent run
// touches a visitor's history and scratch directory at a time.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/redis"
	"github.com/AlexandrLebegue/thesis-llm/internal/service/chat"
)

// ErrBusy is returned when a visitor's turn queue is full. Handlers map it
// to HTTP 429.
var ErrBusy = errors.New("a previous request is still being processed")

// defaultIdleTimeout reclaims worker goroutines for visitors that went
// quiet.
const defaultIdleTimeout = 10 * time.Minute

// Manager owns the per-visitor workers and the redis-backed history cache.
type Manager struct {
	chat        *chat.Service
	cache       *historyCache
	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[int64]*visitorState
}

// NewManager wires the chat service and an optional redis client. Passing a
// nil client disables caching; everything still works off the database.
func NewManager(chatSvc *chat.Service, client *redis.Client) *Manager {
	m := &Manager{
		chat:        chatSvc,
		cache:       newHistoryCache(client),
		idleTimeout: defaultIdleTimeout,
		workers:     make(map[int64]*visitorState),
	}
	m.cache.startListener()
	return m
}

// Submit queues one turn on the visitor's worker. Returns ErrBusy when the
// queue is full; otherwise the handle reports the persisted user message
// and the final outcome. Enqueueing happens under the manager mutex so a
// task can never land on a worker that has already shut down.
func (m *Manager) Submit(req TurnRequest) (*TurnHandle, error) {
	task := turnTask{
		req:      req,
		ackCh:    make(chan *models.Message, 1),
		resultCh: make(chan TurnOutcome, 1),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.ensureWorkerLocked(req.VisitorID)
	select {
	case state.taskCh <- task:
	default:
		return nil, ErrBusy
	}
	return &TurnHandle{Ack: task.ackCh, Result: task.resultCh}, nil
}

// ExecuteTurn submits a turn and blocks until it finishes. The ack is
// discarded; the caller's context bounds the wait.
func (m *Manager) ExecuteTurn(ctx context.Context, req TurnRequest) (*models.Message, []models.Artifact, error) {
	if req.Context == nil {
		req.Context = ctx
	}
	handle, err := m.Submit(req)
	if err != nil {
		return nil, nil, err
	}
	select {
	case outcome := <-handle.Result:
		return outcome.Reply, outcome.Artifacts, outcome.Err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// History serves the visitor's conversation, preferring the redis cache and
// falling back to the database on a miss.
func (m *Manager) History(ctx context.Context, visitorID int64) ([]*models.Message, error) {
	if history, ok := m.cache.loadHistory(visitorID); ok {
		return history, nil
	}
	history, err := m.chat.History(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	m.cache.cacheHistory(visitorID, history)
	return history, nil
}

// Invalidate drops the visitor's cached history and broadcasts the drop,
// called after uploads, history clears, and session closes.
func (m *Manager) Invalidate(visitorID int64) {
	m.cache.drop(visitorID)
	m.cache.publishInvalidation(visitorID, scopeHistory)
}

// StopVisitor shuts the visitor's worker down, dropping any queued turns.
func (m *Manager) StopVisitor(visitorID int64) {
	m.mu.Lock()
	if state, ok := m.workers[visitorID]; ok {
		close(state.stopCh)
		delete(m.workers, visitorID)
	}
	m.mu.Unlock()
	m.cache.drop(visitorID)
	m.cache.publishInvalidation(visitorID, scopeVisitor)
}

func (m *Manager) ensureWorker(visitorID int64) *visitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureWorkerLocked(visitorID)
}

// ensureWorkerLocked finds or spawns the visitor's worker. A state left
// behind by a worker that already exited is replaced. Caller holds m.mu.
func (m *Manager) ensureWorkerLocked(visitorID int64) *visitorState {
	if state, ok := m.workers[visitorID]; ok && !state.closed {
		return state
	}
	state := newVisitorState()
	m.workers[visitorID] = state
	go m.runWorker(visitorID, state)
	return state
}

func (m *Manager) runWorker(visitorID int64, state *visitorState) {
	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()
	defer func() {
		m.mu.Lock()
		state.closed = true
		if m.workers[visitorID] == state {
			delete(m.workers, visitorID)
		}
		m.mu.Unlock()
		// a task may have been enqueued before the state was marked
		// closed; fail it rather than dropping it silently
		for {
			select {
			case task := <-state.taskCh:
				task.resultCh <- TurnOutcome{Err: ErrBusy}
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-state.stopCh:
			return
		case task := <-state.taskCh:
			m.handleTurn(task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)
		case <-idle.C:
			log.Printf("worker for visitor %d idle, stopping", visitorID)
			return
		}
	}
}

// handleTurn persists the user message, signals the ack, runs the agent,
// and refreshes the history cache.
func (m *Manager) handleTurn(task turnTask) {
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	userMsg, uploads, err := m.chat.SaveUserMessage(ctx, req.VisitorID, req.Content, req.FileIDs)
	if err != nil {
		task.resultCh <- TurnOutcome{Err: err}
		return
	}
	task.ackCh <- userMsg

	reply, artifacts, err := m.chat.ExecuteTurn(ctx, req.VisitorID, req.Content, uploads, req.MaxSteps)
	if err == nil {
		if history, herr := m.chat.History(ctx, req.VisitorID); herr == nil {
			m.cache.cacheHistory(req.VisitorID, history)
		}
	} else {
		m.cache.drop(req.VisitorID)
	}
	task.resultCh <- TurnOutcome{Reply: reply, Artifacts: artifacts, Err: err}
}
