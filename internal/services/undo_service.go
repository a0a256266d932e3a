package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

// UndoServiceImpl implements UndoService as an unbounded in-memory LIFO
// journal. The journal lives for the process only; it is never persisted.
type UndoServiceImpl struct {
	store   *db.MessageStore
	gateway Gateway
	mu      sync.RWMutex
	stack   []UndoableAction
	logger  *log.Logger // Optional - for remote failure logging
}

// NewUndoService creates a new undo service
func NewUndoService(store *db.MessageStore, gateway Gateway) *UndoServiceImpl {
	return &UndoServiceImpl{
		store:   store,
		gateway: gateway,
	}
}

// SetLogger sets the logger for remote-dispatch output
func (s *UndoServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Record pushes an action onto the journal. Called synchronously at the
// moment the view applies a delete or archive, before the cache and remote
// calls are issued.
func (s *UndoServiceImpl) Record(action UndoableAction) {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, action)
}

// UndoLast pops the most recent action and reverses it across cache and
// remote. An empty journal is a no-op result, not an error. A cache failure
// is reported and the entry stays consumed: a partial reversal is worse than
// a lost undo.
func (s *UndoServiceImpl) UndoLast(ctx context.Context, currentLabelID string) (*UndoResult, error) {
	s.mu.Lock()
	if len(s.stack) == 0 {
		s.mu.Unlock()
		return &UndoResult{Nothing: true, Description: "Nothing to undo"}, nil
	}
	action := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.mu.Unlock()

	switch action.Type {
	case UndoActionDelete:
		return s.undoDelete(ctx, action)
	case UndoActionArchive:
		return s.undoArchive(ctx, action, currentLabelID)
	default:
		return nil, fmt.Errorf("unknown undo action type: %s", action.Type)
	}
}

// undoDelete re-inserts the captured snapshot under its originating label
// and restores the message from the remote trash.
func (s *UndoServiceImpl) undoDelete(ctx context.Context, action UndoableAction) (*UndoResult, error) {
	if err := s.store.UpsertMessages(ctx, []models.Message{action.Message}, action.LabelID); err != nil {
		return nil, fmt.Errorf("undo delete %s: %w", action.Message.ID, err)
	}
	s.dispatchRemote("untrash", action.Message.ID, s.gateway.Untrash)
	return &UndoResult{
		Type:        UndoActionDelete,
		Description: "Undone: delete",
		Message:     action.Message,
		Reinsert:    true,
	}, nil
}

// undoArchive re-adds the inbox association and the remote inbox label. The
// message reappears in the visible list only when the inbox is on screen.
func (s *UndoServiceImpl) undoArchive(ctx context.Context, action UndoableAction, currentLabelID string) (*UndoResult, error) {
	if err := s.store.AddLabel(ctx, action.Message.ID, models.InboxLabelID); err != nil {
		return nil, fmt.Errorf("undo archive %s: %w", action.Message.ID, err)
	}
	s.dispatchRemote("unarchive", action.Message.ID, s.gateway.Unarchive)
	return &UndoResult{
		Type:        UndoActionArchive,
		Description: "Undone: archive",
		Message:     action.Message,
		Reinsert:    currentLabelID == models.InboxLabelID,
	}, nil
}

// dispatchRemote fires a remote call without blocking the reversal. Local
// state is already consistent with user intent, so a failure here is only
// logged; the next sync pass converges.
func (s *UndoServiceImpl) dispatchRemote(op, messageID string, fn func(context.Context, string) error) {
	go func() {
		if err := fn(context.Background(), messageID); err != nil && s.logger != nil {
			s.logger.Printf("undo: remote %s failed for %s: %v", op, messageID, err)
		}
	}()
}

// HasUndoableAction checks if the journal is non-empty
func (s *UndoServiceImpl) HasUndoableAction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stack) > 0
}

// ClearHistory drops every journal entry
func (s *UndoServiceImpl) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = nil
}
