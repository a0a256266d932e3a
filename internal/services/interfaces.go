package services

import (
	"context"
	"time"

	"github.com/maildeck/maildeck/internal/models"
)

// Gateway is the remote mailbox surface the core calls. All mutating
// operations are idempotent, so a lost or repeated call is safe.
type Gateway interface {
	ListLabels(ctx context.Context) ([]models.Label, error)
	ListMessageRefs(ctx context.Context, labelID string, maxResults int64) ([]models.MessageRef, string, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	Trash(ctx context.Context, id string) error
	Untrash(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	ApplyLabel(ctx context.Context, id, labelID string) error
	RemoveLabel(ctx context.Context, id, labelID string) error
}

// EmailService applies user-initiated message mutations: the cache write is
// synchronous, the matching remote call is fire-and-forget.
type EmailService interface {
	Trash(ctx context.Context, messageID string) error
	Archive(ctx context.Context, messageID string) error
	SetRead(ctx context.Context, messageID string, read bool) error
}

// LabelService exposes the cached label table and label-set edits
type LabelService interface {
	Labels(ctx context.Context) ([]models.Label, error)
	ApplyLabel(ctx context.Context, messageID, labelID string) error
	RemoveLabel(ctx context.Context, messageID, labelID string) error
}

// UndoService is the session-scoped journal of reversible actions
type UndoService interface {
	Record(action UndoableAction)
	UndoLast(ctx context.Context, currentLabelID string) (*UndoResult, error)
	HasUndoableAction() bool
	ClearHistory()
}

// SyncService keeps the cache reconciled against the remote mailbox
type SyncService interface {
	Start(ctx context.Context) error
	Stop()
	SyncNow(ctx context.Context) error
	Prioritize(labelID string)
	Status() SyncStatus
}

// SyncPhase is the reconciler's current phase
type SyncPhase string

const (
	SyncIdle    SyncPhase = "idle"
	SyncRunning SyncPhase = "syncing"
	SyncError   SyncPhase = "error"
)

// SyncStatus is a point-in-time snapshot of the reconciler's shared state
type SyncStatus struct {
	Phase        SyncPhase
	CurrentLabel string
	LastSync     time.Time
	LastError    string
}

// UndoActionType identifies a reversible action kind. The set is closed:
// adding a new reversible action means adding a constant and its reversal
// branch in the undo service.
type UndoActionType string

const (
	UndoActionDelete  UndoActionType = "delete"
	UndoActionArchive UndoActionType = "archive"
)

// UndoableAction captures enough state to reverse one user mutation. Message
// is a value copy taken at record time; later cache or sync writes cannot
// reach back into it.
type UndoableAction struct {
	ID        string
	Type      UndoActionType
	Message   models.Message
	LabelID   string // originating view for deletes
	Timestamp time.Time
}

// UndoResult tells the caller what a reversal did and what the view should
// now show.
type UndoResult struct {
	Type        UndoActionType
	Description string
	Message     models.Message
	// Reinsert is true when the restored message belongs at the top of the
	// currently visible list.
	Reinsert bool
	// Nothing is true when the journal was empty; not an error.
	Nothing bool
}
