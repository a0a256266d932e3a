// Package view holds the in-memory projection the presentation layer reads
// and mutates. A single interactive goroutine owns a View; none of its state
// is safe for concurrent use. The reconciler never touches it directly — it
// signals through a notification the owner turns into a Refresh call.
package view

import (
	"context"
	"fmt"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
	"github.com/maildeck/maildeck/internal/services"
)

// View is the consumer-facing surface of the core: the visible message
// list, the thread-detail projection, the undo journal and the transient
// status line.
type View struct {
	store    *db.MessageStore
	emails   services.EmailService
	labelSvc services.LabelService
	undo     services.UndoService
	sync     services.SyncService

	labels       []models.Label
	currentLabel string
	messages     []models.Message
	selected     int
	offset       int64
	pageSize     int64
	thread       []models.Message
	status       string
}

// New creates a view backed by the given store and services
func New(store *db.MessageStore, emails services.EmailService, labelSvc services.LabelService, undo services.UndoService, syncSvc services.SyncService, pageSize int64) *View {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &View{
		store:    store,
		emails:   emails,
		labelSvc: labelSvc,
		undo:     undo,
		sync:     syncSvc,
		pageSize: pageSize,
	}
}

// Init loads labels from the cache and selects the inbox when present
func (v *View) Init(ctx context.Context) error {
	labels, err := v.labelSvc.Labels(ctx)
	if err != nil {
		return fmt.Errorf("init view: %w", err)
	}
	v.labels = labels
	target := models.InboxLabelID
	if len(labels) > 0 {
		found := false
		for _, l := range labels {
			if l.ID == target {
				found = true
				break
			}
		}
		if !found {
			target = labels[0].ID
		}
	}
	if target != "" {
		return v.SelectLabel(ctx, target)
	}
	return nil
}

// SelectLabel switches the visible list to a label's messages and asks the
// reconciler to freshen that label first.
func (v *View) SelectLabel(ctx context.Context, labelID string) error {
	v.status = ""
	msgs, err := v.store.MessagesByLabel(ctx, labelID, v.pageSize, 0)
	if err != nil {
		return fmt.Errorf("select label %s: %w", labelID, err)
	}
	v.currentLabel = labelID
	v.messages = msgs
	v.offset = 0
	v.selected = 0
	if v.sync != nil {
		v.sync.Prioritize(labelID)
	}
	return v.reloadThread(ctx)
}

// SelectMessage moves the selection and reloads the thread detail
func (v *View) SelectMessage(ctx context.Context, i int) error {
	v.status = ""
	if len(v.messages) == 0 {
		v.selected = 0
		v.thread = nil
		return nil
	}
	if i < 0 {
		i = 0
	}
	if i >= len(v.messages) {
		i = len(v.messages) - 1
	}
	v.selected = i
	return v.reloadThread(ctx)
}

// LoadMore appends the next page of the current label to the visible list
func (v *View) LoadMore(ctx context.Context) error {
	v.status = ""
	if v.currentLabel == "" {
		return nil
	}
	v.offset += v.pageSize
	more, err := v.store.MessagesByLabel(ctx, v.currentLabel, v.pageSize, v.offset)
	if err != nil {
		return fmt.Errorf("load more: %w", err)
	}
	v.messages = append(v.messages, more...)
	return nil
}

// MarkRead toggles the read flag of the selected message. The cache write is
// synchronous; the remote call is detached.
func (v *View) MarkRead(ctx context.Context) (string, error) {
	v.status = ""
	m := v.selectedMessage()
	if m == nil {
		return "", nil
	}
	next := !m.IsRead
	if err := v.emails.SetRead(ctx, m.ID, next); err != nil {
		return "", err
	}
	m.IsRead = next
	if next {
		return "Marked as read", nil
	}
	return "Marked as unread", nil
}

// ApplyLabel adds a label to the selected message; cache first, detached
// remote call behind it.
func (v *View) ApplyLabel(ctx context.Context, labelID string) (string, error) {
	v.status = ""
	m := v.selectedMessage()
	if m == nil {
		return "", nil
	}
	if err := v.labelSvc.ApplyLabel(ctx, m.ID, labelID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Labeled: %s", labelID), nil
}

// RemoveLabel strips a label from the selected message. Removing the label
// currently on screen also removes the message from the visible list.
func (v *View) RemoveLabel(ctx context.Context, labelID string) (string, error) {
	v.status = ""
	m := v.selectedMessage()
	if m == nil {
		return "", nil
	}
	if err := v.labelSvc.RemoveLabel(ctx, m.ID, labelID); err != nil {
		return "", err
	}
	if labelID == v.currentLabel {
		v.removeSelected()
		if err := v.reloadThread(ctx); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Unlabeled: %s", labelID), nil
}

// Delete applies an optimistic delete: journal entry first, then the view
// mutation, then the cache removal with its detached remote trash call.
func (v *View) Delete(ctx context.Context) (string, error) {
	v.status = ""
	m := v.selectedMessage()
	if m == nil {
		return "", nil
	}
	snapshot := *m // value copy; the journal owns it from here
	v.undo.Record(services.UndoableAction{
		Type:    services.UndoActionDelete,
		Message: snapshot,
		LabelID: v.currentLabel,
	})
	v.removeSelected()
	if err := v.emails.Trash(ctx, snapshot.ID); err != nil {
		return "", err
	}
	if err := v.reloadThread(ctx); err != nil {
		return "", err
	}
	return "Deleted", nil
}

// Archive strips the inbox association of the selected message. The message
// leaves the visible list immediately; the remote call is detached.
func (v *View) Archive(ctx context.Context) (string, error) {
	v.status = ""
	m := v.selectedMessage()
	if m == nil {
		return "", nil
	}
	snapshot := *m
	v.undo.Record(services.UndoableAction{
		Type:    services.UndoActionArchive,
		Message: snapshot,
	})
	v.removeSelected()
	if err := v.emails.Archive(ctx, snapshot.ID); err != nil {
		return "", err
	}
	if err := v.reloadThread(ctx); err != nil {
		return "", err
	}
	return "Archived", nil
}

// Undo reverses the most recent delete or archive. The journal restores the
// cache and dispatches the remote restore; the view re-inserts the snapshot
// at the top when the result says it belongs on screen.
func (v *View) Undo(ctx context.Context) (string, error) {
	res, err := v.undo.UndoLast(ctx, v.currentLabel)
	if err != nil {
		return "", err
	}
	if res.Nothing {
		return res.Description, nil
	}
	if res.Reinsert {
		v.messages = append([]models.Message{res.Message}, v.messages...)
		v.selected = 0
	}
	if err := v.reloadThread(ctx); err != nil {
		return "", err
	}
	v.status = res.Description
	return res.Description, nil
}

// Search replaces the visible list with full-text matches
func (v *View) Search(ctx context.Context, term string) (string, error) {
	v.status = ""
	msgs, err := v.store.Search(ctx, term)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	v.messages = msgs
	v.selected = 0
	v.offset = 0
	if err := v.reloadThread(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d matches for %q", len(msgs), term), nil
}

// Refresh re-reads labels and the current list from the cache after a sync
// pass wrote new data, clamping selection and paging.
func (v *View) Refresh(ctx context.Context) error {
	labels, err := v.labelSvc.Labels(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	v.labels = labels
	if v.currentLabel == "" {
		return v.Init(ctx)
	}
	msgs, err := v.store.MessagesByLabel(ctx, v.currentLabel, v.offset+v.pageSize, 0)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if len(msgs) == 0 && v.offset > 0 {
		v.offset = 0
		msgs, err = v.store.MessagesByLabel(ctx, v.currentLabel, v.pageSize, 0)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	}
	v.messages = msgs
	if v.selected >= len(v.messages) && len(v.messages) > 0 {
		v.selected = len(v.messages) - 1
	}
	if len(v.messages) == 0 {
		v.selected = 0
	}
	return v.reloadThread(ctx)
}

// Read accessors; callers must not retain the slices across mutations.

// Messages returns the visible message list
func (v *View) Messages() []models.Message { return v.messages }

// Labels returns the cached label table
func (v *View) Labels() []models.Label { return v.labels }

// ThreadDetail returns the thread projection for the selected message
func (v *View) ThreadDetail() []models.Message { return v.thread }

// Selected returns the selection index
func (v *View) Selected() int { return v.selected }

// CurrentLabel returns the label whose view is on screen
func (v *View) CurrentLabel() string { return v.currentLabel }

// Status returns the transient status line
func (v *View) Status() string { return v.status }

// CanUndo reports whether the journal holds an entry
func (v *View) CanUndo() bool { return v.undo.HasUndoableAction() }

// SyncStatus returns the reconciler's current phase snapshot
func (v *View) SyncStatus() services.SyncStatus {
	if v.sync == nil {
		return services.SyncStatus{Phase: services.SyncIdle}
	}
	return v.sync.Status()
}

func (v *View) selectedMessage() *models.Message {
	if v.selected < 0 || v.selected >= len(v.messages) {
		return nil
	}
	return &v.messages[v.selected]
}

func (v *View) removeSelected() {
	i := v.selected
	v.messages = append(v.messages[:i], v.messages[i+1:]...)
	if v.selected >= len(v.messages) && len(v.messages) > 0 {
		v.selected = len(v.messages) - 1
	}
	if len(v.messages) == 0 {
		v.selected = 0
	}
}

func (v *View) reloadThread(ctx context.Context) error {
	m := v.selectedMessage()
	if m == nil {
		v.thread = nil
		return nil
	}
	thread, err := v.store.MessagesByThread(ctx, m.ThreadID)
	if err != nil {
		return fmt.Errorf("thread detail: %w", err)
	}
	v.thread = thread
	return nil
}
