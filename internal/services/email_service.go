package services

import (
	"context"
	"fmt"
	"log"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

// EmailServiceImpl implements EmailService. Local cache writes happen
// synchronously; the matching remote calls are dispatched as detached tasks
// whose outcome is only logged. Their in-flight state may race process exit,
// which is fine since every gateway operation is idempotent.
type EmailServiceImpl struct {
	store   *db.MessageStore
	gateway Gateway
	logger  *log.Logger // Optional - for remote failure logging
}

// NewEmailService creates a new email service
func NewEmailService(store *db.MessageStore, gateway Gateway) *EmailServiceImpl {
	return &EmailServiceImpl{
		store:   store,
		gateway: gateway,
	}
}

// SetLogger sets the logger for remote-dispatch output
func (s *EmailServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Trash removes the message from the cache and moves it to the remote trash
func (s *EmailServiceImpl) Trash(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("trash: %w: empty message id", ErrInvalidInput)
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("trash %s: %w", messageID, err)
	}
	s.dispatchRemote("trash", messageID, s.gateway.Trash)
	return nil
}

// Archive strips the inbox association locally and remotely
func (s *EmailServiceImpl) Archive(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("archive: %w: empty message id", ErrInvalidInput)
	}
	if err := s.store.RemoveLabel(ctx, messageID, models.InboxLabelID); err != nil {
		return fmt.Errorf("archive %s: %w", messageID, err)
	}
	s.dispatchRemote("archive", messageID, s.gateway.Archive)
	return nil
}

// SetRead flips the read flag locally and remotely
func (s *EmailServiceImpl) SetRead(ctx context.Context, messageID string, read bool) error {
	if messageID == "" {
		return fmt.Errorf("set read: %w: empty message id", ErrInvalidInput)
	}
	if err := s.store.SetRead(ctx, messageID, read); err != nil {
		return fmt.Errorf("set read %s: %w", messageID, err)
	}
	if read {
		s.dispatchRemote("mark read", messageID, s.gateway.MarkRead)
	} else {
		s.dispatchRemote("mark unread", messageID, s.gateway.MarkUnread)
	}
	return nil
}

func (s *EmailServiceImpl) dispatchRemote(op, messageID string, fn func(context.Context, string) error) {
	go func() {
		if err := fn(context.Background(), messageID); err != nil && s.logger != nil {
			s.logger.Printf("email: remote %s failed for %s: %v", op, messageID, err)
		}
	}()
}
