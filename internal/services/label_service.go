package services

import (
	"context"
	"fmt"
	"log"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

// LabelServiceImpl implements LabelService over the cached label table
type LabelServiceImpl struct {
	store   *db.MessageStore
	gateway Gateway
	logger  *log.Logger
}

// NewLabelService creates a new label service
func NewLabelService(store *db.MessageStore, gateway Gateway) *LabelServiceImpl {
	return &LabelServiceImpl{
		store:   store,
		gateway: gateway,
	}
}

// SetLogger sets the logger for remote-dispatch output
func (s *LabelServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Labels returns the cached label table, INBOX first
func (s *LabelServiceImpl) Labels(ctx context.Context) ([]models.Label, error) {
	labels, err := s.store.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	return labels, nil
}

// ApplyLabel adds the association locally and remotely
func (s *LabelServiceImpl) ApplyLabel(ctx context.Context, messageID, labelID string) error {
	if messageID == "" || labelID == "" {
		return fmt.Errorf("apply label: %w", ErrInvalidInput)
	}
	if err := s.store.AddLabel(ctx, messageID, labelID); err != nil {
		return err
	}
	go func() {
		if err := s.gateway.ApplyLabel(context.Background(), messageID, labelID); err != nil && s.logger != nil {
			s.logger.Printf("label: remote apply %s failed for %s: %v", labelID, messageID, err)
		}
	}()
	return nil
}

// RemoveLabel removes the association locally and remotely
func (s *LabelServiceImpl) RemoveLabel(ctx context.Context, messageID, labelID string) error {
	if messageID == "" || labelID == "" {
		return fmt.Errorf("remove label: %w", ErrInvalidInput)
	}
	if err := s.store.RemoveLabel(ctx, messageID, labelID); err != nil {
		return err
	}
	go func() {
		if err := s.gateway.RemoveLabel(context.Background(), messageID, labelID); err != nil && s.logger != nil {
			s.logger.Printf("label: remote remove %s failed for %s: %v", labelID, messageID, err)
		}
	}()
	return nil
}
