package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

// fakeGateway is an in-memory Gateway that records every call
type fakeGateway struct {
	mu       sync.Mutex
	labels   []models.Label
	refs     map[string][]models.MessageRef
	nextPage map[string]string
	messages map[string]models.Message
	failOp   map[string]error
	calls    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		refs:     map[string][]models.MessageRef{},
		nextPage: map[string]string{},
		messages: map[string]models.Message{},
		failOp:   map[string]error{},
	}
}

func (g *fakeGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	if err, ok := g.failOp[call]; ok {
		return err
	}
	return nil
}

func (g *fakeGateway) called(call string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (g *fakeGateway) ListLabels(ctx context.Context) ([]models.Label, error) {
	if err := g.record("listLabels"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Label(nil), g.labels...), nil
}

func (g *fakeGateway) ListMessageRefs(ctx context.Context, labelID string, maxResults int64) ([]models.MessageRef, string, error) {
	if err := g.record("listRefs:" + labelID); err != nil {
		return nil, "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.MessageRef(nil), g.refs[labelID]...), g.nextPage[labelID], nil
}

func (g *fakeGateway) GetMessage(ctx context.Context, id string) (models.Message, error) {
	if err := g.record("get:" + id); err != nil {
		return models.Message{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (g *fakeGateway) Trash(ctx context.Context, id string) error {
	return g.record("trash:" + id)
}

func (g *fakeGateway) Untrash(ctx context.Context, id string) error {
	return g.record("untrash:" + id)
}

func (g *fakeGateway) Archive(ctx context.Context, id string) error {
	return g.record("archive:" + id)
}

func (g *fakeGateway) Unarchive(ctx context.Context, id string) error {
	return g.record("unarchive:" + id)
}

func (g *fakeGateway) MarkRead(ctx context.Context, id string) error {
	return g.record("markRead:" + id)
}

func (g *fakeGateway) MarkUnread(ctx context.Context, id string) error {
	return g.record("markUnread:" + id)
}

func (g *fakeGateway) ApplyLabel(ctx context.Context, id, labelID string) error {
	return g.record("applyLabel:" + id + ":" + labelID)
}

func (g *fakeGateway) RemoveLabel(ctx context.Context, id, labelID string) error {
	return g.record("removeLabel:" + id + ":" + labelID)
}

func newTestStore(t *testing.T) *db.MessageStore {
	t.Helper()
	store, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return db.NewMessageStore(store)
}

func testMessage(id, threadID string, date int64) models.Message {
	return models.Message{
		ID:           id,
		ThreadID:     threadID,
		From:         "alice@example.com",
		Subject:      "subject " + id,
		Snippet:      "snippet " + id,
		BodyPlain:    "body " + id,
		InternalDate: date,
	}
}
