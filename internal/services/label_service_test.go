package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maildeck/maildeck/internal/models"
)

func TestLabelService_Labels(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	svc := NewLabelService(ms, newFakeGateway())

	require.NoError(t, ms.ReplaceLabels(ctx, []models.Label{
		{ID: "WORK", Name: "Work", Type: models.LabelTypeUser},
		{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem},
	}))

	labels, err := svc.Labels(ctx)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "INBOX", labels[0].ID)
}

func TestLabelService_ApplyAndRemove(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	svc := NewLabelService(ms, gw)

	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{testMessage("m1", "t1", 100)}, "INBOX"))

	require.NoError(t, svc.ApplyLabel(ctx, "m1", "WORK"))
	labels, err := ms.MessageLabels(ctx, "m1")
	require.NoError(t, err)
	assert.Contains(t, labels, "WORK")
	require.Eventually(t, func() bool { return gw.called("applyLabel:m1:WORK") },
		time.Second, 10*time.Millisecond)

	require.NoError(t, svc.RemoveLabel(ctx, "m1", "WORK"))
	labels, err = ms.MessageLabels(ctx, "m1")
	require.NoError(t, err)
	assert.NotContains(t, labels, "WORK")
	require.Eventually(t, func() bool { return gw.called("removeLabel:m1:WORK") },
		time.Second, 10*time.Millisecond)
}

func TestLabelService_InvalidInput(t *testing.T) {
	svc := NewLabelService(newTestStore(t), newFakeGateway())
	ctx := context.Background()

	assert.ErrorIs(t, svc.ApplyLabel(ctx, "", "WORK"), ErrInvalidInput)
	assert.ErrorIs(t, svc.ApplyLabel(ctx, "m1", ""), ErrInvalidInput)
	assert.ErrorIs(t, svc.RemoveLabel(ctx, "", "WORK"), ErrInvalidInput)
	assert.ErrorIs(t, svc.RemoveLabel(ctx, "m1", ""), ErrInvalidInput)
}
