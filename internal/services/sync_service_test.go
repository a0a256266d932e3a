package services

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

func TestSyncNow_FetchesNewMessages(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{
		{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem},
		{ID: "WORK", Name: "Work", Type: models.LabelTypeUser},
	}
	gw.refs["INBOX"] = []models.MessageRef{
		{ID: "m1", InternalDate: 100},
		{ID: "m2", InternalDate: 200},
	}
	gw.messages["m1"] = testMessage("m1", "t1", 100)
	gw.messages["m2"] = testMessage("m2", "t2", 200)

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)

	labels, err := ms.Labels(ctx)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "INBOX", labels[0].ID)

	status := svc.Status()
	assert.Equal(t, SyncIdle, status.Phase)
	assert.False(t, status.LastSync.IsZero())
	assert.Empty(t, status.LastError)
}

func TestSyncNow_RefetchesNewerRevision(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	stale := testMessage("m1", "t1", 100)
	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{stale}, "INBOX"))

	fresh := testMessage("m1", "t1", 200)
	fresh.Snippet = "updated snippet"
	fresh.IsRead = true
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m1", InternalDate: 200}}
	gw.messages["m1"] = fresh

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "updated snippet", msgs[0].Snippet)
	assert.True(t, msgs[0].IsRead)
	assert.Equal(t, int64(200), msgs[0].InternalDate)
}

func TestSyncNow_UnchangedMessageNotRefetched(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}
	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{testMessage("m1", "t1", 100)}, "INBOX"))
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m1", InternalDate: 100}}

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	assert.False(t, gw.called("get:m1"))
}

func TestSyncNow_RemovesStaleAssociations(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	// m1 was archived remotely; m2 is still listed and is older, so m1
	// falls inside the covered window and loses its association.
	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{
		testMessage("m1", "t1", 150),
		testMessage("m2", "t2", 100),
	}, "INBOX"))
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m2", InternalDate: 100}}

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)

	// the message row itself survives the association removal
	exists, err := ms.MessageExists(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncNow_NoRemovalOnPartialListing(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{testMessage("m1", "t1", 150)}, "INBOX"))
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m2", InternalDate: 100}}
	gw.nextPage["INBOX"] = "next-token"
	gw.messages["m2"] = testMessage("m2", "t2", 100)

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSyncNow_NoRemovalOutsideWindow(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	// m1 predates the oldest listed message, so the listing says nothing
	// about it and the association must survive.
	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{testMessage("m1", "t1", 50)}, "INBOX"))
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m2", InternalDate: 200}}
	gw.messages["m2"] = testMessage("m2", "t2", 200)

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSyncNow_EmptyListingRemovesNothing(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	require.NoError(t, ms.UpsertMessages(ctx, []models.Message{testMessage("m1", "t1", 100)}, "INBOX"))

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	require.NoError(t, svc.SyncNow(ctx))

	msgs, err := ms.MessagesByLabel(ctx, "INBOX", 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSyncNow_ListLabelsError(t *testing.T) {
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.failOp["listLabels"] = ErrNetworkUnavailable

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	err := svc.SyncNow(context.Background())
	require.Error(t, err)

	status := svc.Status()
	assert.Equal(t, SyncError, status.Phase)
	assert.Contains(t, status.LastError, "list labels")
}

func TestSyncNow_LabelFailureDoesNotAbortPass(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{
		{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem},
		{ID: "WORK", Name: "Work", Type: models.LabelTypeUser},
	}
	gw.failOp["listRefs:INBOX"] = ErrNetworkUnavailable
	gw.refs["WORK"] = []models.MessageRef{{ID: "m1", InternalDate: 100}}
	gw.messages["m1"] = testMessage("m1", "t1", 100)

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	err := svc.SyncNow(ctx)
	require.Error(t, err)

	// the failing label did not stop the healthy one from syncing
	msgs, lerr := ms.MessagesByLabel(ctx, "WORK", 50, 0)
	require.NoError(t, lerr)
	assert.Len(t, msgs, 1)
	assert.Equal(t, SyncError, svc.Status().Phase)
}

func TestLabelOrder_PrioritizedLabelFirst(t *testing.T) {
	svc := NewSyncService(newTestStore(t), newFakeGateway(), "@every 30s", 100)
	labels := []models.Label{{ID: "INBOX"}, {ID: "WORK"}, {ID: "PERSONAL"}}

	svc.Prioritize("PERSONAL")
	order := svc.labelOrder(labels)
	assert.Equal(t, []string{"PERSONAL", "INBOX", "WORK"}, order)

	// drained: the next pass falls back to the natural order
	order = svc.labelOrder(labels)
	assert.Equal(t, []string{"INBOX", "WORK", "PERSONAL"}, order)
}

func TestLabelOrder_LatestRequestWins(t *testing.T) {
	svc := NewSyncService(newTestStore(t), newFakeGateway(), "@every 30s", 100)
	labels := []models.Label{{ID: "INBOX"}, {ID: "WORK"}, {ID: "PERSONAL"}}

	svc.Prioritize("WORK")
	svc.Prioritize("PERSONAL")
	order := svc.labelOrder(labels)
	assert.Equal(t, "PERSONAL", order[0])
}

func TestSync_OnChangeNotified(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)
	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}
	gw.refs["INBOX"] = []models.MessageRef{{ID: "m1", InternalDate: 100}}
	gw.messages["m1"] = testMessage("m1", "t1", 100)

	svc := NewSyncService(ms, gw, "@every 30s", 100)
	var notified atomic.Int32
	svc.SetOnChange(func() { notified.Add(1) })

	require.NoError(t, svc.SyncNow(ctx))
	assert.Equal(t, int32(1), notified.Load())

	// second pass finds nothing new; no notification
	require.NoError(t, svc.SyncNow(ctx))
	assert.Equal(t, int32(1), notified.Load())
}

func TestSync_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Opened and closed inside the test body so the sql pool goroutine is
	// gone before the leak check runs.
	store, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	gw := newFakeGateway()
	gw.labels = []models.Label{{ID: "INBOX", Name: "INBOX", Type: models.LabelTypeSystem}}

	svc := NewSyncService(db.NewMessageStore(store), gw, "@every 1h", 100)
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		return svc.Status().Phase == SyncIdle && !svc.Status().LastSync.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
}

func TestSync_StartTwiceFails(t *testing.T) {
	svc := NewSyncService(newTestStore(t), newFakeGateway(), "@every 1h", 100)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Error(t, svc.Start(context.Background()))
}

func TestSync_StartInvalidSchedule(t *testing.T) {
	svc := NewSyncService(newTestStore(t), newFakeGateway(), "not a schedule", 100)
	assert.Error(t, svc.Start(context.Background()))
	assert.Nil(t, svc.cron)
}
