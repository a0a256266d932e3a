package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/models"
)

// fetchConcurrency bounds parallel full-content fetches in one pass
const fetchConcurrency = 4

// SyncServiceImpl reconciles the cache against the remote mailbox on a
// schedule. It owns no view state; it writes to the store and to a
// mutex-guarded status snapshot that the interactive thread reads.
type SyncServiceImpl struct {
	store         *db.MessageStore
	gateway       Gateway
	schedule      string
	pageSize      int64
	removalWindow int64
	logger        *log.Logger
	onChange      func() // Optional - notified after a label's cache content changed

	cron *cron.Cron

	mu     sync.Mutex
	status SyncStatus

	// passMu serializes passes so a slow scheduled pass and a manual
	// SyncNow cannot interleave.
	passMu sync.Mutex

	priority chan string
}

// NewSyncService creates a reconciler. schedule is a cron expression; the
// "@every 30s" form matches the default cadence.
func NewSyncService(store *db.MessageStore, gateway Gateway, schedule string, pageSize int64) *SyncServiceImpl {
	return &SyncServiceImpl{
		store:         store,
		gateway:       gateway,
		schedule:      schedule,
		pageSize:      pageSize,
		removalWindow: 200,
		status:        SyncStatus{Phase: SyncIdle},
		priority:      make(chan string, 16),
	}
}

// SetLogger sets the logger for pass diagnostics
func (s *SyncServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetOnChange registers a callback invoked after cache content changed.
// Called from the reconciler goroutine; the callback must not block.
func (s *SyncServiceImpl) SetOnChange(fn func()) {
	s.onChange = fn
}

// Start schedules periodic passes and kicks off an immediate first pass
func (s *SyncServiceImpl) Start(ctx context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("sync service already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.SyncNow(ctx); err != nil {
			s.logf("sync: scheduled pass: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	go func() {
		if err := s.SyncNow(ctx); err != nil {
			s.logf("sync: initial pass: %v", err)
		}
	}()
	return nil
}

// Stop halts the schedule. In-flight remote calls are not cancelled; they
// are idempotent and safe to abandon.
func (s *SyncServiceImpl) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

// Prioritize moves a label to the front of the next pass. Used when the
// user selects a label so its view freshens first.
func (s *SyncServiceImpl) Prioritize(labelID string) {
	select {
	case s.priority <- labelID:
	default:
	}
}

// Status returns a snapshot of the reconciler's shared state
func (s *SyncServiceImpl) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SyncNow runs one reconciliation pass. A failed pass never corrupts the
// cache: every write is scoped to the item being processed, and one item's
// failure does not abort the remaining diff.
func (s *SyncServiceImpl) SyncNow(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.setPhase(SyncRunning, "", "")

	labels, err := s.gateway.ListLabels(ctx)
	if err != nil {
		s.setPhase(SyncError, "", fmt.Sprintf("list labels: %v", err))
		return fmt.Errorf("sync: list labels: %w", err)
	}
	if err := s.store.ReplaceLabels(ctx, labels); err != nil {
		s.setPhase(SyncError, "", fmt.Sprintf("replace labels: %v", err))
		return fmt.Errorf("sync: %w", err)
	}

	order := s.labelOrder(labels)
	var firstErr error
	for _, labelID := range order {
		s.setPhase(SyncRunning, labelID, "")
		changed, err := s.syncLabel(ctx, labelID)
		if err != nil {
			s.logf("sync: label %s: %v", labelID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if changed {
			s.notify()
		}
	}

	if firstErr != nil {
		s.setPhase(SyncError, "", firstErr.Error())
		return fmt.Errorf("sync: %w", firstErr)
	}
	s.mu.Lock()
	s.status = SyncStatus{Phase: SyncIdle, LastSync: time.Now()}
	s.mu.Unlock()
	return nil
}

// labelOrder drains pending priority requests and moves the most recent one
// to the front.
func (s *SyncServiceImpl) labelOrder(labels []models.Label) []string {
	order := make([]string, 0, len(labels))
	for _, l := range labels {
		order = append(order, l.ID)
	}
	var prio string
	for {
		select {
		case p := <-s.priority:
			prio = p
			continue
		default:
		}
		break
	}
	if prio == "" {
		return order
	}
	for i, id := range order {
		if id == prio {
			copy(order[1:i+1], order[:i])
			order[0] = prio
			break
		}
	}
	return order
}

// syncLabel diffs one label's remote listing against the cache. New or
// changed ids are fetched and upserted, each in its own transaction.
// Removals are applied only when the listing is complete (no next page) and
// only inside the date window the remote actually covered, so a partial
// listing can never strip labels from messages outside its view.
func (s *SyncServiceImpl) syncLabel(ctx context.Context, labelID string) (bool, error) {
	refs, nextPage, err := s.gateway.ListMessageRefs(ctx, labelID, s.pageSize)
	if err != nil {
		return false, fmt.Errorf("list refs: %w", err)
	}

	remote := make(map[string]struct{}, len(refs))
	var toFetch []string
	oldest := int64(math.MaxInt64)
	for _, ref := range refs {
		remote[ref.ID] = struct{}{}
		localDate, exists, err := s.store.MessageDate(ctx, ref.ID)
		switch {
		case err != nil:
			s.logf("sync: date lookup %s: %v", ref.ID, err)
			continue
		case !exists:
			toFetch = append(toFetch, ref.ID)
		case ref.InternalDate > localDate:
			// remote observed a newer revision of this id
			toFetch = append(toFetch, ref.ID)
		}
		if d := refDate(ref, localDate, exists); d > 0 && d < oldest {
			oldest = d
		}
	}

	changed := false
	var chMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, id := range toFetch {
		id := id
		g.Go(func() error {
			msg, err := s.gateway.GetMessage(gctx, id)
			if err != nil {
				s.logf("sync: fetch %s: %v", id, err)
				return nil
			}
			if err := s.store.UpsertMessages(gctx, []models.Message{msg}, labelID); err != nil {
				s.logf("sync: upsert %s: %v", id, err)
				return nil
			}
			chMu.Lock()
			changed = true
			if msg.InternalDate > 0 && msg.InternalDate < oldest {
				oldest = msg.InternalDate
			}
			chMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if nextPage == "" && len(refs) > 0 {
		local, err := s.store.MessageRefsByLabel(ctx, labelID, s.removalWindow)
		if err != nil {
			return changed, fmt.Errorf("local refs: %w", err)
		}
		for _, l := range local {
			if _, ok := remote[l.ID]; ok {
				continue
			}
			if l.InternalDate < oldest {
				// outside the window the remote listing covered
				continue
			}
			if err := s.store.RemoveLabel(ctx, l.ID, labelID); err != nil {
				s.logf("sync: remove association %s/%s: %v", l.ID, labelID, err)
				continue
			}
			changed = true
		}
	}

	return changed, nil
}

func refDate(ref models.MessageRef, localDate int64, exists bool) int64 {
	if ref.InternalDate > 0 {
		return ref.InternalDate
	}
	if exists {
		return localDate
	}
	return 0
}

func (s *SyncServiceImpl) setPhase(phase SyncPhase, label, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.status.LastSync
	s.status = SyncStatus{Phase: phase, CurrentLabel: label, LastSync: last, LastError: errMsg}
}

func (s *SyncServiceImpl) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *SyncServiceImpl) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
