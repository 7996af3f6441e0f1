package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/models"
)

type sweepStoreStub struct {
	*mediaStoreStub
	grace time.Duration
}

func (s *sweepStoreStub) ListTransientErrorsBefore(_ context.Context, cutoff time.Time, _ int) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Media
	for _, m := range s.media {
		if m.Status != models.ArchiveStatusError {
			continue
		}
		if m.ErrorClass == nil || *m.ErrorClass != models.ErrorClassTransient {
			continue
		}
		if m.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

type entryListerStub struct {
	entries []models.Entry
}

func (s *entryListerStub) ListArchived(_ context.Context, _ int) ([]models.Entry, error) {
	return s.entries, nil
}

type receiptKeeperStub struct {
	mu       sync.Mutex
	present  map[string]bool
	recorded []string
}

func (s *receiptKeeperStub) Has(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present[entryID]
}

func (s *receiptKeeperStub) Record(_ context.Context, entry *models.Entry, _ []models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, entry.ID)
	if s.present == nil {
		s.present = make(map[string]bool)
	}
	s.present[entry.ID] = true
	return nil
}

func erroredMedia(id string, class models.ErrorClass, age time.Duration) models.Media {
	m := pngMedia(id, "entry-1", models.ArchiveStatusError)
	m.ErrorClass = &class
	detail := "submission failed"
	m.ErrorDetail = &detail
	m.UpdatedAt = time.Now().UTC().Add(-age)
	return m
}

func TestSweepRequeuesAgedTransientErrors(t *testing.T) {
	store := &sweepStoreStub{mediaStoreStub: newMediaStoreStub(
		erroredMedia("m1", models.ErrorClassTransient, time.Hour),
		erroredMedia("m2", models.ErrorClassPermanent, time.Hour),
		erroredMedia("m3", models.ErrorClassTransient, time.Minute),
	)}
	queue := &queueStub{}
	sched := NewSchedulerService(store, nil, queue, nil, nil, zap.NewNop(),
		SchedulerConfig{RetryGrace: 30 * time.Minute})

	requeued := sched.Sweep(context.Background())

	assert.Equal(t, 1, requeued)
	assert.Equal(t, []string{"m1:archive"}, queue.ids())
	assert.Equal(t, models.ArchiveStatusQueued, store.status("m1"))
	assert.Equal(t, models.ArchiveStatusError, store.status("m2"))
	assert.Equal(t, models.ArchiveStatusError, store.status("m3"))
}

func TestSweepUsesUpdateOpForArchivedIdentity(t *testing.T) {
	m := erroredMedia("m1", models.ErrorClassTransient, time.Hour)
	pid := "o:123"
	m.ArchiveID = &pid
	store := &sweepStoreStub{mediaStoreStub: newMediaStoreStub(m)}
	queue := &queueStub{}
	sched := NewSchedulerService(store, nil, queue, nil, nil, zap.NewNop(),
		SchedulerConfig{RetryGrace: 30 * time.Minute})

	sched.Sweep(context.Background())

	assert.Equal(t, []string{"m1:update"}, queue.ids())
}

func TestSweepIsIdempotent(t *testing.T) {
	store := &sweepStoreStub{mediaStoreStub: newMediaStoreStub(
		erroredMedia("m1", models.ErrorClassTransient, time.Hour),
	)}
	queue := &queueStub{}
	sched := NewSchedulerService(store, nil, queue, nil, nil, zap.NewNop(),
		SchedulerConfig{RetryGrace: 30 * time.Minute})

	first := sched.Sweep(context.Background())
	second := sched.Sweep(context.Background())

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	assert.Len(t, queue.ids(), 1)
}

func TestSweepRegeneratesMissingReceipts(t *testing.T) {
	pid := "o:123"
	uri := "https://archive.example.org/o:123"
	when := time.Now().UTC()
	withReceipt := *artworkEntry()
	withReceipt.ID = "entry-1"
	withReceipt.ArchiveID = &pid
	withReceipt.ArchiveURI = &uri
	withReceipt.ArchiveDate = &when
	missing := withReceipt
	missing.ID = "entry-2"

	archivedAsset := pngMedia("m1", "entry-2", models.ArchiveStatusArchived)
	archivedAsset.ArchiveID = &pid
	store := &sweepStoreStub{mediaStoreStub: newMediaStoreStub(archivedAsset)}
	receipts := &receiptKeeperStub{present: map[string]bool{"entry-1": true}}
	sched := NewSchedulerService(store, &entryListerStub{entries: []models.Entry{withReceipt, missing}},
		&queueStub{}, receipts, nil, zap.NewNop(), SchedulerConfig{})

	sched.Sweep(context.Background())

	require.Len(t, receipts.recorded, 1)
	assert.Equal(t, "entry-2", receipts.recorded[0])
}

func TestSchedulerStartStop(t *testing.T) {
	store := &sweepStoreStub{mediaStoreStub: newMediaStoreStub()}
	sched := NewSchedulerService(store, nil, &queueStub{}, nil, nil, zap.NewNop(),
		SchedulerConfig{Interval: 10 * time.Millisecond})

	sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sched.Stop()
}
