package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/pkg/jobs"
)

type sweepMediaStore interface {
	ListTransientErrorsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Media, error)
	ListByEntry(ctx context.Context, entryID string) ([]models.Media, error)
	TransitionStatus(ctx context.Context, id string, from []models.ArchiveStatus, to models.ArchiveStatus) (bool, error)
}

type archivedEntryLister interface {
	ListArchived(ctx context.Context, limit int) ([]models.Entry, error)
}

type receiptKeeper interface {
	Has(entryID string) bool
	Record(ctx context.Context, entry *models.Entry, media []models.Media) error
}

// SchedulerConfig tunes the repair sweep.
type SchedulerConfig struct {
	Interval   time.Duration
	RetryGrace time.Duration
	BatchSize  int
}

// SchedulerService runs the periodic repair sweep: transient
// submission failures older than the grace period are moved back to
// the queue, and archived entries missing their receipt PDF get it
// regenerated. The sweep is idempotent; the per-asset compare-and-swap
// makes a double re-queue impossible even if two sweeps overlap.
type SchedulerService struct {
	media    sweepMediaStore
	entries  archivedEntryLister
	queue    jobDispatcher
	receipts receiptKeeper
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      SchedulerConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(media sweepMediaStore, entries archivedEntryLister, queue jobDispatcher, receipts receiptKeeper, metrics *MetricsService, logger *zap.Logger, cfg SchedulerConfig) *SchedulerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RetryGrace <= 0 {
		cfg.RetryGrace = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		media:    media,
		entries:  entries,
		queue:    queue,
		receipts: receipts,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches the sweep loop. Safe to call once.
func (s *SchedulerService) Start(ctx context.Context) {
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.logger.Sugar().Infow("repair sweep started", "interval", s.cfg.Interval, "retry_grace", s.cfg.RetryGrace)
}

// Stop halts the sweep loop and waits for a running sweep to finish.
func (s *SchedulerService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Sugar().Infow("repair sweep stopped")
}

func (s *SchedulerService) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one repair pass and returns the number of re-queued
// assets. Exposed for manual triggering and tests.
func (s *SchedulerService) Sweep(ctx context.Context) int {
	requeued := s.requeueTransient(ctx)
	s.repairReceipts(ctx)
	s.metrics.ObserveSweep(requeued)
	if requeued > 0 {
		s.logger.Sugar().Infow("repair sweep re-queued media", "count", requeued)
	}
	return requeued
}

// requeueTransient moves aged transient failures back into the queue.
// Permanent failures stay put until someone retries them explicitly.
func (s *SchedulerService) requeueTransient(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-s.cfg.RetryGrace)
	stale, err := s.media.ListTransientErrorsBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Sugar().Errorw("repair sweep failed to list transient errors", "error", err)
		return 0
	}

	requeued := 0
	for _, m := range stale {
		ok, err := s.media.TransitionStatus(ctx, m.ID,
			[]models.ArchiveStatus{models.ArchiveStatusError}, models.ArchiveStatusQueued)
		if err != nil {
			s.logger.Sugar().Errorw("repair sweep failed to re-queue media", "media_id", m.ID, "error", err)
			continue
		}
		if !ok {
			// Someone else already moved it on; nothing to repair.
			continue
		}
		op := opArchive
		if m.ArchiveID != nil && *m.ArchiveID != "" {
			op = opUpdate
		}
		if err := s.queue.Enqueue(jobs.Job{ID: m.ID + ":" + op, Type: op, Payload: m.ID}); err != nil && !errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Sugar().Errorw("repair sweep failed to enqueue media", "media_id", m.ID, "error", err)
			if _, revertErr := s.media.TransitionStatus(ctx, m.ID,
				[]models.ArchiveStatus{models.ArchiveStatusQueued}, models.ArchiveStatusError); revertErr != nil {
				s.logger.Sugar().Errorw("repair sweep failed to revert media", "media_id", m.ID, "error", revertErr)
			}
			continue
		}
		requeued++
	}
	return requeued
}

// repairReceipts regenerates receipt PDFs that went missing for
// archived entries.
func (s *SchedulerService) repairReceipts(ctx context.Context) {
	if s.receipts == nil || s.entries == nil {
		return
	}
	archived, err := s.entries.ListArchived(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Sugar().Errorw("repair sweep failed to list archived entries", "error", err)
		return
	}
	for i := range archived {
		entry := &archived[i]
		if s.receipts.Has(entry.ID) {
			continue
		}
		media, err := s.media.ListByEntry(ctx, entry.ID)
		if err != nil {
			s.logger.Sugar().Errorw("repair sweep failed to load media for receipt", "entry_id", entry.ID, "error", err)
			continue
		}
		if err := s.receipts.Record(ctx, entry, media); err != nil {
			s.logger.Sugar().Warnw("repair sweep failed to regenerate receipt", "entry_id", entry.ID, "error", err)
			continue
		}
		s.logger.Sugar().Infow("repair sweep regenerated receipt", "entry_id", entry.ID)
	}
}
