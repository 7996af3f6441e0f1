package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/deposit"
	"github.com/openfolio/archive-api/internal/dto"
	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
	"github.com/openfolio/archive-api/internal/translator"
	appErrors "github.com/openfolio/archive-api/pkg/errors"
	"github.com/openfolio/archive-api/pkg/jobs"
)

// Archival job operation kinds. The job ID is the media ID plus the
// operation, which keeps job identity stable per asset.
const (
	opArchive = "archive"
	opUpdate  = "update"
)

type entryStore interface {
	GetByID(ctx context.Context, id string) (*models.Entry, error)
	SetArchiveResult(ctx context.Context, id, archiveID, archiveURI string, archivedAt time.Time) error
}

type mediaStore interface {
	GetByID(ctx context.Context, id string) (*models.Media, error)
	ListByEntry(ctx context.Context, entryID string) ([]models.Media, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Media, error)
	TransitionStatus(ctx context.Context, id string, from []models.ArchiveStatus, to models.ArchiveStatus) (bool, error)
	SetArchived(ctx context.Context, id, archiveID, archiveURI string, archivedAt time.Time) error
	SetError(ctx context.Context, id, detail string, class models.ErrorClass) error
	ListPending(ctx context.Context, limit int) ([]models.Media, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type submitter interface {
	Submit(ctx context.Context, doc schema.Document, payloads []deposit.Payload) (*deposit.Receipt, error)
}

type payloadOpener interface {
	Open(filename string) (*os.File, error)
}

type receiptRecorder interface {
	Record(ctx context.Context, entry *models.Entry, media []models.Media) error
}

// ArchiveService owns the per-asset archival lifecycle: it validates
// entries against the external schema, drives status transitions
// through the media repository's compare-and-swap, and applies
// submission outcomes. All network I/O happens inside ProcessJob,
// never on the request path.
type ArchiveService struct {
	entries    entryStore
	media      mediaStore
	translator *translator.Translator
	queue      jobDispatcher
	client     submitter
	files      payloadOpener
	receipts   receiptRecorder
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewArchiveService constructs the service.
func NewArchiveService(entries entryStore, media mediaStore, tr *translator.Translator, queue jobDispatcher, client submitter, files payloadOpener, receipts receiptRecorder, metrics *MetricsService, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		entries:    entries,
		media:      media,
		translator: tr,
		queue:      queue,
		client:     client,
		files:      files,
		receipts:   receipts,
		metrics:    metrics,
		logger:     logger,
	}
}

// Validate runs the dry-run translation and validation for an entry.
// No state changes and no network calls; the returned tree is keyed
// on domain field paths and empty when the entry is archivable.
func (s *ArchiveService) Validate(ctx context.Context, entryID string, actor *models.JWTClaims) (*schema.ErrorTree, error) {
	entry, media, err := s.loadOwned(ctx, entryID, actor)
	if err != nil {
		return nil, err
	}
	doc := s.translator.ToExternal(ctx, entry, media)
	tree := s.translator.SchemaFor(entry).Validate(doc)
	return s.translator.ToDomainErrors(tree), nil
}

// RequestArchive validates the selected media set and, when valid,
// queues one archival job per asset. Validation failures come back as
// a non-nil tree without touching any state; already-running assets
// are skipped and reported.
func (s *ArchiveService) RequestArchive(ctx context.Context, entryID string, mediaIDs []string, actor *models.JWTClaims) (*dto.ArchiveAcceptedResponse, *schema.ErrorTree, error) {
	entry, all, err := s.loadOwned(ctx, entryID, actor)
	if err != nil {
		return nil, nil, err
	}

	selected := all
	if len(mediaIDs) > 0 {
		selected, err = s.media.ListByIDs(ctx, mediaIDs)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
		}
		if len(selected) != len(mediaIDs) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unknown media in request")
		}
		for _, m := range selected {
			if m.EntryID != entryID {
				return nil, nil, appErrors.ErrConsistency
			}
		}
	}
	if len(selected) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "entry has no media to archive")
	}

	doc := s.translator.ToExternal(ctx, entry, selected)
	tree := s.translator.SchemaFor(entry).Validate(doc)
	if !tree.Empty() {
		return nil, s.translator.ToDomainErrors(tree), nil
	}

	resp := &dto.ArchiveAcceptedResponse{EntryID: entryID}
	for _, m := range selected {
		op, queued := s.queueMedia(ctx, m)
		if !queued {
			resp.Skipped = append(resp.Skipped, m.ID)
			continue
		}
		if err := s.enqueue(ctx, m, op); err != nil {
			resp.Skipped = append(resp.Skipped, m.ID)
			continue
		}
		resp.Queued = append(resp.Queued, m.ID)
	}
	if len(resp.Queued) == 0 {
		return nil, nil, appErrors.ErrAlreadyInProgress
	}
	return resp, nil, nil
}

// queueMedia moves one asset into its queued state, choosing the
// re-archival path for assets that already hold an archive identity.
func (s *ArchiveService) queueMedia(ctx context.Context, m models.Media) (string, bool) {
	if m.Status == models.ArchiveStatusArchived {
		ok, err := s.media.TransitionStatus(ctx, m.ID,
			[]models.ArchiveStatus{models.ArchiveStatusArchived}, models.ArchiveStatusUpdateQueued)
		if err != nil {
			s.logger.Sugar().Errorw("failed to queue media update", "media_id", m.ID, "error", err)
			return opUpdate, false
		}
		return opUpdate, ok
	}
	ok, err := s.media.TransitionStatus(ctx, m.ID,
		[]models.ArchiveStatus{models.ArchiveStatusNotArchived, models.ArchiveStatusError}, models.ArchiveStatusQueued)
	if err != nil {
		s.logger.Sugar().Errorw("failed to queue media", "media_id", m.ID, "error", err)
		return opArchive, false
	}
	return opArchive, ok
}

func (s *ArchiveService) enqueue(ctx context.Context, m models.Media, op string) error {
	err := s.queue.Enqueue(jobs.Job{ID: m.ID + ":" + op, Type: op, Payload: m.ID})
	if err == nil || errors.Is(err, jobs.ErrDuplicate) {
		return nil
	}
	// Undo the queued transition so the asset does not strand.
	if _, revertErr := s.media.TransitionStatus(ctx, m.ID,
		[]models.ArchiveStatus{models.ArchiveStatusQueued, models.ArchiveStatusUpdateQueued},
		m.Status); revertErr != nil {
		s.logger.Sugar().Errorw("failed to revert queued media", "media_id", m.ID, "error", revertErr)
	}
	s.logger.Sugar().Errorw("failed to enqueue archival job", "media_id", m.ID, "error", err)
	return err
}

// Retry re-queues a single errored asset. Both transient and
// permanent errors accept a manual retry; only the scheduler
// distinguishes them.
func (s *ArchiveService) Retry(ctx context.Context, mediaID string, actor *models.JWTClaims) error {
	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
	}
	if _, _, err := s.loadOwned(ctx, m.EntryID, actor); err != nil {
		return err
	}

	ok, err := s.media.TransitionStatus(ctx, m.ID,
		[]models.ArchiveStatus{models.ArchiveStatusError}, models.ArchiveStatusQueued)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue retry")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrConflict, "media is not in an error state")
	}
	op := opArchive
	if m.ArchiveID != nil && *m.ArchiveID != "" {
		op = opUpdate
	}
	return s.enqueue(ctx, *m, op)
}

// EntryStatus reports the archival state of an entry and its media.
func (s *ArchiveService) EntryStatus(ctx context.Context, entryID string, actor *models.JWTClaims) (*dto.EntryStatusResponse, error) {
	entry, media, err := s.loadOwned(ctx, entryID, actor)
	if err != nil {
		return nil, err
	}
	resp := &dto.EntryStatusResponse{
		EntryID:     entry.ID,
		Status:      models.DeriveEntryStatus(media),
		ArchiveID:   entry.ArchiveID,
		ArchiveURI:  entry.ArchiveURI,
		ArchiveDate: entry.ArchiveDate,
	}
	for _, m := range media {
		resp.Media = append(resp.Media, dto.MediaStatusResponse{
			ID:          m.ID,
			Status:      m.Status,
			ArchiveID:   m.ArchiveID,
			ArchiveURI:  m.ArchiveURI,
			ArchiveDate: m.ArchiveDate,
			Error:       m.ErrorDetail,
			ErrorClass:  m.ErrorClass,
		})
	}
	return resp, nil
}

// ProcessJob is the queue handler executing one archival submission.
// An error return lets the queue retry infrastructure failures; once
// the lease is acquired the outcome is always applied and nil is
// returned, so an asset can never stay IN_PROGRESS.
func (s *ArchiveService) ProcessJob(ctx context.Context, job jobs.Job) error {
	mediaID, _ := job.Payload.(string)
	if mediaID == "" {
		s.logger.Sugar().Errorw("archival job without media payload", "job_id", job.ID)
		return nil
	}

	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media for job")
	}

	ok, err := s.media.TransitionStatus(ctx, m.ID,
		[]models.ArchiveStatus{models.ArchiveStatusQueued, models.ArchiveStatusUpdateQueued},
		models.ArchiveStatusInProgress)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire submission lease")
	}
	if !ok {
		s.metrics.ObserveLeaseRefused()
		s.logger.Sugar().Infow("submission lease held elsewhere, skipping", "media_id", m.ID, "status", m.Status)
		return nil
	}

	entry, err := s.entries.GetByID(ctx, m.EntryID)
	if err != nil {
		// Put the asset back so the retried job can pick it up again.
		if _, revertErr := s.media.TransitionStatus(ctx, m.ID,
			[]models.ArchiveStatus{models.ArchiveStatusInProgress}, models.ArchiveStatusQueued); revertErr != nil {
			s.logger.Sugar().Errorw("failed to release submission lease", "media_id", m.ID, "error", revertErr)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry for job")
	}

	s.submit(ctx, entry, *m, job.Type)
	return nil
}

// submit performs the external submission and applies its outcome.
func (s *ArchiveService) submit(ctx context.Context, entry *models.Entry, m models.Media, op string) {
	var doc schema.Document
	var sch schema.Schema
	if op == opUpdate {
		doc = s.translator.ToAssetDocument(m)
		sch = s.translator.AssetSchema()
	} else {
		doc = s.translator.ToExternal(ctx, entry, []models.Media{m})
		sch = s.translator.SchemaFor(entry)
	}

	// The entry may have changed between queueing and pickup.
	if tree := sch.Validate(doc); !tree.Empty() {
		s.recordFailure(ctx, m.ID, s.treeDetail(tree), models.ErrorClassPermanent)
		return
	}

	file, err := s.files.Open(m.FilePath)
	if err != nil {
		s.recordFailure(ctx, m.ID, "media payload unavailable: "+err.Error(), models.ErrorClassPermanent)
		return
	}
	defer file.Close() //nolint:errcheck

	payloads := []deposit.Payload{{Key: m.ID, Filename: m.Filename, MimeType: m.MimeType, Data: file}}

	start := time.Now()
	receipt, err := s.client.Submit(ctx, doc, payloads)
	elapsed := time.Since(start)
	if err != nil {
		class := deposit.ClassOf(err)
		detail := err.Error()
		var remote *deposit.RemoteValidationError
		if errors.As(err, &remote) {
			detail = s.treeDetail(remote.Tree)
		}
		outcome := OutcomePermanent
		if class == models.ErrorClassTransient {
			outcome = OutcomeTransient
		}
		s.metrics.ObserveSubmission(outcome, elapsed)
		s.recordFailure(ctx, m.ID, detail, class)
		return
	}
	s.metrics.ObserveSubmission(OutcomeArchived, elapsed)

	archivedAt := time.Now().UTC()
	if err := s.media.SetArchived(ctx, m.ID, receipt.PID, receipt.URI, archivedAt); err != nil {
		s.logger.Sugar().Errorw("failed to persist archival result", "media_id", m.ID, "pid", receipt.PID, "error", err)
		return
	}
	if op == opArchive {
		if err := s.entries.SetArchiveResult(ctx, entry.ID, receipt.PID, receipt.URI, archivedAt); err != nil {
			s.logger.Sugar().Errorw("failed to stamp entry archive result", "entry_id", entry.ID, "error", err)
		}
	}
	s.logger.Sugar().Infow("media archived", "media_id", m.ID, "pid", receipt.PID, "uri", receipt.URI)

	if s.receipts != nil {
		media, err := s.media.ListByEntry(ctx, entry.ID)
		if err == nil {
			if err := s.receipts.Record(ctx, entry, media); err != nil {
				s.logger.Sugar().Warnw("failed to write archival receipt", "entry_id", entry.ID, "error", err)
			}
		}
	}
}

func (s *ArchiveService) recordFailure(ctx context.Context, mediaID, detail string, class models.ErrorClass) {
	if err := s.media.SetError(ctx, mediaID, detail, class); err != nil {
		s.logger.Sugar().Errorw("failed to persist submission error", "media_id", mediaID, "error", err)
	}
}

// treeDetail serializes a domain-keyed error tree for the persisted
// error detail column.
func (s *ArchiveService) treeDetail(tree *schema.ErrorTree) string {
	domain := s.translator.ToDomainErrors(tree)
	data, err := json.Marshal(domain)
	if err != nil {
		return "validation failed"
	}
	return string(data)
}

// RecoverPending re-enqueues assets left queued by a previous process
// (e.g. after a restart).
func (s *ArchiveService) RecoverPending(ctx context.Context) {
	pending, err := s.media.ListPending(ctx, 0)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover pending media", "error", err)
		return
	}
	for _, m := range pending {
		op := opArchive
		if m.Status == models.ArchiveStatusUpdateQueued {
			op = opUpdate
		}
		if err := s.queue.Enqueue(jobs.Job{ID: m.ID + ":" + op, Type: op, Payload: m.ID}); err != nil && !errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Sugar().Warnw("failed to requeue pending media", "media_id", m.ID, "error", err)
		}
	}
}

// loadOwned fetches an entry with its media and enforces ownership.
func (s *ArchiveService) loadOwned(ctx context.Context, entryID string, actor *models.JWTClaims) (*models.Entry, []models.Media, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	if actor.Role != models.RoleAdmin && entry.OwnerID != actor.UserID {
		return nil, nil, appErrors.ErrOwnership
	}
	media, err := s.media.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
	}
	return entry, media, nil
}
