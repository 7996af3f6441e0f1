package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/deposit"
	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
	"github.com/openfolio/archive-api/internal/translator"
	"github.com/openfolio/archive-api/internal/vocab"
	appErrors "github.com/openfolio/archive-api/pkg/errors"
	"github.com/openfolio/archive-api/pkg/jobs"
	"github.com/openfolio/archive-api/pkg/storage"
)

type entryStoreStub struct {
	mu        sync.Mutex
	entry     *models.Entry
	stampedID string
}

func (s *entryStoreStub) GetByID(_ context.Context, id string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil || s.entry.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.entry
	return &copied, nil
}

func (s *entryStoreStub) SetArchiveResult(_ context.Context, _, archiveID, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stampedID = archiveID
	return nil
}

type mediaStoreStub struct {
	mu    sync.Mutex
	media map[string]*models.Media
}

func newMediaStoreStub(media ...models.Media) *mediaStoreStub {
	s := &mediaStoreStub{media: make(map[string]*models.Media)}
	for i := range media {
		m := media[i]
		s.media[m.ID] = &m
	}
	return s
}

func (s *mediaStoreStub) GetByID(_ context.Context, id string) (*models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *m
	return &copied, nil
}

func (s *mediaStoreStub) ListByEntry(_ context.Context, entryID string) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Media
	for _, m := range s.media {
		if m.EntryID == entryID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *mediaStoreStub) ListByIDs(_ context.Context, ids []string) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Media
	for _, id := range ids {
		if m, ok := s.media[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *mediaStoreStub) TransitionStatus(_ context.Context, id string, from []models.ArchiveStatus, to models.ArchiveStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return false, nil
	}
	for _, src := range from {
		if m.Status == src {
			m.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *mediaStoreStub) SetArchived(_ context.Context, id, archiveID, archiveURI string, archivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.media[id]
	m.Status = models.ArchiveStatusArchived
	m.ArchiveID = &archiveID
	m.ArchiveURI = &archiveURI
	m.ArchiveDate = &archivedAt
	m.ErrorDetail = nil
	m.ErrorClass = nil
	return nil
}

func (s *mediaStoreStub) SetError(_ context.Context, id, detail string, class models.ErrorClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.media[id]
	m.Status = models.ArchiveStatusError
	m.ErrorDetail = &detail
	m.ErrorClass = &class
	return nil
}

func (s *mediaStoreStub) ListPending(_ context.Context, _ int) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Media
	for _, m := range s.media {
		if m.Status == models.ArchiveStatusQueued || m.Status == models.ArchiveStatusUpdateQueued {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *mediaStoreStub) status(id string) models.ArchiveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[id].Status
}

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = j.ID
	}
	return out
}

type submitterStub struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	receipt *deposit.Receipt
	err     error
	lastDoc schema.Document
}

func (s *submitterStub) Submit(_ context.Context, doc schema.Document, _ []deposit.Payload) (*deposit.Receipt, error) {
	s.mu.Lock()
	s.calls++
	s.lastDoc = doc
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func (s *submitterStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func artworkEntry() *models.Entry {
	return &models.Entry{
		ID:      "entry-1",
		OwnerID: "user-1",
		Title:   "Study of Light",
		Kind:    models.EntryKindArtwork,
		License: "https://creativecommons.org/licenses/by/4.0/",
		Contributors: models.Contributors{
			{Name: "Ada Krol", Role: models.RoleAuthor},
		},
	}
}

func pngMedia(id, entryID string, status models.ArchiveStatus) models.Media {
	return models.Media{
		ID:       id,
		EntryID:  entryID,
		Filename: "study.png",
		FilePath: id + ".png",
		MimeType: "image/png",
		License:  "https://creativecommons.org/licenses/by/4.0/",
		Status:   status,
	}
}

func ownerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleOwner}
}

func newTestService(t *testing.T, entries *entryStoreStub, media *mediaStoreStub, queue *queueStub, client *submitterStub) *ArchiveService {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m1.png"), []byte("png-bytes"), 0o644))
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	tr := translator.New(vocab.NewStaticResolver(), zap.NewNop())
	return NewArchiveService(entries, media, tr, queue, client, files, nil, nil, zap.NewNop())
}

func TestRequestArchiveQueuesMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusNotArchived))
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	resp, tree, err := svc.RequestArchive(context.Background(), "entry-1", nil, ownerClaims())
	require.NoError(t, err)
	require.Nil(t, tree)

	assert.Equal(t, []string{"m1"}, resp.Queued)
	assert.Empty(t, resp.Skipped)
	assert.Equal(t, models.ArchiveStatusQueued, media.status("m1"))
	assert.Equal(t, []string{"m1:archive"}, queue.ids())
}

func TestRequestArchiveThesisWithoutSupervisor(t *testing.T) {
	entry := artworkEntry()
	entry.Kind = models.EntryKindThesis
	entries := &entryStoreStub{entry: entry}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusNotArchived))
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	resp, tree, err := svc.RequestArchive(context.Background(), "entry-1", nil, ownerClaims())
	require.NoError(t, err)
	require.Nil(t, resp)
	require.NotNil(t, tree)

	assert.Contains(t, tree.Paths(), "contributors.supervisor")
	assert.Equal(t, models.ArchiveStatusNotArchived, media.status("m1"))
	assert.Empty(t, queue.ids())
}

func TestRequestArchiveOwnership(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusNotArchived))
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	_, _, err := svc.RequestArchive(context.Background(), "entry-1", nil,
		&models.JWTClaims{UserID: "someone-else", Role: models.RoleOwner})
	assert.ErrorIs(t, err, appErrors.ErrOwnership)

	_, _, err = svc.RequestArchive(context.Background(), "entry-1", nil,
		&models.JWTClaims{UserID: "someone-else", Role: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestRequestArchiveRejectsForeignMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(
		pngMedia("m1", "entry-1", models.ArchiveStatusNotArchived),
		pngMedia("m2", "entry-2", models.ArchiveStatusNotArchived),
	)
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	_, _, err := svc.RequestArchive(context.Background(), "entry-1", []string{"m1", "m2"}, ownerClaims())
	assert.ErrorIs(t, err, appErrors.ErrConsistency)
	assert.Equal(t, models.ArchiveStatusNotArchived, media.status("m1"))
	assert.Empty(t, queue.ids())
}

func TestRequestArchiveAllBusy(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusInProgress))
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	_, _, err := svc.RequestArchive(context.Background(), "entry-1", nil, ownerClaims())
	assert.ErrorIs(t, err, appErrors.ErrAlreadyInProgress)
}

func TestRequestArchiveQueuesUpdateForArchivedMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	archived := pngMedia("m1", "entry-1", models.ArchiveStatusArchived)
	pid := "o:123"
	archived.ArchiveID = &pid
	media := newMediaStoreStub(archived)
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	resp, tree, err := svc.RequestArchive(context.Background(), "entry-1", nil, ownerClaims())
	require.NoError(t, err)
	require.Nil(t, tree)

	assert.Equal(t, []string{"m1"}, resp.Queued)
	assert.Equal(t, models.ArchiveStatusUpdateQueued, media.status("m1"))
	assert.Equal(t, []string{"m1:update"}, queue.ids())
}

func TestValidateReportsDomainPaths(t *testing.T) {
	entry := artworkEntry()
	entry.Title = ""
	entries := &entryStoreStub{entry: entry}
	bad := pngMedia("m1", "entry-1", models.ArchiveStatusNotArchived)
	bad.MimeType = "not-a-mime"
	media := newMediaStoreStub(bad)
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	tree, err := svc.Validate(context.Background(), "entry-1", ownerClaims())
	require.NoError(t, err)
	require.NotNil(t, tree)

	paths := tree.Paths()
	assert.Contains(t, paths, "title")
	assert.Contains(t, paths, "media[0].mimeType")
}

func TestProcessJobArchivesMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusQueued))
	client := &submitterStub{receipt: &deposit.Receipt{PID: "o:123", URI: "https://archive.example.org/o:123"}}
	svc := newTestService(t, entries, media, &queueStub{}, client)

	err := svc.ProcessJob(context.Background(), jobs.Job{ID: "m1:archive", Type: "archive", Payload: "m1"})
	require.NoError(t, err)

	m, err := media.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusArchived, m.Status)
	require.NotNil(t, m.ArchiveID)
	assert.Equal(t, "o:123", *m.ArchiveID)
	require.NotNil(t, m.ArchiveURI)
	assert.Equal(t, "https://archive.example.org/o:123", *m.ArchiveURI)
	assert.Equal(t, "o:123", entries.stampedID)
	assert.Equal(t, "Study of Light", client.lastDoc["dce:title"])
}

func TestProcessJobLeaseIsExclusive(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusQueued))
	client := &submitterStub{
		delay:   50 * time.Millisecond,
		receipt: &deposit.Receipt{PID: "o:123", URI: "https://archive.example.org/o:123"},
	}
	svc := newTestService(t, entries, media, &queueStub{}, client)

	job := jobs.Job{ID: "m1:archive", Type: "archive", Payload: "m1"}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.ProcessJob(context.Background(), job))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, models.ArchiveStatusArchived, media.status("m1"))
}

func TestProcessJobRemoteRejection(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusQueued))
	remote := schema.NewErrorTree()
	remote.Add("dce:title", "title already taken")
	client := &submitterStub{err: &deposit.RemoteValidationError{Tree: remote}}
	svc := newTestService(t, entries, media, &queueStub{}, client)

	err := svc.ProcessJob(context.Background(), jobs.Job{ID: "m1:archive", Type: "archive", Payload: "m1"})
	require.NoError(t, err)

	m, err := media.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusError, m.Status)
	require.NotNil(t, m.ErrorClass)
	assert.Equal(t, models.ErrorClassPermanent, *m.ErrorClass)
	require.NotNil(t, m.ErrorDetail)
	assert.Contains(t, *m.ErrorDetail, "title")
	assert.Contains(t, *m.ErrorDetail, "title already taken")
}

func TestProcessJobTransientFailure(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusQueued))
	client := &submitterStub{err: appErrors.Clone(appErrors.ErrTransientExternal, "connection refused")}
	svc := newTestService(t, entries, media, &queueStub{}, client)

	err := svc.ProcessJob(context.Background(), jobs.Job{ID: "m1:archive", Type: "archive", Payload: "m1"})
	require.NoError(t, err)

	m, err := media.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusError, m.Status)
	require.NotNil(t, m.ErrorClass)
	assert.Equal(t, models.ErrorClassTransient, *m.ErrorClass)
}

func TestProcessJobMissingPayloadFile(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	missing := pngMedia("m1", "entry-1", models.ArchiveStatusQueued)
	missing.FilePath = "gone.png"
	media := newMediaStoreStub(missing)
	client := &submitterStub{receipt: &deposit.Receipt{PID: "o:1", URI: "u"}}
	svc := newTestService(t, entries, media, &queueStub{}, client)

	err := svc.ProcessJob(context.Background(), jobs.Job{ID: "m1:archive", Type: "archive", Payload: "m1"})
	require.NoError(t, err)

	m, err := media.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusError, m.Status)
	require.NotNil(t, m.ErrorClass)
	assert.Equal(t, models.ErrorClassPermanent, *m.ErrorClass)
	assert.Equal(t, 0, client.callCount())
}

func TestRetryRequeuesErroredMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	errored := pngMedia("m1", "entry-1", models.ArchiveStatusError)
	media := newMediaStoreStub(errored)
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	require.NoError(t, svc.Retry(context.Background(), "m1", ownerClaims()))
	assert.Equal(t, models.ArchiveStatusQueued, media.status("m1"))
	assert.Equal(t, []string{"m1:archive"}, queue.ids())
}

func TestRetryRejectsNonErroredMedia(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(pngMedia("m1", "entry-1", models.ArchiveStatusArchived))
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	err := svc.Retry(context.Background(), "m1", ownerClaims())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRecoverPendingRequeues(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(
		pngMedia("m1", "entry-1", models.ArchiveStatusQueued),
		pngMedia("m2", "entry-1", models.ArchiveStatusUpdateQueued),
		pngMedia("m3", "entry-1", models.ArchiveStatusArchived),
	)
	queue := &queueStub{}
	svc := newTestService(t, entries, media, queue, &submitterStub{})

	svc.RecoverPending(context.Background())

	ids := queue.ids()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "m1:archive")
	assert.Contains(t, ids, "m2:update")
}

func TestEntryStatusAggregates(t *testing.T) {
	entries := &entryStoreStub{entry: artworkEntry()}
	media := newMediaStoreStub(
		pngMedia("m1", "entry-1", models.ArchiveStatusArchived),
		pngMedia("m2", "entry-1", models.ArchiveStatusError),
	)
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	resp, err := svc.EntryStatus(context.Background(), "entry-1", ownerClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusError, resp.Status)
	assert.Len(t, resp.Media, 2)
}

func TestEntryStatusNotFound(t *testing.T) {
	entries := &entryStoreStub{}
	media := newMediaStoreStub()
	svc := newTestService(t, entries, media, &queueStub{}, &submitterStub{})

	_, err := svc.EntryStatus(context.Background(), "missing", ownerClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
