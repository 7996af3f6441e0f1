package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openfolio/archive-api/internal/models"
)

const mediaColumns = `id, entry_id, filename, file_path, mime_type, license, status, archive_id, archive_uri, archive_date, error_detail, error_class, created_at, updated_at`

// MediaRepository persists media archival state. Every status change
// goes through TransitionStatus or one of the outcome writers; the
// compare-and-swap in TransitionStatus is the per-asset lease.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository constructs the repository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// GetByID returns a media row by its identifier.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	query := fmt.Sprintf(`SELECT %s FROM media WHERE id = $1`, mediaColumns)
	var m models.Media
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &m, nil
}

// ListByEntry returns all media owned by an entry.
func (r *MediaRepository) ListByEntry(ctx context.Context, entryID string) ([]models.Media, error) {
	query := fmt.Sprintf(`SELECT %s FROM media WHERE entry_id = $1 ORDER BY created_at ASC`, mediaColumns)
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, query, entryID); err != nil {
		return nil, fmt.Errorf("list media by entry: %w", err)
	}
	return media, nil
}

// ListByIDs returns the media rows for the given identifiers.
func (r *MediaRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM media WHERE id = ANY($1) ORDER BY created_at ASC`, mediaColumns)
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list media by ids: %w", err)
	}
	return media, nil
}

// TransitionStatus atomically moves a media asset from one of the
// allowed source states to the target state. The false return means
// the row was not in an allowed source state, which is how a second
// concurrent worker observes "already in progress".
func (r *MediaRepository) TransitionStatus(ctx context.Context, id string, from []models.ArchiveStatus, to models.ArchiveStatus) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	const query = `UPDATE media SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, pq.Array(sources))
	if err != nil {
		return false, fmt.Errorf("transition media status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition media status result: %w", err)
	}
	return affected == 1, nil
}

// SetArchived records a successful submission outcome and releases
// the in-progress lease by moving the asset to ARCHIVED.
func (r *MediaRepository) SetArchived(ctx context.Context, id, archiveID, archiveURI string, archivedAt time.Time) error {
	const query = `UPDATE media SET status = $1, archive_id = $2, archive_uri = $3, archive_date = $4, error_detail = NULL, error_class = NULL, updated_at = $5 WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query, models.ArchiveStatusArchived, archiveID, archiveURI, archivedAt, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set media archived: %w", err)
	}
	return nil
}

// SetError records a failed submission outcome with its retry
// classification and releases the lease by moving the asset to ERROR.
func (r *MediaRepository) SetError(ctx context.Context, id, detail string, class models.ErrorClass) error {
	const query = `UPDATE media SET status = $1, error_detail = $2, error_class = $3, updated_at = $4 WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, models.ArchiveStatusError, detail, class, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set media error: %w", err)
	}
	return nil
}

// ListTransientErrorsBefore returns media stuck in a retry-eligible
// error state since before the cutoff, oldest first.
func (r *MediaRepository) ListTransientErrorsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Media, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM media WHERE status = $1 AND error_class = $2 AND updated_at < $3 ORDER BY updated_at ASC LIMIT $4`, mediaColumns)
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, query, models.ArchiveStatusError, models.ErrorClassTransient, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list transient errored media: %w", err)
	}
	return media, nil
}

// ListPending returns media still queued for archival, used for cold
// start recovery after a process restart.
func (r *MediaRepository) ListPending(ctx context.Context, limit int) ([]models.Media, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM media WHERE status = ANY($1) ORDER BY updated_at ASC LIMIT $2`, mediaColumns)
	statuses := pq.Array([]string{string(models.ArchiveStatusQueued), string(models.ArchiveStatusUpdateQueued)})
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, query, statuses, limit); err != nil {
		return nil, fmt.Errorf("list pending media: %w", err)
	}
	return media, nil
}
