package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openfolio/archive-api/internal/models"
)

const entryColumns = `id, owner_id, title, kind, license, contributors, archive_id, archive_uri, archive_date, created_at, updated_at`

// EntryRepository reads portfolio entries and writes back their
// archival result fields. Entry content itself is owned by the
// surrounding application.
type EntryRepository struct {
	db *sqlx.DB
}

// NewEntryRepository constructs the repository.
func NewEntryRepository(db *sqlx.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// GetByID returns an entry row by its identifier.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE id = $1`, entryColumns)
	var entry models.Entry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &entry, nil
}

// SetArchiveResult stamps the entry with the persistent identifier
// returned by the archive service. Re-archival overwrites the
// previous stamp; nothing else ever clears these fields.
func (r *EntryRepository) SetArchiveResult(ctx context.Context, id, archiveID, archiveURI string, archivedAt time.Time) error {
	const query = `UPDATE entries SET archive_id = $1, archive_uri = $2, archive_date = $3, updated_at = $4 WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, archiveID, archiveURI, archivedAt, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set entry archive result: %w", err)
	}
	return nil
}

// ListArchived returns archived entries ordered by archive date,
// used by the repair sweep to verify derived artifacts.
func (r *EntryRepository) ListArchived(ctx context.Context, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE archive_id IS NOT NULL ORDER BY archive_date ASC LIMIT $1`, entryColumns)
	var entries []models.Entry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list archived entries: %w", err)
	}
	return entries, nil
}
