package dto

import (
	"time"

	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
)

// ArchiveRequest selects which media of an entry to archive. An empty
// list means every media owned by the entry.
type ArchiveRequest struct {
	MediaIDs []string `json:"mediaIds" validate:"omitempty,dive,required"`
}

// ArchiveAcceptedResponse reports which assets were queued.
type ArchiveAcceptedResponse struct {
	EntryID string   `json:"entryId"`
	Queued  []string `json:"queued"`
	Skipped []string `json:"skipped,omitempty"`
}

// ValidationResponse carries the outcome of a dry-run validation.
// Errors keeps the schema declaration order when serialized.
type ValidationResponse struct {
	Valid  bool              `json:"valid"`
	Errors *schema.ErrorTree `json:"errors,omitempty"`
}

// MediaStatusResponse exposes one asset's archival state.
type MediaStatusResponse struct {
	ID          string               `json:"id"`
	Status      models.ArchiveStatus `json:"status"`
	ArchiveID   *string              `json:"archiveId,omitempty"`
	ArchiveURI  *string              `json:"archiveUri,omitempty"`
	ArchiveDate *time.Time           `json:"archiveDate,omitempty"`
	Error       *string              `json:"error,omitempty"`
	ErrorClass  *models.ErrorClass   `json:"errorClass,omitempty"`
}

// EntryStatusResponse aggregates an entry's archival state.
type EntryStatusResponse struct {
	EntryID     string                `json:"entryId"`
	Status      models.ArchiveStatus  `json:"status"`
	ArchiveID   *string               `json:"archiveId,omitempty"`
	ArchiveURI  *string               `json:"archiveUri,omitempty"`
	ArchiveDate *time.Time            `json:"archiveDate,omitempty"`
	Media       []MediaStatusResponse `json:"media"`
}
