package models

import "time"

// ArchiveStatus captures a media asset's position in the archival
// lifecycle. Transitions go through the media repository's
// compare-and-swap update, never direct assignment.
type ArchiveStatus string

const (
	ArchiveStatusNotArchived  ArchiveStatus = "NOT_ARCHIVED"
	ArchiveStatusQueued       ArchiveStatus = "QUEUED"
	ArchiveStatusInProgress   ArchiveStatus = "IN_PROGRESS"
	ArchiveStatusArchived     ArchiveStatus = "ARCHIVED"
	ArchiveStatusError        ArchiveStatus = "ERROR"
	ArchiveStatusUpdateQueued ArchiveStatus = "UPDATE_QUEUED"
)

// ErrorClass splits failed submissions into retry-eligible and
// manual-intervention buckets.
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
)

// Media is a binary asset owned by exactly one entry. The file itself
// lives in external storage; FilePath is relative to the media base
// directory.
type Media struct {
	ID          string        `db:"id" json:"id"`
	EntryID     string        `db:"entry_id" json:"entryId"`
	Filename    string        `db:"filename" json:"filename"`
	FilePath    string        `db:"file_path" json:"-"`
	MimeType    string        `db:"mime_type" json:"mimeType"`
	License     string        `db:"license" json:"license"`
	Status      ArchiveStatus `db:"status" json:"status"`
	ArchiveID   *string       `db:"archive_id" json:"archiveId,omitempty"`
	ArchiveURI  *string       `db:"archive_uri" json:"archiveUri,omitempty"`
	ArchiveDate *time.Time    `db:"archive_date" json:"archiveDate,omitempty"`
	ErrorDetail *string       `db:"error_detail" json:"errorDetail,omitempty"`
	ErrorClass  *ErrorClass   `db:"error_class" json:"errorClass,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

// DeriveEntryStatus folds the statuses of an entry's media into a
// single entry-level status. Priority: an active submission wins over
// queued work, queued work over errors, errors over completion.
func DeriveEntryStatus(media []Media) ArchiveStatus {
	if len(media) == 0 {
		return ArchiveStatusNotArchived
	}
	var queued, errored, archived, notArchived bool
	for _, m := range media {
		switch m.Status {
		case ArchiveStatusInProgress:
			return ArchiveStatusInProgress
		case ArchiveStatusQueued, ArchiveStatusUpdateQueued:
			queued = true
		case ArchiveStatusError:
			errored = true
		case ArchiveStatusArchived:
			archived = true
		default:
			notArchived = true
		}
	}
	switch {
	case queued:
		return ArchiveStatusQueued
	case errored:
		return ArchiveStatusError
	case archived && !notArchived:
		return ArchiveStatusArchived
	default:
		return ArchiveStatusNotArchived
	}
}
