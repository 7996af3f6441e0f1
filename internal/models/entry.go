package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EntryKind classifies a portfolio entry. The kind selects the schema
// variant used when the entry is translated for archival.
type EntryKind string

const (
	EntryKindThesis      EntryKind = "thesis"
	EntryKindArtwork     EntryKind = "artwork"
	EntryKindPublication EntryKind = "publication"
	EntryKindPerformance EntryKind = "performance"
)

// Domain contributor role codes. Resolution to the archive service's
// vocabulary happens through the vocab resolver, never here.
const (
	RoleAuthor       = "author"
	RoleSupervisor   = "supervisor"
	RoleAdvisor      = "advisor"
	RoleEditor       = "editor"
	RolePhotographer = "photographer"
)

// Contributor attaches a person to an entry under a domain role code.
type Contributor struct {
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	SourceURI *string `json:"sourceUri,omitempty"`
}

// Contributors is persisted as a JSONB column.
type Contributors []Contributor

// Value marshals contributors to JSON for persistence.
func (c Contributors) Value() (driver.Value, error) {
	if c == nil {
		c = Contributors{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal contributors: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the contributor slice.
func (c *Contributors) Scan(value interface{}) error {
	if value == nil {
		*c = Contributors{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Contributors", value)
	}
	if len(data) == 0 {
		*c = Contributors{}
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal contributors: %w", err)
	}
	return nil
}

// WithRole returns the contributors holding the given domain role code.
func (c Contributors) WithRole(role string) []Contributor {
	var out []Contributor
	for _, contributor := range c {
		if contributor.Role == role {
			out = append(out, contributor)
		}
	}
	return out
}

// Entry is the archivable portfolio record. The surrounding
// application owns title/kind/contributor edits; the archive fields
// are written exclusively by the archival core.
type Entry struct {
	ID           string       `db:"id" json:"id"`
	OwnerID      string       `db:"owner_id" json:"ownerId"`
	Title        string       `db:"title" json:"title"`
	Kind         EntryKind    `db:"kind" json:"kind"`
	License      string       `db:"license" json:"license"`
	Contributors Contributors `db:"contributors" json:"contributors"`
	ArchiveID    *string      `db:"archive_id" json:"archiveId,omitempty"`
	ArchiveURI   *string      `db:"archive_uri" json:"archiveUri,omitempty"`
	ArchiveDate  *time.Time   `db:"archive_date" json:"archiveDate,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}
