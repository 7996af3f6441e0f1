package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveEntryStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []ArchiveStatus
		want     ArchiveStatus
	}{
		{"no media", nil, ArchiveStatusNotArchived},
		{"all fresh", []ArchiveStatus{ArchiveStatusNotArchived}, ArchiveStatusNotArchived},
		{"in progress wins", []ArchiveStatus{ArchiveStatusArchived, ArchiveStatusInProgress, ArchiveStatusError}, ArchiveStatusInProgress},
		{"queued beats error", []ArchiveStatus{ArchiveStatusError, ArchiveStatusQueued}, ArchiveStatusQueued},
		{"update queued counts as queued", []ArchiveStatus{ArchiveStatusArchived, ArchiveStatusUpdateQueued}, ArchiveStatusQueued},
		{"error beats archived", []ArchiveStatus{ArchiveStatusArchived, ArchiveStatusError}, ArchiveStatusError},
		{"fully archived", []ArchiveStatus{ArchiveStatusArchived, ArchiveStatusArchived}, ArchiveStatusArchived},
		{"partially archived", []ArchiveStatus{ArchiveStatusArchived, ArchiveStatusNotArchived}, ArchiveStatusNotArchived},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			media := make([]Media, 0, len(tc.statuses))
			for _, s := range tc.statuses {
				media = append(media, Media{Status: s})
			}
			assert.Equal(t, tc.want, DeriveEntryStatus(media))
		})
	}
}

func TestContributorsWithRole(t *testing.T) {
	c := Contributors{
		{Name: "Ada", Role: RoleAuthor},
		{Name: "Bela", Role: RoleSupervisor},
		{Name: "Cara", Role: RoleAuthor},
	}
	authors := c.WithRole(RoleAuthor)
	assert.Len(t, authors, 2)
	assert.Equal(t, "Ada", authors[0].Name)
	assert.Empty(t, c.WithRole(RoleEditor))
}
