package translator

import (
	"strings"

	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
)

// External field names. These are matched verbatim by the archive
// service and must never be renamed.
const (
	fieldTitle    = "dce:title"
	fieldType     = "dcterms:type"
	fieldRights   = "edm:rights"
	fieldMembers  = "ebucore:hasMember"
	fieldFilename = "ebucore:filename"
	fieldMime     = "ebucore:hasMimeType"
	fieldName     = "schema:name"
	fieldMatch    = "skos:exactMatch"
	rolePrefix    = "role:"
)

// UnmappedKey prefixes external error paths that have no declared
// domain counterpart. They are passed through rather than dropped.
const UnmappedKey = "unmapped"

// Rule binds one domain field path to its external schema field. The
// one table derives both translation directions: building the schema
// registry for validation and inverting validator error paths back to
// domain paths. "[]" marks list segments whose element indices carry
// across the inversion unchanged.
type Rule struct {
	Domain      string
	External    string
	Required    bool
	Missing     string
	Constraints []schema.Constraint
}

// schemaField derives the registry declaration from a rule.
func (r Rule) schemaField() schema.Field {
	return schema.Field{
		Path:        stripMarkers(r.External),
		Required:    r.Required,
		Missing:     r.Missing,
		Constraints: r.Constraints,
	}
}

func stripMarkers(path string) string {
	return strings.ReplaceAll(path, "[]", "")
}

// entryRules describes the entry-level metadata document.
var entryRules = []Rule{
	{Domain: "title", External: fieldTitle, Required: true, Missing: "title is required"},
	{
		Domain:   "kind",
		External: fieldType,
		Required: true,
		Missing:  "entry type is required",
		Constraints: []schema.Constraint{schema.OneOf(
			"entry type is not an archivable classification",
			string(models.EntryKindThesis),
			string(models.EntryKindArtwork),
			string(models.EntryKindPublication),
			string(models.EntryKindPerformance),
		)},
	},
	{Domain: "license", External: fieldRights, Required: true, Missing: "license is required"},
	{
		Domain:   "media[].filename",
		External: fieldMembers + "[]." + fieldFilename,
		Required: true,
		Missing:  "media filename is required",
	},
	{
		Domain:      "media[].mimeType",
		External:    fieldMembers + "[]." + fieldMime,
		Required:    true,
		Missing:     "media mime type is required",
		Constraints: []schema.Constraint{schema.MimeType("media mime type must be a type/subtype pair")},
	},
	{
		Domain:   "media[].license",
		External: fieldMembers + "[]." + fieldRights,
		Required: true,
		Missing:  "media license is required",
	},
}

// assetRules describes the standalone per-asset document submitted
// when a single archived media object is updated.
var assetRules = []Rule{
	{Domain: "filename", External: fieldFilename, Required: true, Missing: "filename is required"},
	{
		Domain:      "mimeType",
		External:    fieldMime,
		Required:    true,
		Missing:     "mime type is required",
		Constraints: []schema.Constraint{schema.MimeType("mime type must be a type/subtype pair")},
	},
	{Domain: "license", External: fieldRights, Required: true, Missing: "license is required"},
}

// roleRules declares the inverse mapping for contributor role keys.
// Runtime resolution of domain roles still goes through the
// vocabulary resolver; this table only rewrites error paths.
var roleRules = []Rule{
	{Domain: "contributors." + models.RoleAuthor, External: rolePrefix + "aut"},
	{Domain: "contributors." + models.RoleSupervisor, External: rolePrefix + "ths"},
	{Domain: "contributors." + models.RoleAdvisor, External: rolePrefix + "dgs"},
	{Domain: "contributors." + models.RoleEditor, External: rolePrefix + "edt"},
	{Domain: "contributors." + models.RolePhotographer, External: rolePrefix + "pht"},
}

// Directive is a conditional requirement evaluated against the
// entry's classification when the schema variant is built.
type Directive struct {
	When  func(*models.Entry) bool
	Field schema.Field
}

var directives = []Directive{
	{
		When: func(e *models.Entry) bool { return e.Kind == models.EntryKindThesis },
		Field: schema.Field{
			Path:     rolePrefix + "ths",
			Required: true,
			Missing:  "a thesis entry requires a contributor holding the supervisor role",
		},
	},
}
