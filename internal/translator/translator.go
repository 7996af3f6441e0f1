package translator

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
	"github.com/openfolio/archive-api/internal/vocab"
)

// Translator converts the entry/media domain graph into the archive
// service's document shape and maps validator error paths back onto
// domain field paths. It holds no mutable state.
type Translator struct {
	registry *schema.Registry
	resolver vocab.Resolver
	logger   *zap.Logger
	inverse  map[string]string
}

// New builds the translator, deriving the schema registry and the
// inverse path table from the shared rule tables.
func New(resolver vocab.Resolver, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := schema.NewRegistry()
	inverse := make(map[string]string)

	for _, r := range entryRules {
		registry.Register(schema.KindEntry, r.schemaField())
		inverse[stripMarkers(r.External)] = r.Domain
	}
	for _, r := range assetRules {
		registry.Register(schema.KindAsset, r.schemaField())
		inverse[stripMarkers(r.External)] = r.Domain
	}
	for _, r := range roleRules {
		inverse[r.External] = r.Domain
	}

	return &Translator{
		registry: registry,
		resolver: resolver,
		logger:   logger,
		inverse:  inverse,
	}
}

// Registry exposes the derived schema registry.
func (t *Translator) Registry() *schema.Registry {
	return t.registry
}

// SchemaFor builds the entry schema variant for an entry's
// classification, applying every matching conditional directive.
func (t *Translator) SchemaFor(entry *models.Entry) schema.Schema {
	var extra []schema.Field
	for _, d := range directives {
		if d.When(entry) {
			extra = append(extra, d.Field)
		}
	}
	return t.registry.Variant(schema.KindEntry, extra...)
}

// AssetSchema returns the standalone per-asset document schema.
func (t *Translator) AssetSchema() schema.Schema {
	return t.registry.Variant(schema.KindAsset)
}

// ToExternal builds the entry-level metadata document for an entry
// and the media being submitted with it. Contributor roles resolve
// through the vocabulary collaborator; unresolvable roles are dropped
// with a warning rather than failing the translation.
func (t *Translator) ToExternal(ctx context.Context, entry *models.Entry, media []models.Media) schema.Document {
	doc := schema.Document{
		fieldTitle:  entry.Title,
		fieldType:   string(entry.Kind),
		fieldRights: entry.License,
	}

	for _, contributor := range entry.Contributors {
		terms, err := t.resolver.Resolve(ctx, contributor.Role)
		if err != nil {
			t.logger.Sugar().Warnw("role resolution failed, dropping contributor role",
				"entry_id", entry.ID, "role", contributor.Role, "error", err)
			continue
		}
		if len(terms) == 0 {
			t.logger.Sugar().Warnw("role has no external vocabulary term, dropping",
				"entry_id", entry.ID, "role", contributor.Role)
			continue
		}
		for _, term := range terms {
			key := rolePrefix + term
			block := map[string]interface{}{fieldName: contributor.Name}
			if contributor.SourceURI != nil && *contributor.SourceURI != "" {
				block[fieldMatch] = []interface{}{*contributor.SourceURI}
			}
			existing, _ := doc[key].([]interface{})
			doc[key] = append(existing, block)
		}
	}

	members := make([]interface{}, 0, len(media))
	for _, m := range media {
		members = append(members, map[string]interface{}{
			fieldFilename: m.Filename,
			fieldMime:     m.MimeType,
			fieldRights:   m.License,
		})
	}
	doc[fieldMembers] = members

	return doc
}

// ToAssetDocument builds the standalone document for a single media
// object, used for metadata updates of an already archived asset.
func (t *Translator) ToAssetDocument(m models.Media) schema.Document {
	return schema.Document{
		fieldFilename: m.Filename,
		fieldMime:     m.MimeType,
		fieldRights:   m.License,
	}
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// ToDomainErrors rewrites every external error path onto its domain
// counterpart using the inverted rule table. List indices carry over
// positionally. Paths with no declared inverse are preserved under
// the reserved unmapped key.
func (t *Translator) ToDomainErrors(tree *schema.ErrorTree) *schema.ErrorTree {
	out := schema.NewErrorTree()
	tree.Walk(func(path string, messages []string) {
		domainPath, ok := t.invert(path)
		if !ok {
			domainPath = UnmappedKey + "." + path
		}
		for _, msg := range messages {
			out.Add(domainPath, msg)
		}
	})
	return out
}

func (t *Translator) invert(path string) (string, bool) {
	indices := indexPattern.FindAllString(path, -1)
	base := indexPattern.ReplaceAllString(path, "")
	domain, ok := t.inverse[base]
	if !ok {
		return "", false
	}
	for _, idx := range indices {
		domain = strings.Replace(domain, "[]", idx, 1)
	}
	// A declared list segment with no concrete index loses its marker.
	domain = strings.ReplaceAll(domain, "[]", "")
	return domain, true
}
