package discovery

import (
	"strings"

	"api-contract-tester/internal/types"
)

// Cache maps a logical category to the discovered sample records for it.
// Built once per run, read-only afterwards.
type Cache map[string][]types.DiscoveredRecord

// First returns the first record discovered for a category.
func (c Cache) First(category string) (types.DiscoveredRecord, bool) {
	recs := c[category]
	if len(recs) == 0 {
		return types.DiscoveredRecord{}, false
	}
	return recs[0], true
}

// Total counts records across every category.
func (c Cache) Total() int {
	n := 0
	for _, recs := range c {
		n += len(recs)
	}
	return n
}

const (
	CategorySystems       = "systems"
	CategorySourcefiles   = "sourcefiles"
	CategoryModelObjects  = "modelObjects"
	CategoryAttributes    = "attributes"
	CategoryAuditZones    = "auditZones"
	CategoryAuditKeys     = "auditKeys"
	CategoryExportAliases = "exportAliases"
	CategoryIngestAliases = "ingestAliases"
)

// categorySpec describes how one cache category is discovered: which
// endpoints to try and, per record, which fields carry the identifier and
// the display name. Field lists are ordered; the first present non-empty
// field wins.
type categorySpec struct {
	name       string
	endpoints  []string
	idFields   []string
	nameFields []string
}

// directCategories are discoverable with plain list GETs. Order matters:
// sourcefiles come first because later composed lookups need one.
var directCategories = []categorySpec{
	{
		name:       CategorySourcefiles,
		endpoints:  []string{"/api/sourcefiles", "/api/sourcefiles/list"},
		idFields:   []string{"sourcefile", "sourceFile", "id", "_id", "fileName"},
		nameFields: []string{"name", "fileName", "description"},
	},
	{
		name:       CategorySystems,
		endpoints:  []string{"/api/systems", "/api/sourcesystems"},
		idFields:   []string{"system", "sourceSystem", "id", "_id", "code"},
		nameFields: []string{"name", "description"},
	},
	{
		name:       CategoryModelObjects,
		endpoints:  []string{"/api/model/objects", "/api/modelobjects"},
		idFields:   []string{"mObject", "object", "id", "_id"},
		nameFields: []string{"name", "label"},
	},
	{
		name:       CategoryAttributes,
		endpoints:  []string{"/api/model/attributes", "/api/attributes"},
		idFields:   []string{"attribute", "id", "_id"},
		nameFields: []string{"name", "label"},
	},
}

// genericIDFields close every heuristic chain.
var genericIDFields = []string{"id", "_id", "name"}

// deriveRecord applies the ordered field heuristics to one raw record.
// Records lacking both an id and a name are dropped by the caller.
func deriveRecord(raw map[string]interface{}, spec categorySpec) types.DiscoveredRecord {
	rec := types.DiscoveredRecord{}
	for _, field := range spec.idFields {
		if v := StringField(raw, field); v != "" {
			rec.ID = v
			break
		}
	}
	if rec.ID == "" {
		for _, field := range genericIDFields {
			if v := StringField(raw, field); v != "" {
				rec.ID = v
				break
			}
		}
	}
	for _, field := range spec.nameFields {
		if v := StringField(raw, field); v != "" {
			rec.Name = v
			break
		}
	}
	if rec.Name == "" {
		rec.Name = StringField(raw, "name")
	}
	for _, field := range []string{"system", "sourceSystem"} {
		if v := StringField(raw, field); v != "" {
			rec.System = v
			break
		}
	}
	return rec
}

// parameterMapping routes a lower-cased path parameter name to the cache
// category whose records substitute it. Several spellings alias the same
// category; this table is a design contract, not discovered at runtime.
var parameterMapping = map[string]string{
	"sourcefile":   CategorySourcefiles,
	"file":         CategorySourcefiles,
	"filename":     CategorySourcefiles,
	"system":       CategorySystems,
	"sourcesystem": CategorySystems,
	"targetsystem": CategorySystems,
	"mobject":      CategoryModelObjects,
	"object":       CategoryModelObjects,
	"modelobject":  CategoryModelObjects,
	"attribute":    CategoryAttributes,
	"attributeid":  CategoryAttributes,
	"zone":         CategoryAuditZones,
	"auditzone":    CategoryAuditZones,
	"key":          CategoryAuditKeys,
	"auditkey":     CategoryAuditKeys,
	"exportalias":  CategoryExportAliases,
	"alias":        CategoryExportAliases,
	"ingestalias":  CategoryIngestAliases,
}

// CategoryForParameter resolves a path parameter name to its category.
func CategoryForParameter(param string) (string, bool) {
	category, ok := parameterMapping[strings.ToLower(param)]
	return category, ok
}
