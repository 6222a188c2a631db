package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/discovery"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
)

// DefaultCatalog lists the parent→child API relationships the expander
// knows about. The parent path returns a collection; each item's
// identifier feeds the child path patterns.
var DefaultCatalog = []types.ParentAPIDefinition{
	{
		ParentPath:          "/api/sourcefiles",
		Description:         "sourcefile detail and audit APIs",
		IDField:             "sourcefile",
		AlternativeIDFields: []string{"sourceFile", "fileName"},
		ChildAPIs: []types.ChildAPIDefinition{
			{PathPattern: "/api/sourcefiles/{sourcefile}", Description: "sourcefile detail", Methods: []string{"GET"}},
			{PathPattern: "/api/sourcefiles/{sourcefile}/audit", Description: "sourcefile audit trail", Methods: []string{"GET"}},
			{PathPattern: "/api/sourcefiles/{sourcefile}/attributes", Description: "sourcefile attributes", Methods: []string{"GET"}},
		},
	},
	{
		ParentPath:          "/api/systems",
		Description:         "system export/ingest APIs",
		IDField:             "system",
		AlternativeIDFields: []string{"sourceSystem", "code"},
		ChildAPIs: []types.ChildAPIDefinition{
			{PathPattern: "/api/systems/{system}", Description: "system detail", Methods: []string{"GET"}},
			{PathPattern: "/api/systems/{system}/export", Description: "system export aliases", Methods: []string{"GET"}},
			{PathPattern: "/api/systems/{system}/ingest", Description: "system ingest aliases", Methods: []string{"GET"}},
		},
	},
	{
		ParentPath:          "/api/model/objects",
		Description:         "model object APIs",
		IDField:             "mObject",
		AlternativeIDFields: []string{"object"},
		ChildAPIs: []types.ChildAPIDefinition{
			{PathPattern: "/api/model/objects/{mObject}", Description: "model object detail", Methods: []string{"GET"}},
			{PathPattern: "/api/model/objects/{mObject}/attributes", Description: "model object attributes", Methods: []string{"GET"}},
		},
	},
}

// ChildInvocation is one concrete child endpoint call produced by the
// expansion.
type ChildInvocation struct {
	Path        string
	Method      string
	Description string
	ResourceID  string
}

// Expander materializes hierarchical test data by fetching parent
// listings and instantiating child path patterns per discovered resource.
type Expander struct {
	baseURL  string
	provider auth.Provider
	client   *http.Client
	log      *logger.Logger
	catalog  []types.ParentAPIDefinition
}

// NewExpander creates an expander over the given catalog; a nil catalog
// selects DefaultCatalog.
func NewExpander(baseURL string, provider auth.Provider, log *logger.Logger, timeout time.Duration, catalog []types.ParentAPIDefinition) *Expander {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Expander{
		baseURL:  baseURL,
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		log:      log,
		catalog:  catalog,
	}
}

// Catalog returns the parent definitions the expander works from.
func (e *Expander) Catalog() []types.ParentAPIDefinition {
	return e.catalog
}

// Fetch GETs every parent path and extracts its resources. Parents that
// error or yield zero resources are skipped with a warning; only a failed
// authentication aborts.
func (e *Expander) Fetch(ctx context.Context) ([]types.HierarchicalTestData, error) {
	headers, err := e.provider.ObtainAuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var out []types.HierarchicalTestData
	for _, def := range e.catalog {
		url := e.baseURL + def.ParentPath
		body, err := e.fetchJSON(ctx, headers, url)
		if err != nil {
			e.log.Printf("hierarchy: %s failed: %v", url, err)
			continue
		}

		resources := e.extractResources(body, def)
		if len(resources) == 0 {
			e.log.Printf("hierarchy: %s yielded no resources, skipping", url)
			continue
		}

		out = append(out, types.HierarchicalTestData{
			ParentPath:    def.ParentPath,
			Description:   def.Description,
			Resources:     resources,
			ChildAPICount: len(def.ChildAPIs),
		})
	}
	return out, nil
}

// extractResources unwraps the parent response with the same precedence
// as discovery and derives each record's id from the definition's field
// chain: idField, then alternatives, then the generic fallback.
func (e *Expander) extractResources(body interface{}, def types.ParentAPIDefinition) []types.DiscoveredRecord {
	fields := make([]string, 0, len(def.AlternativeIDFields)+4)
	fields = append(fields, def.IDField)
	fields = append(fields, def.AlternativeIDFields...)
	fields = append(fields, "id", "_id", "name")

	var resources []types.DiscoveredRecord
	for _, raw := range discovery.ExtractRecords(body) {
		var id string
		for _, field := range fields {
			if v := discovery.StringField(raw, field); v != "" {
				id = v
				break
			}
		}
		if id == "" {
			continue
		}
		resources = append(resources, types.DiscoveredRecord{
			ID:   id,
			Name: discovery.StringField(raw, "name"),
		})
	}
	return resources
}

// Expand instantiates the child path patterns for every resource of one
// materialized parent. Pure: no network calls, catalog order preserved.
func Expand(data types.HierarchicalTestData, def types.ParentAPIDefinition) []ChildInvocation {
	invocations := make([]ChildInvocation, 0, len(data.Resources)*len(def.ChildAPIs))
	for _, resource := range data.Resources {
		for _, child := range def.ChildAPIs {
			path := substitutePlaceholder(child.PathPattern, resource.ID)
			for _, method := range child.Methods {
				invocations = append(invocations, ChildInvocation{
					Path:        path,
					Method:      strings.ToUpper(method),
					Description: child.Description,
					ResourceID:  resource.ID,
				})
			}
		}
	}
	return invocations
}

// substitutePlaceholder replaces the single {param} token of a child
// pattern with the resource id.
func substitutePlaceholder(pattern, id string) string {
	open := strings.Index(pattern, "{")
	if open < 0 {
		return pattern
	}
	end := strings.Index(pattern[open:], "}")
	if end < 0 {
		return pattern
	}
	return pattern[:open] + id + pattern[open+end+1:]
}

func (e *Expander) fetchJSON(ctx context.Context, headers map[string]string, url string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	return body, nil
}
