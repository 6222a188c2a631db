package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
)

// Engine discovers usable resource identifiers from live API responses
// and builds the parameter cache every test substitution reads from.
// Individual fetch failures are logged and skipped; only a failed
// authentication aborts discovery.
type Engine struct {
	baseURL    string
	provider   auth.Provider
	client     *http.Client
	log        *logger.Logger
	sampleSize int
}

// NewEngine creates a discovery engine. sampleSize caps records per
// category to bound the later test fan-out.
func NewEngine(baseURL string, provider auth.Provider, log *logger.Logger, timeout time.Duration, sampleSize int) *Engine {
	if sampleSize <= 0 {
		sampleSize = 10
	}
	return &Engine{
		baseURL:    baseURL,
		provider:   provider,
		client:     &http.Client{Timeout: timeout},
		log:        log,
		sampleSize: sampleSize,
	}
}

// Discover builds the test data cache. The returned error is non-nil only
// when authentication fails; every other problem shrinks the cache.
func (e *Engine) Discover(ctx context.Context) (Cache, error) {
	headers, err := e.provider.ObtainAuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	cache := Cache{}
	for _, spec := range directCategories {
		cache[spec.name] = e.discoverCategory(ctx, headers, spec)
	}

	e.deriveSystemsFromSourcefiles(ctx, headers, cache)
	e.deriveAuditData(ctx, headers, cache)
	e.deriveAliases(ctx, headers, cache)

	return cache, nil
}

// discoverCategory tries the category's candidate endpoints until one
// yields a non-empty extraction.
func (e *Engine) discoverCategory(ctx context.Context, headers map[string]string, spec categorySpec) []types.DiscoveredRecord {
	for _, endpoint := range spec.endpoints {
		url := e.baseURL + endpoint
		body, err := e.fetchJSON(ctx, headers, url)
		if err != nil {
			e.log.LogDiscovery(spec.name, url, 0, err)
			continue
		}
		records := e.collect(ExtractRecords(body), spec)
		e.log.LogDiscovery(spec.name, url, len(records), nil)
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

// collect derives identifiers from raw records, drops the unusable ones
// and truncates to the sample size.
func (e *Engine) collect(raw []map[string]interface{}, spec categorySpec) []types.DiscoveredRecord {
	records := make([]types.DiscoveredRecord, 0, e.sampleSize)
	for _, r := range raw {
		rec := deriveRecord(r, spec)
		if rec.ID == "" && rec.Name == "" {
			continue
		}
		records = append(records, rec)
		if len(records) == e.sampleSize {
			break
		}
	}
	return records
}

// deriveSystemsFromSourcefiles fills the systems category from individual
// sourcefile detail responses when the direct list came up empty.
func (e *Engine) deriveSystemsFromSourcefiles(ctx context.Context, headers map[string]string, cache Cache) {
	if len(cache[CategorySystems]) > 0 {
		return
	}
	seen := map[string]bool{}
	var systems []types.DiscoveredRecord
	for _, sf := range cache[CategorySourcefiles] {
		key := sf.ID
		if key == "" {
			key = sf.Name
		}
		url := fmt.Sprintf("%s/api/sourcefiles/%s", e.baseURL, key)
		body, err := e.fetchJSON(ctx, headers, url)
		if err != nil {
			e.log.LogDiscovery(CategorySystems, url, 0, err)
			continue
		}
		detail, ok := body.(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range []string{"system", "sourceSystem", "targetSystem"} {
			if v := StringField(detail, field); v != "" && !seen[v] {
				seen[v] = true
				systems = append(systems, types.DiscoveredRecord{ID: v, Name: v})
			}
		}
		if len(systems) >= e.sampleSize {
			break
		}
	}
	if len(systems) > 0 {
		cache[CategorySystems] = systems
	}
}

// deriveAuditData extracts audit zones and keys from the first
// sourcefile's audit listing. Failures leave the categories empty.
func (e *Engine) deriveAuditData(ctx context.Context, headers map[string]string, cache Cache) {
	sf, ok := cache.First(CategorySourcefiles)
	if !ok {
		return
	}
	key := sf.ID
	if key == "" {
		key = sf.Name
	}
	url := fmt.Sprintf("%s/api/sourcefiles/%s/audit", e.baseURL, key)
	body, err := e.fetchJSON(ctx, headers, url)
	if err != nil {
		e.log.LogDiscovery(CategoryAuditKeys, url, 0, err)
		return
	}

	zonesSeen := map[string]bool{}
	var zones, keys []types.DiscoveredRecord
	for _, raw := range ExtractRecords(body) {
		if zone := StringField(raw, "zone"); zone != "" && !zonesSeen[zone] {
			zonesSeen[zone] = true
			zones = append(zones, types.DiscoveredRecord{ID: zone, Name: zone})
		}
		for _, field := range []string{"key", "auditKey", "id"} {
			if k := StringField(raw, field); k != "" {
				keys = append(keys, types.DiscoveredRecord{ID: k, System: sf.System})
				break
			}
		}
		if len(keys) >= e.sampleSize {
			break
		}
	}
	e.log.LogDiscovery(CategoryAuditZones, url, len(zones), nil)
	e.log.LogDiscovery(CategoryAuditKeys, url, len(keys), nil)
	cache[CategoryAuditZones] = capRecords(zones, e.sampleSize)
	cache[CategoryAuditKeys] = capRecords(keys, e.sampleSize)
}

// deriveAliases extracts export and ingest aliases from the first
// discovered system's alias listings.
func (e *Engine) deriveAliases(ctx context.Context, headers map[string]string, cache Cache) {
	system, ok := cache.First(CategorySystems)
	if !ok {
		return
	}
	key := system.ID
	if key == "" {
		key = system.Name
	}
	for category, segment := range map[string]string{
		CategoryExportAliases: "export",
		CategoryIngestAliases: "ingest",
	} {
		url := fmt.Sprintf("%s/api/systems/%s/%s", e.baseURL, key, segment)
		body, err := e.fetchJSON(ctx, headers, url)
		if err != nil {
			e.log.LogDiscovery(category, url, 0, err)
			continue
		}
		var aliases []types.DiscoveredRecord
		for _, raw := range ExtractRecords(body) {
			for _, field := range []string{"alias", "name", "id"} {
				if v := StringField(raw, field); v != "" {
					aliases = append(aliases, types.DiscoveredRecord{ID: v, System: key})
					break
				}
			}
			if len(aliases) >= e.sampleSize {
				break
			}
		}
		e.log.LogDiscovery(category, url, len(aliases), nil)
		cache[category] = aliases
	}
}

func capRecords(recs []types.DiscoveredRecord, max int) []types.DiscoveredRecord {
	if len(recs) > max {
		return recs[:max]
	}
	return recs
}

// fetchJSON issues an authenticated GET and decodes the JSON body.
func (e *Engine) fetchJSON(ctx context.Context, headers map[string]string, url string) (interface{}, error) {
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

var pathParamRe = regexp.MustCompile(`\{([^/{}]+)\}`)

// Substitute replaces every {name} token in a path template with a
// discovered identifier, falling back to the literal "1" when neither a
// mapping nor a cached record exists. The result is always a
// syntactically valid concrete path.
func Substitute(pathTemplate string, cache Cache) string {
	return pathParamRe.ReplaceAllStringFunc(pathTemplate, func(token string) string {
		param := token[1 : len(token)-1]
		category, ok := CategoryForParameter(param)
		if !ok {
			return "1"
		}
		rec, ok := cache.First(category)
		if !ok {
			return "1"
		}
		if rec.ID != "" {
			return rec.ID
		}
		if rec.Name != "" {
			return rec.Name
		}
		return "1"
	})
}
