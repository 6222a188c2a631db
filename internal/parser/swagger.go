package parser

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"api-contract-tester/internal/types"

	"github.com/getkin/kin-openapi/openapi3"
)

// ParseOutcome is what the orchestrator consumes: endpoint groups plus
// the origin to prepend to every path.
type ParseOutcome struct {
	Groups  []types.EndpointGroup
	BaseURL string
}

// SwaggerParser handles fetching and flattening of Swagger/OpenAPI specifications
type SwaggerParser struct {
	baseURL string
	client  *http.Client
	doc     *openapi3.T
}

// NewSwaggerParser creates a new instance of SwaggerParser
func NewSwaggerParser(baseURL string) *SwaggerParser {
	return &SwaggerParser{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Parse fetches the Swagger documentation and flattens it into endpoint
// groups keyed by resource prefix.
func (p *SwaggerParser) Parse() (*ParseOutcome, error) {
	// Try different Swagger/OpenAPI JSON URLs
	urls := []string{
		fmt.Sprintf("%s/swagger/v1/swagger.json", p.baseURL),
		fmt.Sprintf("%s/swagger.json", p.baseURL),
		fmt.Sprintf("%s/v1/swagger.json", p.baseURL),
		fmt.Sprintf("%s/api/swagger.json", p.baseURL),
		fmt.Sprintf("%s/api/v1/swagger.json", p.baseURL),
		fmt.Sprintf("%s/swagger/v1/swagger", p.baseURL),
		fmt.Sprintf("%s/swagger", p.baseURL),
	}

	var lastErr error
	for _, url := range urls {
		p.doc, lastErr = p.fetchOpenAPIDoc(url)
		if lastErr == nil {
			fmt.Printf("Fetched OpenAPI documentation from: %s\n", url)
			break
		}
	}

	if p.doc == nil {
		return nil, fmt.Errorf("failed to fetch OpenAPI documentation from any known URL. Last error: %v", lastErr)
	}

	return &ParseOutcome{
		Groups:  p.extractGroups(),
		BaseURL: p.resolveOrigin(),
	}, nil
}

// fetchOpenAPIDoc fetches the OpenAPI documentation from the given URL
func (p *SwaggerParser) fetchOpenAPIDoc(url string) (*openapi3.T, error) {
	resp, err := p.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI doc: %v", err)
	}

	return doc, nil
}

// resolveOrigin picks the server URL the document advertises, defaulting
// to the URL the document was fetched from.
func (p *SwaggerParser) resolveOrigin() string {
	if p.doc != nil && len(p.doc.Servers) > 0 && p.doc.Servers[0].URL != "" {
		server := p.doc.Servers[0].URL
		if strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://") {
			return strings.TrimSuffix(server, "/")
		}
		// Relative server entry: prepend the fetch origin.
		return p.baseURL + "/" + strings.Trim(server, "/")
	}
	return p.baseURL
}

// extractGroups flattens the document's operations into endpoint groups.
func (p *SwaggerParser) extractGroups() []types.EndpointGroup {
	byResource := make(map[string][]types.Endpoint)

	paths := p.doc.Paths.Map()
	sortedPaths := make([]string, 0, len(paths))
	for path := range paths {
		sortedPaths = append(sortedPaths, path)
	}
	sort.Strings(sortedPaths)

	for _, path := range sortedPaths {
		pathItem := paths[path]
		for method, operation := range pathItem.Operations() {
			summary := ""
			if operation != nil {
				summary = operation.Summary
			}
			resource := resourceOf(path)
			byResource[resource] = append(byResource[resource], types.Endpoint{
				Method:  strings.ToUpper(method),
				Path:    path,
				Summary: summary,
			})
		}
	}

	resources := make([]string, 0, len(byResource))
	for resource := range byResource {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	groups := make([]types.EndpointGroup, 0, len(resources))
	for _, resource := range resources {
		eps := byResource[resource]
		sort.SliceStable(eps, func(i, j int) bool {
			if eps[i].Path != eps[j].Path {
				return eps[i].Path < eps[j].Path
			}
			return methodRank(eps[i].Method) < methodRank(eps[j].Method)
		})
		groups = append(groups, types.EndpointGroup{Resource: resource, Endpoints: eps})
	}
	return groups
}

// resourceOf names the group a path belongs to: the first path segment
// that is neither an api/version prefix nor a parameter.
func resourceOf(path string) string {
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || seg == "api" || strings.HasPrefix(seg, "{") {
			continue
		}
		if len(seg) >= 2 && seg[0] == 'v' && seg[1] >= '0' && seg[1] <= '9' {
			continue
		}
		return seg
	}
	return "root"
}

// methodRank orders operations GET-first inside a group so list/item
// reads appear before mutations.
func methodRank(method string) int {
	switch method {
	case "GET":
		return 0
	case "POST":
		return 1
	case "PUT":
		return 2
	case "PATCH":
		return 3
	case "DELETE":
		return 4
	default:
		return 5
	}
}
