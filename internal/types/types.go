package types

import "time"

// Endpoint represents a single API operation parsed from the Swagger document.
// Path keeps its {name} placeholders; substitution happens at request time.
type Endpoint struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Summary string `json:"summary,omitempty"`
}

// EndpointGroup collects endpoints sharing a resource prefix.
type EndpointGroup struct {
	Resource  string     `json:"resource"`
	Endpoints []Endpoint `json:"endpoints"`
}

// DiscoveredRecord is one resource identifier extracted from a live response.
// Either ID or Name is always non-empty.
type DiscoveredRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	System string `json:"system,omitempty"`
}

// StepName tags one stage of the test protocol.
type StepName string

const (
	StepAuth    StepName = "AUTH"
	StepGet     StepName = "GET"
	StepDelete  StepName = "DELETE"
	StepPost    StepName = "POST"
	StepVerify  StepName = "VERIFY"
	StepCompare StepName = "COMPARE"
)

// TestStep is one observed request/response event in a test run.
type TestStep struct {
	Step      StepName    `json:"step"`
	Method    string      `json:"method,omitempty"`
	URL       string      `json:"url,omitempty"`
	Status    int         `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DiffType classifies a structural difference.
type DiffType string

const (
	DiffAdded   DiffType = "added"
	DiffRemoved DiffType = "removed"
	DiffChanged DiffType = "changed"
)

// Difference is one entry produced by the deep comparison of two values.
type Difference struct {
	Path     string      `json:"path"`
	Expected interface{} `json:"expected"`
	Actual   interface{} `json:"actual"`
	Type     DiffType    `json:"type"`
}

// TestResult is the immutable outcome of one endpoint/resource test.
type TestResult struct {
	Resource    string       `json:"resource"`
	Steps       []TestStep   `json:"steps"`
	Passed      bool         `json:"passed"`
	Differences []Difference `json:"differences,omitempty"`
	Duration    int64        `json:"duration_ms"`
}

// ChildAPIDefinition describes one child path pattern under a parent resource.
type ChildAPIDefinition struct {
	PathPattern string   `json:"path_pattern"`
	Description string   `json:"description"`
	Methods     []string `json:"methods"`
}

// ParentAPIDefinition ties a list-returning parent endpoint to the child
// endpoints that consume its item identifiers as path parameters.
type ParentAPIDefinition struct {
	ParentPath          string               `json:"parent_path"`
	Description         string               `json:"description"`
	IDField             string               `json:"id_field"`
	AlternativeIDFields []string             `json:"alternative_id_fields,omitempty"`
	ChildAPIs           []ChildAPIDefinition `json:"child_apis"`
}

// HierarchicalTestData is the materialized result of fetching one parent path.
type HierarchicalTestData struct {
	ParentPath    string             `json:"parent_path"`
	Description   string             `json:"description"`
	Resources     []DiscoveredRecord `json:"resources"`
	ChildAPICount int                `json:"child_api_count"`
}

// RunSummary is what the core hands to reporting after a full run.
type RunSummary struct {
	RunID    string       `json:"run_id"`
	Total    int          `json:"total"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Skipped  int          `json:"skipped"`
	Duration int64        `json:"duration_ms"`
	Results  []TestResult `json:"results"`
}
