package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/compare"
	"api-contract-tester/internal/discovery"
	"api-contract-tester/internal/llm"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
)

// Runner executes the fixed request protocol against one endpoint and its
// sibling endpoints: AUTH, GET, DELETE, POST, VERIFY, COMPARE, or the
// readonly short-circuit AUTH, GET. Step failures are recorded and the
// protocol continues; nothing escapes as an error.
type Runner struct {
	baseURL    string
	provider   auth.Provider
	client     *http.Client
	cache      discovery.Cache
	log        *logger.Logger
	readonly   bool
	payloadGen llm.Client
}

// Options configures a Runner.
type Options struct {
	BaseURL    string
	Provider   auth.Provider
	Cache      discovery.Cache
	Log        *logger.Logger
	Timeout    time.Duration
	Readonly   bool
	PayloadGen llm.Client
}

// New creates a runner. Cache may be empty; substitution then falls back
// to literal placeholders.
func New(opts Options) *Runner {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cache := opts.Cache
	if cache == nil {
		cache = discovery.Cache{}
	}
	return &Runner{
		baseURL:    opts.BaseURL,
		provider:   opts.Provider,
		client:     &http.Client{Timeout: timeout},
		cache:      cache,
		log:        opts.Log,
		readonly:   opts.Readonly,
		payloadGen: opts.PayloadGen,
	}
}

// state carries the protocol's working data between steps.
type state struct {
	headers      map[string]string
	originalData interface{}
	verifyData   interface{}
	resourceID   string
	newID        string
}

// Run executes the protocol for target. siblings are the other endpoints
// of the same resource group; DELETE, POST and item-GET templates are
// resolved from them.
func (r *Runner) Run(ctx context.Context, target types.Endpoint, siblings []types.Endpoint) types.TestResult {
	return r.RunResource(ctx, target, siblings, "")
}

// RunResource executes the protocol for a known resource identifier. A
// non-empty id replaces every placeholder directly; cache substitution is
// bypassed. Hierarchical expansion hands each discovered resource id in
// this way so the expanded paths actually reach the wire.
func (r *Runner) RunResource(ctx context.Context, target types.Endpoint, siblings []types.Endpoint, resourceID string) (result types.TestResult) {
	start := time.Now()
	result = types.TestResult{
		Resource:    fmt.Sprintf("%s %s", target.Method, target.Path),
		Differences: []types.Difference{},
	}
	st := &state{resourceID: resourceID}

	defer func() {
		result.Duration = time.Since(start).Milliseconds()
	}()

	// AUTH
	headers, err := r.provider.ObtainAuthHeaders(ctx)
	if err != nil {
		result.Steps = append(result.Steps, types.TestStep{
			Step:      types.StepAuth,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
		result.Differences = append(result.Differences, types.Difference{
			Path:     "auth",
			Expected: "credentials obtained",
			Actual:   err.Error(),
			Type:     types.DiffChanged,
		})
		result.Passed = false
		return result
	}
	st.headers = headers
	result.Steps = append(result.Steps, types.TestStep{Step: types.StepAuth, Timestamp: time.Now()})

	if r.readonly {
		status := r.readonlyGet(ctx, target, st, &result)
		result.Passed = status == http.StatusOK
		return result
	}

	r.stepGet(ctx, target, siblings, st, &result)
	r.stepDelete(ctx, target, siblings, st, &result)
	r.stepPost(ctx, target, siblings, st, &result)
	r.stepVerify(ctx, target, siblings, st, &result)
	r.stepCompare(st, &result)
	return result
}

// readonlyGet performs the single GET of readonly mode and returns its
// HTTP status.
func (r *Runner) readonlyGet(ctx context.Context, target types.Endpoint, st *state, result *types.TestResult) int {
	path := discovery.Substitute(target.Path, r.cache)
	if st.resourceID != "" {
		path = replacePlaceholders(target.Path, st.resourceID)
	}
	url := r.baseURL + path
	status, body, err := r.request(ctx, http.MethodGet, url, st.headers, nil)
	r.appendStep(result, types.TestStep{
		Step:   types.StepGet,
		Method: http.MethodGet,
		URL:    url,
		Status: status,
		Data:   body,
		Error:  errString(err),
	})
	return status
}

// stepGet captures the original resource data. An item GET (template with
// a placeholder) is preferred; a 404 falls back to the list GET, whose
// first extracted record stands in for the resource.
func (r *Runner) stepGet(ctx context.Context, target types.Endpoint, siblings []types.Endpoint, st *state, result *types.TestResult) {
	itemEP, hasItem := findEndpoint(target, siblings, http.MethodGet, true)
	listEP, hasList := findEndpoint(target, siblings, http.MethodGet, false)

	if !hasItem && !hasList {
		r.appendStep(result, types.TestStep{
			Step:  types.StepGet,
			Error: "No GET endpoint available",
		})
		return
	}

	if hasItem {
		path := discovery.Substitute(itemEP.Path, r.cache)
		if st.resourceID != "" {
			path = replacePlaceholders(itemEP.Path, st.resourceID)
		} else {
			st.resourceID = firstSubstitution(itemEP.Path, r.cache)
		}
		url := r.baseURL + path
		status, body, err := r.request(ctx, http.MethodGet, url, st.headers, nil)
		step := types.TestStep{
			Step:   types.StepGet,
			Method: http.MethodGet,
			URL:    url,
			Status: status,
			Data:   body,
			Error:  errString(err),
		}
		if err == nil && step.Error == "" && (status < 200 || status >= 300) && status != http.StatusNotFound {
			step.Error = fmt.Sprintf("unexpected status code: %d", status)
		}
		r.appendStep(result, step)
		if err == nil && status >= 200 && status < 300 {
			st.originalData = body
			return
		}
		if status != http.StatusNotFound {
			// Hard failure on the item GET: later steps simply find no
			// original data.
			return
		}
	}

	if !hasList {
		return
	}

	url := r.baseURL + listEP.Path
	status, body, err := r.request(ctx, http.MethodGet, url, st.headers, nil)
	step := types.TestStep{
		Step:   types.StepGet,
		Method: http.MethodGet,
		URL:    url,
		Status: status,
		Data:   body,
		Error:  errString(err),
	}
	if err == nil && (status < 200 || status >= 300) {
		step.Error = fmt.Sprintf("unexpected status code: %d", status)
	}
	r.appendStep(result, step)
	if err != nil || status < 200 || status >= 300 {
		return
	}
	records := discovery.ExtractRecords(body)
	if len(records) == 0 {
		return
	}
	st.originalData = records[0]
	st.resourceID = idOf(records[0], "1")
}

// stepDelete removes the original resource. A 404 means it was already
// absent, which the protocol treats as success.
func (r *Runner) stepDelete(ctx context.Context, target types.Endpoint, siblings []types.Endpoint, st *state, result *types.TestResult) {
	deleteEP, ok := findEndpoint(target, siblings, http.MethodDelete, true)
	if !ok {
		deleteEP, ok = findEndpoint(target, siblings, http.MethodDelete, false)
	}
	if !ok {
		r.appendStep(result, types.TestStep{
			Step:  types.StepDelete,
			Error: "No DELETE endpoint available",
		})
		return
	}
	if st.resourceID == "" {
		r.appendStep(result, types.TestStep{
			Step:  types.StepDelete,
			Error: "No resource id to delete",
		})
		return
	}

	url := r.baseURL + replacePlaceholders(deleteEP.Path, st.resourceID)
	status, body, err := r.request(ctx, http.MethodDelete, url, st.headers, nil)
	step := types.TestStep{
		Step:   types.StepDelete,
		Method: http.MethodDelete,
		URL:    url,
		Status: status,
		Data:   body,
	}
	switch {
	case err != nil:
		step.Error = err.Error()
	case status == http.StatusNotFound:
		// Resource already absent; expected outcome, not an error.
	case status < 200 || status >= 300:
		step.Error = fmt.Sprintf("unexpected status code: %d", status)
	}
	r.appendStep(result, step)
}

// stepPost recreates the resource from the original data with volatile
// fields stripped. When nothing was captured and a payload generator is
// configured, a synthesized body is used instead.
func (r *Runner) stepPost(ctx context.Context, target types.Endpoint, siblings []types.Endpoint, st *state, result *types.TestResult) {
	postEP, ok := findEndpoint(target, siblings, http.MethodPost, false)
	if !ok {
		postEP, ok = findEndpoint(target, siblings, http.MethodPost, true)
	}
	if !ok {
		r.appendStep(result, types.TestStep{
			Step:  types.StepPost,
			Error: "No POST endpoint available",
		})
		return
	}

	var payload interface{}
	switch {
	case st.originalData != nil:
		payload = compare.StripMetaFields(st.originalData)
	case r.payloadGen != nil:
		generated, err := r.payloadGen.GeneratePayload(ctx, postEP)
		if err != nil {
			r.appendStep(result, types.TestStep{
				Step:  types.StepPost,
				Error: fmt.Sprintf("No original data captured; payload synthesis failed: %v", err),
			})
			return
		}
		payload = generated
	default:
		r.appendStep(result, types.TestStep{
			Step:  types.StepPost,
			Error: "No original data captured",
		})
		return
	}

	url := r.baseURL + discovery.Substitute(postEP.Path, r.cache)
	status, body, err := r.request(ctx, http.MethodPost, url, st.headers, payload)
	step := types.TestStep{
		Step:   types.StepPost,
		Method: http.MethodPost,
		URL:    url,
		Status: status,
		Data:   body,
		Error:  errString(err),
	}
	if err == nil && (status < 200 || status >= 300) {
		step.Error = fmt.Sprintf("unexpected status code: %d", status)
	}
	r.appendStep(result, step)

	if rec, ok := body.(map[string]interface{}); ok {
		st.newID = idOf(rec, "")
	}
}

// stepVerify re-reads the recreated resource with the new id.
func (r *Runner) stepVerify(ctx context.Context, target types.Endpoint, siblings []types.Endpoint, st *state, result *types.TestResult) {
	if st.newID == "" {
		r.appendStep(result, types.TestStep{
			Step:  types.StepVerify,
			Error: "No recreated resource id",
		})
		return
	}
	itemEP, ok := findEndpoint(target, siblings, http.MethodGet, true)
	if !ok {
		r.appendStep(result, types.TestStep{
			Step:  types.StepVerify,
			Error: "No item GET endpoint available",
		})
		return
	}

	url := r.baseURL + replacePlaceholders(itemEP.Path, st.newID)
	status, body, err := r.request(ctx, http.MethodGet, url, st.headers, nil)
	r.appendStep(result, types.TestStep{
		Step:   types.StepVerify,
		Method: http.MethodGet,
		URL:    url,
		Status: status,
		Data:   body,
		Error:  errString(err),
	})
	if err == nil && status >= 200 && status < 300 {
		st.verifyData = body
	}
}

// stepCompare strips volatile fields from both sides and diffs them. A
// missing side fails the test without producing differences.
func (r *Runner) stepCompare(st *state, result *types.TestResult) {
	if st.originalData == nil || st.verifyData == nil {
		r.appendStep(result, types.TestStep{
			Step:  types.StepCompare,
			Error: "Missing original or verification data",
		})
		result.Passed = false
		return
	}

	diffs := compare.DeepCompare(
		compare.StripMetaFields(st.originalData),
		compare.StripMetaFields(st.verifyData),
	)
	result.Differences = diffs
	result.Passed = len(diffs) == 0
	step := types.TestStep{Step: types.StepCompare}
	if len(diffs) > 0 {
		step.Error = fmt.Sprintf("%d differences found", len(diffs))
	}
	r.appendStep(result, step)
}

// appendStep timestamps and records a step, mirroring it to the run log.
func (r *Runner) appendStep(result *types.TestResult, step types.TestStep) {
	step.Timestamp = time.Now()
	result.Steps = append(result.Steps, step)
	if r.log != nil {
		var err error
		if step.Error != "" {
			err = fmt.Errorf("%s", step.Error)
		}
		r.log.LogStep(result.Resource, string(step.Step), step.Method, step.URL, step.Status, err)
	}
}

// request performs one HTTP call and decodes a JSON body when present.
// Network errors and timeouts surface as the returned error; HTTP error
// statuses do not.
func (r *Runner) request(ctx context.Context, method, url string, headers map[string]string, payload interface{}) (int, interface{}, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body interface{}
	if len(data) > 0 {
		if jsonErr := json.Unmarshal(data, &body); jsonErr != nil {
			body = string(data)
		}
	}
	return resp.StatusCode, body, nil
}

// findEndpoint looks for a method match, first on the target itself and
// then among its siblings. withPlaceholder selects item templates when
// true and list templates when false.
func findEndpoint(target types.Endpoint, siblings []types.Endpoint, method string, withPlaceholder bool) (types.Endpoint, bool) {
	if strings.EqualFold(target.Method, method) && strings.Contains(target.Path, "{") == withPlaceholder {
		return target, true
	}
	for _, ep := range siblings {
		if !strings.EqualFold(ep.Method, method) {
			continue
		}
		if strings.Contains(ep.Path, "{") == withPlaceholder {
			return ep, true
		}
	}
	return types.Endpoint{}, false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// idOf reads a record's identifier from its id or _id field.
func idOf(rec map[string]interface{}, fallback string) string {
	for _, field := range []string{"id", "_id"} {
		if v := discovery.StringField(rec, field); v != "" {
			return v
		}
	}
	return fallback
}

// firstSubstitution returns the value the cache substitutes for the first
// placeholder of a template, empty when the template has none.
func firstSubstitution(template string, cache discovery.Cache) string {
	open := strings.Index(template, "{")
	if open < 0 {
		return ""
	}
	end := strings.Index(template[open:], "}")
	if end < 0 {
		return ""
	}
	substituted := discovery.Substitute(template[:open+end+1], cache)
	return substituted[open:]
}

// replacePlaceholders substitutes every {param} token with one concrete id.
func replacePlaceholders(template, id string) string {
	out := template
	for {
		open := strings.Index(out, "{")
		if open < 0 {
			return out
		}
		end := strings.Index(out[open:], "}")
		if end < 0 {
			return out
		}
		out = out[:open] + id + out[open+end+1:]
	}
}
