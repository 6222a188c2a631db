package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"api-contract-tester/internal/blacklist"
	"api-contract-tester/internal/hierarchy"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/runner"
	"api-contract-tester/internal/types"

	"github.com/google/uuid"
)

// Orchestrator coordinates a run: it applies the blacklist, flattens the
// endpoint catalog, schedules runner invocations sequentially or in
// bounded batches, and aggregates results. It is the only component with
// fan-out/fan-in responsibility.
type Orchestrator struct {
	filter      *blacklist.Filter
	runner      *runner.Runner
	log         *logger.Logger
	readonly    bool
	parallel    bool
	maxParallel int
}

// Options configures an Orchestrator.
type Options struct {
	Filter      *blacklist.Filter
	Runner      *runner.Runner
	Log         *logger.Logger
	Readonly    bool
	Parallel    bool
	MaxParallel int
}

// New creates an orchestrator. MaxParallel below 1 falls back to 5.
func New(opts Options) *Orchestrator {
	maxParallel := opts.MaxParallel
	if maxParallel < 1 {
		maxParallel = 5
	}
	filter := opts.Filter
	if filter == nil {
		filter = blacklist.New(nil)
	}
	return &Orchestrator{
		filter:      filter,
		runner:      opts.Runner,
		log:         opts.Log,
		readonly:    opts.Readonly,
		parallel:    opts.Parallel,
		maxParallel: maxParallel,
	}
}

// workItem pairs one endpoint under test with its resource siblings. A
// non-empty resourceID pins the runner's placeholder substitution to one
// known resource instead of the discovery cache.
type workItem struct {
	endpoint   types.Endpoint
	siblings   []types.Endpoint
	resourceID string
}

// flatten applies the blacklist and expands groups into work items. In
// readonly mode non-GET endpoints are dropped here, not at runner time,
// so the run produces no "no DELETE/POST available" noise. The second
// return value counts endpoints excluded by the blacklist.
func (o *Orchestrator) flatten(groups []types.EndpointGroup) ([]workItem, int) {
	var items []workItem
	excluded := 0
	for _, group := range groups {
		kept := o.filter.FilterEndpoints(group.Endpoints)
		excluded += len(group.Endpoints) - len(kept)
		for _, ep := range kept {
			if o.readonly && !strings.EqualFold(ep.Method, "GET") {
				continue
			}
			items = append(items, workItem{endpoint: ep, siblings: kept})
		}
	}
	return items, excluded
}

// Run executes every non-excluded endpoint, sequentially or in batches of
// maxParallel, and aggregates the results.
func (o *Orchestrator) Run(ctx context.Context, groups []types.EndpointGroup) types.RunSummary {
	start := time.Now()
	items, excluded := o.flatten(groups)

	var results []types.TestResult
	if o.parallel {
		results = o.runBatches(ctx, items)
	} else {
		results = o.runSequential(ctx, items)
	}

	return o.summarize(results, excluded, time.Since(start))
}

func (o *Orchestrator) runSequential(ctx context.Context, items []workItem) []types.TestResult {
	results := make([]types.TestResult, 0, len(items))
	for i, item := range items {
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(items), item.endpoint.Method, item.endpoint.Path)
		results = append(results, o.safeRun(ctx, item))
	}
	return results
}

// runBatches slices the work into fixed-size batches. A batch's runner
// invocations start together and the batch is awaited in full before the
// next begins; results are appended only after the batch resolves.
func (o *Orchestrator) runBatches(ctx context.Context, items []workItem) []types.TestResult {
	results := make([]types.TestResult, 0, len(items))
	for offset := 0; offset < len(items); offset += o.maxParallel {
		end := offset + o.maxParallel
		if end > len(items) {
			end = len(items)
		}
		batch := items[offset:end]
		fmt.Printf("Batch %d: endpoints %d-%d of %d\n", offset/o.maxParallel+1, offset+1, end, len(items))

		batchResults := make([]types.TestResult, len(batch))
		var wg sync.WaitGroup
		for i, item := range batch {
			wg.Add(1)
			go func(i int, item workItem) {
				defer wg.Done()
				batchResults[i] = o.safeRun(ctx, item)
			}(i, item)
		}
		wg.Wait()
		results = append(results, batchResults...)
	}
	return results
}

// RunHierarchical executes one parent test plus all expanded child tests
// per materialized entry, strictly sequentially.
func (o *Orchestrator) RunHierarchical(ctx context.Context, groups []types.EndpointGroup, catalog []types.ParentAPIDefinition, data []types.HierarchicalTestData) types.RunSummary {
	start := time.Now()
	filtered := o.filter.FilterGroups(groups)
	excluded := countEndpoints(groups) - countEndpoints(filtered)

	defs := make(map[string]types.ParentAPIDefinition, len(catalog))
	for _, def := range catalog {
		defs[def.ParentPath] = def
	}

	var results []types.TestResult
	for _, entry := range data {
		def, ok := defs[entry.ParentPath]
		if !ok {
			o.log.Printf("hierarchy: no catalog definition for %s, skipping", entry.ParentPath)
			continue
		}

		invocations := hierarchy.Expand(entry, def)
		fmt.Printf("%s: %d resources x %d child APIs = %d child tests\n",
			entry.ParentPath, len(entry.Resources), entry.ChildAPICount, len(invocations))

		if parent, siblings, ok := resolveEndpoint(filtered, "GET", entry.ParentPath); ok {
			fmt.Printf("[parent] GET %s\n", entry.ParentPath)
			// The parent's item-level protocol steps use the first
			// discovered resource.
			parentID := ""
			if len(entry.Resources) > 0 {
				parentID = entry.Resources[0].ID
			}
			results = append(results, o.safeRun(ctx, workItem{endpoint: parent, siblings: siblings, resourceID: parentID}))
		}

		for i, inv := range invocations {
			fmt.Printf("[%d/%d] %s %s\n", i+1, len(invocations), inv.Method, inv.Path)
			endpoint, siblings, ok := resolveEndpoint(filtered, inv.Method, inv.Path)
			if ok {
				// The catalog entry contributes its method and siblings;
				// the request goes to the concrete expanded path.
				endpoint.Path = inv.Path
			} else {
				// Unresolved paths are still exercised with a bare GET.
				endpoint = types.Endpoint{Method: "GET", Path: inv.Path, Summary: inv.Description}
				siblings = nil
			}
			results = append(results, o.safeRun(ctx, workItem{endpoint: endpoint, siblings: siblings, resourceID: inv.ResourceID}))
		}
	}

	return o.summarize(results, excluded, time.Since(start))
}

// safeRun shields the schedule from a misbehaving runner invocation: a
// panic becomes a synthetic failing result instead of aborting the batch.
func (o *Orchestrator) safeRun(ctx context.Context, item workItem) (result types.TestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Printf("runner panic on %s %s: %v", item.endpoint.Method, item.endpoint.Path, rec)
			result = types.TestResult{
				Resource: fmt.Sprintf("%s %s", item.endpoint.Method, item.endpoint.Path),
				Passed:   false,
				Steps: []types.TestStep{{
					Step:      types.StepGet,
					Error:     fmt.Sprintf("internal error: %v", rec),
					Timestamp: time.Now(),
				}},
			}
		}
	}()
	return o.runner.RunResource(ctx, item.endpoint, item.siblings, item.resourceID)
}

func (o *Orchestrator) summarize(results []types.TestResult, skipped int, elapsed time.Duration) types.RunSummary {
	summary := types.RunSummary{
		RunID:    uuid.NewString(),
		Total:    len(results),
		Skipped:  skipped,
		Duration: elapsed.Milliseconds(),
		Results:  results,
	}
	for _, r := range results {
		if r.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func countEndpoints(groups []types.EndpointGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Endpoints)
	}
	return n
}

// resolveEndpoint finds the catalog endpoint matching a method and a
// concrete path, either exactly or via its placeholder template. The
// matched endpoint's group siblings come along for protocol resolution.
func resolveEndpoint(groups []types.EndpointGroup, method, path string) (types.Endpoint, []types.Endpoint, bool) {
	for _, group := range groups {
		for _, ep := range group.Endpoints {
			if !strings.EqualFold(ep.Method, method) {
				continue
			}
			if ep.Path == path || templateMatches(ep.Path, path) {
				return ep, group.Endpoints, true
			}
		}
	}
	return types.Endpoint{}, nil, false
}

var placeholderRe = regexp.MustCompile(`\{[^/{}]+\}`)

// templateMatches reports whether a concrete path instantiates the given
// template, each placeholder consuming exactly one path segment.
func templateMatches(template, path string) bool {
	if !strings.Contains(template, "{") {
		return false
	}
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		b.WriteString(`[^/]+`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
