package blacklist

import (
	"fmt"
	"regexp"
	"strings"

	"api-contract-tester/internal/types"
)

// placeholderRe matches a {param} token in a path template.
var placeholderRe = regexp.MustCompile(`\{[^/{}]+\}`)

// Filter excludes endpoints whose "METHOD PATH" matches a blacklist entry,
// either exactly or after treating every {param} token as a single path
// segment wildcard. Entries are fixed at construction.
type Filter struct {
	exact    map[string]bool
	patterns []*regexp.Regexp
}

// New compiles the given blacklist entries. Each entry is a
// "METHOD /path/{param}" template string.
func New(entries []string) *Filter {
	f := &Filter{exact: make(map[string]bool, len(entries))}
	for _, entry := range entries {
		f.exact[entry] = true
		if strings.Contains(entry, "{") {
			f.patterns = append(f.patterns, templateToRegexp(entry))
		}
	}
	return f
}

// templateToRegexp converts a "METHOD /a/{x}/b" entry into an anchored
// regexp where each placeholder matches one concrete path segment.
func templateToRegexp(entry string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(entry, -1) {
		b.WriteString(regexp.QuoteMeta(entry[last:loc[0]]))
		b.WriteString(`[^/]+`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(entry[last:]))
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// IsExcluded reports whether the endpoint is blacklisted. A candidate path
// that still carries {param} tokens is normalized the same way as entries,
// so a template matches its own blacklist entry as well as any concrete
// instantiation.
func (f *Filter) IsExcluded(method, path string) bool {
	key := fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	if f.exact[key] {
		return true
	}
	candidate := key
	if strings.Contains(candidate, "{") {
		// Compare template-to-template: substitute a neutral segment so
		// the entry's wildcard can consume it.
		candidate = placeholderRe.ReplaceAllString(candidate, "1")
	}
	for _, re := range f.patterns {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// FilterEndpoints returns the endpoints not excluded, preserving order.
func (f *Filter) FilterEndpoints(endpoints []types.Endpoint) []types.Endpoint {
	kept := make([]types.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if !f.IsExcluded(ep.Method, ep.Path) {
			kept = append(kept, ep)
		}
	}
	return kept
}

// FilterGroups applies FilterEndpoints to every group, dropping groups
// left empty.
func (f *Filter) FilterGroups(groups []types.EndpointGroup) []types.EndpointGroup {
	kept := make([]types.EndpointGroup, 0, len(groups))
	for _, g := range groups {
		eps := f.FilterEndpoints(g.Endpoints)
		if len(eps) == 0 {
			continue
		}
		kept = append(kept, types.EndpointGroup{Resource: g.Resource, Endpoints: eps})
	}
	return kept
}
