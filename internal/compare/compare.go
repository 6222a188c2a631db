package compare

import (
	"fmt"
	"reflect"
	"sort"

	"api-contract-tester/internal/types"
)

// defaultMetaFields are volatile fields stripped before comparison: a
// recreated resource gets a fresh id and fresh timestamps, and those must
// not count as contract differences.
var defaultMetaFields = []string{
	"id", "_id", "uid", "uuid", "etag", "self",
	"createdAt", "created_at", "createdBy",
	"updatedAt", "updated_at", "updatedBy",
	"modifiedAt", "modified_at",
	"timestamp", "lastModified", "_links",
}

// DeepCompare walks two JSON-like values and returns every structural
// difference between them. Output order is deterministic for identical
// inputs: object keys are visited in sorted order.
func DeepCompare(expected, actual interface{}) []types.Difference {
	diffs := make([]types.Difference, 0)
	deepCompare(expected, actual, "", &diffs)
	return diffs
}

func deepCompare(expected, actual interface{}, path string, diffs *[]types.Difference) {
	if expected == nil || actual == nil {
		if !reflect.DeepEqual(expected, actual) {
			*diffs = append(*diffs, types.Difference{
				Path:     path,
				Expected: expected,
				Actual:   actual,
				Type:     types.DiffChanged,
			})
		}
		return
	}

	expMap, expIsMap := expected.(map[string]interface{})
	actMap, actIsMap := actual.(map[string]interface{})
	expArr, expIsArr := expected.([]interface{})
	actArr, actIsArr := actual.([]interface{})

	switch {
	case expIsArr && actIsArr:
		compareArrays(expArr, actArr, path, diffs)
	case expIsMap && actIsMap:
		compareObjects(expMap, actMap, path, diffs)
	default:
		if !reflect.DeepEqual(expected, actual) {
			*diffs = append(*diffs, types.Difference{
				Path:     path,
				Expected: expected,
				Actual:   actual,
				Type:     types.DiffChanged,
			})
		}
	}
}

func compareArrays(expected, actual []interface{}, path string, diffs *[]types.Difference) {
	if len(expected) != len(actual) {
		*diffs = append(*diffs, types.Difference{
			Path:     joinPath(path, "length"),
			Expected: len(expected),
			Actual:   len(actual),
			Type:     types.DiffChanged,
		})
	}

	max := len(expected)
	if len(actual) > max {
		max = len(actual)
	}
	for i := 0; i < max; i++ {
		var e, a interface{}
		if i < len(expected) {
			e = expected[i]
		}
		if i < len(actual) {
			a = actual[i]
		}
		deepCompare(e, a, fmt.Sprintf("%s[%d]", path, i), diffs)
	}
}

func compareObjects(expected, actual map[string]interface{}, path string, diffs *[]types.Difference) {
	for _, key := range sortedKeys(expected) {
		childPath := joinPath(path, key)
		if av, ok := actual[key]; ok {
			deepCompare(expected[key], av, childPath, diffs)
		} else {
			*diffs = append(*diffs, types.Difference{
				Path:     childPath,
				Expected: expected[key],
				Actual:   nil,
				Type:     types.DiffRemoved,
			})
		}
	}
	for _, key := range sortedKeys(actual) {
		if _, ok := expected[key]; ok {
			continue
		}
		*diffs = append(*diffs, types.Difference{
			Path:     joinPath(path, key),
			Expected: nil,
			Actual:   actual[key],
			Type:     types.DiffAdded,
		})
	}
}

// StripMetaFields returns a deep copy of data with the default volatile
// fields plus any extra field names removed, recursively. The input is
// never mutated, so originals stay usable as POST payloads and evidence.
func StripMetaFields(data interface{}, extra ...string) interface{} {
	drop := make(map[string]bool, len(defaultMetaFields)+len(extra))
	for _, f := range defaultMetaFields {
		drop[f] = true
	}
	for _, f := range extra {
		drop[f] = true
	}
	return strip(data, drop)
}

func strip(data interface{}, drop map[string]bool) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if drop[key] {
				continue
			}
			out[key] = strip(val, drop)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = strip(val, drop)
		}
		return out
	default:
		return data
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
