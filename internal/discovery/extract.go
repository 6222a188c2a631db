package discovery

import (
	"sort"
	"strconv"
)

// wrapperKeys are generic envelope field names that hold the payload
// collection. When falling back to keys-as-records they must be skipped,
// otherwise the envelope itself gets misread as a resource identifier.
var wrapperKeys = map[string]bool{
	"data":     true,
	"items":    true,
	"results":  true,
	"response": true,
	"payload":  true,
	"_links":   true,
}

// ExtractRecords pulls the resource collection out of an arbitrary
// decoded JSON body. Precedence, strictly in order:
//
//  1. the body itself is an array
//  2. body.data is an object containing an items array
//  3. body.data is an array
//  4. body.items or body.results is an array
//  5. the object's own keys act as pseudo-records, wrapper keys excluded
//
// Every element is normalized to an object; scalar array elements become
// {"id": value}.
func ExtractRecords(body interface{}) []map[string]interface{} {
	switch v := body.(type) {
	case []interface{}:
		return normalizeAll(v)
	case map[string]interface{}:
		if data, ok := v["data"].(map[string]interface{}); ok {
			if items, ok := data["items"].([]interface{}); ok {
				return normalizeAll(items)
			}
		}
		if data, ok := v["data"].([]interface{}); ok {
			return normalizeAll(data)
		}
		if items, ok := v["items"].([]interface{}); ok {
			return normalizeAll(items)
		}
		if results, ok := v["results"].([]interface{}); ok {
			return normalizeAll(results)
		}
		return keysAsRecords(v)
	default:
		return nil
	}
}

func normalizeAll(items []interface{}) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		switch rec := item.(type) {
		case map[string]interface{}:
			records = append(records, rec)
		case string:
			if rec != "" {
				records = append(records, map[string]interface{}{"id": rec})
			}
		case float64, bool:
			records = append(records, map[string]interface{}{"id": rec})
		}
	}
	return records
}

// keysAsRecords treats each non-wrapper key of an object as one record
// named after the key. Object values contribute their fields; the key
// still wins as the record name. Keys are walked in sorted order so the
// sample-capped cache holds the same subset on every run.
func keysAsRecords(obj map[string]interface{}) []map[string]interface{} {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		if wrapperKeys[key] || key == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		rec := map[string]interface{}{"name": key}
		if fields, ok := obj[key].(map[string]interface{}); ok {
			for k, v := range fields {
				if k == "name" {
					continue
				}
				rec[k] = v
			}
		}
		records = append(records, rec)
	}
	return records
}

// StringField returns the named field as a non-empty string, formatting
// numeric identifiers without an exponent.
func StringField(rec map[string]interface{}, field string) string {
	val, ok := rec[field]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return ""
	default:
		return ""
	}
}
